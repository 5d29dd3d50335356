package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for profile orchestration.
type Metrics struct {
	ProfilesCreated    prometheus.Counter
	DuplicateRequests  prometheus.Counter
	SubscriptionsAdded prometheus.Counter
	ProfilesDeleted    prometheus.Counter
	PublishFailures    *prometheus.CounterVec
	Compensations      *prometheus.CounterVec
	ValidationResults  *prometheus.CounterVec
}

// New registers the collectors with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProfilesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "profilehub_profiles_created_total",
			Help: "Profiles created and handed off to validators",
		}),
		DuplicateRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "profilehub_duplicate_create_requests_total",
			Help: "Create requests refused because the idempotency fingerprint already exists",
		}),
		SubscriptionsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "profilehub_subscriptions_added_total",
			Help: "Subscriptions that started a new validation round",
		}),
		ProfilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "profilehub_profiles_deleted_total",
			Help: "Profiles deleted",
		}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilehub_publish_failures_total",
			Help: "Profile events that could not be delivered after retries",
		}, []string{"event_type"}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilehub_compensations_total",
			Help: "Compensating NOT_COMPLETE writes by outcome",
		}, []string{"outcome"}),
		ValidationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "profilehub_validation_results_total",
			Help: "Validation results applied, by consolidated status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementProfilesCreated() {
	m.ProfilesCreated.Inc()
}

func (m *Metrics) IncrementDuplicateRequests() {
	m.DuplicateRequests.Inc()
}

func (m *Metrics) IncrementSubscriptionsAdded() {
	m.SubscriptionsAdded.Inc()
}

func (m *Metrics) IncrementProfilesDeleted() {
	m.ProfilesDeleted.Inc()
}

func (m *Metrics) IncrementPublishFailures(eventType string) {
	m.PublishFailures.WithLabelValues(eventType).Inc()
}

// IncrementCompensations records a compensating write; outcome is "applied"
// or "failed".
func (m *Metrics) IncrementCompensations(outcome string) {
	m.Compensations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementValidationResults(status string) {
	m.ValidationResults.WithLabelValues(status).Inc()
}
