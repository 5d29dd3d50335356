package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncrementProfilesCreated()
	m.IncrementDuplicateRequests()
	m.IncrementDuplicateRequests()
	m.IncrementPublishFailures("PROFILE_CREATE")
	m.IncrementCompensations("applied")
	m.IncrementValidationResults("VALIDATED")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfilesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicateRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures.WithLabelValues("PROFILE_CREATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("applied")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Compensations.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationResults.WithLabelValues("VALIDATED")))
}
