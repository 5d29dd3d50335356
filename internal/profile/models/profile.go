package models

import (
	"slices"
	"strings"
	"time"

	dErrors "profilehub/pkg/domain-errors"
)

// Profile is the aggregate validated by downstream product validators.
//
// Invariants:
//   - UserID is immutable once created
//   - Subscriptions is never empty for a persisted profile
//   - IdempotencyKey is written once at creation and never recomputed
//   - A REJECTED profile accepts no new subscriptions
//
// The JSON form is the event payload consumed by validators, so field names
// follow the bus contract rather than Go conventions.
type Profile struct {
	UserID          string         `json:"userId"`
	CompanyName     string         `json:"companyName,omitempty"`
	LegalName       string         `json:"legalName,omitempty"`
	Email           string         `json:"email,omitempty"`
	Website         string         `json:"website,omitempty"`
	BusinessAddress *Address       `json:"businessAddress,omitempty"`
	LegalAddress    *Address       `json:"legalAddress,omitempty"`
	TaxIdentifiers  TaxIdentifiers `json:"taxIdentifiers,omitzero"`

	IdempotencyKey          string                       `json:"idempotencyKey,omitempty"`
	ConsolidatedStatus      Status                       `json:"consolidatedStatus,omitempty"`
	ConsolidatedMessage     string                       `json:"consolidatedMessage,omitempty"`
	Subscriptions           []string                     `json:"subscriptions,omitempty"`
	ExistingSubscriptions   []string                     `json:"existingSubscriptions,omitempty"`
	SubscriptionValidations map[string]ProductValidation `json:"subscriptionValidations,omitempty"`

	// CreateFlow marks the response of a successful create; it is never persisted.
	CreateFlow bool `json:"createFlow,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// TaxIdentifiers holds the tax ids used for identity correlation.
type TaxIdentifiers struct {
	PAN string `json:"pan,omitempty"`
	EIN string `json:"ein,omitempty"`
}

type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// ProductValidation is one validator's outcome for one product.
type ProductValidation struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewStatusRecord builds the minimal record used for status-only conditional
// updates. Zero-valued fields are left untouched by the store.
func NewStatusRecord(userID string, status Status, message string) *Profile {
	return &Profile{
		UserID:              userID,
		ConsolidatedStatus:  status,
		ConsolidatedMessage: message,
	}
}

// NormalizeSubscriptions trims and de-duplicates product ids in place. A list
// left with no ids becomes nil so partial updates keep the stored set.
func (p *Profile) NormalizeSubscriptions() {
	p.Subscriptions = normalizeProductIDs(p.Subscriptions)
	p.ExistingSubscriptions = normalizeProductIDs(p.ExistingSubscriptions)
}

// normalizeProductIDs drops blank ids and repeats, keeping first-seen order.
// Product ids are case-sensitive.
func normalizeProductIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// HasSubscription reports whether productID is held now or was held in an
// earlier validation round.
func (p *Profile) HasSubscription(productID string) bool {
	return slices.Contains(p.Subscriptions, productID) || slices.Contains(p.ExistingSubscriptions, productID)
}

// CanAddSubscription checks the business rules for starting a validation
// round for productID.
func (p *Profile) CanAddSubscription(productID string) error {
	if productID == "" {
		return dErrors.New(dErrors.CodeValidation, "productId is required")
	}
	if p.ConsolidatedStatus == StatusRejected {
		return dErrors.New(dErrors.CodeBusinessRule, "cannot subscribe to a product: profile validation was rejected")
	}
	if p.HasSubscription(productID) {
		return dErrors.New(dErrors.CodeBusinessRule, "profile is already subscribed to this product")
	}
	return nil
}

// ApplySubscription starts a validation round scoped to productID. Earlier
// subscriptions move into the history so validators only look at the new
// product.
func (p *Profile) ApplySubscription(productID string, now time.Time) {
	history := make([]string, 0, len(p.ExistingSubscriptions)+len(p.Subscriptions))
	history = append(history, p.ExistingSubscriptions...)
	history = append(history, p.Subscriptions...)

	p.ConsolidatedStatus = StatusInProgress
	p.ExistingSubscriptions = normalizeProductIDs(history)
	p.Subscriptions = []string{productID}
	p.UpdatedAt = now
}

// IdentityTaxID returns the tax identifier that participates in the
// idempotency fingerprint.
func (p *Profile) IdentityTaxID() string {
	return p.TaxIdentifiers.PAN
}
