// Package store persists profiles behind a key-value contract with
// conditional writes.
//
// Update is a partial write: zero-valued fields of the incoming record are
// skipped, so a status-only record leaves every other attribute untouched.
// The consolidated message belongs to the status it was written with: a
// record that sets a status also replaces the message, clearing it when the
// record carries none.
// Update distinguishes a missing record (ErrNotFound) from a record whose id
// does not match the expected id (ErrPreconditionFailed) so callers can map
// the two independently.
package store

import (
	"fmt"
	"maps"
	"slices"

	"profilehub/internal/profile/models"
	"profilehub/pkg/platform/sentinel"
)

var (
	ErrNotFound           = sentinel.ErrNotFound
	ErrConflict           = sentinel.ErrConflict
	ErrPreconditionFailed = sentinel.ErrPreconditionFailed
)

// checkExpectedID enforces the conditional-update expectation that the
// record's id matches the id it is written under.
func checkExpectedID(userID string, record *models.Profile) error {
	if record == nil {
		return fmt.Errorf("profile record is required")
	}
	if record.UserID != "" && record.UserID != userID {
		return fmt.Errorf("expected user id %q, record carries %q: %w", userID, record.UserID, ErrPreconditionFailed)
	}
	return nil
}

// mergePartial copies every non-zero field of src onto dst. The idempotency
// key and creation time are write-once and never merged.
func mergePartial(dst, src *models.Profile) {
	if src.CompanyName != "" {
		dst.CompanyName = src.CompanyName
	}
	if src.LegalName != "" {
		dst.LegalName = src.LegalName
	}
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Website != "" {
		dst.Website = src.Website
	}
	if src.BusinessAddress != nil {
		addr := *src.BusinessAddress
		dst.BusinessAddress = &addr
	}
	if src.LegalAddress != nil {
		addr := *src.LegalAddress
		dst.LegalAddress = &addr
	}
	if src.TaxIdentifiers != (models.TaxIdentifiers{}) {
		dst.TaxIdentifiers = src.TaxIdentifiers
	}
	switch {
	case src.ConsolidatedStatus != "":
		dst.ConsolidatedStatus = src.ConsolidatedStatus
		dst.ConsolidatedMessage = src.ConsolidatedMessage
	case src.ConsolidatedMessage != "":
		dst.ConsolidatedMessage = src.ConsolidatedMessage
	}
	if src.Subscriptions != nil {
		dst.Subscriptions = slices.Clone(src.Subscriptions)
	}
	if src.ExistingSubscriptions != nil {
		dst.ExistingSubscriptions = slices.Clone(src.ExistingSubscriptions)
	}
	if src.SubscriptionValidations != nil {
		dst.SubscriptionValidations = maps.Clone(src.SubscriptionValidations)
	}
	if !src.UpdatedAt.IsZero() {
		dst.UpdatedAt = src.UpdatedAt
	}
}

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	c.Subscriptions = slices.Clone(p.Subscriptions)
	c.ExistingSubscriptions = slices.Clone(p.ExistingSubscriptions)
	c.SubscriptionValidations = maps.Clone(p.SubscriptionValidations)
	if p.BusinessAddress != nil {
		addr := *p.BusinessAddress
		c.BusinessAddress = &addr
	}
	if p.LegalAddress != nil {
		addr := *p.LegalAddress
		c.LegalAddress = &addr
	}
	c.CreateFlow = false
	return &c
}

func requestedAttributes(attrs []models.Attribute) []models.Attribute {
	if len(attrs) == 0 {
		return models.StatusAttributes
	}
	return attrs
}
