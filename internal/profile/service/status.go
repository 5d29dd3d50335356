package service

import (
	"context"
	"maps"

	"profilehub/internal/profile/models"
	dErrors "profilehub/pkg/domain-errors"
)

// GetStatus returns the consolidated status and the per-product outcomes
// from a projected read.
func (s *Service) GetStatus(ctx context.Context, userID string) (_ *models.StatusResult, err error) {
	ctx, span := s.startSpan(ctx, "profile.GetStatus", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	attrs, err := s.store.FindAttributes(ctx, userID, models.StatusAttributes...)
	if err != nil {
		return nil, translateStoreErr(err, "load profile status")
	}
	return buildStatusResult(userID, attrs)
}

// buildStatusResult maps each product in the projection to its outcome. A
// record without a consolidated status is inconsistent and is reported as a
// business error rather than not-found.
func buildStatusResult(userID string, attrs *models.ProjectedAttributes) (*models.StatusResult, error) {
	if attrs == nil || attrs.ConsolidatedStatus == nil {
		return nil, dErrors.New(dErrors.CodeBusinessRule, "profile has no consolidated status")
	}
	result := &models.StatusResult{
		UserID:             userID,
		ConsolidatedStatus: *attrs.ConsolidatedStatus,
		Subscriptions:      make(map[string]models.ProductValidation, len(attrs.SubscriptionValidations)),
	}
	if attrs.ConsolidatedMessage != nil {
		result.ConsolidatedMessage = *attrs.ConsolidatedMessage
	}
	maps.Copy(result.Subscriptions, attrs.SubscriptionValidations)
	return result, nil
}
