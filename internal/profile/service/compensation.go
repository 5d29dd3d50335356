package service

import (
	"context"
	"encoding/json"

	"profilehub/internal/profile/models"
	dErrors "profilehub/pkg/domain-errors"
	"profilehub/pkg/requestcontext"
)

// publishOrCompensate publishes payload and, if delivery fails, demotes the
// profile to NOT_COMPLETE. The returned error is always the publish failure.
func (s *Service) publishOrCompensate(ctx context.Context, userID string, eventType models.EventType, payload any) error {
	message, err := json.Marshal(payload)
	if err != nil {
		s.compensate(ctx, userID, eventType, err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode profile event")
	}
	if err := s.publisher.Publish(ctx, message, eventType, userID); err != nil {
		s.incrementPublishFailures(eventType)
		s.compensate(ctx, userID, eventType, err)
		return dErrors.Wrap(err, dErrors.CodePublishFailed, "profile event could not be delivered to validators")
	}
	return nil
}

// compensate writes the NOT_COMPLETE marker through the conditional update
// path and evicts the cache. A failing compensating write is logged and
// counted, never returned.
func (s *Service) compensate(ctx context.Context, userID string, eventType models.EventType, cause error) {
	ctx = context.WithoutCancel(ctx)

	record := models.NewStatusRecord(userID, models.StatusNotComplete, models.CompensationMessage)
	record.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, userID, record); err != nil {
		s.incrementCompensations("failed")
		s.logger.ErrorContext(ctx, "compensating write failed, profile may remain IN_PROGRESS",
			"user_id", userID,
			"event_type", eventType,
			"publish_error", cause,
			"error", err,
		)
	} else {
		s.incrementCompensations("applied")
		s.logger.WarnContext(ctx, "profile marked NOT_COMPLETE after publish failure",
			"user_id", userID,
			"event_type", eventType,
			"publish_error", cause,
		)
	}
	s.evict(ctx, userID)
}
