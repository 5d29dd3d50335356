// Package listener applies validation results delivered by the validators
// on the results topic.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"profilehub/internal/platform/kafka/consumer"
	"profilehub/internal/profile/models"
	"profilehub/internal/profile/publisher"
	dErrors "profilehub/pkg/domain-errors"
	"profilehub/pkg/requestcontext"
)

// ResultRecorder records a validation outcome.
type ResultRecorder interface {
	UpdateAfterValidation(ctx context.Context, result *models.Profile) (*models.Profile, error)
}

// ValidationResultHandler decodes validation results and hands them to the
// profile service. Records that can never succeed are logged and committed;
// anything else is returned so the record is redelivered.
type ValidationResultHandler struct {
	recorder ResultRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func New(recorder ResultRecorder, logger *slog.Logger) *ValidationResultHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationResultHandler{recorder: recorder, logger: logger, now: time.Now}
}

var _ consumer.Handler = (*ValidationResultHandler)(nil)

func (h *ValidationResultHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ctx = requestcontext.WithTime(ctx, h.now())
	ctx = requestcontext.WithRequestID(ctx, uuid.NewString())

	var result models.Profile
	if err := json.Unmarshal(msg.Value, &result); err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed validation result",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if result.UserID == "" {
		result.UserID = msg.Headers[publisher.HeaderUserID]
	}
	if result.UserID == "" {
		result.UserID = string(msg.Key)
	}

	stored, err := h.recorder.UpdateAfterValidation(ctx, &result)
	if err != nil {
		if isPermanent(err) {
			h.logger.WarnContext(ctx, "dropping validation result",
				"user_id", result.UserID,
				"offset", msg.Offset,
				"error", err,
			)
			return nil
		}
		return err
	}
	h.logger.InfoContext(ctx, "validation result applied",
		"user_id", stored.UserID,
		"status", stored.ConsolidatedStatus,
	)
	return nil
}

func isPermanent(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeNotFound, dErrors.CodeConflict:
		return true
	default:
		return false
	}
}
