package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"profilehub/internal/profile/cache"
	"profilehub/internal/profile/fingerprint"
	"profilehub/internal/profile/models"
	dErrors "profilehub/pkg/domain-errors"
	"profilehub/pkg/requestcontext"
)

// CreateProfile registers a new profile and hands it to the validators.
//
// A request whose (email, PAN, legal name) fingerprint already exists is a
// duplicate, including one whose earlier create failed to publish and was
// left NOT_COMPLETE. A publish failure returns an error even though the
// profile is durably stored in NOT_COMPLETE.
func (s *Service) CreateProfile(ctx context.Context, req *models.Profile) (_ *models.Profile, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "profile payload is required")
	}
	ctx, span := s.startSpan(ctx, "profile.CreateProfile", req.UserID)
	defer func() { endSpan(span, err) }()

	profile := *req
	profile.NormalizeSubscriptions()
	if len(profile.Subscriptions) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "subscriptions must not be empty")
	}

	key := fingerprint.Generate(profile.Email, profile.IdentityTaxID(), profile.LegalName)
	exists, err := s.store.ExistsByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check for duplicate profile")
	}
	if exists {
		s.incrementDuplicateRequests()
		return nil, dErrors.New(dErrors.CodeDuplicate, "a profile with the same email, tax id and legal name already exists")
	}

	now := requestcontext.Now(ctx)
	if profile.UserID == "" {
		profile.UserID = uuid.NewString()
	}
	profile.IdempotencyKey = key
	profile.ConsolidatedStatus = models.StatusInProgress
	profile.ConsolidatedMessage = ""
	profile.ExistingSubscriptions = nil
	profile.SubscriptionValidations = map[string]models.ProductValidation{}
	profile.CreateFlow = false
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if err := s.store.Create(ctx, &profile); err != nil {
		err = translateStoreErr(err, "create profile")
		if dErrors.HasCode(err, dErrors.CodeDuplicate) {
			s.incrementDuplicateRequests()
		}
		return nil, err
	}

	if err := s.publishOrCompensate(ctx, profile.UserID, models.EventProfileCreate, &profile); err != nil {
		return nil, err
	}

	s.incrementProfilesCreated()
	s.logger.InfoContext(ctx, "profile created", "user_id", profile.UserID, "subscriptions", profile.Subscriptions)

	profile.CreateFlow = true
	return &profile, nil
}

// UpdateProfile starts a new validation round for userID. Only the status is
// persisted; validators receive the full payload.
func (s *Service) UpdateProfile(ctx context.Context, userID string, req *models.Profile) (err error) {
	ctx, span := s.startSpan(ctx, "profile.UpdateProfile", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if req == nil {
		return dErrors.New(dErrors.CodeValidation, "profile payload is required")
	}
	if req.UserID != "" && req.UserID != userID {
		return dErrors.New(dErrors.CodeConflict, "userId in payload does not match the requested profile")
	}

	payload := *req
	payload.UserID = userID
	payload.ConsolidatedStatus = models.StatusInProgress

	record := models.NewStatusRecord(userID, models.StatusInProgress, "")
	record.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, userID, record); err != nil {
		return translateStoreErr(err, "update profile")
	}
	s.evict(ctx, userID)

	if err := s.publishOrCompensate(ctx, userID, models.EventProfileUpdate, &payload); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "profile update submitted for validation", "user_id", userID)
	return nil
}

// AddSubscription starts a validation round scoped to productID. Products
// already held, now or in an earlier round, are refused.
func (s *Service) AddSubscription(ctx context.Context, userID, productID string) (err error) {
	ctx, span := s.startSpan(ctx, "profile.AddSubscription", userID)
	defer func() { endSpan(span, err) }()

	productID = strings.TrimSpace(productID)
	if userID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if productID == "" {
		return dErrors.New(dErrors.CodeValidation, "productId is required")
	}

	profile, err := s.readThrough(ctx, userID)
	if err != nil {
		return err
	}
	if err := profile.CanAddSubscription(productID); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	profile.ApplySubscription(productID, now)

	record := &models.Profile{
		UserID:                userID,
		ConsolidatedStatus:    profile.ConsolidatedStatus,
		Subscriptions:         profile.Subscriptions,
		ExistingSubscriptions: profile.ExistingSubscriptions,
		UpdatedAt:             now,
	}
	if err := s.store.Update(ctx, userID, record); err != nil {
		return translateStoreErr(err, "add subscription")
	}
	s.evict(ctx, userID)

	if err := s.publishOrCompensate(ctx, userID, models.EventProfileAddSubscription, profile); err != nil {
		return err
	}

	s.incrementSubscriptionsAdded()
	s.logger.InfoContext(ctx, "subscription added", "user_id", userID, "product_id", productID)
	return nil
}

// UpdateAfterValidation records the outcome computed by the validators. It
// is the only operation that sets VALIDATED or REJECTED. An empty status is
// derived from the per-product outcomes. A result that lists no
// subscriptions leaves the stored set in place.
func (s *Service) UpdateAfterValidation(ctx context.Context, result *models.Profile) (_ *models.Profile, err error) {
	if result == nil || result.UserID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "validated profile with userId is required")
	}
	ctx, span := s.startSpan(ctx, "profile.UpdateAfterValidation", result.UserID)
	defer func() { endSpan(span, err) }()

	record := *result
	switch {
	case record.ConsolidatedStatus == "":
		record.ConsolidatedStatus = models.ConsolidateStatus(record.SubscriptionValidations)
	case !record.ConsolidatedStatus.IsValid():
		return nil, dErrors.New(dErrors.CodeValidation, "unknown consolidated status "+record.ConsolidatedStatus.String())
	}
	record.NormalizeSubscriptions()
	record.IdempotencyKey = ""
	record.CreateFlow = false
	record.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, record.UserID, &record); err != nil {
		return nil, translateStoreErr(err, "record validation result")
	}
	s.evict(ctx, record.UserID)
	s.incrementValidationResults(record.ConsolidatedStatus)

	stored, err := s.store.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, translateStoreErr(err, "load validated profile")
	}
	s.logger.InfoContext(ctx, "validation result recorded",
		"user_id", stored.UserID,
		"status", stored.ConsolidatedStatus,
	)
	return stored, nil
}

// DeleteProfile removes the profile. Deleting a missing profile is an error.
func (s *Service) DeleteProfile(ctx context.Context, userID string) (err error) {
	ctx, span := s.startSpan(ctx, "profile.DeleteProfile", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if _, err := s.store.FindByID(ctx, userID); err != nil {
		return translateStoreErr(err, "load profile")
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		return translateStoreErr(err, "delete profile")
	}
	s.evict(ctx, userID)
	s.incrementProfilesDeleted()
	s.logger.InfoContext(ctx, "profile deleted", "user_id", userID)
	return nil
}

// GetProfileByID reads through the cache.
func (s *Service) GetProfileByID(ctx context.Context, userID string) (_ *models.Profile, err error) {
	ctx, span := s.startSpan(ctx, "profile.GetProfileByID", userID)
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	return s.readThrough(ctx, userID)
}

func (s *Service) readThrough(ctx context.Context, userID string) (*models.Profile, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.WarnContext(ctx, "profile cache read failed, falling back to store", "user_id", userID, "error", err)
	}

	profile, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, translateStoreErr(err, "load profile")
	}
	if err := s.cache.Put(ctx, userID, profile); err != nil {
		s.logger.WarnContext(ctx, "failed to cache profile", "user_id", userID, "error", err)
	}
	return profile, nil
}
