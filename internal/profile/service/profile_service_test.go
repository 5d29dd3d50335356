package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"profilehub/internal/profile/cache"
	"profilehub/internal/profile/fingerprint"
	"profilehub/internal/profile/models"
	"profilehub/internal/profile/store"
	dErrors "profilehub/pkg/domain-errors"
)

var errBrokerDown = errors.New("broker unavailable")

func createRequest() *models.Profile {
	return &models.Profile{
		CompanyName:    "Ann Traders",
		LegalName:      "Ann",
		Email:          "a@x.com",
		TaxIdentifiers: models.TaxIdentifiers{PAN: "PAN1"},
		Subscriptions:  []string{"prod1"},
	}
}

func notCompleteRecord() gomock.Matcher {
	return gomock.Cond(func(record *models.Profile) bool {
		return record.ConsolidatedStatus == models.StatusNotComplete &&
			record.ConsolidatedMessage == models.CompensationMessage
	})
}

// expectCompensation registers the NOT_COMPLETE write and the eviction that
// follow a publish failure.
func (s *ServiceSuite) expectCompensation(userID any, writeErr error) {
	s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, record *models.Profile) error {
			s.Equal(models.StatusNotComplete, record.ConsolidatedStatus)
			s.Equal(models.CompensationMessage, record.ConsolidatedMessage)
			s.Empty(record.Subscriptions)
			return writeErr
		})
	s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
}

func (s *ServiceSuite) TestCreateProfile() {
	key := fingerprint.Generate("a@x.com", "PAN1", "Ann")

	s.Run("empty subscriptions is a validation error", func() {
		req := createRequest()
		req.Subscriptions = []string{" ", ""}

		_, err := s.service.CreateProfile(s.ctx, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate fingerprint is refused without a write", func() {
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(true, nil)

		_, err := s.service.CreateProfile(s.ctx, createRequest())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("racing create that loses on the unique index is a duplicate", func() {
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(false, nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(fmt.Errorf("create profile: %w", store.ErrConflict))

		_, err := s.service.CreateProfile(s.ctx, createRequest())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("store failure is internal", func() {
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(false, errors.New("db down"))

		_, err := s.service.CreateProfile(s.ctx, createRequest())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("persists IN_PROGRESS then publishes PROFILE_CREATE", func() {
		var persisted *models.Profile
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(false, nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, p *models.Profile) error {
				persisted = p
				s.Equal(models.StatusInProgress, p.ConsolidatedStatus)
				s.Equal(key, p.IdempotencyKey)
				s.Equal(s.now, p.CreatedAt)
				s.False(p.CreateFlow)
				return nil
			})
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileCreate, gomock.Any()).
			DoAndReturn(func(_ context.Context, message []byte, _ models.EventType, routingKey string) error {
				var event models.Profile
				s.Require().NoError(json.Unmarshal(message, &event))
				s.Equal(persisted.UserID, routingKey)
				s.Equal(routingKey, event.UserID)
				s.Equal(key, event.IdempotencyKey)
				s.Equal([]string{"prod1"}, event.Subscriptions)
				return nil
			})

		created, err := s.service.CreateProfile(s.ctx, createRequest())
		s.Require().NoError(err)
		s.True(created.CreateFlow)
		s.Equal(models.StatusInProgress, created.ConsolidatedStatus)
		_, parseErr := uuid.Parse(created.UserID)
		s.NoError(parseErr)
	})

	s.Run("keeps a caller supplied user id", func() {
		req := createRequest()
		req.UserID = "user-42"
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(false, nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileCreate, "user-42").Return(nil)

		created, err := s.service.CreateProfile(s.ctx, req)
		s.Require().NoError(err)
		s.Equal("user-42", created.UserID)
	})

	s.Run("publish failure compensates and surfaces a publish error", func() {
		req := createRequest()
		req.UserID = "user-43"
		s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), key).Return(false, nil)
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileCreate, "user-43").Return(errBrokerDown)
		s.expectCompensation("user-43", nil)

		_, err := s.service.CreateProfile(s.ctx, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePublishFailed))
		s.ErrorIs(err, errBrokerDown)
	})
}

func (s *ServiceSuite) TestCompensationFailureIsNotEscalated() {
	req := createRequest()
	req.UserID = "user-44"
	s.mockStore.EXPECT().ExistsByIdempotencyKey(gomock.Any(), gomock.Any()).Return(false, nil)
	s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errBrokerDown)
	s.expectCompensation("user-44", errors.New("db down"))

	_, err := s.service.CreateProfile(s.ctx, req)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePublishFailed))
	s.ErrorIs(err, errBrokerDown)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations.WithLabelValues("failed")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PublishFailures.WithLabelValues("PROFILE_CREATE")))
}

func (s *ServiceSuite) TestUpdateProfile() {
	userID := "user-1"

	s.Run("payload user id must match the path", func() {
		err := s.service.UpdateProfile(s.ctx, userID, &models.Profile{UserID: "user-2"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing profile is not found and nothing is published", func() {
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).Return(store.ErrNotFound)

		err := s.service.UpdateProfile(s.ctx, userID, &models.Profile{CompanyName: "New"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("id mismatch at the store is a conflict", func() {
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).Return(store.ErrPreconditionFailed)

		err := s.service.UpdateProfile(s.ctx, userID, &models.Profile{CompanyName: "New"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("persists status only and publishes the full payload", func() {
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, record *models.Profile) error {
				s.Equal(userID, record.UserID)
				s.Equal(models.StatusInProgress, record.ConsolidatedStatus)
				s.Empty(record.CompanyName)
				return nil
			})
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileUpdate, userID).
			DoAndReturn(func(_ context.Context, message []byte, _ models.EventType, _ string) error {
				var event models.Profile
				s.Require().NoError(json.Unmarshal(message, &event))
				s.Equal(userID, event.UserID)
				s.Equal("New", event.CompanyName)
				return nil
			})

		s.Require().NoError(s.service.UpdateProfile(s.ctx, userID, &models.Profile{CompanyName: "New"}))
	})

	s.Run("publish failure compensates", func() {
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).Return(nil)
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileUpdate, userID).Return(errBrokerDown)
		s.expectCompensation(userID, nil)

		err := s.service.UpdateProfile(s.ctx, userID, &models.Profile{UserID: userID})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePublishFailed))
	})
}

func (s *ServiceSuite) TestAddSubscription() {
	userID := "user-1"
	current := func() *models.Profile {
		return &models.Profile{
			UserID:             userID,
			ConsolidatedStatus: models.StatusValidated,
			Subscriptions:      []string{"prod1"},
		}
	}

	s.Run("empty product id is rejected before any read", func() {
		err := s.service.AddSubscription(s.ctx, userID, "  ")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown profile is not found", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(nil, cache.ErrMiss)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(nil, store.ErrNotFound)

		err := s.service.AddSubscription(s.ctx, userID, "prod2")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejected profile refuses without write or publish", func() {
		rejected := current()
		rejected.ConsolidatedStatus = models.StatusRejected
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(rejected, nil)

		err := s.service.AddSubscription(s.ctx, userID, "prod2")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.Run("product held in an earlier round is refused", func() {
		p := current()
		p.Subscriptions = []string{"prod2"}
		p.ExistingSubscriptions = []string{"prod1"}
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(p, nil)

		err := s.service.AddSubscription(s.ctx, userID, "prod1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.Run("starts a round for the new product only", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(nil, cache.ErrMiss)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(current(), nil)
		s.mockCache.EXPECT().Put(gomock.Any(), userID, gomock.Any()).Return(nil)
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, record *models.Profile) error {
				s.Equal(models.StatusInProgress, record.ConsolidatedStatus)
				s.Equal([]string{"prod2"}, record.Subscriptions)
				s.Equal([]string{"prod1"}, record.ExistingSubscriptions)
				return nil
			})
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileAddSubscription, userID).
			DoAndReturn(func(_ context.Context, message []byte, _ models.EventType, _ string) error {
				var event models.Profile
				s.Require().NoError(json.Unmarshal(message, &event))
				s.Equal([]string{"prod2"}, event.Subscriptions)
				s.Equal([]string{"prod1"}, event.ExistingSubscriptions)
				return nil
			})

		s.Require().NoError(s.service.AddSubscription(s.ctx, userID, "prod2"))
	})

	s.Run("publish failure compensates after the round was persisted", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(current(), nil)
		gomock.InOrder(
			s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).Return(nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any(), models.EventProfileAddSubscription, userID).Return(errBrokerDown),
			s.mockStore.EXPECT().Update(gomock.Any(), userID, notCompleteRecord()).Return(nil),
		)
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil).Times(2)

		err := s.service.AddSubscription(s.ctx, userID, "prod2")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodePublishFailed))
	})
}

func (s *ServiceSuite) TestUpdateAfterValidation() {
	userID := "user-1"

	s.Run("derives the consolidated status from product outcomes", func() {
		result := &models.Profile{
			UserID: userID,
			SubscriptionValidations: map[string]models.ProductValidation{
				"prod1": {Status: models.StatusValidated},
				"prod2": {Status: models.StatusRejected, Message: "pan mismatch"},
			},
		}
		stored := &models.Profile{UserID: userID, ConsolidatedStatus: models.StatusRejected}
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, record *models.Profile) error {
				s.Equal(models.StatusRejected, record.ConsolidatedStatus)
				s.Empty(record.IdempotencyKey)
				return nil
			})
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(stored, nil)

		got, err := s.service.UpdateAfterValidation(s.ctx, result)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, got.ConsolidatedStatus)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ValidationResults.WithLabelValues("REJECTED")))
	})

	s.Run("empty subscription list does not overwrite the stored set", func() {
		stored := &models.Profile{UserID: userID, ConsolidatedStatus: models.StatusValidated, Subscriptions: []string{"prod1"}}
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, record *models.Profile) error {
				s.Nil(record.Subscriptions)
				s.Nil(record.ExistingSubscriptions)
				return nil
			})
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(nil)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(stored, nil)

		got, err := s.service.UpdateAfterValidation(s.ctx, &models.Profile{
			UserID:                userID,
			ConsolidatedStatus:    models.StatusValidated,
			Subscriptions:         []string{},
			ExistingSubscriptions: []string{" "},
		})
		s.Require().NoError(err)
		s.Equal([]string{"prod1"}, got.Subscriptions)
	})

	s.Run("unknown status is a validation error", func() {
		_, err := s.service.UpdateAfterValidation(s.ctx, &models.Profile{UserID: userID, ConsolidatedStatus: "DONE"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing profile is not found", func() {
		s.mockStore.EXPECT().Update(gomock.Any(), userID, gomock.Any()).Return(store.ErrNotFound)

		_, err := s.service.UpdateAfterValidation(s.ctx, &models.Profile{UserID: userID, ConsolidatedStatus: models.StatusValidated})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeleteProfile() {
	userID := "user-1"

	s.Run("missing profile is not found and nothing is deleted", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(nil, store.ErrNotFound)

		err := s.service.DeleteProfile(s.ctx, userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("delete failure is internal", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(&models.Profile{UserID: userID}, nil)
		s.mockStore.EXPECT().Delete(gomock.Any(), userID).Return(errors.New("write fail"))

		err := s.service.DeleteProfile(s.ctx, userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("deletes and evicts", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(&models.Profile{UserID: userID}, nil)
		s.mockStore.EXPECT().Delete(gomock.Any(), userID).Return(nil)
		s.mockCache.EXPECT().Evict(gomock.Any(), userID).Return(errors.New("redis down"))

		s.Require().NoError(s.service.DeleteProfile(s.ctx, userID))
	})
}

func (s *ServiceSuite) TestGetProfileByID() {
	userID := "user-1"
	profile := &models.Profile{UserID: userID, ConsolidatedStatus: models.StatusValidated}

	s.Run("cache hit skips the store", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(profile, nil)

		got, err := s.service.GetProfileByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(profile, got)
	})

	s.Run("miss loads from the store and populates the cache", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(nil, cache.ErrMiss)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(profile, nil)
		s.mockCache.EXPECT().Put(gomock.Any(), userID, profile).Return(nil)

		got, err := s.service.GetProfileByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(profile, got)
	})

	s.Run("cache failure falls back to the store", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(nil, errors.New("redis down"))
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(profile, nil)
		s.mockCache.EXPECT().Put(gomock.Any(), userID, profile).Return(errors.New("redis down"))

		got, err := s.service.GetProfileByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(profile, got)
	})

	s.Run("unknown profile is not found", func() {
		s.mockCache.EXPECT().Get(gomock.Any(), userID).Return(nil, cache.ErrMiss)
		s.mockStore.EXPECT().FindByID(gomock.Any(), userID).Return(nil, store.ErrNotFound)

		_, err := s.service.GetProfileByID(s.ctx, userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
