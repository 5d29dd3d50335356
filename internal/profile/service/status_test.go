package service

import (
	"go.uber.org/mock/gomock"

	"profilehub/internal/profile/models"
	"profilehub/internal/profile/store"
	dErrors "profilehub/pkg/domain-errors"
)

func (s *ServiceSuite) TestGetStatus() {
	userID := "user-1"

	s.Run("unknown profile is not found", func() {
		s.mockStore.EXPECT().FindAttributes(gomock.Any(), userID, gomock.Any()).Return(nil, store.ErrNotFound)

		_, err := s.service.GetStatus(s.ctx, userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing status attribute is a business error", func() {
		s.mockStore.EXPECT().FindAttributes(gomock.Any(), userID, gomock.Any()).
			Return(&models.ProjectedAttributes{}, nil)

		_, err := s.service.GetStatus(s.ctx, userID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBusinessRule))
	})

	s.Run("maps every projected product to its outcome", func() {
		status := models.StatusRejected
		message := "one product rejected"
		validations := map[string]models.ProductValidation{
			"prod1": {Status: models.StatusValidated},
			"prod2": {Status: models.StatusRejected, Message: "pan mismatch"},
		}
		s.mockStore.EXPECT().FindAttributes(gomock.Any(), userID, models.StatusAttributes).
			Return(&models.ProjectedAttributes{
				ConsolidatedStatus:      &status,
				ConsolidatedMessage:     &message,
				SubscriptionValidations: validations,
			}, nil)

		result, err := s.service.GetStatus(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(userID, result.UserID)
		s.Equal(models.StatusRejected, result.ConsolidatedStatus)
		s.Equal(message, result.ConsolidatedMessage)
		s.Equal(validations, result.Subscriptions)
	})

	s.Run("no outcomes yet yields an empty mapping", func() {
		status := models.StatusInProgress
		s.mockStore.EXPECT().FindAttributes(gomock.Any(), userID, gomock.Any()).
			Return(&models.ProjectedAttributes{ConsolidatedStatus: &status}, nil)

		result, err := s.service.GetStatus(s.ctx, userID)
		s.Require().NoError(err)
		s.NotNil(result.Subscriptions)
		s.Empty(result.Subscriptions)
	})
}
