package handler

import (
	"strings"

	"profilehub/internal/profile/models"
	dErrors "profilehub/pkg/domain-errors"
)

type AddSubscriptionRequest struct {
	ProductID string `json:"productId"`
}

func (r *AddSubscriptionRequest) Normalize() {
	r.ProductID = strings.TrimSpace(r.ProductID)
}

func (r *AddSubscriptionRequest) Validate() error {
	if r.ProductID == "" {
		return dErrors.New(dErrors.CodeValidation, "productId is required")
	}
	return nil
}

type SubscriptionResponse struct {
	UserID             string        `json:"userId"`
	ProductID          string        `json:"productId"`
	ConsolidatedStatus models.Status `json:"consolidatedStatus"`
}

type DeleteResponse struct {
	UserID  string `json:"userId"`
	Deleted bool   `json:"deleted"`
}

type EvictResponse struct {
	Cache   string `json:"cache"`
	Key     string `json:"key"`
	Evicted bool   `json:"evicted"`
}
