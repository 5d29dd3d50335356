package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"profilehub/internal/profile/models"
)

// InMemoryStore keeps profiles in process memory. It backs local development
// and service tests; the conditional-write semantics match PostgresStore.
type InMemoryStore struct {
	mu            sync.RWMutex
	profiles      map[string]*models.Profile
	byFingerprint map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:      make(map[string]*models.Profile),
		byFingerprint: make(map[string]string),
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *InMemoryStore) ExistsByIdempotencyKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byFingerprint[key]
	return ok, nil
}

// Create inserts a new profile. Both the user id and the idempotency key are
// unique; a collision on either returns ErrConflict.
func (s *InMemoryStore) Create(_ context.Context, profile *models.Profile) error {
	if profile == nil || profile.UserID == "" {
		return fmt.Errorf("profile with user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.UserID]; ok {
		return fmt.Errorf("user id %q: %w", profile.UserID, ErrConflict)
	}
	if profile.IdempotencyKey != "" {
		if _, ok := s.byFingerprint[profile.IdempotencyKey]; ok {
			return fmt.Errorf("idempotency key: %w", ErrConflict)
		}
		s.byFingerprint[profile.IdempotencyKey] = profile.UserID
	}
	s.profiles[profile.UserID] = cloneProfile(profile)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, userID string, record *models.Profile) error {
	if err := checkExpectedID(userID, record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	mergePartial(existing, record)
	return nil
}

func (s *InMemoryStore) FindAttributes(_ context.Context, userID string, attrs ...models.Attribute) (*models.ProjectedAttributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := &models.ProjectedAttributes{}
	for _, attr := range requestedAttributes(attrs) {
		switch attr {
		case models.AttrConsolidatedStatus:
			if p.ConsolidatedStatus != "" {
				status := p.ConsolidatedStatus
				out.ConsolidatedStatus = &status
			}
		case models.AttrConsolidatedMessage:
			if p.ConsolidatedMessage != "" {
				msg := p.ConsolidatedMessage
				out.ConsolidatedMessage = &msg
			}
		case models.AttrSubscriptionValidations:
			out.SubscriptionValidations = maps.Clone(p.SubscriptionValidations)
		default:
			return nil, fmt.Errorf("unknown attribute %q", attr)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	if p.IdempotencyKey != "" {
		delete(s.byFingerprint, p.IdempotencyKey)
	}
	delete(s.profiles, userID)
	return nil
}
