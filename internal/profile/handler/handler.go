package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/platform/middleware"
	"profilehub/internal/profile/cache"
	"profilehub/internal/profile/models"
	dErrors "profilehub/pkg/domain-errors"
	"profilehub/pkg/platform/httputil"
	"profilehub/pkg/requestcontext"
)

// Service defines the profile operations exposed over HTTP.
type Service interface {
	CreateProfile(ctx context.Context, req *models.Profile) (*models.Profile, error)
	GetProfileByID(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, req *models.Profile) error
	GetStatus(ctx context.Context, userID string) (*models.StatusResult, error)
	AddSubscription(ctx context.Context, userID, productID string) error
	DeleteProfile(ctx context.Context, userID string) error
}

// CacheRegistry resolves caches for the administration endpoints.
type CacheRegistry interface {
	Lookup(name string) (cache.Cache, bool)
}

// Handler serves the profile and cache administration routes.
type Handler struct {
	profiles Service
	caches   CacheRegistry
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithRequestTimeout bounds the time spent serving one request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

func New(profiles Service, caches CacheRegistry, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		profiles: profiles,
		caches:   caches,
		logger:   logger,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(h.timeout))
	router.Use(middleware.ContentTypeJSON)

	router.Post("/user/create", h.handleCreateProfile)
	router.Get("/user/{userId}", h.handleGetProfile)
	router.Put("/user/update/{userId}", h.handleUpdateProfile)
	router.Get("/user/status/{userId}", h.handleGetStatus)
	router.Put("/user/{userId}/subscriptions", h.handleAddSubscription)
	router.Delete("/user/delete/{userId}", h.handleDeleteProfile)

	router.Get("/cache/{cacheName}/{key}", h.handleGetCacheEntry)
	router.Delete("/cache/{cacheName}/{key}", h.handleEvictCacheEntry)

	r.Mount("/", router)
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.Profile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create profile request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.profiles.CreateProfile(ctx, &req)
	if err != nil {
		h.writeServiceError(ctx, w, "create profile", err)
		return
	}

	w.Header().Set("Location", "/user/"+created.UserID)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.profiles.GetProfileByID(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		h.writeServiceError(ctx, w, "get profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")

	var req models.Profile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid update profile request",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.profiles.UpdateProfile(ctx, userID, &req); err != nil {
		h.writeServiceError(ctx, w, "update profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.profiles.GetStatus(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		h.writeServiceError(ctx, w, "get profile status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")

	var req AddSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.profiles.AddSubscription(ctx, userID, req.ProductID); err != nil {
		h.writeServiceError(ctx, w, "add subscription", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubscriptionResponse{
		UserID:             userID,
		ProductID:          req.ProductID,
		ConsolidatedStatus: models.StatusInProgress,
	})
}

func (h *Handler) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")
	if err := h.profiles.DeleteProfile(ctx, userID); err != nil {
		h.writeServiceError(ctx, w, "delete profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{UserID: userID, Deleted: true})
}

func (h *Handler) handleGetCacheEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.lookupCache(w, r)
	if !ok {
		return
	}
	profile, err := c.Get(ctx, chi.URLParam(r, "key"))
	if errors.Is(err, cache.ErrMiss) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeServiceError(ctx, w, "read cache entry", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cache entry"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleEvictCacheEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.lookupCache(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	if err := c.Evict(ctx, key); err != nil {
		h.writeServiceError(ctx, w, "evict cache entry", dErrors.Wrap(err, dErrors.CodeInternal, "failed to evict cache entry"))
		return
	}
	h.logger.InfoContext(ctx, "cache entry evicted",
		"request_id", requestcontext.RequestID(ctx),
		"cache", c.Name(),
		"key", key,
	)
	httputil.WriteJSON(w, http.StatusOK, EvictResponse{Cache: c.Name(), Key: key, Evicted: true})
}

func (h *Handler) lookupCache(w http.ResponseWriter, r *http.Request) (cache.Cache, bool) {
	name := chi.URLParam(r, "cacheName")
	c, ok := h.caches.Lookup(name)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown cache "+name))
		return nil, false
	}
	return c, true
}

// writeServiceError logs at a level matching the error class and writes the
// mapped response.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, action string, err error) {
	status := httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "request rejected: "+action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
