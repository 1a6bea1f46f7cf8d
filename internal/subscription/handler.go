package subscription

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/pkg/cerr"
)

type Handler struct {
	repo     Repository
	vapidEnv *config.VAPIDEnv
}

func NewHandler(repo Repository, vapidEnv *config.VAPIDEnv) *Handler {
	return &Handler{
		repo:     repo,
		vapidEnv: vapidEnv,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.subscribe)
	r.Delete("/", h.unsubscribe)
	r.Get("/", h.list)
	r.Get("/vapid-key", h.vapidKey)
}

type subscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

type subscribeResponse struct {
	Subscription *Subscription `json:"subscription"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if body.Endpoint == "" || body.P256dhKey == "" || body.AuthKey == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint, p256dh_key, and auth_key are required", nil)
		return
	}

	// Re-registering the same endpoint replaces the old record.
	if existing, err := h.repo.FindByEndpoint(ctx, body.Endpoint); err == nil {
		if err := h.repo.Delete(ctx, existing.ID); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}

	sub := &Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  body.Endpoint,
		P256dhKey: body.P256dhKey,
		AuthKey:   body.AuthKey,
		CreatedAt: time.Now(),
	}
	if err := h.repo.Create(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &subscribeResponse{Subscription: sub})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

type unsubscribeResponse struct {
	Removed bool `json:"removed"`
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if err := h.repo.DeleteByEndpoint(ctx, body.Endpoint); err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			cerr.SetJSONResponse(ctx, &unsubscribeResponse{Removed: false})
			return
		}
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &unsubscribeResponse{Removed: true})
}

type listSubscriptionsResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := h.repo.List(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	cerr.SetJSONResponse(ctx, &listSubscriptionsResponse{Subscriptions: subs})
}

type vapidKeyResponse struct {
	PublicKey string `json:"public_key"`
}

func (h *Handler) vapidKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vapidEnv.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "push notifications are not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, &vapidKeyResponse{PublicKey: h.vapidEnv.VAPIDPublicKey})
}
