package interaction

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opbridge/opbridge/internal/broker"
	"github.com/opbridge/opbridge/pkg/cerr"
)

// Handler exposes the registry over the JSON API consumed by the tool-call
// adapter and the operator CLI.
type Handler struct {
	registry *Registry
	broker   *broker.Broker
}

func NewHandler(registry *Registry, b *broker.Broker) *Handler {
	return &Handler{
		registry: registry,
		broker:   b,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/{id}/wait", h.wait)
	r.Post("/{id}/response", h.respond)
	r.Post("/{id}/cancel", h.cancel)
}

type requestJSON struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Options   []string  `json:"options,omitempty"`
	TimeoutMs int64     `json:"timeout_ms"`
	CreatedAt time.Time `json:"created_at"`
}

func toJSON(req *Request) *requestJSON {
	return &requestJSON{
		ID:        req.ID,
		Kind:      req.Kind,
		Message:   req.Message,
		Options:   req.Options,
		TimeoutMs: req.Timeout.Milliseconds(),
		CreatedAt: req.CreatedAt,
	}
}

type createRequest struct {
	Kind      Kind     `json:"kind"`
	Message   string   `json:"message"`
	Options   []string `json:"options,omitempty"`
	TimeoutMs int64    `json:"timeout_ms,omitempty"`
}

type createResponse struct {
	Request *requestJSON `json:"request"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if body.Message == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "message is required", nil)
		return
	}

	req, err := h.registry.Create(body.Kind, body.Message, body.Options, time.Duration(body.TimeoutMs)*time.Millisecond)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &createResponse{Request: toJSON(req)})
}

type listResponse struct {
	Requests []*requestJSON `json:"requests"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	pending := h.registry.PendingRequests()
	requests := make([]*requestJSON, len(pending))
	for i, req := range pending {
		requests[i] = toJSON(req)
	}
	cerr.SetJSONResponse(r.Context(), &listResponse{Requests: requests})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	cerr.SetJSONResponse(r.Context(), &stats)
}

type waitResponse struct {
	Response *broker.Response `json:"response"`
}

func (h *Handler) wait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	resp, err := h.broker.Wait(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &waitResponse{Response: resp})
}

type respondRequest struct {
	Value any `json:"value"`
}

type respondResponse struct {
	Accepted bool `json:"accepted"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var body respondRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	switch body.Value.(type) {
	case string, bool:
	default:
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "value must be a string or a boolean", nil)
		return
	}
	// A false result is the normal outcome for late or duplicate attempts.
	accepted := h.registry.ProvideResponse(id, body.Value)
	cerr.SetJSONResponse(ctx, &respondResponse{Accepted: accepted})
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	cancelled := h.registry.Cancel(chi.URLParam(r, "id"))
	cerr.SetJSONResponse(r.Context(), &cancelResponse{Cancelled: cancelled})
}
