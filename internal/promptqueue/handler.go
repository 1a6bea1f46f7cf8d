package promptqueue

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opbridge/opbridge/pkg/cerr"
)

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.listAll)
	r.Get("/pending", h.listPending)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Post("/{id}/processed", h.markProcessed)
	r.Post("/cleanup", h.cleanup)
	r.Delete("/{id}", h.remove)
}

type listResponse struct {
	Prompts []*Prompt `json:"prompts"`
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), &listResponse{Prompts: h.queue.All()})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), &listResponse{Prompts: h.queue.Pending()})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()
	cerr.SetJSONResponse(r.Context(), &stats)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prompt, ok := h.queue.Get(chi.URLParam(r, "id"))
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "prompt not found", nil)
		return
	}
	cerr.SetJSONResponse(ctx, prompt)
}

type markProcessedRequest struct {
	Response string `json:"response,omitempty"`
}

type markProcessedResponse struct {
	Processed bool `json:"processed"`
}

func (h *Handler) markProcessed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body markProcessedRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	processed := h.queue.MarkProcessed(chi.URLParam(r, "id"), body.Response)
	cerr.SetJSONResponse(ctx, &markProcessedResponse{Processed: processed})
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), &cleanupResponse{Removed: h.queue.CleanupProcessed()})
}

type removeResponse struct {
	Removed bool `json:"removed"`
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), &removeResponse{Removed: h.queue.Remove(chi.URLParam(r, "id"))})
}
