package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Ashish12meena/aigreentick-microservices/internal/notify"
	"github.com/go-chi/chi/v5"
)

// DeadLetterHandler exposes the operator surface over dead-lettered events.
type DeadLetterHandler struct {
	admin *notify.DLQAdmin
}

func NewDeadLetterHandler(admin *notify.DLQAdmin) *DeadLetterHandler {
	return &DeadLetterHandler{admin: admin}
}

type deadLetterActionRequest struct {
	Operator string `json:"operator"`
	Notes    string `json:"notes,omitempty"`
}

// List returns unprocessed dead letters, oldest first, paginated via
// ?page=N&page_size=M.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	records, err := h.admin.ListUnprocessed(r.Context(), page, pageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(records),
		"dead_letters": records,
	})
}

// Stats returns total/unprocessed/processed counts.
func (h *DeadLetterHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load dead letter stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Retry replays one dead letter back onto the primary subject and marks the
// record processed with operator attribution.
func (h *DeadLetterHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	if err := h.admin.Retry(r.Context(), id, action.Operator, action.Notes); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		} else if strings.Contains(err.Error(), "already processed") {
			status = http.StatusConflict
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "retried", "id": id})
}

// RetryAll replays every unprocessed dead letter and reports how many were
// replayed before any failure.
func (h *DeadLetterHandler) RetryAll(w http.ResponseWriter, r *http.Request) {
	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	retried, err := h.admin.RetryAll(r.Context(), action.Operator, action.Notes)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"retried": retried,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "retried", "retried": retried})
}

// MarkProcessed closes out a dead letter without replaying it.
func (h *DeadLetterHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	action, ok := decodeAction(w, r)
	if !ok {
		return
	}

	if err := h.admin.MarkProcessed(r.Context(), id, action.Operator, action.Notes); err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "processed", "id": id})
}

func decodeAction(w http.ResponseWriter, r *http.Request) (deadLetterActionRequest, bool) {
	var action deadLetterActionRequest
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return action, false
	}
	if action.Operator == "" {
		respondError(w, http.StatusBadRequest, "operator is required")
		return action, false
	}
	return action, true
}
