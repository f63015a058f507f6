package api

import (
	"encoding/json"
	"net/http"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/notify"
)

// NotificationHandler accepts single delivery events onto the durable queue.
type NotificationHandler struct {
	producer *notify.Producer
}

func NewNotificationHandler(producer *notify.Producer) *NotificationHandler {
	return &NotificationHandler{producer: producer}
}

type enqueueNotificationRequest struct {
	Recipients        []string          `json:"recipients"`
	Subject           string            `json:"subject"`
	Body              string            `json:"body"`
	TemplateCode      string            `json:"template_code,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
	SourceService     string            `json:"source_service,omitempty"`
}

type enqueueNotificationResponse struct {
	EventID  string `json:"event_id"`
	Sequence uint64 `json:"sequence"`
}

// Enqueue publishes one delivery event and returns once the log has accepted
// it. Delivery itself happens asynchronously in the consumers.
func (h *NotificationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}
	if req.Body == "" && req.TemplateCode == "" {
		respondError(w, http.StatusBadRequest, "either body or template_code is required")
		return
	}

	event := &domain.DeliveryEvent{
		CorrelationID:     req.CorrelationID,
		Recipients:        req.Recipients,
		Subject:           req.Subject,
		Body:              req.Body,
		TemplateCode:      req.TemplateCode,
		TemplateVariables: req.TemplateVariables,
		UserID:            req.UserID,
		SourceService:     req.SourceService,
	}

	ack, err := h.producer.Publish(r.Context(), event)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to enqueue notification")
		return
	}

	respondJSON(w, http.StatusAccepted, enqueueNotificationResponse{
		EventID:  event.EventID,
		Sequence: ack.Sequence,
	})
}
