package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/dispatch"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/Ashish12meena/aigreentick-microservices/internal/template"
	"github.com/go-chi/chi/v5"
)

// CampaignReader is the query surface backing the campaign status endpoints.
type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	CountUnitsByStatus(ctx context.Context, campaignID string) (map[string]int, error)
	ListUnitsByStatus(ctx context.Context, campaignID, status string, limit int) ([]domain.DeliveryUnit, error)
}

// BroadcastHandler exposes campaign initiation and status queries.
type BroadcastHandler struct {
	coordinator *dispatch.Coordinator
	resolver    *template.Resolver
	reader      CampaignReader
}

func NewBroadcastHandler(coordinator *dispatch.Coordinator, resolver *template.Resolver, reader CampaignReader) *BroadcastHandler {
	return &BroadcastHandler{coordinator: coordinator, resolver: resolver, reader: reader}
}

type initiateBroadcastRequest struct {
	Name         string            `json:"name"`
	TemplateCode string            `json:"template_code"`
	Subject      string            `json:"subject"`
	Variables    map[string]string `json:"variables"`
	Recipients   []string          `json:"recipients"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`
	CreatedBy    string            `json:"created_by"`
}

type broadcastResponse struct {
	CampaignID      string     `json:"campaign_id"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
}

type unitPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Initiate accepts a broadcast and returns immediately; dispatch proceeds in
// the background and the outcome is queryable via the status endpoints.
func (h *BroadcastHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.TemplateCode == "" {
		respondError(w, http.StatusBadRequest, "name and template_code are required")
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}
	if !h.resolver.Has(req.TemplateCode) {
		respondError(w, http.StatusBadRequest, "unknown template_code: "+req.TemplateCode)
		return
	}

	campaign := &domain.Campaign{
		Name:         req.Name,
		TemplateName: req.TemplateCode,
		ScheduledAt:  req.ScheduledAt,
		Audit:        domain.NewAuditInfo(req.CreatedBy),
	}

	build := h.payloadBuilder(req)

	campaign, err := h.coordinator.Initiate(r.Context(), campaign, req.Recipients, build)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initiate broadcast")
		return
	}

	respondJSON(w, http.StatusAccepted, broadcastResponse{
		CampaignID:      campaign.ID,
		Status:          campaign.Status,
		TotalRecipients: campaign.TotalRecipients,
		ScheduledAt:     campaign.ScheduledAt,
	})
}

// payloadBuilder resolves the template once per recipient, so per-recipient
// variables can override the shared set.
func (h *BroadcastHandler) payloadBuilder(req initiateBroadcastRequest) dispatch.PayloadBuilder {
	return func(unit *domain.DeliveryUnit) (provider.Request, error) {
		vars := make(map[string]string, len(req.Variables)+1)
		for k, v := range req.Variables {
			vars[k] = v
		}
		vars["recipient"] = unit.Recipient

		body, err := h.resolver.Resolve(req.TemplateCode, vars)
		if err != nil {
			return provider.Request{}, err
		}

		payload, err := json.Marshal(unitPayload{
			Recipient: unit.Recipient,
			Subject:   template.Render(req.Subject, vars),
			Body:      body,
		})
		if err != nil {
			return provider.Request{}, err
		}

		return provider.Request{
			Recipient: unit.Recipient,
			Channel:   "email",
			Payload:   payload,
		}, nil
	}
}

// Get returns a campaign with its per-status delivery unit counts.
func (h *BroadcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.reader.GetCampaign(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if campaign == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	counts, err := h.reader.CountUnitsByStatus(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign":     campaign,
		"unit_counts":  counts,
		"generated_at": time.Now().UTC(),
	})
}

// Failures lists failed delivery units for a campaign, capped at 100.
func (h *BroadcastHandler) Failures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	units, err := h.reader.ListUnitsByStatus(r.Context(), id, domain.UnitFailed, 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load failed units")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"count":       len(units),
		"units":       units,
	})
}
