package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/google/uuid"
)

// CampaignStore is the durable store surface the coordinator needs.
type CampaignStore interface {
	InsertCampaign(ctx context.Context, c *domain.Campaign) error
	BulkInsertUnits(ctx context.Context, units []*domain.DeliveryUnit) error
	UpdateCampaignStatus(ctx context.Context, id, status string) error
}

// PayloadBuilder produces the resolved provider request for one recipient.
type PayloadBuilder func(unit *domain.DeliveryUnit) (provider.Request, error)

// Coordinator orchestrates one broadcast campaign: chunked pending
// persistence, worker-pool dispatch, batched flushing, and the final
// completed transition.
type Coordinator struct {
	store     CampaignStore
	pool      *Pool
	flusher   *Flusher
	chunkSize int
	logger    *slog.Logger
}

func NewCoordinator(store CampaignStore, pool *Pool, flusher *Flusher, chunkSize int, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		pool:      pool,
		flusher:   flusher,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Initiate persists the campaign and its recipients, then dispatches in the
// background. The caller gets the accepted campaign immediately; the eventual
// outcome is queryable via the durable store. Scheduled campaigns are
// persisted and left for the scheduler.
func (c *Coordinator) Initiate(ctx context.Context, campaign *domain.Campaign, recipients []string, build PayloadBuilder) (*domain.Campaign, error) {
	if campaign.ID == "" {
		campaign.ID = uuid.NewString()
	}
	campaign.TotalRecipients = len(recipients)
	campaign.Status = domain.CampaignSending
	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
		campaign.Status = domain.CampaignScheduled
	}

	if err := c.store.InsertCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}

	if campaign.Status == domain.CampaignScheduled {
		c.logger.Info("campaign scheduled",
			"campaign_id", campaign.ID,
			"scheduled_at", campaign.ScheduledAt,
		)
		return campaign, nil
	}

	units := buildPendingUnits(campaign, recipients)

	// Dispatch outlives the initiating request.
	go func() {
		runCtx := context.WithoutCancel(ctx)
		if err := c.Run(runCtx, campaign, units, build); err != nil {
			c.logger.Error("broadcast dispatch finished with errors",
				"campaign_id", campaign.ID,
				"error", err,
			)
		}
	}()

	return campaign, nil
}

// Run processes all units chunk by chunk and marks the campaign completed
// once every chunk's workers have finished and the remainder is flushed.
// A chunk whose pending persistence fails is skipped — logged and surfaced
// in the returned error — without aborting its siblings.
func (c *Coordinator) Run(ctx context.Context, campaign *domain.Campaign, units []*domain.DeliveryUnit, build PayloadBuilder) error {
	start := time.Now()
	chunks := Chunk(units, c.chunkSize)

	var chunkErrs []error
	for i, chunk := range chunks {
		// Durability before attempt: the chunk is on disk as pending
		// before any provider call.
		if err := c.store.BulkInsertUnits(ctx, chunk); err != nil {
			c.logger.Error("chunk persistence failed, skipping chunk",
				"campaign_id", campaign.ID,
				"chunk", i,
				"chunk_size", len(chunk),
				"error", err,
			)
			chunkErrs = append(chunkErrs, fmt.Errorf("chunk %d: %w", i, err))
			continue
		}

		var done sync.WaitGroup
		for _, unit := range chunk {
			req, err := build(unit)
			if err != nil {
				unit.MarkFailed("payload build failed: " + err.Error())
				c.flusher.Add(ctx, unit)
				continue
			}
			done.Add(1)
			c.pool.Submit(unit, req, &done)
		}
		done.Wait()
	}

	c.flusher.Final(ctx)

	if err := c.store.UpdateCampaignStatus(ctx, campaign.ID, domain.CampaignCompleted); err != nil {
		chunkErrs = append(chunkErrs, fmt.Errorf("marking campaign completed: %w", err))
	}

	c.logger.Info("broadcast campaign finished",
		"campaign_id", campaign.ID,
		"total_recipients", len(units),
		"chunks", len(chunks),
		"failed_chunks", len(chunkErrs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return errors.Join(chunkErrs...)
}

func buildPendingUnits(campaign *domain.Campaign, recipients []string) []*domain.DeliveryUnit {
	units := make([]*domain.DeliveryUnit, 0, len(recipients))
	for _, r := range recipients {
		units = append(units, &domain.DeliveryUnit{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Recipient:  r,
			Status:     domain.UnitPending,
			Audit:      domain.NewAuditInfo(campaign.Audit.CreatedBy),
		})
	}
	return units
}
