package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/collab"
	"github.com/meshmarket/backend/internal/commission"
	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/internal/realtime"
	"github.com/meshmarket/backend/pkg/queue"
)

// ConversionStore is the slice of the conversion repository the
// processor needs. Satisfied by *commission.Repository.
type ConversionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversion, error)
	Settle(ctx context.Context, id uuid.UUID, split commission.Split) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// LinkStore resolves links for event routing. Satisfied by
// *tracking.Repository.
type LinkStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AffiliateLink, error)
}

// ConversionProcessor settles queued conversions: compute the commission
// split for the sale price, persist the amounts, and publish a
// conversion-recorded event for dashboards subscribed to the campaign or
// affiliate topic.
type ConversionProcessor struct {
	conversions ConversionStore
	links       LinkStore
	ledger      *commission.Ledger
	queue       *queue.Queue
	pub         realtime.Publisher
	logger      *zap.Logger
}

// NewConversionProcessor creates a conversion settlement processor.
func NewConversionProcessor(conversions ConversionStore, links LinkStore, ledger *commission.Ledger, q *queue.Queue, pub realtime.Publisher, logger *zap.Logger) *ConversionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversionProcessor{conversions: conversions, links: links, ledger: ledger, queue: q, pub: pub, logger: logger}
}

// Process executes one conversion settlement job.
func (p *ConversionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeConversion {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ConversionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	conv, err := p.conversions.GetByID(ctx, payload.ConversionID)
	if err != nil {
		return fmt.Errorf("load conversion %s: %w", payload.ConversionID, err)
	}
	if conv == nil {
		return fmt.Errorf("conversion not found: %s", payload.ConversionID)
	}
	if conv.Status == models.ConversionStatusCompleted {
		p.logger.Info("conversion already settled", zap.String("conversion_id", conv.ID.String()))
		return nil
	}

	split, err := p.ledger.Split(conv.SalePrice)
	if err != nil {
		// A bad price cannot succeed on retry; mark failed and drop the job.
		p.logger.Error("split failed", zap.Error(err), zap.String("conversion_id", conv.ID.String()), zap.Float64("sale_price", conv.SalePrice))
		if mErr := p.conversions.MarkFailed(ctx, conv.ID); mErr != nil {
			p.logger.Error("mark conversion failed", zap.Error(mErr))
		}
		return nil
	}

	if err := p.conversions.Settle(ctx, conv.ID, split); err != nil {
		return fmt.Errorf("settle conversion: %w", err)
	}

	p.publishSettled(ctx, conv, split)
	p.logger.Info("conversion settled",
		zap.String("conversion_id", conv.ID.String()),
		zap.Float64("platform", split.Platform),
		zap.Float64("affiliate", split.Affiliate),
		zap.Float64("seller", split.Seller))
	return nil
}

// publishSettled emits conversion-recorded on the link's campaign topic
// when the link belongs to a campaign, otherwise on the affiliate's topic.
func (p *ConversionProcessor) publishSettled(ctx context.Context, conv *models.Conversion, split commission.Split) {
	if p.pub == nil {
		return
	}
	link, err := p.links.GetByID(ctx, conv.LinkID)
	if err != nil || link == nil {
		p.logger.Warn("link lookup for publish failed", zap.Error(err), zap.String("link_id", conv.LinkID.String()))
		return
	}
	topic := "affiliate:" + link.AffiliateID.String()
	if link.CampaignID != nil {
		topic = "campaign:" + link.CampaignID.String()
	}
	body, err := json.Marshal(map[string]interface{}{
		"conversion_id":    conv.ID.String(),
		"link_id":          link.ID.String(),
		"tracking_code":    link.TrackingCode,
		"sale_price":       conv.SalePrice,
		"currency":         conv.Currency,
		"platform_amount":  split.Platform,
		"affiliate_amount": split.Affiliate,
		"seller_amount":    split.Seller,
	})
	if err != nil {
		return
	}
	if err := p.pub.PublishTopicEvent(topic, "conversion-recorded", body); err != nil {
		p.logger.Warn("publish conversion event failed", zap.Error(err), zap.String("topic", topic))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ConversionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("conversion worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// CollabReaper periodically ends collaboration sessions whose
// participant set has been empty past the grace period.
type CollabReaper struct {
	manager  *collab.Manager
	interval time.Duration
	logger   *zap.Logger
}

// NewCollabReaper creates a reaper sweeping at the given interval.
func NewCollabReaper(manager *collab.Manager, interval time.Duration, logger *zap.Logger) *CollabReaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollabReaper{manager: manager, interval: interval, logger: logger}
}

// Run sweeps until ctx is done.
func (r *CollabReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("collab reaper stopping")
			return
		case <-ticker.C:
			if n := r.manager.ReapEmpty(ctx); n > 0 {
				r.logger.Info("reaped empty collab sessions", zap.Int("count", n))
			}
		}
	}
}
