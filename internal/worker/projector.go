package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loaninneed/attribution/internal/kafka"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
	"go.uber.org/zap"
)

// Projector:
// - fetches ledger event envelopes from Kafka,
// - fires partner conversion webhooks,
// - batch-inserts events into the ClickHouse read side.
// At-least-once end to end; the ClickHouse table dedupes by event ULID.
type Projector struct {
	// Dependencies
	Consumer *kafka.Consumer
	Events   repository.CHEventsRepository
	Partners repository.PartnersRepository
	Webhooks ConversionNotifier // nil disables postbacks
	Log      *zap.Logger

	// Behavior
	Workers   int           // number of goroutines processing events
	BatchSize int           // max buffered events per flush
	BatchWait time.Duration // max time to wait before flush
}

// ConversionNotifier delivers a CONVERSION event to a partner endpoint.
type ConversionNotifier interface {
	NotifyConversion(ctx context.Context, url string, env model.Envelope) error
}

// NewProjector builds a projector with sane defaults.
func NewProjector(
	consumer *kafka.Consumer,
	events repository.CHEventsRepository,
	partners repository.PartnersRepository,
	webhooks ConversionNotifier,
	log *zap.Logger,
) *Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{
		Consumer:  consumer,
		Events:    events,
		Partners:  partners,
		Webhooks:  webhooks,
		Log:       log,
		Workers:   16,
		BatchSize: 200,
		BatchWait: 300 * time.Millisecond,
	}
}

// Run starts the projector and blocks until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) error {
	if p.Workers <= 0 {
		p.Workers = 16
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.BatchWait <= 0 {
		p.BatchWait = 300 * time.Millisecond
	}

	// Channel for parsed envelopes → batch writer
	rows := make(chan model.Envelope, p.BatchSize*2)
	defer close(rows)

	// Start batch writer
	go p.runBatchWriter(ctx, rows)

	// Fetch loop → fan-out to processors
	msgCh := make(chan kafka.Message, p.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := p.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.Log.Warn("kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	// Start processors
	for i := 0; i < p.Workers; i++ {
		go p.runProcessor(ctx, msgCh, rows)
	}

	// Block until shutdown
	<-ctx.Done()
	return nil
}

func (p *Projector) runProcessor(ctx context.Context, in <-chan kafka.Message, out chan<- model.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			p.processOne(ctx, m, out)
		}
	}
}

func (p *Projector) processOne(ctx context.Context, m kafka.Message, out chan<- model.Envelope) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.ID == "" {
		_ = p.Consumer.Commit(ctx, m) // poison → commit, skip
		if err != nil {
			p.Log.Warn("bad envelope json", zap.Error(err))
		} else {
			p.Log.Warn("envelope missing id")
		}
		return
	}

	if env.Action == model.ActionConversion.String() && env.PartnerID > 0 {
		p.notify(ctx, env)
	}

	out <- env

	// Always commit (at-least-once; the read side dedupes by event id)
	if err := p.Consumer.Commit(ctx, m); err != nil {
		p.Log.Warn("kafka commit failed", zap.Error(err))
	}
}

// notify posts the conversion to the partner's webhook, if one is
// configured. Failures are logged, never retried past the dispatcher's own
// attempts; the ledger remains the source of truth.
func (p *Projector) notify(ctx context.Context, env model.Envelope) {
	if p.Webhooks == nil {
		return
	}
	partner, err := p.Partners.GetByID(ctx, env.PartnerID)
	if err != nil || partner == nil || partner.WebhookURL == nil || *partner.WebhookURL == "" {
		if err != nil {
			p.Log.Warn("partner lookup failed", zap.Error(err), zap.Int64("partner_id", env.PartnerID))
		}
		return
	}
	if err := p.Webhooks.NotifyConversion(ctx, *partner.WebhookURL, env); err != nil {
		p.Log.Warn("conversion webhook failed",
			zap.Error(err),
			zap.Int64("partner_id", env.PartnerID),
			zap.String("event_id", env.ID))
	}
}

// runBatchWriter does size/time-based flush of events into ClickHouse.
func (p *Projector) runBatchWriter(ctx context.Context, in <-chan model.Envelope) {
	tick := time.NewTicker(p.BatchWait)
	defer tick.Stop()

	batch := make([]model.Envelope, 0, p.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.Events.InsertBatch(ctx, batch); err != nil {
			// keep the batch and retry on the next flush; inserts are
			// idempotent by event id
			p.Log.Error("clickhouse batch insert failed", zap.Error(err), zap.Int("rows", len(batch)))
			return
		}
		p.Log.Info("projected events", zap.Int("rows", len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case e, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)

			if len(batch) >= p.BatchSize {
				flush()
			}

		case <-tick.C:
			flush()
		}
	}
}
