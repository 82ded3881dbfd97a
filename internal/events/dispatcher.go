package events

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/beacon/internal/events/domain"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler consumes one outbox event. Returning an error leaves the event
// unpublished so the next batch retries it.
type Handler func(ctx context.Context, event domain.DomainEvent) error

// Config controls the dispatcher loop.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		PollInterval: 2 * time.Second,
		RunTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}

type DispatcherParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
	Config  Config             `optional:"true"`
}

// Dispatcher drains the outbox and fans events out to registered handlers.
type Dispatcher struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *telemetry.Metrics
	cfg     Config

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:       p.DB,
		log:      p.Log.Named("events.dispatcher"),
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic. Handlers registered after the
// loop starts apply from the next batch.
func (d *Dispatcher) Subscribe(topic string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = append(d.handlers[topic], handler)
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil {
			d.log.Warn("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of unpublished events, delivers them, and marks
// delivered events as published. The claim uses SKIP LOCKED on Postgres so
// concurrent dispatchers never double-deliver.
func (d *Dispatcher) RunOnce(parentCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(parentCtx, d.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	dispatched := 0

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := d.lockPending(ctx, tx, d.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, event := range batch {
			if err := d.deliver(ctx, event); err != nil {
				d.log.Warn("event delivery failed",
					zap.Error(err),
					zap.String("topic", event.Topic),
					zap.String("event_id", event.ID.String()),
				)
				continue
			}

			if err := tx.Exec(
				`UPDATE domain_events SET published = true, published_at = ? WHERE id = ?`,
				now,
				event.ID,
			).Error; err != nil {
				return err
			}
			dispatched++
		}
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	if d.metrics != nil {
		d.metrics.RecordOutboxBatch(status, dispatched, time.Since(start))
		if pending, countErr := NewOutbox(d.db, nil).PendingCount(parentCtx); countErr == nil {
			d.metrics.SetOutboxBacklog(float64(pending))
		}
	}

	return dispatched, err
}

func (d *Dispatcher) lockPending(ctx context.Context, tx *gorm.DB, limit int) ([]domain.DomainEvent, error) {
	var batch []domain.DomainEvent

	query := `SELECT * FROM domain_events WHERE published = false ORDER BY id ASC LIMIT ?`
	if tx.Dialector.Name() == "postgres" {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	if err := tx.WithContext(ctx).Raw(query, limit).Scan(&batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.DomainEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.Topic]
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
