package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// persister writes message records off the event loop. Delivery to the
// store is at-most-once: a full queue or a failed write loses the record.
type persister struct {
	store   store.MessageStore
	jobs    chan store.Record
	timeout time.Duration
	log     *zerolog.Logger
	metrics *metrics.Relay
}

func newPersister(st store.MessageStore, size int, timeout time.Duration, logger *zerolog.Logger, m *metrics.Relay) *persister {
	return &persister{
		store:   st,
		jobs:    make(chan store.Record, size),
		timeout: timeout,
		log:     logger,
		metrics: m,
	}
}

// enqueue hands rec to the worker without blocking.
func (p *persister) enqueue(rec store.Record) bool {
	select {
	case p.jobs <- rec:
		return true
	default:
		p.metrics.PersistSkipped()
		p.log.Error().Str("room", rec.RoomID).Str("record_id", rec.ID).Msg("persist queue full, message not stored")
		return false
	}
}

// run consumes jobs until ctx is done, then drains whatever is queued.
func (p *persister) run(ctx context.Context) {
	for {
		select {
		case rec := <-p.jobs:
			p.write(ctx, rec)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *persister) drain() {
	for {
		select {
		case rec := <-p.jobs:
			p.write(context.Background(), rec)
		default:
			return
		}
	}
}

func (p *persister) write(ctx context.Context, rec store.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.store.Insert(ctx, rec); err != nil {
		p.metrics.PersistFailed()
		p.log.Error().Err(err).
			Str("room", rec.RoomID).
			Str("record_id", rec.ID).
			Str("sender_id", rec.SenderID).
			Msg("failed to persist message")
		return
	}
	p.log.Debug().Str("room", rec.RoomID).Str("record_id", rec.ID).Msg("message persisted")
}
