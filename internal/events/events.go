// Package events carries "the ledger changed" notifications between the
// session that wrote a change and whoever needs to react to it: other
// sessions reloading their snapshot, or the report export worker.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type (
	Entity string
	Op     string
)

const (
	EntityCategory    Entity = "category"
	EntityTransaction Entity = "transaction"

	OpSaved   Op = "saved"
	OpDeleted Op = "deleted"
)

// Change describes one persisted mutation. Year is the calendar year of the
// affected transaction, or zero for category changes which touch every year.
type Change struct {
	Entity Entity    `json:"entity"`
	Op     Op        `json:"op"`
	ID     string    `json:"id"`
	Year   int       `json:"year,omitempty"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
}

// Handler processes a change. A returned error asks the transport to
// redeliver when it supports that.
type Handler func(ctx context.Context, c Change) error

// Notifier publishes changes and delivers them to subscribers.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe calls h for every change until ctx is done. It blocks.
	Subscribe(ctx context.Context, h Handler) error
}

// Nop discards every change. Subscribe blocks until ctx is done.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }

func (Nop) Subscribe(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

const subscriberBuffer = 64

// Broker is an in-process Notifier fanning every change out to all current
// subscribers over buffered channels.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Change]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Change]struct{})}
}

// Publish delivers c to every subscriber. A subscriber whose buffer is full
// misses the change.
func (b *Broker) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			slog.WarnContext(ctx, "Dropping change for slow subscriber", "entity", c.Entity, "id", c.ID)
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, h Handler) error {
	ch := make(chan Change, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-ch:
			if err := h(ctx, c); err != nil {
				slog.WarnContext(ctx, "Change handler failed",
					"entity", c.Entity,
					"op", c.Op,
					"id", c.ID,
					"error", err)
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
