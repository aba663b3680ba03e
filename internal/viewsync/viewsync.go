// Package viewsync keeps an ordered, keyed collection converged with the
// change-feed. One generic controller serves every synchronized view in the
// app — feed, playlist, room roster, topic thread — parameterized by a
// snapshot loader, a single-record fetcher, and a key function.
//
// The lifecycle is always the same: Load a composed snapshot, Subscribe to
// the scoped feed, re-fetch each affected record incrementally, Unsubscribe
// on teardown. Incremental merges preserve the order the snapshot
// established: a known id is replaced in place, an unknown id is appended,
// a delete removes.
package viewsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/waveroom/internal/realtime"
)

// Config wires a Controller to its data sources. Snapshot returns the
// composed collection; Fetch returns one composed record by id (feed events
// carry bare rows, so every incremental merge goes through Fetch); Key
// extracts the record's id.
type Config[T any] struct {
	Resource string // for log lines, e.g. "feed", "playlist"

	Hub    *realtime.Hub
	Table  string
	Column string // empty = whole table
	Value  any

	Snapshot func(ctx context.Context) ([]T, error)
	Fetch    func(ctx context.Context, id string) (T, error)
	Key      func(T) string

	Logger *slog.Logger
}

// Controller owns one synchronized collection. All methods are safe for
// concurrent use.
type Controller[T any] struct {
	cfg Config[T]

	mu    sync.Mutex
	items []T
	index map[string]int

	// Per-id re-fetch sequencing. Events for the same id can trigger
	// overlapping fetches that complete out of order; issued hands each
	// fetch a ticket and applied records the newest ticket merged so far.
	// A fetch whose ticket is older than applied is thrown away — the
	// collection only ever moves forward.
	issued  map[string]uint64
	applied map[string]uint64

	sub    *realtime.Subscription
	done   chan struct{}
	cancel context.CancelFunc
}

func New[T any](cfg Config[T]) *Controller[T] {
	return &Controller[T]{
		cfg:     cfg,
		index:   make(map[string]int),
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// Load replaces the collection wholesale with a fresh snapshot.
func (c *Controller[T]) Load(ctx context.Context) error {
	items, err := c.cfg.Snapshot(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = items
	c.index = make(map[string]int, len(items))
	for i, item := range items {
		c.index[c.cfg.Key(item)] = i
	}
	return nil
}

// Items returns a copy of the current collection in order.
func (c *Controller[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Subscribe opens the scoped change-feed and starts merging events.
// Calling Subscribe while already subscribed tears the old feed down
// first, so there is never more than one active subscription.
func (c *Controller[T]) Subscribe(ctx context.Context) {
	c.Unsubscribe()

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.sub = c.cfg.Hub.Subscribe(c.cfg.Table, c.cfg.Column, c.cfg.Value)
	c.done = make(chan struct{})
	c.cancel = cancel
	sub, done := c.sub, c.done
	c.mu.Unlock()

	go c.run(ctx, sub, done)
}

// Unsubscribe stops event handling and closes the feed. Idempotent; safe
// to call on a controller that never subscribed.
func (c *Controller[T]) Unsubscribe() {
	c.mu.Lock()
	sub, done, cancel := c.sub, c.done, c.cancel
	c.sub, c.done, c.cancel = nil, nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	cancel()
	sub.Close()
	<-done
}

func (c *Controller[T]) run(ctx context.Context, sub *realtime.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller[T]) handle(ctx context.Context, ev realtime.Event) {
	if ev.Action == realtime.ActionDelete {
		c.remove(ev.ID)
		return
	}

	c.mu.Lock()
	c.issued[ev.ID]++
	ticket := c.issued[ev.ID]
	c.mu.Unlock()

	// Fetch outside the lock; merges serialize on apply, and the ticket
	// decides which response wins when fetches overlap.
	go func() {
		item, err := c.cfg.Fetch(ctx, ev.ID)
		if err != nil {
			// One-event staleness, never a crash: the next change to
			// this row triggers another fetch.
			c.cfg.Logger.Warn("incremental re-fetch failed",
				"resource", c.cfg.Resource, "id", ev.ID, "error", err)
			return
		}
		c.apply(ev.ID, ticket, item)
	}()
}

// apply merges one fetched record if its ticket is still the newest.
func (c *Controller[T]) apply(id string, ticket uint64, item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket <= c.applied[id] {
		// A newer fetch already landed; this response is stale.
		c.cfg.Logger.Debug("discarding stale re-fetch",
			"resource", c.cfg.Resource, "id", id)
		return
	}
	c.applied[id] = ticket

	if i, ok := c.index[id]; ok {
		c.items[i] = item
		return
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, item)
}

func (c *Controller[T]) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.cfg.Key(c.items[j])] = j
	}

	// Consume any outstanding tickets so an in-flight fetch cannot
	// resurrect the removed record.
	c.applied[id] = c.issued[id]
}
