// Package realtime is the in-process change-feed: row-level mutation events
// published by the service layer and fanned out to scoped subscribers.
//
// The scoping model is deliberately simple — a subscription is a table name
// plus one column-equality predicate ("clips where status = live",
// "room_participants where room_id = X"). That is exactly the granularity
// the sync controllers need, and it keeps matching O(subscribers-per-key)
// instead of a general query engine.
package realtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// Action is the kind of row mutation an event describes.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one row-level change. Values carries the column values of the
// affected row — enough for a subscriber to match its predicate and decide
// whether to re-fetch, never a substitute for the composed record itself.
type Event struct {
	Action Action         `json:"action"`
	Table  string         `json:"table"`
	ID     string         `json:"id"`
	Values map[string]any `json:"values,omitempty"`
}

// Matches reports whether the event satisfies a column-equality predicate.
// An empty column matches every event on the table. Delete events match
// unconditionally within their table: the deleted row's values may be gone,
// and a subscriber that misses a delete holds a ghost forever.
//
// Values are compared as strings: published rows carry typed Go values
// while a scope that crossed the WebSocket only carries strings, so
// `true` must match "true" and 42 must match "42".
func (e Event) Matches(table, column string, value any) bool {
	if e.Table != table {
		return false
	}
	if column == "" || e.Action == ActionDelete {
		return true
	}
	got, ok := e.Values[column]
	if !ok {
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(value)
}

// scopedFor returns the event as one subscription should see it, and
// whether it should see it at all. An update whose new values carry the
// scoping column with a DIFFERENT value means the row just left that
// subscription's scope: the subscriber hears it as a delete, otherwise a
// live-only view would keep a hidden row until the next full reload.
// Inserts of out-of-scope rows stay silent — there is nothing to evict.
func (e Event) scopedFor(p predicate) (Event, bool) {
	if e.Matches(e.Table, p.column, p.value) {
		return e, true
	}
	if e.Action != ActionUpdate {
		return Event{}, false
	}
	if _, ok := e.Values[p.column]; !ok {
		return Event{}, false
	}
	e.Action = ActionDelete
	return e, true
}

// Subscription is one scoped listener. Events arrive on C; Close detaches
// from the hub and closes C. Close is idempotent.
type Subscription struct {
	C chan Event

	hub    *Hub
	table  string
	once   sync.Once
	closed chan struct{}
}

// Close detaches the subscription. Safe to call more than once and safe to
// call concurrently with a Publish in flight.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.hub.remove(s)
		close(s.C)
	})
}

type predicate struct {
	column string
	value  any
}

// Hub fans events out to subscriptions. A single Hub serves the whole
// process; repositories publish into it and both the WebSocket transport
// and in-process sync controllers subscribe.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]predicate // table -> subscription -> scope
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*Subscription]predicate),
	}
}

// Subscribe registers a listener for events on table where column = value.
// Pass an empty column to receive every event on the table.
func (h *Hub) Subscribe(table, column string, value any) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, 64),
		hub:    h,
		table:  table,
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[table] == nil {
		h.subs[table] = make(map[*Subscription]predicate)
	}
	h.subs[table][sub] = predicate{column: column, value: value}

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.subs[sub.table]; ok {
		delete(m, sub)
		if len(m) == 0 {
			delete(h.subs, sub.table)
		}
	}
}

// Publish delivers the event to every matching subscription. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event, and
// missing an event costs at most one stale view until the next change —
// the sync layer re-fetches on every event, so it self-corrects.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub, pred := range h.subs[event.Table] {
		out, ok := event.scopedFor(pred)
		if !ok {
			continue
		}
		select {
		case sub.C <- out:
		case <-sub.closed:
		default:
			h.logger.Warn("change-feed subscriber lagging, event dropped",
				"table", event.Table, "action", event.Action, "id", event.ID)
		}
	}
}
