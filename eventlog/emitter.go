// Package eventlog implements the append-only per-run event stream (spec
// §4.1): emit() allocates the next seq for a run and inserts the event
// atomically from the caller's point of view.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-go/domain"
	"trpc.group/trpc-go/trpc-agent-go/store"
)

// Emitter allocates seqs and appends events for a single store.
type Emitter struct {
	store store.EventStore
}

// New creates an Emitter over the given event store.
func New(s store.EventStore) *Emitter {
	return &Emitter{store: s}
}

// Emit allocates seq = current-max+1 for runID and inserts the event. Under
// the engine's one-writer-per-run concurrency model (spec §5) this
// read-then-write is race-free; a duplicate-seq error from the store
// signals a protocol bug rather than a transient race.
func (e *Emitter) Emit(ctx context.Context, runID string, typ domain.EventType, payload any) (*domain.Event, error) {
	max, err := e.store.MaxEventSeq(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: max seq: %w", err)
	}
	ev := &domain.Event{
		ID:      uuid.NewString(),
		RunID:   runID,
		Seq:     max + 1,
		TS:      time.Now(),
		Type:    typ,
		Payload: payload,
	}
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("eventlog: append seq=%d: %w", ev.Seq, err)
	}
	return ev, nil
}
