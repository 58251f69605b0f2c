package delivery

import (
	"context"
	"log"
	"time"

	syncx "github.com/prepworks/prepworks-engine/internal/sync"
)

// Sweeper periodically expires submissions whose assignment window has
// passed. The store-side guard only flips NOT_STARTED and IN_PROGRESS rows,
// so a late-arriving completion can never be clobbered.
type Sweeper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
	events   EventSink
}

type SweeperOption func(*Sweeper)

func SweepClock(now func() time.Time) SweeperOption { return func(s *Sweeper) { s.now = now } }

func SweepEvents(e EventSink) SweeperOption { return func(s *Sweeper) { s.events = e } }

func NewSweeper(store Store, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{store: store, interval: interval, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("expiration sweep: %v", err)
			}
		}
	}
}

// SweepOnce expires everything overdue as of the injected clock and returns
// how many submissions were flipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("expired %d overdue submissions", n)
		if s.events != nil {
			if err := s.events.AppendJSON(ctx, syncx.EventSubmissionExpired, "sweep", map[string]int64{"expired": n}); err != nil {
				log.Printf("event log sweep: %v", err)
			}
		}
	}
	return n, nil
}
