// Package scheduler implements the Scheduler (§4.G): a periodic loop
// that fires due recurring schedules, spawning a fresh APPROVED command
// per firing and advancing the schedule by exactly one interval.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasuryagent/internal/command"
	"treasuryagent/internal/store"
)

// Scheduler owns the periodic schedule-firing loop.
type Scheduler struct {
	store    *store.Store
	docIDs   func() []string
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

func WithInterval(d time.Duration) Option  { return func(s *Scheduler) { s.interval = d } }
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.now = clock }
}
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// New constructs a Scheduler. docIDs returns the current set of tracked
// documents on every tick.
func New(st *store.Store, docIDs func() []string, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    st,
		docIDs:   docIDs,
		interval: 5 * time.Second,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, ticking on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick fires every due schedule across every tracked document, exactly
// once per schedule per tick — missed ticks are never batched (§4.G).
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Debug("scheduler: tick skipped, previous tick still running")
		return
	}
	defer s.mu.Unlock()

	for _, docID := range s.docIDs() {
		due, err := s.store.ListDueSchedules(docID)
		if err != nil {
			s.log.Error("scheduler: list due schedules failed", "doc_id", docID, "error", err)
			continue
		}
		for _, sched := range due {
			if err := s.fire(docID, sched); err != nil {
				s.log.Error("scheduler: fire failed", "schedule_id", sched.ScheduleID, "error", err)
			}
		}
	}
}

func (s *Scheduler) fire(docID string, sched store.Schedule) error {
	recognized, parseErr := command.Parse(sched.InnerCommandText)
	if parseErr != nil {
		return s.store.CancelSchedule(sched.ScheduleID)
	}

	label := "[SCHED:" + sched.ScheduleID + "#" + strconv.FormatInt(sched.TotalRuns+1, 10) + "]"
	cmdID := uuid.NewString()
	if _, err := s.store.InsertCommand(cmdID, docID, label+" "+sched.InnerCommandText, recognized, string(recognized.Kind), store.StatusApproved); err != nil {
		return err
	}
	return s.store.AdvanceSchedule(sched.ScheduleID)
}
