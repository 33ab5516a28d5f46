package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/store"
)

func newTestStore(t *testing.T, clock func() time.Time) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db, store.WithClock(clock))
	require.NoError(t, err)
	return st
}

func TestTickFiresDueScheduleAndAdvancesExactlyOneInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	st := newTestStore(t, clock)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)

	sched, err := st.InsertSchedule(uuid.NewString(), "doc-1", 1, "DW STATUS")
	require.NoError(t, err)
	now = now.Add(2 * time.Hour) // two intervals overdue

	sch := New(st, func() []string { return []string{"doc-1"} }, WithClock(clock))
	sch.Tick(context.Background())

	cmds, err := st.ListCommands("doc-1")
	require.NoError(t, err)
	require.Len(t, cmds, 1, "exactly one run emitted per due schedule per tick")
	require.Equal(t, store.StatusApproved, cmds[0].Status)
	require.Contains(t, cmds[0].RawText, "[SCHED:")

	updated, err := st.GetSchedule(sched.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated.TotalRuns)
	require.Equal(t, now.Add(time.Hour), updated.NextRunAt, "advances by exactly one interval, not batched")
}

func TestTickCancelsScheduleWhenInnerCommandNoLongerParses(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	st := newTestStore(t, clock)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)

	sched, err := st.InsertSchedule(uuid.NewString(), "doc-1", 1, "NOT A VALID COMMAND")
	require.NoError(t, err)
	now = now.Add(time.Hour)

	sch := New(st, func() []string { return []string{"doc-1"} }, WithClock(clock))
	sch.Tick(context.Background())

	updated, err := st.GetSchedule(sched.ScheduleID)
	require.NoError(t, err)
	require.Equal(t, store.ScheduleCancelled, updated.Status)

	cmds, err := st.ListCommands("doc-1")
	require.NoError(t, err)
	require.Empty(t, cmds)
}

func TestTickReentrancyGuardSkipsOverlappingTick(t *testing.T) {
	st := newTestStore(t, time.Now)
	sch := New(st, func() []string { return nil })

	require.True(t, sch.mu.TryLock())
	done := make(chan struct{})
	go func() {
		sch.Tick(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick did not return promptly when locked")
	}
	sch.mu.Unlock()
}
