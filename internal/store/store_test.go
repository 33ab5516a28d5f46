package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, clock func() time.Time) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	opts := []Option{}
	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	st, err := New(db, opts...)
	require.NoError(t, err)
	return st
}

func TestUpsertAndGetDocument(t *testing.T) {
	st := newTestStore(t, nil)
	_, err := st.UpsertDocument("doc-1", "Treasury Sheet")
	require.NoError(t, err)

	doc, err := st.GetDocument("doc-1")
	require.NoError(t, err)
	require.Equal(t, "Treasury Sheet", doc.DisplayName)
	require.Equal(t, 1, doc.Quorum)

	require.NoError(t, st.SetAddresses("doc-1", "0x1111111111111111111111111111111111111111", "sui-addr"))
	doc, err = st.GetDocument("doc-1")
	require.NoError(t, err)
	require.Equal(t, "0x1111111111111111111111111111111111111111", doc.EVMAddress)
}

func TestClaimOldestApprovedIsSingleFlight(t *testing.T) {
	st := newTestStore(t, nil)
	_, err := st.InsertCommand("cmd-1", "doc-1", "DW PAYOUT 1 USDC TO 0x1", nil, "PAYOUT", StatusApproved)
	require.NoError(t, err)
	_, err = st.InsertCommand("cmd-2", "doc-1", "DW PAYOUT 2 USDC TO 0x2", nil, "PAYOUT", StatusApproved)
	require.NoError(t, err)

	claimed, err := st.ClaimOldestApproved()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, "cmd-1", claimed.CmdID)
	require.Equal(t, StatusExecuting, claimed.Status)

	// Re-claiming must not pick the already-executing row; cmd-2 is next.
	claimed2, err := st.ClaimOldestApproved()
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	require.Equal(t, "cmd-2", claimed2.CmdID)

	claimed3, err := st.ClaimOldestApproved()
	require.NoError(t, err)
	require.Nil(t, claimed3)
}

func TestApprovedWeight(t *testing.T) {
	st := newTestStore(t, nil)
	require.NoError(t, st.UpsertSigner("doc-1", "0xaaa", 2))
	require.NoError(t, st.UpsertSigner("doc-1", "0xbbb", 1))
	_, err := st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", StatusPendingApproval)
	require.NoError(t, err)

	require.NoError(t, st.RecordApproval("doc-1", "cmd-1", "0xaaa", DecisionApprove))
	w, err := st.ApprovedWeight("doc-1", "cmd-1")
	require.NoError(t, err)
	require.Equal(t, 2, w)

	require.NoError(t, st.RecordApproval("doc-1", "cmd-1", "0xbbb", DecisionApprove))
	w, err = st.ApprovedWeight("doc-1", "cmd-1")
	require.NoError(t, err)
	require.Equal(t, 3, w)

	// last-writer-wins: flipping 0xaaa to REJECT drops its weight.
	require.NoError(t, st.RecordApproval("doc-1", "cmd-1", "0xaaa", DecisionReject))
	w, err = st.ApprovedWeight("doc-1", "cmd-1")
	require.NoError(t, err)
	require.Equal(t, 1, w)
}

func TestDailySpendUSDCWindow(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	st := newTestStore(t, clock)

	_, err := st.InsertCommand("cmd-old", "doc-1", "DW PAYOUT 50 USDC TO 0x1", struct{ AmountUSDC float64 }{50}, "PAYOUT", StatusExecuted)
	require.NoError(t, err)
	require.NoError(t, st.db.Model(&Command{}).Where("cmd_id = ?", "cmd-old").
		Update("updated_at", now.Add(-48*time.Hour)).Error)

	_, err = st.InsertCommand("cmd-recent", "doc-1", "DW PAYOUT 30 USDC TO 0x2", struct{ AmountUSDC float64 }{30}, "PAYOUT", StatusExecuted)
	require.NoError(t, err)

	total, err := st.DailySpendUSDC("doc-1")
	require.NoError(t, err)
	require.InDelta(t, 30.0, total, 1e-9)
}

func TestScheduleAdvanceDoesNotBatchMissedTicks(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := start
	clock := func() time.Time { return cur }
	st := newTestStore(t, clock)

	sched, err := st.InsertSchedule("sched-1", "doc-1", 2, "LIMIT_BUY SUI 1 USDC @ 1.00")
	require.NoError(t, err)
	require.Equal(t, start.Add(2*time.Hour), sched.NextRunAt)

	// Advance the clock well past several missed intervals.
	cur = start.Add(10 * time.Hour)
	require.NoError(t, st.AdvanceSchedule("sched-1"))

	updated, err := st.GetSchedule("sched-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, updated.TotalRuns, "exactly one run is recorded per tick, no catch-up batching")
	require.Equal(t, cur.Add(2*time.Hour), updated.NextRunAt)
}
