package approval

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func TestDecideReachesQuorumAndApproves(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.SetQuorum("doc-1", 2))
	require.NoError(t, st.UpsertSigner("doc-1", "0xaaa", 1))
	require.NoError(t, st.UpsertSigner("doc-1", "0xbbb", 1))
	_, err = st.InsertCommand("cmd-1", "doc-1", "DW LIMIT_BUY SUI 1 USDC @ 1.00", nil, "LIMIT_BUY", store.StatusPendingApproval)
	require.NoError(t, err)

	coord := New(st)

	progress, err := coord.Decide(context.Background(), "doc-1", "cmd-1", "0xaaa", store.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, store.StatusPendingApproval, progress.Status)
	require.Equal(t, 1, progress.ApprovedWeight)

	progress, err = coord.Decide(context.Background(), "doc-1", "cmd-1", "0xbbb", store.DecisionApprove)
	require.NoError(t, err)
	require.Equal(t, store.StatusApproved, progress.Status)

	cmd, err := st.GetCommand("cmd-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusApproved, cmd.Status)

	approvals, err := st.ListApprovals("cmd-1")
	require.NoError(t, err)
	require.Empty(t, approvals, "approvals are cleared on the APPROVED transition")
}

func TestDecideRejectClearsApprovals(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.UpsertSigner("doc-1", "0xaaa", 1))
	_, err = st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusPendingApproval)
	require.NoError(t, err)

	coord := New(st)
	progress, err := coord.Decide(context.Background(), "doc-1", "cmd-1", "0xaaa", store.DecisionReject)
	require.NoError(t, err)
	require.Equal(t, store.StatusRejected, progress.Status)

	cmd, err := st.GetCommand("cmd-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusRejected, cmd.Status)

	approvals, err := st.ListApprovals("cmd-1")
	require.NoError(t, err)
	require.Empty(t, approvals, "approvals are cleared on the REJECTED transition")
}

func TestDecideRejectsUnregisteredSigner(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	_, err = st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusPendingApproval)
	require.NoError(t, err)

	coord := New(st)
	_, err = coord.Decide(context.Background(), "doc-1", "cmd-1", "0xnotasigner", store.DecisionApprove)
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestDecideRejectsNonPendingCommand(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.UpsertSigner("doc-1", "0xaaa", 1))
	_, err = st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusExecuted)
	require.NoError(t, err)

	coord := New(st)
	_, err = coord.Decide(context.Background(), "doc-1", "cmd-1", "0xaaa", store.DecisionApprove)
	require.Error(t, err)
}

func TestDecideWithChannelRequiresExistingSession(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.UpsertSigner("doc-1", "0xaaa", 1))
	_, err = st.InsertCommand("cmd-1", "doc-1", "DW LIMIT_BUY SUI 1 USDC @ 1.00", nil, "LIMIT_BUY", store.StatusPendingApproval)
	require.NoError(t, err)

	coord := New(st, WithChannel(&fakeChannel{}))
	_, err = coord.Decide(context.Background(), "doc-1", "cmd-1", "0xaaa", store.DecisionApprove)
	require.Error(t, err)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Contains(t, conflict.Error(), "no state-channel session")
}
