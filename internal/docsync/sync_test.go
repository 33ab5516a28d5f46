package docsync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/backend/docprovider"
	"treasuryagent/internal/policy"
	"treasuryagent/internal/store"
)

type fakeProvider struct {
	rows map[string][]docprovider.Row
}

func (f *fakeProvider) DiscoverTable(ctx context.Context, docID string) (string, error) {
	return docID, nil
}

func (f *fakeProvider) ReadRows(ctx context.Context, docID, handle string) ([]docprovider.Row, error) {
	return f.rows[docID], nil
}

func (f *fakeProvider) WriteRows(ctx context.Context, docID, handle string, rows []docprovider.Row) error {
	f.rows[docID] = rows
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func TestTickIngestsNewRowAndComputesApprovalURL(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)

	provider := &fakeProvider{rows: map[string][]docprovider.Row{
		"doc-1": {{Index: 0, Text: "DW LIMIT_BUY SUI 1 USDC @ 1.00"}},
	}}
	noPolicy := func(string) (policy.Policy, error) { return policy.Policy{}, nil }
	syncer := New(st, provider, noPolicy, func() []string { return []string{"doc-1"} }, "https://approve.example.com")

	syncer.Tick(context.Background())

	rows := provider.rows["doc-1"]
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].ID)
	require.Equal(t, string(store.StatusPendingApproval), rows[0].Status)
	require.NotEmpty(t, rows[0].ApprovalURL)
}

func TestTickSkipsWhenDigestUnchanged(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	provider := &fakeProvider{rows: map[string][]docprovider.Row{
		"doc-1": {{Index: 0, Text: "DW STATUS"}},
	}}
	noPolicy := func(string) (policy.Policy, error) { return policy.Policy{}, nil }
	syncer := New(st, provider, noPolicy, func() []string { return []string{"doc-1"} }, "https://approve.example.com")

	syncer.Tick(context.Background())
	firstID := provider.rows["doc-1"][0].ID

	// Simulate a second tick with an identical projection: the id must
	// not be reassigned and no new command created.
	provider.rows["doc-1"][0].Text = "DW STATUS"
	syncer.Tick(context.Background())
	require.Equal(t, firstID, provider.rows["doc-1"][0].ID)

	cmds, err := st.ListCommands("doc-1")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
}

func TestTickRejectsEditAfterExecution(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	cmd, err := st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusExecuted)
	require.NoError(t, err)

	provider := &fakeProvider{rows: map[string][]docprovider.Row{
		"doc-1": {{Index: 0, ID: cmd.CmdID, Text: "DW PRICE"}},
	}}
	noPolicy := func(string) (policy.Policy, error) { return policy.Policy{}, nil }
	syncer := New(st, provider, noPolicy, func() []string { return []string{"doc-1"} }, "https://approve.example.com")

	syncer.Tick(context.Background())

	row := provider.rows["doc-1"][0]
	require.Equal(t, string(store.StatusExecuted), row.Status)
	require.Contains(t, row.Error, "locked")
}

func TestTickAppliesCellApprovalWhenQuorumSetButNoSignersRegistered(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.SetQuorum("doc-1", 3))
	require.NoError(t, st.SetConfig("doc-1", "CELL_APPROVAL_ENABLED", "true"))
	cmd, err := st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusPendingApproval)
	require.NoError(t, err)

	provider := &fakeProvider{rows: map[string][]docprovider.Row{
		"doc-1": {{Index: 0, ID: cmd.CmdID, Text: "DW STATUS", Status: "APPROVED"}},
	}}
	noPolicy := func(string) (policy.Policy, error) { return policy.Policy{}, nil }
	syncer := New(st, provider, noPolicy, func() []string { return []string{"doc-1"} }, "https://approve.example.com")

	syncer.Tick(context.Background())

	updated, err := st.GetCommand(cmd.CmdID)
	require.NoError(t, err)
	require.Equal(t, store.StatusApproved, updated.Status, "quorum > 1 but no registered signers should still allow a cell-level decision")
}

func TestTickIgnoresCellApprovalWhenQuorumAboveOneAndSignersExist(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	require.NoError(t, st.SetQuorum("doc-1", 3))
	require.NoError(t, st.UpsertSigner("doc-1", "0xsigner", 1))
	require.NoError(t, st.SetConfig("doc-1", "CELL_APPROVAL_ENABLED", "true"))
	cmd, err := st.InsertCommand("cmd-1", "doc-1", "DW STATUS", nil, "STATUS", store.StatusPendingApproval)
	require.NoError(t, err)

	provider := &fakeProvider{rows: map[string][]docprovider.Row{
		"doc-1": {{Index: 0, ID: cmd.CmdID, Text: "DW STATUS", Status: "APPROVED"}},
	}}
	noPolicy := func(string) (policy.Policy, error) { return policy.Policy{}, nil }
	syncer := New(st, provider, noPolicy, func() []string { return []string{"doc-1"} }, "https://approve.example.com")

	syncer.Tick(context.Background())

	updated, err := st.GetCommand(cmd.CmdID)
	require.NoError(t, err)
	require.Equal(t, store.StatusPendingApproval, updated.Status, "with registered signers and quorum > 1 the cell edit must not resolve the command by itself")
}

func TestTickReentrancyGuardSkipsOverlappingTick(t *testing.T) {
	st := newTestStore(t)
	syncer := New(st, &fakeProvider{rows: map[string][]docprovider.Row{}}, func(string) (policy.Policy, error) {
		return policy.Policy{}, nil
	}, func() []string { return nil }, "https://x")

	require.True(t, syncer.mu.TryLock())
	done := make(chan struct{})
	go func() {
		syncer.Tick(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick did not return promptly when locked")
	}
	syncer.mu.Unlock()
}
