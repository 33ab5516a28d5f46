package oracle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/backend/orderbook"
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

type fakeQuoter struct {
	quote orderbook.Quote
	err   error
}

func (f *fakeQuoter) Execute(context.Context, string, string, string, string) (orderbook.Fill, error) {
	return orderbook.Fill{}, nil
}
func (f *fakeQuoter) OpenOrders(context.Context, string) ([]orderbook.Fill, error) { return nil, nil }
func (f *fakeQuoter) Balances(context.Context, string) (orderbook.Balances, error) {
	return orderbook.Balances{}, nil
}
func (f *fakeQuoter) Deposit(context.Context, string, string, float64) (string, error)  { return "", nil }
func (f *fakeQuoter) Withdraw(context.Context, string, string, float64) (string, error) { return "", nil }
func (f *fakeQuoter) MidPrice(context.Context, string) (orderbook.Quote, error) { return f.quote, f.err }
func (f *fakeQuoter) CheckGas(context.Context, string) (orderbook.GasStatus, error) {
	return orderbook.GasStatus{OK: true}, nil
}

var _ orderbook.Backend = (*fakeQuoter)(nil)

func TestTickTriggersStopLossWhenMidAtOrBelowTrigger(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	order, err := st.InsertConditionalOrder(uuid.NewString(), "doc-1", store.ConditionalStopLoss, "SUI", "USDC", 10, 1.00)
	require.NoError(t, err)

	ob := &fakeQuoter{quote: orderbook.Quote{Mid: 0.95, Bid: 0.94, Ask: 0.96}}
	m := New(st, ob, func() []string { return []string{"doc-1"} }, "SUI/USDC", "pool-1")
	m.Tick(context.Background())

	updated, err := st.GetPrice("SUI/USDC")
	require.NoError(t, err)
	require.Equal(t, 0.95, updated.Mid)

	orders, err := st.ListActiveConditionalOrders("doc-1")
	require.NoError(t, err)
	require.Empty(t, orders, "triggered order leaves the active set")

	cmds, err := st.ListCommands("doc-1")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.Equal(t, store.StatusApproved, cmds[0].Status)
	require.Contains(t, cmds[0].RawText, "STOP_LOSS:"+order.OrderID)
}

func TestTickDoesNotTriggerWhenMidAboveStopLoss(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	_, err = st.InsertConditionalOrder(uuid.NewString(), "doc-1", store.ConditionalStopLoss, "SUI", "USDC", 10, 1.00)
	require.NoError(t, err)

	ob := &fakeQuoter{quote: orderbook.Quote{Mid: 1.10}}
	m := New(st, ob, func() []string { return []string{"doc-1"} }, "SUI/USDC", "pool-1")
	m.Tick(context.Background())

	orders, err := st.ListActiveConditionalOrders("doc-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestTickKeepsStalePriceOnQuoteFailure(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertPrice("SUI/USDC", 1.00, 0.99, 1.01, "seed"))

	ob := &fakeQuoter{err: fmt.Errorf("upstream unavailable")}
	m := New(st, ob, func() []string { return nil }, "SUI/USDC", "pool-1")
	m.Tick(context.Background())

	p, err := st.GetPrice("SUI/USDC")
	require.NoError(t, err)
	require.Equal(t, 1.00, p.Mid)
}

func TestTickReentrancyGuardSkipsOverlappingTick(t *testing.T) {
	st := newTestStore(t)
	m := New(st, &fakeQuoter{}, func() []string { return nil }, "SUI/USDC", "pool-1")

	require.True(t, m.mu.TryLock())
	done := make(chan struct{})
	go func() {
		m.Tick(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick did not return promptly when locked")
	}
	m.mu.Unlock()
}
