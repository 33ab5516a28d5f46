// Package oracle implements the Price Oracle + Conditional Orders loop
// (§4.H): a periodic mid-price poll followed by a conditional-order
// trigger scan against the freshly published price, grounded directly on
// services/swapd/oracle.Manager's Run/Tick shape.
package oracle

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasuryagent/internal/backend/orderbook"
	"treasuryagent/internal/command"
	"treasuryagent/internal/store"
)

// Manager owns the price-poll-and-trigger loop for one supported pair.
type Manager struct {
	store     *store.Store
	orderbook orderbook.Backend
	docIDs    func() []string
	pair      string
	poolKey   string

	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

// Option configures a Manager at construction time.
type Option func(*Manager)

func WithInterval(d time.Duration) Option { return func(m *Manager) { m.interval = d } }
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.now = clock }
}
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// New constructs a Manager for the single supported pair (SUI/USDC).
func New(st *store.Store, ob orderbook.Backend, docIDs func() []string, pair, poolKey string, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		orderbook: ob,
		docIDs:    docIDs,
		pair:      pair,
		poolKey:   poolKey,
		interval:  30 * time.Second,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks, ticking on the configured interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick polls the mid-price once and scans every tracked document's active
// conditional orders against it.
func (m *Manager) Tick(ctx context.Context) {
	if !m.mu.TryLock() {
		m.log.Debug("oracle: tick skipped, previous tick still running")
		return
	}
	defer m.mu.Unlock()

	mid, ok := m.refreshPrice(ctx)
	if !ok || mid <= 0 {
		return
	}
	for _, docID := range m.docIDs() {
		if err := m.scanConditionalOrders(docID, mid); err != nil {
			m.log.Error("oracle: trigger scan failed", "doc_id", docID, "error", err)
		}
	}
}

// refreshPrice overwrites the cached price row on success and leaves the
// stale row in place on failure (§4.H step 1).
func (m *Manager) refreshPrice(ctx context.Context) (mid float64, ok bool) {
	if m.orderbook == nil {
		return 0, false
	}
	q, err := m.orderbook.MidPrice(ctx, m.poolKey)
	if err != nil {
		m.log.Warn("oracle: mid price lookup failed, keeping stale price", "pair", m.pair, "error", err)
		return 0, false
	}
	if err := m.store.UpsertPrice(m.pair, q.Mid, q.Bid, q.Ask, "orderbook"); err != nil {
		m.log.Error("oracle: failed to persist price", "pair", m.pair, "error", err)
		return 0, false
	}
	return q.Mid, true
}

func (m *Manager) scanConditionalOrders(docID string, mid float64) error {
	orders, err := m.store.ListActiveConditionalOrders(docID)
	if err != nil {
		return err
	}
	for _, order := range orders {
		triggered := (order.Kind == store.ConditionalStopLoss && mid <= order.TriggerPrice) ||
			(order.Kind == store.ConditionalTakeProfit && mid >= order.TriggerPrice)
		if !triggered {
			continue
		}
		if err := m.spawnMarketSell(docID, order); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) spawnMarketSell(docID string, order store.ConditionalOrder) error {
	label := "[" + string(order.Kind) + ":" + order.OrderID + "]"
	qty := strconv.FormatFloat(order.Qty, 'f', -1, 64)
	raw := label + " DW MARKET_SELL " + order.Base + " " + qty
	parsed := &command.Command{
		Kind: command.KindMarketSell,
		Raw:  raw,
		MarketOrder: &command.MarketOrderPayload{
			Base: order.Base,
			Qty:  order.Qty,
		},
	}
	cmdID := uuid.NewString()
	if _, err := m.store.InsertCommand(cmdID, docID, raw, parsed, string(command.KindMarketSell), store.StatusApproved); err != nil {
		return err
	}
	return m.store.TriggerConditionalOrder(order.OrderID, cmdID)
}
