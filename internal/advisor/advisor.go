// Package advisor implements the Agent Advisor (§4.I): a read-only
// periodic scan producing informational proposals (through the same
// ingestion path human-typed commands use) and logged alerts, each
// cooldown-limited per proposal kind per document.
package advisor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasuryagent/internal/backend/orderbook"
	"treasuryagent/internal/command"
	"treasuryagent/internal/policy"
	"treasuryagent/internal/store"
)

const defaultCooldown = 6 * time.Hour

const (
	idleSweepThresholdUSDC  = 5_000
	significantBasePosition = 100
	rebalanceFloorUSDC      = 10_000
	rebalanceConcentration  = 0.80
	stuckCommandAlertAfter  = time.Hour
	alertThresholdPrefix    = "ALERT_THRESHOLD_"
	staleSpreadAlertPct     = 0.05
)

// PolicySource resolves the currently-effective policy for a document.
type PolicySource func(docID string) (policy.Policy, error)

// Advisor owns the read-only proposal-and-alert loop.
type Advisor struct {
	store     *store.Store
	orderbook orderbook.Backend
	policy    PolicySource
	docIDs    func() []string
	pair      string
	poolKey   string

	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

// Option configures an Advisor at construction time.
type Option func(*Advisor)

func WithInterval(d time.Duration) Option { return func(a *Advisor) { a.interval = d } }
func WithClock(clock func() time.Time) Option {
	return func(a *Advisor) { a.now = clock }
}
func WithLogger(l *slog.Logger) Option { return func(a *Advisor) { a.log = l } }

// New constructs an Advisor.
func New(st *store.Store, ob orderbook.Backend, policySource PolicySource, docIDs func() []string, pair, poolKey string, opts ...Option) *Advisor {
	a := &Advisor{
		store:     st,
		orderbook: ob,
		policy:    policySource,
		docIDs:    docIDs,
		pair:      pair,
		poolKey:   poolKey,
		interval:  60 * time.Second,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks, ticking on the configured interval until ctx is cancelled.
func (a *Advisor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		a.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick scans every tracked document once.
func (a *Advisor) Tick(ctx context.Context) {
	if !a.mu.TryLock() {
		a.log.Debug("advisor: tick skipped, previous tick still running")
		return
	}
	defer a.mu.Unlock()

	for _, docID := range a.docIDs() {
		if err := a.scanDocument(ctx, docID); err != nil {
			a.log.Error("advisor: scan failed", "doc_id", docID, "error", err)
		}
	}
}

func (a *Advisor) scanDocument(ctx context.Context, docID string) error {
	doc, err := a.store.GetDocument(docID)
	if err != nil {
		return err
	}

	a.proposeSessionCreate(docID)
	a.proposePolicyENS(doc)
	if a.orderbook != nil {
		a.proposeSweepYield(ctx, docID, doc)
		a.proposeStopLoss(ctx, docID, doc)
	}
	a.proposeRebalance(docID)
	a.recordAlerts(ctx, docID)
	return nil
}

// propose ingests candidate through the same policy+approval path as a
// human-typed row, subject to the per-kind cooldown.
func (a *Advisor) propose(docID string, kind command.Kind, label string, parsed *command.Command) {
	cooldownKey := "LAST_PROPOSAL_" + string(kind)
	if last, ok, _ := a.store.GetConfig(docID, cooldownKey); ok {
		if parsedAt, err := time.Parse(time.RFC3339, last); err == nil && a.now().Sub(parsedAt) < defaultCooldown {
			return
		}
	}

	p, err := a.policy(docID)
	if err != nil {
		a.log.Error("advisor: load policy failed", "doc_id", docID, "error", err)
		return
	}
	spend, err := a.store.DailySpendUSDC(docID)
	if err != nil {
		a.log.Error("advisor: load daily spend failed", "doc_id", docID, "error", err)
		return
	}
	decision := policy.Evaluate(p, parsed, policy.EvalContext{DailySpendUSDC: spend})
	status := store.StatusPendingApproval
	if !decision.Allowed {
		status = store.StatusRejectedPolicy
	}

	cmdID := uuid.NewString()
	raw := label + " " + parsed.Raw
	if _, err := a.store.InsertCommand(cmdID, docID, raw, parsed, string(kind), status); err != nil {
		a.log.Error("advisor: insert proposal failed", "doc_id", docID, "kind", kind, "error", err)
		return
	}
	if err := a.store.SetConfig(docID, cooldownKey, a.now().Format(time.RFC3339)); err != nil {
		a.log.Error("advisor: record cooldown failed", "doc_id", docID, "kind", kind, "error", err)
	}
}

func (a *Advisor) proposeSessionCreate(docID string) {
	if _, err := a.store.GetChannelSession(docID); err == nil {
		return
	}
	signers, err := a.store.ListSigners(docID)
	if err != nil || len(signers) == 0 {
		return
	}
	a.propose(docID, command.KindSessionCreate, "[ADVISE:SESSION_CREATE]", &command.Command{
		Kind: command.KindSessionCreate,
		Raw:  "DW SESSION_CREATE",
	})
}

func (a *Advisor) proposePolicyENS(doc *store.Document) {
	if doc.PolicyENS == "" {
		return
	}
	if source, _, _ := a.store.GetConfig(doc.DocID, "POLICY_SOURCE"); source == "ENS" {
		return
	}
	a.propose(doc.DocID, command.KindPolicyENS, "[ADVISE:POLICY_ENS]", &command.Command{
		Kind:      command.KindPolicyENS,
		Raw:       "DW POLICY_ENS " + doc.PolicyENS,
		PolicyENS: &command.PolicyENSPayload{Name: doc.PolicyENS},
	})
}

func (a *Advisor) proposeSweepYield(ctx context.Context, docID string, doc *store.Document) {
	if doc.EVMAddress == "" {
		return
	}
	bal, err := a.orderbook.Balances(ctx, doc.EVMAddress)
	if err != nil || bal.Quote < idleSweepThresholdUSDC {
		return
	}
	a.propose(docID, command.KindSweepYield, "[ADVISE:SWEEP_YIELD]", &command.Command{
		Kind: command.KindSweepYield,
		Raw:  "DW SWEEP_YIELD",
	})
}

func (a *Advisor) proposeStopLoss(ctx context.Context, docID string, doc *store.Document) {
	if doc.EVMAddress == "" {
		return
	}
	bal, err := a.orderbook.Balances(ctx, doc.EVMAddress)
	if err != nil || bal.Base < significantBasePosition {
		return
	}
	active, err := a.store.ListActiveConditionalOrders(docID)
	if err != nil {
		return
	}
	for _, o := range active {
		if o.Kind == store.ConditionalStopLoss {
			return
		}
	}
	q, err := a.orderbook.MidPrice(ctx, a.poolKey)
	if err != nil || q.Mid <= 0 {
		return
	}
	trigger := q.Mid * 0.9
	a.propose(docID, command.KindStopLoss, "[ADVISE:STOP_LOSS]", &command.Command{
		Kind: command.KindStopLoss,
		Raw:  "DW STOP_LOSS " + strconv.FormatFloat(bal.Base, 'f', -1, 64) + " @ " + strconv.FormatFloat(trigger, 'f', 4, 64),
		Conditional: &command.ConditionalPayload{
			Base:         "SUI",
			Qty:          bal.Base,
			TriggerPrice: trigger,
		},
	})
}

func (a *Advisor) proposeRebalance(docID string) {
	balances, err := a.store.ListConfig(docID)
	if err != nil {
		return
	}
	var total float64
	chainAmounts := map[string]float64{}
	for key, value := range balances {
		if !strings.HasPrefix(key, "CHAIN_BALANCE_") {
			continue
		}
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		chain := strings.TrimPrefix(key, "CHAIN_BALANCE_")
		chainAmounts[chain] = amount
		total += amount
	}
	if total < rebalanceFloorUSDC {
		return
	}
	for chain, amount := range chainAmounts {
		if amount/total <= rebalanceConcentration {
			continue
		}
		var target string
		for other := range chainAmounts {
			if other != chain {
				target = other
				break
			}
		}
		if target == "" {
			return
		}
		move := amount - total*rebalanceConcentration
		a.propose(docID, command.KindRebalance, "[ADVISE:REBALANCE]", &command.Command{
			Kind: command.KindRebalance,
			Raw:  "DW REBALANCE " + strconv.FormatFloat(move, 'f', 2, 64) + " USDC FROM " + chain + " TO " + target,
			Rebalance: &command.RebalancePayload{
				AmountUSDC: move,
				From:       chain,
				To:         target,
			},
		})
		return
	}
}

// recordAlerts logs informational alerts; alerts never mutate the Store
// and therefore never enter the approval pipeline.
func (a *Advisor) recordAlerts(ctx context.Context, docID string) {
	stuck, err := a.store.ListCommandsByStatus(docID, store.StatusPendingApproval)
	if err == nil {
		for _, cmd := range stuck {
			if a.now().Sub(cmd.CreatedAt) > stuckCommandAlertAfter {
				a.log.Warn("advisor: command stuck pre-execution", "doc_id", docID, "cmd_id", cmd.CmdID, "age", a.now().Sub(cmd.CreatedAt))
			}
		}
	}

	doc, err := a.store.GetDocument(docID)
	if err == nil && doc.EVMAddress != "" && a.orderbook != nil {
		if gas, err := a.orderbook.CheckGas(ctx, doc.EVMAddress); err == nil && !gas.OK {
			a.log.Warn("advisor: gas balance below threshold", "doc_id", docID, "balance", gas.Balance, "min", gas.Min)
		}
	}

	if q, err := a.store.GetPrice(a.pair); err == nil && q.Mid > 0 {
		spread := (q.Ask - q.Bid) / q.Mid
		if spread > staleSpreadAlertPct {
			a.log.Warn("advisor: spread above threshold", "doc_id", docID, "spread", spread)
		}
	}

	a.checkUserAlertThresholds(ctx, docID, doc)
}

func (a *Advisor) checkUserAlertThresholds(ctx context.Context, docID string, doc *store.Document) {
	if doc == nil || doc.EVMAddress == "" || a.orderbook == nil {
		return
	}
	config, err := a.store.ListConfig(docID)
	if err != nil {
		return
	}
	bal, err := a.orderbook.Balances(ctx, doc.EVMAddress)
	if err != nil {
		return
	}
	for key, value := range config {
		if !strings.HasPrefix(key, alertThresholdPrefix) {
			continue
		}
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		coin := strings.TrimPrefix(key, alertThresholdPrefix)
		balance := bal.Quote
		if coin != "USDC" {
			balance = bal.Base
		}
		if balance < threshold {
			a.log.Warn("advisor: balance below user-configured alert threshold", "doc_id", docID, "coin", coin, "balance", balance, "threshold", threshold)
		}
	}
}
