// Package executor implements the Executor (§4.F): the single-flight
// loop that claims the oldest APPROVED command and drives it to EXECUTED
// or FAILED. Tracing spans are grounded on payoutd.Processor.Process's
// span tree, renamed to this package's own tracer name.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"treasuryagent/internal/backend/orderbook"
	"treasuryagent/internal/backend/paymentrail"
	"treasuryagent/internal/backend/statechannel"
	"treasuryagent/internal/command"
	"treasuryagent/internal/policy"
	"treasuryagent/internal/store"
)

// PolicySource resolves the currently-effective policy for a document.
type PolicySource func(docID string) (policy.Policy, error)

// WalletProvisioner lazily creates and persists a document's signing
// secrets, returning the derived addresses to publish into config. It is
// intentionally narrow: the Executor never handles a raw private key
// outside the duration of one dispatch.
type WalletProvisioner interface {
	EnsureWallet(docID string) (evmAddress, suiAddress string, err error)
	PrivateKeyFor(docID string) (privKey string, err error)
}

// Executor owns the single-flight execution loop.
type Executor struct {
	store       *store.Store
	policy      PolicySource
	orderbook   orderbook.Backend
	nativeRail  paymentrail.NativeRail
	managedRail paymentrail.ManagedRail
	channel     statechannel.Backend
	wallets     WalletProvisioner
	poolKey     string

	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
	tracer   trace.Tracer

	mu sync.Mutex
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithInterval(d time.Duration) Option { return func(e *Executor) { e.interval = d } }
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) { e.now = clock }
}
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.log = l } }
func WithOrderBook(b orderbook.Backend) Option {
	return func(e *Executor) { e.orderbook = b }
}
func WithNativeRail(r paymentrail.NativeRail) Option {
	return func(e *Executor) { e.nativeRail = r }
}
func WithManagedRail(r paymentrail.ManagedRail) Option {
	return func(e *Executor) { e.managedRail = r }
}
func WithChannel(ch statechannel.Backend) Option {
	return func(e *Executor) { e.channel = ch }
}
func WithWallets(w WalletProvisioner) Option {
	return func(e *Executor) { e.wallets = w }
}
func WithPoolKey(poolKey string) Option {
	return func(e *Executor) { e.poolKey = poolKey }
}

// New constructs an Executor. policySource re-resolves the policy
// immediately before dispatch (§4.F step 3), never reusing the snapshot
// that admitted the command at ingest time.
func New(st *store.Store, policySource PolicySource, opts ...Option) *Executor {
	e := &Executor{
		store:    st,
		policy:   policySource,
		interval: 5 * time.Second,
		now:      time.Now,
		log:      slog.Default(),
		tracer:   otel.Tracer("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run blocks, ticking on the configured interval until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		e.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick claims and executes at most one command. If a previous tick is
// still in flight, this call is skipped (§5 per-loop re-entrancy guard);
// the claim step itself additionally guarantees at-most-one execution
// start even across multiple processes.
func (e *Executor) Tick(ctx context.Context) {
	if !e.mu.TryLock() {
		e.log.Debug("executor: tick skipped, previous tick still running")
		return
	}
	defer e.mu.Unlock()

	cmd, err := e.store.ClaimOldestApproved()
	if err != nil {
		e.log.Error("executor: claim failed", "error", err)
		return
	}
	if cmd == nil {
		return
	}

	ctx, span := e.tracer.Start(ctx, "executor.dispatch",
		trace.WithAttributes(
			attribute.String("cmd.id", cmd.CmdID),
			attribute.String("cmd.kind", cmd.ParsedKind),
		))
	defer span.End()

	if err := e.execute(ctx, cmd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if failErr := e.store.TransitionCommand(cmd.CmdID, store.StatusFailed, "", err.Error()); failErr != nil {
			e.log.Error("executor: failed to record failure", "cmd_id", cmd.CmdID, "error", failErr)
		}
	}
}

func (e *Executor) execute(ctx context.Context, cmd *store.Command) error {
	var parsed command.Command
	if len(cmd.ParsedJSON) > 0 {
		if err := json.Unmarshal(cmd.ParsedJSON, &parsed); err != nil {
			return fmt.Errorf("decode parsed payload: %w", err)
		}
	}
	parsed.Kind = command.Kind(cmd.ParsedKind)

	p, err := e.policy(cmd.DocID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	spend, err := e.store.DailySpendUSDC(cmd.DocID)
	if err != nil {
		return fmt.Errorf("load daily spend: %w", err)
	}
	if decision := policy.Evaluate(p, &parsed, policy.EvalContext{DailySpendUSDC: spend}); !decision.Allowed {
		return e.store.TransitionCommand(cmd.CmdID, store.StatusFailed, "", "policy denied at dispatch: "+decision.Reason)
	}

	dispatchCtx, dispatchSpan := e.tracer.Start(ctx, "executor.dispatch_kind",
		trace.WithAttributes(attribute.String("cmd.kind", string(parsed.Kind))))
	result, txIDs, err := e.dispatch(dispatchCtx, cmd, &parsed)
	dispatchSpan.End()
	if err != nil {
		return err
	}

	for _, txID := range txIDs {
		if err := e.store.AppendTxID(cmd.CmdID, txID); err != nil {
			return fmt.Errorf("record tx id: %w", err)
		}
	}
	return e.store.TransitionCommand(cmd.CmdID, store.StatusExecuted, result, "")
}

func (e *Executor) dispatch(ctx context.Context, cmd *store.Command, parsed *command.Command) (result string, txIDs []string, err error) {
	switch parsed.Kind {
	case command.KindTreasury, command.KindStatus, command.KindPrice, command.KindTradeHistory, command.KindSessionStatus:
		return e.dispatchReadOnly(ctx, cmd, parsed)

	case command.KindSetup:
		return e.dispatchSetup(cmd)

	case command.KindSessionCreate:
		return e.dispatchSessionCreate(ctx, cmd)

	case command.KindSessionClose:
		return e.dispatchSessionClose(ctx, cmd)

	case command.KindSignerAdd:
		p := parsed.SignerAdd
		if err := e.store.UpsertSigner(cmd.DocID, p.Address, p.Weight); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("signer %s added with weight %d", p.Address, p.Weight), nil, nil

	case command.KindQuorum:
		if err := e.store.SetQuorum(cmd.DocID, parsed.Quorum.N); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("quorum set to %d", parsed.Quorum.N), nil, nil

	case command.KindPolicyENS:
		if err := e.store.SetPolicyENS(cmd.DocID, parsed.PolicyENS.Name); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("policy source set to ENS name %s", parsed.PolicyENS.Name), nil, nil

	case command.KindLimitBuy, command.KindLimitSell, command.KindMarketBuy, command.KindMarketSell:
		return e.dispatchOrder(ctx, cmd, parsed)

	case command.KindCancel:
		return e.dispatchCancel(ctx, cmd, parsed)

	case command.KindSettle:
		return e.dispatchSettle(ctx, cmd)

	case command.KindDeposit:
		return e.dispatchDeposit(ctx, cmd, parsed)

	case command.KindWithdraw:
		return e.dispatchWithdraw(ctx, cmd, parsed)

	case command.KindPayout:
		return e.dispatchPayout(ctx, cmd, parsed)

	case command.KindPayoutSplit:
		return e.dispatchPayoutSplit(ctx, cmd, parsed)

	case command.KindBridge:
		return e.dispatchBridge(ctx, cmd, parsed)

	case command.KindRebalance:
		return e.dispatchRebalance(ctx, cmd, parsed)

	case command.KindYellowSend:
		return e.dispatchYellowSend(ctx, cmd, parsed)

	case command.KindStopLoss, command.KindTakeProfit:
		return e.dispatchConditionalOrder(cmd, parsed)

	case command.KindSchedule:
		return e.dispatchSchedule(cmd, parsed)

	case command.KindCancelSchedule:
		if err := e.store.CancelSchedule(parsed.CancelSchedule.ScheduleID); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("schedule %s cancelled", parsed.CancelSchedule.ScheduleID), nil, nil

	case command.KindAlertThreshold:
		p := parsed.AlertThreshold
		if err := e.store.SetConfig(cmd.DocID, "ALERT_THRESHOLD_"+p.Coin, fmt.Sprintf("%v", p.Below)); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("alert threshold for %s set to %v", p.Coin, p.Below), nil, nil

	case command.KindAutoRebalance:
		on := "false"
		if parsed.AutoRebalance.On {
			on = "true"
		}
		if err := e.store.SetConfig(cmd.DocID, "AUTO_REBALANCE_ENABLED", on); err != nil {
			return "", nil, err
		}
		return "auto-rebalance toggled to " + on, nil, nil

	case command.KindTx, command.KindSign, command.KindConnect:
		return e.dispatchWalletRPC(ctx, cmd, parsed)

	case command.KindSweepYield:
		return e.dispatchSweepYield(ctx, cmd, parsed)

	default:
		return "", nil, fmt.Errorf("no dispatch handler for kind %s", parsed.Kind)
	}
}

func (e *Executor) dispatchReadOnly(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	switch parsed.Kind {
	case command.KindPrice:
		if e.orderbook == nil {
			return "", nil, fmt.Errorf("order book not configured")
		}
		q, err := e.orderbook.MidPrice(ctx, e.poolKey)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("mid=%.6f bid=%.6f ask=%.6f spread=%.6f", q.Mid, q.Bid, q.Ask, q.Spread), nil, nil
	case command.KindTradeHistory:
		trades, err := e.store.ListTrades(cmd.DocID)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%d trades on record", len(trades)), nil, nil
	case command.KindSessionStatus:
		if e.channel == nil {
			return "no state-channel backend configured", nil, nil
		}
		sess, err := e.store.GetChannelSession(cmd.DocID)
		if err != nil {
			return "no state-channel session exists", nil, nil
		}
		status, err := e.channel.GetSessionStatus(ctx, cmd.DocID, sess.SessionID)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("session %s status %s version %d", status.SessionID, status.Status, status.Version), nil, nil
	default:
		return "ok", nil, nil
	}
}

func (e *Executor) dispatchSetup(cmd *store.Command) (string, []string, error) {
	if e.wallets == nil {
		return "setup acknowledged, no wallet provisioner configured", nil, nil
	}
	evmAddr, suiAddr, err := e.wallets.EnsureWallet(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("provision wallet: %w", err)
	}
	if err := e.store.SetAddresses(cmd.DocID, evmAddr, suiAddr); err != nil {
		return "", nil, err
	}
	if err := e.store.SetConfig(cmd.DocID, "EVM_ADDRESS", evmAddr); err != nil {
		return "", nil, err
	}
	if err := e.store.SetConfig(cmd.DocID, "SUI_ADDRESS", suiAddr); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("wallet provisioned: evm=%s sui=%s", evmAddr, suiAddr), nil, nil
}

func (e *Executor) dispatchSessionCreate(ctx context.Context, cmd *store.Command) (string, []string, error) {
	if e.channel == nil {
		return "", nil, fmt.Errorf("state-channel backend not configured")
	}
	signers, err := e.store.ListSigners(cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	participants := make([]string, 0, len(signers))
	for _, s := range signers {
		participants = append(participants, s.Address)
	}
	definition, err := json.Marshal(struct {
		DocID        string   `json:"docId"`
		Participants []string `json:"participants"`
	}{cmd.DocID, participants})
	if err != nil {
		return "", nil, err
	}
	sess, err := e.channel.CreateAppSession(ctx, cmd.DocID, participants, definition)
	if err != nil {
		return "", nil, err
	}
	if err := e.store.UpsertChannelSession(cmd.DocID, sess.SessionID, definition, sess.Version, store.ChannelSessionOpen); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("state-channel session %s opened with %d participants", sess.SessionID, len(participants)), nil, nil
}

func (e *Executor) dispatchSessionClose(ctx context.Context, cmd *store.Command) (string, []string, error) {
	if e.channel == nil {
		return "", nil, fmt.Errorf("state-channel backend not configured")
	}
	sess, err := e.store.GetChannelSession(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("no state-channel session exists for document %s", cmd.DocID)
	}
	if err := e.channel.CloseAppSession(ctx, cmd.DocID, sess.SessionID); err != nil {
		return "", nil, err
	}
	if err := e.store.CloseChannelSession(cmd.DocID); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("state-channel session %s closed", sess.SessionID), nil, nil
}

func (e *Executor) dispatchOrder(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.orderbook == nil {
		return "", nil, fmt.Errorf("order book not configured")
	}
	if e.wallets == nil {
		return "", nil, fmt.Errorf("wallet provisioner not configured")
	}
	privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("load signing key: %w", err)
	}
	fill, err := e.orderbook.Execute(ctx, cmd.RawText, privKey, e.poolKey, "")
	if err != nil {
		return "", nil, err
	}
	if err := e.recordTrade(cmd, parsed, fill); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("order executed: tx=%s order=%s", fill.TxID, fill.OrderID), []string{fill.TxID}, nil
}

func (e *Executor) recordTrade(cmd *store.Command, parsed *command.Command, fill orderbook.Fill) error {
	side := store.TradeBuy
	var base string
	var qty float64
	switch parsed.Kind {
	case command.KindLimitBuy:
		base, qty = parsed.LimitOrder.Base, parsed.LimitOrder.Qty
	case command.KindLimitSell:
		side, base, qty = store.TradeSell, parsed.LimitOrder.Base, parsed.LimitOrder.Qty
	case command.KindMarketBuy:
		base, qty = parsed.MarketOrder.Base, parsed.MarketOrder.Qty
	case command.KindMarketSell:
		side, base, qty = store.TradeSell, parsed.MarketOrder.Base, parsed.MarketOrder.Qty
	default:
		return nil
	}
	price := fill.Price
	if price == 0 {
		q, err := e.orderbook.MidPrice(context.Background(), e.poolKey)
		if err == nil {
			price = q.Mid
		}
	}
	_ = base
	_, err := e.store.InsertTrade(uuid.NewString(), cmd.DocID, cmd.CmdID, side, qty, price, 0, fill.TxID)
	return err
}

func (e *Executor) dispatchCancel(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.orderbook == nil {
		return "", nil, fmt.Errorf("order book not configured")
	}
	if e.wallets == nil {
		return "", nil, fmt.Errorf("wallet provisioner not configured")
	}
	privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("load signing key: %w", err)
	}
	fill, err := e.orderbook.Execute(ctx, cmd.RawText, privKey, e.poolKey, "")
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("cancel requested for order %s", parsed.Cancel.OrderID), []string{fill.TxID}, nil
}

func (e *Executor) dispatchSettle(ctx context.Context, cmd *store.Command) (string, []string, error) {
	if e.orderbook == nil {
		return "", nil, fmt.Errorf("order book not configured")
	}
	if e.wallets == nil {
		return "", nil, fmt.Errorf("wallet provisioner not configured")
	}
	privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("load signing key: %w", err)
	}
	fill, err := e.orderbook.Execute(ctx, cmd.RawText, privKey, e.poolKey, "")
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("settled: tx=%s order=%s", fill.TxID, fill.OrderID), []string{fill.TxID}, nil
}

func (e *Executor) dispatchDeposit(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.orderbook == nil || e.wallets == nil {
		return "", nil, fmt.Errorf("order book or wallet provisioner not configured")
	}
	privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	txID, err := e.orderbook.Deposit(ctx, privKey, parsed.Deposit.Coin, parsed.Deposit.Amount)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("deposited %v %s", parsed.Deposit.Amount, parsed.Deposit.Coin), []string{txID}, nil
}

func (e *Executor) dispatchWithdraw(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.orderbook == nil || e.wallets == nil {
		return "", nil, fmt.Errorf("order book or wallet provisioner not configured")
	}
	privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	txID, err := e.orderbook.Withdraw(ctx, privKey, parsed.Withdraw.Coin, parsed.Withdraw.Amount)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("withdrew %v %s", parsed.Withdraw.Amount, parsed.Withdraw.Coin), []string{txID}, nil
}

func (e *Executor) dispatchPayout(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	p := parsed.Payout
	if e.nativeRail != nil && e.wallets != nil {
		privKey, err := e.wallets.PrivateKeyFor(cmd.DocID)
		if err != nil {
			return "", nil, err
		}
		txID, err := e.nativeRail.TransferUSDC(ctx, privKey, p.To, p.AmountUSDC)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("paid out %.2f USDC to %s", p.AmountUSDC, p.To), []string{txID}, nil
	}
	if e.managedRail == nil {
		return "", nil, fmt.Errorf("no payment rail configured")
	}
	walletID, err := e.managedRail.EnsureWallet(ctx, cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	res, err := e.managedRail.Payout(ctx, walletID, p.To, p.AmountUSDC)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("paid out %.2f USDC to %s via managed wallet (%s)", p.AmountUSDC, p.To, res.State), []string{res.ProviderTxID}, nil
}

func (e *Executor) dispatchPayoutSplit(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.managedRail == nil {
		return "", nil, fmt.Errorf("no managed payment rail configured")
	}
	p := parsed.PayoutSplit
	walletID, err := e.managedRail.EnsureWallet(ctx, cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	var txIDs []string
	for _, r := range p.Recipients {
		amount := p.AmountUSDC * r.Pct / 100
		res, err := e.managedRail.Payout(ctx, walletID, r.Address, amount)
		if err != nil {
			return "", nil, err
		}
		txIDs = append(txIDs, res.ProviderTxID)
	}
	return fmt.Sprintf("split payout of %.2f USDC across %d recipients", p.AmountUSDC, len(p.Recipients)), txIDs, nil
}

func (e *Executor) dispatchBridge(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.managedRail == nil {
		return "", nil, fmt.Errorf("no managed payment rail configured")
	}
	p := parsed.Bridge
	walletID, err := e.managedRail.EnsureWallet(ctx, cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	res, err := e.managedRail.Bridge(ctx, walletID, cmd.DocID, p.AmountUSDC, p.From, p.To)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("bridged %.2f USDC from %s to %s (%s)", p.AmountUSDC, p.From, p.To, res.State), []string{res.ProviderTxID}, nil
}

func (e *Executor) dispatchRebalance(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.managedRail == nil {
		return "", nil, fmt.Errorf("no managed payment rail configured")
	}
	p := parsed.Rebalance
	walletID, err := e.managedRail.EnsureWallet(ctx, cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	res, err := e.managedRail.Bridge(ctx, walletID, cmd.DocID, p.AmountUSDC, p.From, p.To)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("rebalanced %.2f USDC from %s to %s (%s)", p.AmountUSDC, p.From, p.To, res.State), []string{res.ProviderTxID}, nil
}

func (e *Executor) dispatchYellowSend(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.channel == nil {
		return "", nil, fmt.Errorf("state-channel backend not configured")
	}
	sess, err := e.store.GetChannelSession(cmd.DocID)
	if err != nil {
		return "", nil, fmt.Errorf("no state-channel session exists for document %s", cmd.DocID)
	}
	p := parsed.YellowSend
	payload, err := json.Marshal(struct {
		To         string  `json:"to"`
		AmountUSDC float64 `json:"amountUsdc"`
	}{p.To, p.AmountUSDC})
	if err != nil {
		return "", nil, err
	}
	updated, err := e.channel.SubmitAppState(ctx, cmd.DocID, sess.SessionID, sess.Version+1, payload, nil)
	if err != nil {
		return "", nil, err
	}
	if err := e.store.UpdateChannelSessionVersion(cmd.DocID, updated.Version); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("sent %.2f USDC to %s over state channel", p.AmountUSDC, p.To), nil, nil
}

func (e *Executor) dispatchConditionalOrder(cmd *store.Command, parsed *command.Command) (string, []string, error) {
	kind := store.ConditionalStopLoss
	if parsed.Kind == command.KindTakeProfit {
		kind = store.ConditionalTakeProfit
	}
	p := parsed.Conditional
	if _, err := e.store.InsertConditionalOrder(uuid.NewString(), cmd.DocID, kind, p.Base, "USDC", p.Qty, p.TriggerPrice); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s armed for %v %s @ %v", parsed.Kind, p.Qty, p.Base, p.TriggerPrice), nil, nil
}

func (e *Executor) dispatchSchedule(cmd *store.Command, parsed *command.Command) (string, []string, error) {
	p := parsed.Schedule
	if _, err := e.store.InsertSchedule(uuid.NewString(), cmd.DocID, p.IntervalHours, p.Inner); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("schedule created, every %vh: %s", p.IntervalHours, p.Inner), nil, nil
}

func (e *Executor) dispatchWalletRPC(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	p := parsed.WalletRPC
	if p.Verb == "CONNECT" && e.channel != nil {
		if _, err := e.channel.AuthRequest(ctx, cmd.DocID); err != nil {
			return "", nil, err
		}
	}
	return fmt.Sprintf("%s relayed", p.Verb), nil, nil
}

func (e *Executor) dispatchSweepYield(ctx context.Context, cmd *store.Command, parsed *command.Command) (string, []string, error) {
	if e.managedRail == nil {
		return "", nil, fmt.Errorf("no managed payment rail configured")
	}
	walletID, err := e.managedRail.EnsureWallet(ctx, cmd.DocID)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("sweep-yield acknowledged for wallet %s", walletID), nil, nil
}
