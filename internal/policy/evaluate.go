package policy

import (
	"fmt"

	"treasuryagent/internal/command"
)

// EvalContext carries the context inputs the Policy Engine needs beyond
// the command and policy themselves.
type EvalContext struct {
	DailySpendUSDC float64
}

// Decision is the Allow/Deny(reason) result of evaluating one command.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision       { return Decision{Allowed: true} }
func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluate runs the ordered rule set of §4.C against one command; the
// first failing rule wins and the rest are never consulted. Evaluate is a
// pure function: same inputs, same output, every time.
func Evaluate(p Policy, cmd *command.Command, ctx EvalContext) Decision {
	// Rule 1: denyCommands.
	if p.denies(string(cmd.Kind)) {
		return deny(fmt.Sprintf("command %s is explicitly denied by policy", cmd.Kind))
	}

	// Rule 2: order-book commands.
	if cmd.Kind.IsOrderBook() {
		if d := evaluateOrderBook(p, cmd); !d.Allowed {
			return d
		}
	}

	// Rule 3: value-moving commands.
	if cmd.Kind.IsValueMoving() {
		if d := evaluateValueMoving(p, cmd, ctx); !d.Allowed {
			return d
		}
	}

	// Rule 4: payout allowlist.
	if cmd.Kind == command.KindPayout || cmd.Kind == command.KindPayoutSplit {
		if d := evaluatePayoutAllowlist(p, cmd); !d.Allowed {
			return d
		}
	}

	// Rule 5: bridge/rebalance chain allowlist.
	if cmd.Kind == command.KindBridge || cmd.Kind == command.KindRebalance {
		if d := evaluateChains(p, cmd); !d.Allowed {
			return d
		}
	}

	// Rule 6: scheduling.
	if cmd.Kind == command.KindSchedule {
		if d := evaluateSchedule(p, cmd); !d.Allowed {
			return d
		}
	}

	return allow()
}

func evaluateOrderBook(p Policy, cmd *command.Command) Decision {
	var pair string
	var notional float64
	switch cmd.Kind {
	case command.KindLimitBuy, command.KindLimitSell:
		lo := cmd.LimitOrder
		pair = lo.Base + "/" + lo.Quote
		notional = lo.Qty * lo.Price
	case command.KindMarketBuy, command.KindMarketSell:
		mo := cmd.MarketOrder
		pair = mo.Base
		// market orders carry no quoted price in the command itself;
		// notional is bounded at dispatch time against the live mid.
	case command.KindStopLoss, command.KindTakeProfit:
		co := cmd.Conditional
		pair = co.Base
		notional = co.Qty * co.TriggerPrice
	}
	if pair != "" && !p.hasPair(pair) {
		return deny(fmt.Sprintf("pair %s is not in allowedPairs", pair))
	}
	if p.MaxNotionalUSDC > 0 && notional > p.MaxNotionalUSDC {
		return deny(fmt.Sprintf("notional %.4f exceeds maxNotionalUsdc=%.4f", notional, p.MaxNotionalUSDC))
	}
	return allow()
}

func valueMovingAmount(cmd *command.Command) float64 {
	switch cmd.Kind {
	case command.KindPayout:
		return cmd.Payout.AmountUSDC
	case command.KindPayoutSplit:
		return cmd.PayoutSplit.AmountUSDC
	case command.KindBridge:
		return cmd.Bridge.AmountUSDC
	case command.KindRebalance:
		return cmd.Rebalance.AmountUSDC
	case command.KindYellowSend:
		return cmd.YellowSend.AmountUSDC
	}
	return 0
}

func evaluateValueMoving(p Policy, cmd *command.Command, ctx EvalContext) Decision {
	amount := valueMovingAmount(cmd)
	if p.MaxSingleTxUSDC > 0 && amount > p.MaxSingleTxUSDC {
		return deny(fmt.Sprintf("amount %.4f exceeds maxSingleTxUsdc=%.4f", amount, p.MaxSingleTxUSDC))
	}
	if p.DailyLimitUSDC > 0 && ctx.DailySpendUSDC+amount > p.DailyLimitUSDC {
		return deny(fmt.Sprintf("dailySpendUsdc=%.4f + amount %.4f exceeds dailyLimitUsdc=%.4f", ctx.DailySpendUSDC, amount, p.DailyLimitUSDC))
	}
	return allow()
}

func evaluatePayoutAllowlist(p Policy, cmd *command.Command) Decision {
	var recipients []string
	switch cmd.Kind {
	case command.KindPayout:
		recipients = []string{cmd.Payout.To}
	case command.KindPayoutSplit:
		for _, r := range cmd.PayoutSplit.Recipients {
			recipients = append(recipients, r.Address)
		}
	}
	for _, addr := range recipients {
		if !p.allowsPayoutTo(addr) {
			return deny(fmt.Sprintf("recipient %s is not in payoutAllowlist", addr))
		}
	}
	return allow()
}

func evaluateChains(p Policy, cmd *command.Command) Decision {
	var from, to string
	switch cmd.Kind {
	case command.KindBridge:
		from, to = cmd.Bridge.From, cmd.Bridge.To
	case command.KindRebalance:
		from, to = cmd.Rebalance.From, cmd.Rebalance.To
	}
	if !p.hasChain(from) || !p.hasChain(to) {
		return deny(fmt.Sprintf("chain pair %s->%s is not in allowedChains", from, to))
	}
	if cmd.Kind == command.KindBridge && p.BridgeAllowed != nil && !*p.BridgeAllowed {
		return deny("bridgeAllowed is false")
	}
	return allow()
}

func evaluateSchedule(p Policy, cmd *command.Command) Decision {
	if p.SchedulingAllowed != nil && !*p.SchedulingAllowed {
		return deny("schedulingAllowed is false")
	}
	if p.MaxScheduleIntervalHours > 0 && cmd.Schedule.IntervalHours > p.MaxScheduleIntervalHours {
		return deny(fmt.Sprintf("interval %.4fh exceeds maxScheduleIntervalHours=%.4f", cmd.Schedule.IntervalHours, p.MaxScheduleIntervalHours))
	}
	return allow()
}
