package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasuryagent/internal/command"
)

func mustParse(t *testing.T, raw string) *command.Command {
	t.Helper()
	cmd, err := command.Parse(raw)
	require.NoError(t, err)
	return cmd
}

func TestDailyLimitDeniesOverage(t *testing.T) {
	p := Policy{DailyLimitUSDC: 100}
	cmd := mustParse(t, "DW PAYOUT 21 USDC TO 0x1111111111111111111111111111111111111111")
	d := Evaluate(p, cmd, EvalContext{DailySpendUSDC: 80})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "dailyLimitUsdc=100")
}

func TestDenyCommandsShortCircuitsBeforeOtherRules(t *testing.T) {
	p := Policy{DenyCommands: []string{"PAYOUT"}, MaxSingleTxUSDC: 1000}
	cmd := mustParse(t, "DW PAYOUT 5 USDC TO 0x1111111111111111111111111111111111111111")
	d := Evaluate(p, cmd, EvalContext{})
	assert.False(t, d.Allowed)
}

func TestOrderBookPairAndNotional(t *testing.T) {
	p := Policy{AllowedPairs: []string{"SUI/USDC"}, MaxNotionalUSDC: 100}
	allowed := mustParse(t, "DW LIMIT_BUY SUI 50 USDC @ 1.02")
	d := Evaluate(p, allowed, EvalContext{})
	assert.True(t, d.Allowed)

	tooLarge := mustParse(t, "DW LIMIT_BUY SUI 100 USDC @ 1.02")
	d = Evaluate(p, tooLarge, EvalContext{})
	assert.False(t, d.Allowed)

	wrongPair := mustParse(t, "DW LIMIT_BUY ETH 1 USDC @ 1.02")
	d = Evaluate(p, wrongPair, EvalContext{})
	assert.False(t, d.Allowed)
}

func TestPayoutAllowlist(t *testing.T) {
	p := Policy{PayoutAllowlist: []string{"0x1111111111111111111111111111111111111111"}}
	ok := mustParse(t, "DW PAYOUT 5 USDC TO 0x1111111111111111111111111111111111111111")
	assert.True(t, Evaluate(p, ok, EvalContext{}).Allowed)

	bad := mustParse(t, "DW PAYOUT 5 USDC TO 0x2222222222222222222222222222222222222222")
	assert.False(t, Evaluate(p, bad, EvalContext{}).Allowed)
}

func TestBridgeChainsAndFlag(t *testing.T) {
	disallowed := false
	p := Policy{AllowedChains: []string{"ETH", "SUI"}, BridgeAllowed: &disallowed}
	cmd := mustParse(t, "DW BRIDGE 10 USDC FROM ETH TO SUI")
	d := Evaluate(p, cmd, EvalContext{})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "bridgeAllowed")
}

func TestScheduleIntervalCap(t *testing.T) {
	p := Policy{MaxScheduleIntervalHours: 12}
	cmd := mustParse(t, "DW SCHEDULE EVERY 24h: LIMIT_BUY SUI 1 USDC @ 1.00")
	d := Evaluate(p, cmd, EvalContext{})
	assert.False(t, d.Allowed)
}

func TestEvaluateIsPure(t *testing.T) {
	p := Policy{DailyLimitUSDC: 100}
	cmd := mustParse(t, "DW PAYOUT 21 USDC TO 0x1111111111111111111111111111111111111111")
	ctx := EvalContext{DailySpendUSDC: 80}
	first := Evaluate(p, cmd, ctx)
	second := Evaluate(p, cmd, ctx)
	assert.Equal(t, first, second)
}
