package command

import (
	"fmt"
	"regexp"
	"strings"
)

// recognizeNaturalLanguage matches a handful of common phrasings and
// rewrites them to the canonical `DW ...` form Parse expects. It does not
// itself validate arguments — the canonical parse does that, so an
// unparseable match still surfaces the same error a malformed canonical
// line would.
func recognizeNaturalLanguage(line string) (string, bool) {
	for _, r := range nlRecognizers {
		if canonical, ok := r(line); ok {
			return canonical, true
		}
	}
	return "", false
}

var nlRecognizers = []func(string) (string, bool){
	recognizeBuy,
	recognizeSend,
	recognizeBridgeNL,
	recognizeCancelNL,
	recognizeStopLossNL,
	recognizeWalletURI,
}

var buyRe = regexp.MustCompile(`(?i)^buy\s+([0-9.]+)\s+([a-zA-Z]+)\s+at\s+([0-9.]+)$`)

// "buy N SUI at P" -> DW LIMIT_BUY SUI N USDC @ P
func recognizeBuy(line string) (string, bool) {
	m := buyRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("DW LIMIT_BUY %s %s USDC @ %s", strings.ToUpper(m[2]), m[1], m[3]), true
}

var sendRe = regexp.MustCompile(`(?i)^send\s+([0-9.]+)\s+usdc\s+to\s+(0x[0-9a-fA-F]{40})$`)

// "send N USDC to 0x..." -> DW PAYOUT N USDC TO 0x...
func recognizeSend(line string) (string, bool) {
	m := sendRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("DW PAYOUT %s USDC TO %s", m[1], m[2]), true
}

var bridgeNLRe = regexp.MustCompile(`(?i)^bridge\s+([0-9.]+)\s+usdc\s+from\s+([a-zA-Z]+)\s+to\s+([a-zA-Z]+)$`)

// "bridge N USDC from X to Y" -> DW BRIDGE N USDC FROM X TO Y
func recognizeBridgeNL(line string) (string, bool) {
	m := bridgeNLRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("DW BRIDGE %s USDC FROM %s TO %s", m[1], strings.ToUpper(m[2]), strings.ToUpper(m[3])), true
}

var cancelNLRe = regexp.MustCompile(`(?i)^cancel\s+(\S+)$`)

// "cancel ID" -> DW CANCEL ID
func recognizeCancelNL(line string) (string, bool) {
	m := cancelNLRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("DW CANCEL %s", m[1]), true
}

var stopLossNLRe = regexp.MustCompile(`(?i)^stop\s+loss\s+([a-zA-Z]+)\s+([0-9.]+)\s+@\s*([0-9.]+)$`)

// "stop loss BASE N @ P" -> DW STOP_LOSS BASE N @ P
func recognizeStopLossNL(line string) (string, bool) {
	m := stopLossNLRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("DW STOP_LOSS %s %s @ %s", strings.ToUpper(m[1]), m[2], m[3]), true
}

var walletURIRe = regexp.MustCompile(`(?i)^wc:\S+$`)

// a pasted WalletConnect URI -> DW CONNECT wc:...
func recognizeWalletURI(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !walletURIRe.MatchString(trimmed) {
		return "", false
	}
	return "DW CONNECT " + trimmed, true
}
