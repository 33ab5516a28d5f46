// Package policy is the pure evaluator the agent runs a parsed command
// through at ingest and again immediately before dispatch.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is a declarative per-document rule set. Every field is optional;
// a zero value (nil slice, empty string, zero float) means "no
// constraint" for that rule.
type Policy struct {
	MaxNotionalUSDC          float64  `yaml:"maxNotionalUsdc"`
	MaxSingleTxUSDC          float64  `yaml:"maxSingleTxUsdc"`
	DailyLimitUSDC           float64  `yaml:"dailyLimitUsdc"`
	AllowedPairs             []string `yaml:"allowedPairs"`
	PayoutAllowlist          []string `yaml:"payoutAllowlist"`
	DenyCommands             []string `yaml:"denyCommands"`
	AllowedChains            []string `yaml:"allowedChains"`
	SchedulingAllowed        *bool    `yaml:"schedulingAllowed"`
	MaxScheduleIntervalHours float64  `yaml:"maxScheduleIntervalHours"`
	BridgeAllowed            *bool    `yaml:"bridgeAllowed"`
}

// Load reads a single document's policy from a YAML file on disk, the way
// payoutd.LoadPolicies reads its asset cap table.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open policy: %w", err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes a policy document from an in-memory byte slice, used
// both by Load and by the ENS policy resolver's TXT-record lookup.
func ParseYAML(raw []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}

func (p *Policy) hasPair(pair string) bool {
	if len(p.AllowedPairs) == 0 {
		return true
	}
	pair = strings.ToUpper(pair)
	for _, allowed := range p.AllowedPairs {
		if strings.ToUpper(allowed) == pair {
			return true
		}
	}
	return false
}

func (p *Policy) hasChain(chain string) bool {
	if len(p.AllowedChains) == 0 {
		return true
	}
	chain = strings.ToUpper(chain)
	for _, allowed := range p.AllowedChains {
		if strings.ToUpper(allowed) == chain {
			return true
		}
	}
	return false
}

func (p *Policy) allowsPayoutTo(address string) bool {
	if len(p.PayoutAllowlist) == 0 {
		return true
	}
	address = strings.ToLower(address)
	for _, allowed := range p.PayoutAllowlist {
		if strings.ToLower(allowed) == address {
			return true
		}
	}
	return false
}

func (p *Policy) denies(tag string) bool {
	tag = strings.ToUpper(tag)
	for _, d := range p.DenyCommands {
		if strings.ToUpper(d) == tag {
			return true
		}
	}
	return false
}
