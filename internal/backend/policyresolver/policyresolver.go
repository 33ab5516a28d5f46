// Package policyresolver resolves a document's POLICY_ENS name into a
// Policy by looking up a TXT record, with a short-lived cache so a busy
// document does not re-resolve on every tick.
package policyresolver

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"treasuryagent/internal/policy"
)

// Resolver looks up policy documents published as DNS TXT records under
// an ENS-style name, e.g. "_policy.treasury.example.eth".
type Resolver struct {
	dnsServer string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	policy    *policy.Policy
	expiresAt time.Time
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithClock overrides the wall clock used for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.now = clock }
}

// New constructs a Resolver that queries dnsServer (host:port) directly,
// caching results for ttl.
func New(dnsServer string, ttl time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		dnsServer: dnsServer,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetPolicy resolves ensName to a Policy, or returns (nil, nil) if no TXT
// record published a recognised policy document.
func (r *Resolver) GetPolicy(ensName string) (*policy.Policy, error) {
	name := strings.ToLower(strings.TrimSpace(ensName))
	if name == "" {
		return nil, fmt.Errorf("policyresolver: empty ens name")
	}

	r.mu.Lock()
	if entry, ok := r.cache[name]; ok && r.now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.policy, nil
	}
	r.mu.Unlock()

	raw, err := r.lookupTXT(name)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		r.store(name, nil)
		return nil, nil
	}

	p, err := policy.ParseYAML([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("policyresolver: invalid policy document for %s: %w", name, err)
	}
	r.store(name, p)
	return p, nil
}

func (r *Resolver) store(name string, p *policy.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = cacheEntry{policy: p, expiresAt: r.now().Add(r.ttl)}
}

func (r *Resolver) lookupTXT(name string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	resp, err := dns.Exchange(m, r.dnsServer)
	if err != nil {
		return "", fmt.Errorf("policyresolver: dns exchange for %s: %w", name, err)
	}
	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok && len(txt.Txt) > 0 {
			return strings.Join(txt.Txt, ""), nil
		}
	}
	return "", nil
}
