// Package metrics exposes the Prometheus collectors backing the
// /api/metrics/:docId surface (§6): total approvals recorded, on-chain
// approval transactions avoided by off-chain quorum, and the last
// approval's command text, all segmented per document.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the per-document counter view returned by the HTTP handler.
type Snapshot struct {
	TotalApprovals    int
	OnChainTxsAvoided int
	LastApprovalText  string
}

type docCounters struct {
	totalApprovals    int
	onChainTxsAvoided int
	lastApprovalText  string
}

// Agent wraps the Prometheus collectors tracking approval-coordinator
// activity, plus a plain in-memory tally per document so the JSON
// metrics endpoint doesn't need to scrape its own registry back out.
type Agent struct {
	approvalsTotal *prometheus.CounterVec
	onChainAvoided *prometheus.CounterVec
	lastApprovalAt *prometheus.GaugeVec

	mu    sync.Mutex
	byDoc map[string]*docCounters
}

var (
	registryOnce sync.Once
	registry     *Agent
)

// Registry returns the process-wide metrics registry, constructing and
// registering its collectors on first use.
func Registry() *Agent {
	registryOnce.Do(func() {
		registry = &Agent{
			approvalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasuryagent",
				Name:      "approvals_total",
				Help:      "Count of approval decisions recorded per document.",
			}, []string{"doc_id", "decision"}),
			onChainAvoided: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasuryagent",
				Name:      "onchain_approval_txs_avoided_total",
				Help:      "Count of quorum approvals resolved off-chain instead of an on-chain approval transaction.",
			}, []string{"doc_id"}),
			lastApprovalAt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "treasuryagent",
				Name:      "last_approval_unix_seconds",
				Help:      "Unix timestamp of the most recent approval decision per document.",
			}, []string{"doc_id"}),
			byDoc: make(map[string]*docCounters),
		}
		prometheus.MustRegister(
			registry.approvalsTotal,
			registry.onChainAvoided,
			registry.lastApprovalAt,
		)
	})
	return registry
}

func (a *Agent) counters(docID string) *docCounters {
	c, ok := a.byDoc[docID]
	if !ok {
		c = &docCounters{}
		a.byDoc[docID] = c
	}
	return c
}

// RecordApproval increments the approval counter and remembers the
// decided command's raw text as the document's "last approval".
func (a *Agent) RecordApproval(docID, decision, rawText string, atUnix int64) {
	if a == nil {
		return
	}
	a.approvalsTotal.WithLabelValues(docID, decision).Inc()
	a.lastApprovalAt.WithLabelValues(docID).Set(float64(atUnix))

	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.counters(docID)
	c.totalApprovals++
	c.lastApprovalText = rawText
}

// RecordOnChainAvoided increments the off-chain-quorum counter: one more
// approval that reached quorum without needing an on-chain transaction.
func (a *Agent) RecordOnChainAvoided(docID string) {
	if a == nil {
		return
	}
	a.onChainAvoided.WithLabelValues(docID).Inc()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters(docID).onChainTxsAvoided++
}

// Snapshot returns the current counters for one document.
func (a *Agent) Snapshot(docID string) Snapshot {
	if a == nil {
		return Snapshot{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.byDoc[docID]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		TotalApprovals:    c.totalApprovals,
		OnChainTxsAvoided: c.onChainTxsAvoided,
		LastApprovalText:  c.lastApprovalText,
	}
}
