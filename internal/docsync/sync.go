// Package docsync implements the periodic loop that reconciles a
// document's human-editable Commands table with the Store's durable
// command pipeline (§4.D).
package docsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasuryagent/internal/backend/docprovider"
	"treasuryagent/internal/command"
	"treasuryagent/internal/policy"
	"treasuryagent/internal/store"
)

// PolicySource resolves the currently-effective policy for a document,
// whatever its configured source (static YAML file or ENS/DNS resolver).
type PolicySource func(docID string) (policy.Policy, error)

// Syncer owns the Document Sync loop. At most one tick runs at a time per
// process; within a tick, documents are processed sequentially (§4.D).
type Syncer struct {
	store    *store.Store
	provider docprovider.Provider
	policy   PolicySource
	docIDs   func() []string
	baseURL  string
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

// Option configures a Syncer at construction time.
type Option func(*Syncer)

// WithInterval overrides the default 5s poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) { s.interval = d }
}

// WithClock overrides the wall-clock now() used to timestamp activity.
func WithClock(clock func() time.Time) Option {
	return func(s *Syncer) { s.now = clock }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// New constructs a Syncer. docIDs returns the current set of tracked
// documents on every tick, so newly discovered documents are picked up
// without a restart.
func New(st *store.Store, provider docprovider.Provider, policySource PolicySource, docIDs func() []string, baseURL string, opts ...Option) *Syncer {
	s := &Syncer{
		store:    st,
		provider: provider,
		policy:   policySource,
		docIDs:   docIDs,
		baseURL:  baseURL,
		interval: 5 * time.Second,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, ticking on the configured interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass over every tracked document. If a
// previous tick is still running, this call is skipped, not queued
// (§5 per-loop re-entrancy guard).
func (s *Syncer) Tick(ctx context.Context) {
	if !s.mu.TryLock() {
		s.log.Debug("docsync: tick skipped, previous tick still running")
		return
	}
	defer s.mu.Unlock()

	for _, docID := range s.docIDs() {
		if err := s.tickDocument(ctx, docID); err != nil {
			s.log.Error("docsync: tick failed", "doc_id", docID, "error", err)
		}
	}
}

func (s *Syncer) tickDocument(ctx context.Context, docID string) error {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	handle, err := s.provider.DiscoverTable(ctx, docID)
	if err != nil {
		return fmt.Errorf("discover table: %w", err)
	}
	rows, err := s.provider.ReadRows(ctx, docID, handle)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}

	projection := make([]Row, len(rows))
	for i, r := range rows {
		projection[i] = Row{Index: r.Index, Text: r.Text}
	}
	newHash := digest(projection)
	if newHash == doc.LastUserHash {
		return nil
	}

	p, err := s.policy(docID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	cellApprovalEnabled, _, err := s.store.GetConfig(docID, "CELL_APPROVAL_ENABLED")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cellApprovalOn := cellApprovalEnabled == "true"

	signers, err := s.store.ListSigners(docID)
	if err != nil {
		return fmt.Errorf("load signers: %w", err)
	}

	out := make([]docprovider.Row, 0, len(rows))
	for _, row := range rows {
		updated, err := s.reconcileRow(docID, row, p, cellApprovalOn, doc.Quorum, len(signers))
		if err != nil {
			return fmt.Errorf("reconcile row %d: %w", row.Index, err)
		}
		out = append(out, updated)
	}

	if err := s.provider.WriteRows(ctx, docID, handle, out); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return s.store.SetLastUserHash(docID, newHash)
}

func (s *Syncer) reconcileRow(docID string, row docprovider.Row, p policy.Policy, cellApprovalOn bool, quorum, signerCount int) (docprovider.Row, error) {
	if row.ID == "" {
		return s.ingestNewRow(docID, row, p)
	}

	cmd, err := s.store.GetCommand(row.ID)
	if err != nil {
		return row, err
	}

	if cellApprovalOn && cmd.Status == store.StatusPendingApproval && (quorum <= 1 || signerCount == 0) {
		if decision, ok := cellDecision(row.Status); ok {
			if err := s.applyCellDecision(docID, cmd.CmdID, decision); err != nil {
				return row, err
			}
			cmd, err = s.store.GetCommand(row.ID)
			if err != nil {
				return row, err
			}
		}
	}

	if row.Text == cmd.RawText {
		return s.backfillApprovalURL(row, cmd), nil
	}

	if isNonTerminalPending(cmd.Status) {
		return s.reparseRow(docID, row, cmd, p)
	}

	// Past approval: the stored row is authoritative, edits are rejected.
	row.Status = string(cmd.Status)
	row.Result = cmd.Result
	row.Error = "Command locked after approval/execution"
	return row, nil
}

func (s *Syncer) ingestNewRow(docID string, row docprovider.Row, p policy.Policy) (docprovider.Row, error) {
	recognized, parseErr := command.Parse(row.Text)
	if parseErr != nil {
		// a blank row is left untouched; other unrecognised text is stored
		// as an INVALID command carrying the parse error.
		if row.Text == "" {
			return row, nil
		}
		cmdID := uuid.NewString()
		if _, err := s.store.InsertCommand(cmdID, docID, row.Text, nil, "", store.StatusInvalid); err != nil {
			return row, err
		}
		row.ID = cmdID
		row.Status = string(store.StatusInvalid)
		row.Error = parseErr.Error()
		return row, nil
	}

	cmdID := uuid.NewString()
	spend, err := s.store.DailySpendUSDC(docID)
	if err != nil {
		return row, err
	}
	decision := policy.Evaluate(p, recognized, policy.EvalContext{DailySpendUSDC: spend})
	if !decision.Allowed {
		if _, err := s.store.InsertCommand(cmdID, docID, row.Text, recognized, string(recognized.Kind), store.StatusRejectedPolicy); err != nil {
			return row, err
		}
		row.ID = cmdID
		row.Status = string(store.StatusRejectedPolicy)
		row.Error = decision.Reason
		return row, nil
	}

	status := store.StatusPendingApproval
	if recognized.Kind == command.KindSetup {
		status = store.StatusApproved
	}
	if _, err := s.store.InsertCommand(cmdID, docID, row.Text, recognized, string(recognized.Kind), status); err != nil {
		return row, err
	}
	row.ID = cmdID
	row.Status = string(status)
	if status == store.StatusPendingApproval {
		row.ApprovalURL = s.approvalURL(docID, cmdID)
	}
	return row, nil
}

func (s *Syncer) reparseRow(docID string, row docprovider.Row, cmd *store.Command, p policy.Policy) (docprovider.Row, error) {
	recognized, parseErr := command.Parse(row.Text)
	if parseErr != nil {
		if err := s.store.UpdateParsed(cmd.CmdID, row.Text, nil, "", store.StatusInvalid); err != nil {
			return row, err
		}
		row.Status = string(store.StatusInvalid)
		row.Error = parseErr.Error()
		return row, nil
	}
	_ = p
	if err := s.store.UpdateParsed(cmd.CmdID, row.Text, recognized, string(recognized.Kind), store.StatusPendingApproval); err != nil {
		return row, err
	}
	row.Status = string(store.StatusPendingApproval)
	row.Error = ""
	row.ApprovalURL = s.approvalURL(docID, cmd.CmdID)
	return row, nil
}

func (s *Syncer) backfillApprovalURL(row docprovider.Row, cmd *store.Command) docprovider.Row {
	row.Status = string(cmd.Status)
	row.Result = cmd.Result
	row.Error = cmd.Error
	if cmd.Status == store.StatusPendingApproval && row.ApprovalURL == "" {
		row.ApprovalURL = s.approvalURL(cmd.DocID, cmd.CmdID)
	}
	return row
}

func (s *Syncer) approvalURL(docID, cmdID string) string {
	return strings.TrimRight(s.baseURL, "/") + "/approve/" + docID + "/" + cmdID
}

func isNonTerminalPending(status store.CommandStatus) bool {
	switch status {
	case store.StatusInvalid, store.StatusPendingApproval:
		return true
	}
	return false
}

func cellDecision(statusCell string) (store.ApprovalDecision, bool) {
	switch strings.ToUpper(strings.TrimSpace(statusCell)) {
	case "APPROVED":
		return store.DecisionApprove, true
	case "REJECTED":
		return store.DecisionReject, true
	}
	return "", false
}

func (s *Syncer) applyCellDecision(docID, cmdID string, decision store.ApprovalDecision) error {
	if decision == store.DecisionReject {
		return s.store.TransitionCommand(cmdID, store.StatusRejected, "", "rejected via cell edit")
	}
	return s.store.TransitionCommand(cmdID, store.StatusApproved, "", "")
}
