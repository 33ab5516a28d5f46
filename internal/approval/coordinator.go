// Package approval implements the Approval Coordinator (§4.E): the
// synchronous entry point invoked by the HTTP approval endpoint, never by
// a loop.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"treasuryagent/internal/backend/statechannel"
	"treasuryagent/internal/store"
)

// ConflictError is returned for illegal transitions and missing
// preconditions; callers map it to HTTP 409.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// Progress reports the weight-and-quorum state for a still-pending
// command.
type Progress struct {
	Status         store.CommandStatus
	ApprovedWeight int
	Quorum         int
}

// Coordinator owns the approval decision path. The state-channel backend
// is optional; when nil, the coordinator never attempts a co-signed
// submission.
type Coordinator struct {
	store   *store.Store
	channel statechannel.Backend
	now     func() time.Time
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithClock overrides the wall-clock now() used to timestamp decisions.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.now = clock }
}

// WithChannel installs a state-channel back-end; when present, quorum
// transitions to APPROVED (other than SESSION_CREATE) must first submit a
// co-signed state update.
func WithChannel(ch statechannel.Backend) Option {
	return func(c *Coordinator) { c.channel = ch }
}

// New constructs a Coordinator.
func New(st *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: st, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide applies one approval request, per the 6-step contract of §4.E.
// signer must already be authenticated by the caller; the coordinator
// trusts that session out-of-band.
func (c *Coordinator) Decide(ctx context.Context, docID, cmdID, signerAddress string, decision store.ApprovalDecision) (Progress, error) {
	if _, err := c.store.GetSigner(docID, signerAddress); err != nil {
		return Progress{}, &ConflictError{Reason: fmt.Sprintf("signer %s is not registered for document %s", signerAddress, docID)}
	}

	cmd, err := c.store.GetCommand(cmdID)
	if err != nil {
		return Progress{}, &ConflictError{Reason: fmt.Sprintf("unknown command %s", cmdID)}
	}
	if cmd.Status != store.StatusPendingApproval {
		return Progress{}, &ConflictError{Reason: fmt.Sprintf("command %s is %s, not PENDING_APPROVAL", cmdID, cmd.Status)}
	}

	if err := c.store.RecordApproval(docID, cmdID, signerAddress, decision); err != nil {
		return Progress{}, err
	}

	if decision == store.DecisionReject {
		if err := c.store.TransitionCommand(cmdID, store.StatusRejected, "", "rejected by "+signerAddress); err != nil {
			return Progress{}, err
		}
		return Progress{Status: store.StatusRejected}, nil
	}

	doc, err := c.store.GetDocument(docID)
	if err != nil {
		return Progress{}, err
	}
	approvedWeight, err := c.store.ApprovedWeight(docID, cmdID)
	if err != nil {
		return Progress{}, err
	}
	if approvedWeight < doc.Quorum {
		return Progress{Status: store.StatusPendingApproval, ApprovedWeight: approvedWeight, Quorum: doc.Quorum}, nil
	}

	if c.channel != nil && cmd.ParsedKind != "SESSION_CREATE" {
		if err := c.submitChannelTransition(ctx, doc, cmd); err != nil {
			return Progress{}, err
		}
	}

	if err := c.store.TransitionCommand(cmdID, store.StatusApproved, "", ""); err != nil {
		return Progress{}, err
	}
	return Progress{Status: store.StatusApproved, ApprovedWeight: approvedWeight, Quorum: doc.Quorum}, nil
}

func (c *Coordinator) submitChannelTransition(ctx context.Context, doc *store.Document, cmd *store.Command) error {
	sess, err := c.lookupSession(doc.DocID)
	if err != nil {
		return &ConflictError{Reason: fmt.Sprintf("no state-channel session exists for document %s", doc.DocID)}
	}

	approvals, err := c.store.ListApprovals(cmd.CmdID)
	if err != nil {
		return err
	}
	coSignatures := make(map[string][]byte, len(approvals))
	for _, a := range approvals {
		if a.Decision != store.DecisionApprove {
			continue
		}
		key, err := c.store.GetSessionKeyRow(doc.DocID, a.SignerAddress)
		if err != nil {
			return &ConflictError{Reason: fmt.Sprintf("missing session key for signer %s", a.SignerAddress)}
		}
		if c.now().After(key.ExpiresAt) {
			return &ConflictError{Reason: fmt.Sprintf("session key for signer %s has expired", a.SignerAddress)}
		}
		coSignatures[a.SignerAddress] = []byte(key.JWT)
	}

	payload, err := json.Marshal(channelTransitionPayload{
		DocID:     doc.DocID,
		CmdID:     cmd.CmdID,
		RawText:   cmd.RawText,
		Approvers: approverAddresses(approvals),
		At:        c.now(),
	})
	if err != nil {
		return err
	}

	updated, err := c.channel.SubmitAppState(ctx, doc.DocID, sess.SessionID, sess.Version+1, payload, coSignatures)
	if err != nil {
		return err
	}
	return c.store.UpdateChannelSessionVersion(doc.DocID, updated.Version)
}

func (c *Coordinator) lookupSession(docID string) (*store.ChannelSession, error) {
	return c.store.GetChannelSession(docID)
}

type channelTransitionPayload struct {
	DocID     string    `json:"docId"`
	CmdID     string    `json:"cmdId"`
	RawText   string    `json:"rawText"`
	Approvers []string  `json:"approvers"`
	At        time.Time `json:"at"`
}

func approverAddresses(approvals []store.Approval) []string {
	var out []string
	for _, a := range approvals {
		if a.Decision == store.DecisionApprove {
			out = append(out, a.SignerAddress)
		}
	}
	return out
}
