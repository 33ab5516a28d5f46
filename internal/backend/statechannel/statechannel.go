// Package statechannel declares the abstract state-channel capability and
// a client speaking the NitroRPC/0.4 JSON-RPC protocol over a websocket
// transport (§6).
package statechannel

import (
	"context"
	"time"
)

// SessionStatus mirrors store.ChannelSessionStatus without importing the
// store package, keeping this a leaf dependency.
type SessionStatus string

const (
	StatusOpen   SessionStatus = "OPEN"
	StatusClosed SessionStatus = "CLOSED"
)

// AuthChallenge is returned by AuthRequest and consumed by AuthVerify.
type AuthChallenge struct {
	Challenge []byte
	ExpiresAt time.Time
}

// AppSession is the opaque versioned off-chain agreement maintained with
// the back-end.
type AppSession struct {
	SessionID string
	Version   uint64
	Status    SessionStatus
}

// Backend is the capability consumed by the Approval Coordinator (§4.E)
// and the Executor (§4.F). The protocol label is stored as an opaque
// string ("NitroRPC/0.4") and never interpreted by core logic.
type Backend interface {
	AuthRequest(ctx context.Context, signerAddress string) (AuthChallenge, error)
	AuthVerify(ctx context.Context, signerAddress string, signature []byte) error
	CreateAppSession(ctx context.Context, docID string, participants []string, definition []byte) (AppSession, error)
	SubmitAppState(ctx context.Context, docID, sessionID string, version uint64, statePayload []byte, coSignatures map[string][]byte) (AppSession, error)
	CloseAppSession(ctx context.Context, docID, sessionID string) error
	GetSessionStatus(ctx context.Context, docID, sessionID string) (AppSession, error)
}
