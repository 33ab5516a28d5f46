// Package store is the single-writer persistence layer for the treasury
// agent control plane. It wraps *gorm.DB; every mutation that must agree
// across rows runs inside one transaction.
package store

import "time"

// Document is the root entity: one per tracked document. Addresses are set
// once on SETUP and never change afterward.
type Document struct {
	DocID        string `gorm:"primaryKey;size:128"`
	DisplayName  string `gorm:"size:256"`
	EVMAddress   string `gorm:"size:42"`
	SuiAddress   string `gorm:"size:128"`
	PolicyENS    string `gorm:"size:256"`
	LastUserHash string `gorm:"size:64"`
	Quorum       int    `gorm:"not null;default:1"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CommandStatus is the closed set of states a Command moves through.
type CommandStatus string

const (
	StatusInvalid          CommandStatus = "INVALID"
	StatusPendingApproval  CommandStatus = "PENDING_APPROVAL"
	StatusRejectedPolicy   CommandStatus = "REJECTED_POLICY"
	StatusRejected         CommandStatus = "REJECTED"
	StatusApproved         CommandStatus = "APPROVED"
	StatusExecuting        CommandStatus = "EXECUTING"
	StatusExecuted         CommandStatus = "EXECUTED"
	StatusFailed           CommandStatus = "FAILED"
)

// Command is one row of the document's command table, durable once a
// cmd_id has been assigned by Document Sync.
type Command struct {
	CmdID      string        `gorm:"primaryKey;size:64"`
	DocID      string        `gorm:"index;size:128;not null"`
	RawText    string        `gorm:"size:2048"`
	ParsedJSON []byte        `gorm:"type:jsonb"`
	ParsedKind string        `gorm:"size:32;index"`
	Status     CommandStatus `gorm:"size:32;index"`
	Result     string        `gorm:"size:2048"`
	Error      string        `gorm:"size:2048"`
	TxIDs      []byte        `gorm:"type:jsonb"` // []string, append-only
	CreatedAt  time.Time     `gorm:"index"`
	UpdatedAt  time.Time     `gorm:"index"`
}

// Signer is a registered approver for a document.
type Signer struct {
	DocID   string `gorm:"primaryKey;size:128"`
	Address string `gorm:"primaryKey;size:42"`
	Weight  int    `gorm:"not null;default:1"`
}

// ApprovalDecision is APPROVE or REJECT.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "APPROVE"
	DecisionReject  ApprovalDecision = "REJECT"
)

// Approval records one signer's decision on one command. Cleared on every
// terminal transition of the parent command.
type Approval struct {
	DocID         string           `gorm:"primaryKey;size:128"`
	CmdID         string           `gorm:"primaryKey;size:64"`
	SignerAddress string           `gorm:"primaryKey;size:42"`
	Decision      ApprovalDecision `gorm:"size:16"`
	At            time.Time
}

// ChannelSessionStatus mirrors the lifecycle of an optional state-channel
// session backing a document.
type ChannelSessionStatus string

const (
	ChannelSessionOpen   ChannelSessionStatus = "OPEN"
	ChannelSessionClosed ChannelSessionStatus = "CLOSED"
)

// ChannelSession is the one-per-document off-chain state-channel session.
type ChannelSession struct {
	DocID         string `gorm:"primaryKey;size:128"`
	SessionID     string `gorm:"size:128;index"`
	Definition    []byte `gorm:"type:jsonb"`
	Version       uint64
	Status        ChannelSessionStatus `gorm:"size:16"`
	AllocationsJSON []byte             `gorm:"type:jsonb"`
	UpdatedAt     time.Time
}

// SessionKey is a per-signer delegated key used to co-sign state
// transitions on an approver's behalf.
type SessionKey struct {
	DocID               string `gorm:"primaryKey;size:128"`
	SignerAddress       string `gorm:"primaryKey;size:42"`
	SessionKeyAddress   string `gorm:"size:42"`
	EncryptedPrivateKey []byte `gorm:"type:bytea"`
	ExpiresAt           time.Time
	JWT                 string `gorm:"size:2048"`
}

// ScheduleStatus is ACTIVE or CANCELLED.
type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "ACTIVE"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// Schedule is a recurring fire-and-spawn rule, pre-approved at creation.
type Schedule struct {
	ScheduleID        string `gorm:"primaryKey;size:64"`
	DocID             string `gorm:"index;size:128;not null"`
	IntervalHours     float64
	InnerCommandText  string `gorm:"size:2048"`
	NextRunAt         time.Time `gorm:"index"`
	Status            ScheduleStatus `gorm:"size:16;index"`
	TotalRuns         int64
	LastRunAt         *time.Time
}

// ConditionalOrderKind is STOP_LOSS or TAKE_PROFIT.
type ConditionalOrderKind string

const (
	ConditionalStopLoss   ConditionalOrderKind = "STOP_LOSS"
	ConditionalTakeProfit ConditionalOrderKind = "TAKE_PROFIT"
)

// ConditionalOrderStatus tracks a conditional order through its one-shot
// lifecycle; triggered orders never re-arm.
type ConditionalOrderStatus string

const (
	ConditionalActive    ConditionalOrderStatus = "ACTIVE"
	ConditionalTriggered ConditionalOrderStatus = "TRIGGERED"
	ConditionalCancelled ConditionalOrderStatus = "CANCELLED"
)

// ConditionalOrder is a price-triggered rule that spawns an APPROVED
// market order when its condition is satisfied.
type ConditionalOrder struct {
	OrderID       string                 `gorm:"primaryKey;size:64"`
	DocID         string                 `gorm:"index;size:128;not null"`
	Kind          ConditionalOrderKind   `gorm:"size:16"`
	Base          string                 `gorm:"size:16"`
	Quote         string                 `gorm:"size:16"`
	TriggerPrice  float64
	Qty           float64
	Status        ConditionalOrderStatus `gorm:"size:16;index"`
	TriggeredCmdID string                `gorm:"size:64"`
}

// TradeSide is BUY or SELL.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// Trade is an append-only fill record driving P&L.
type Trade struct {
	TradeID  string    `gorm:"primaryKey;size:64"`
	DocID    string    `gorm:"index;size:128;not null"`
	CmdID    string    `gorm:"index;size:64"`
	Side     TradeSide `gorm:"size:8"`
	Qty      float64
	Price    float64
	Notional float64
	Fee      float64
	TxID     string `gorm:"size:128"`
	At       time.Time
}

// PricePoint is a single row per pair, overwritten on each oracle tick.
type PricePoint struct {
	Pair   string `gorm:"primaryKey;size:32"`
	Mid    float64
	Bid    float64
	Ask    float64
	Source string `gorm:"size:64"`
	At     time.Time
}

// ConfigEntry is a per-document key/value slot (addresses, policy source,
// feature flags).
type ConfigEntry struct {
	DocID string `gorm:"primaryKey;size:128"`
	Key   string `gorm:"primaryKey;size:128"`
	Value string `gorm:"size:4096"`
}

// DocumentSecrets is the single encrypted-secrets blob persisted per
// document (signing keys and anything else that must never be stored in
// the clear). The core treats Ciphertext as opaque; only the wallet
// provisioner knows how to open it.
type DocumentSecrets struct {
	DocID      string `gorm:"primaryKey;size:128"`
	Ciphertext []byte `gorm:"type:bytea"`
	Nonce      []byte `gorm:"type:bytea"`
	UpdatedAt  time.Time
}
