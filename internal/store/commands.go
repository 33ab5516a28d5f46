package store

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertCommand creates a new command row. parsed may be nil (status must
// then be INVALID).
func (s *Store) InsertCommand(cmdID, docID, rawText string, parsed any, parsedKind string, status CommandStatus) (*Command, error) {
	var parsedJSON []byte
	if parsed != nil {
		b, err := json.Marshal(parsed)
		if err != nil {
			return nil, err
		}
		parsedJSON = b
	}
	cmd := Command{
		CmdID:      cmdID,
		DocID:      docID,
		RawText:    rawText,
		ParsedJSON: parsedJSON,
		ParsedKind: parsedKind,
		Status:     status,
		TxIDs:      []byte("[]"),
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	if err := s.db.Create(&cmd).Error; err != nil {
		return nil, err
	}
	return &cmd, nil
}

// GetCommand loads one command by id.
func (s *Store) GetCommand(cmdID string) (*Command, error) {
	var cmd Command
	if err := s.db.First(&cmd, "cmd_id = ?", cmdID).Error; err != nil {
		return nil, err
	}
	return &cmd, nil
}

// ListCommands returns every command for a document, oldest first.
func (s *Store) ListCommands(docID string) ([]Command, error) {
	var cmds []Command
	if err := s.db.Where("doc_id = ?", docID).Order("created_at asc, cmd_id asc").Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}

// ListCommandsByStatus returns every command for a document in a given
// status, oldest created_at first, ties broken lexicographically by
// cmd_id (§5 ordering guarantee).
func (s *Store) ListCommandsByStatus(docID string, status CommandStatus) ([]Command, error) {
	var cmds []Command
	if err := s.db.Where("doc_id = ? AND status = ?", docID, status).
		Order("created_at asc, cmd_id asc").Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}

// TransitionCommand moves a command to a new status, optionally recording
// result/error text, inside its own transaction. Approvals for the command
// are cleared whenever newStatus is terminal or APPROVED, matching the
// Approval Coordinator's contract (§4.E).
func (s *Store) TransitionCommand(cmdID string, newStatus CommandStatus, result, errText string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     newStatus,
			"updated_at": s.now(),
		}
		if result != "" {
			updates["result"] = result
		}
		if errText != "" {
			updates["error"] = errText
		}
		if err := tx.Model(&Command{}).Where("cmd_id = ?", cmdID).Updates(updates).Error; err != nil {
			return err
		}
		if clearsApprovals(newStatus) {
			if err := tx.Where("cmd_id = ?", cmdID).Delete(&Approval{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func clearsApprovals(status CommandStatus) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusRejectedPolicy, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// UpdateParsed re-parses and replaces the parsed payload on an edited row,
// resetting status and clearing any previous error.
func (s *Store) UpdateParsed(cmdID, rawText string, parsed any, parsedKind string, status CommandStatus) error {
	var parsedJSON []byte
	if parsed != nil {
		b, err := json.Marshal(parsed)
		if err != nil {
			return err
		}
		parsedJSON = b
	}
	return s.db.Model(&Command{}).Where("cmd_id = ?", cmdID).Updates(map[string]any{
		"raw_text":    rawText,
		"parsed_json": parsedJSON,
		"parsed_kind": parsedKind,
		"status":      status,
		"error":       "",
		"updated_at":  s.now(),
	}).Error
}

// AppendTxID appends a transaction identifier to a command's append-only
// tx_ids column.
func (s *Store) AppendTxID(cmdID, txID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var cmd Command
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cmd, "cmd_id = ?", cmdID).Error; err != nil {
			return err
		}
		var ids []string
		if len(cmd.TxIDs) > 0 {
			if err := json.Unmarshal(cmd.TxIDs, &ids); err != nil {
				return err
			}
		}
		ids = append(ids, txID)
		encoded, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return tx.Model(&Command{}).Where("cmd_id = ?", cmdID).
			Updates(map[string]any{"tx_ids": encoded, "updated_at": s.now()}).Error
	})
}

// ClaimOldestApproved performs the Executor's single-flight claim: it
// locks and atomically transitions the oldest APPROVED command to
// EXECUTING, guaranteeing at-most-one execution start. Returns nil, nil
// when no command is eligible.
func (s *Store) ClaimOldestApproved() (*Command, error) {
	var claimed *Command
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var cmd Command
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", StatusApproved).
			Order("created_at asc, cmd_id asc").
			First(&cmd).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Model(&Command{}).
			Where("cmd_id = ? AND status = ?", cmd.CmdID, StatusApproved).
			Updates(map[string]any{"status": StatusExecuting, "updated_at": s.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another process already claimed it between the locked read
			// and this conditional update; nothing to do this tick.
			return nil
		}
		cmd.Status = StatusExecuting
		claimed = &cmd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// DailySpendUSDC sums parsed.amountUsdc over EXECUTED commands of kinds
// PAYOUT, PAYOUT_SPLIT, BRIDGE updated within the last 24h — the single
// context input to the Policy Engine (§4.A).
func (s *Store) DailySpendUSDC(docID string) (float64, error) {
	cutoff := s.now().Add(-86400000 * time.Millisecond) // 86_400_000 ms
	var cmds []Command
	err := s.db.Where(
		"doc_id = ? AND status = ? AND updated_at >= ? AND parsed_kind IN ?",
		docID, StatusExecuted, cutoff, []string{"PAYOUT", "PAYOUT_SPLIT", "BRIDGE"},
	).Find(&cmds).Error
	if err != nil {
		return 0, err
	}
	var total float64
	for _, cmd := range cmds {
		var payload struct {
			AmountUSDC  float64 `json:"AmountUSDC"`
			Payout      *struct{ AmountUSDC float64 }
			PayoutSplit *struct{ AmountUSDC float64 }
			Bridge      *struct{ AmountUSDC float64 }
		}
		if err := json.Unmarshal(cmd.ParsedJSON, &payload); err != nil {
			continue
		}
		amount := payload.AmountUSDC
		switch {
		case payload.Payout != nil:
			amount = payload.Payout.AmountUSDC
		case payload.PayoutSplit != nil:
			amount = payload.PayoutSplit.AmountUSDC
		case payload.Bridge != nil:
			amount = payload.Bridge.AmountUSDC
		}
		total += amount
	}
	return total, nil
}
