package store

import "gorm.io/gorm/clause"

// UpsertSigner registers or updates a signer's weight for a document.
func (s *Store) UpsertSigner(docID, address string, weight int) error {
	signer := Signer{DocID: docID, Address: address, Weight: weight}
	return s.db.Clauses(clauseOnConflictUpdateWeight()).Create(&signer).Error
}

// GetSigner loads one signer; returns gorm.ErrRecordNotFound if absent.
func (s *Store) GetSigner(docID, address string) (*Signer, error) {
	var signer Signer
	if err := s.db.First(&signer, "doc_id = ? AND address = ?", docID, address).Error; err != nil {
		return nil, err
	}
	return &signer, nil
}

// ListSigners returns every signer registered for a document.
func (s *Store) ListSigners(docID string) ([]Signer, error) {
	var signers []Signer
	if err := s.db.Where("doc_id = ?", docID).Find(&signers).Error; err != nil {
		return nil, err
	}
	return signers, nil
}

// RecordApproval upserts a signer's decision on a command (last-writer-wins
// for the same signer).
func (s *Store) RecordApproval(docID, cmdID, signerAddress string, decision ApprovalDecision) error {
	approval := Approval{DocID: docID, CmdID: cmdID, SignerAddress: signerAddress, Decision: decision, At: s.now()}
	return s.db.Clauses(clauseOnConflictUpdateDecision()).Create(&approval).Error
}

// ListApprovals returns every recorded decision for a command.
func (s *Store) ListApprovals(cmdID string) ([]Approval, error) {
	var approvals []Approval
	if err := s.db.Where("cmd_id = ?", cmdID).Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}

// ClearApprovals deletes every recorded decision for a command; called on
// terminal transitions.
func (s *Store) ClearApprovals(cmdID string) error {
	return s.db.Where("cmd_id = ?", cmdID).Delete(&Approval{}).Error
}

// ApprovedWeight sums the weights of signers whose decision is APPROVE for
// a command.
func (s *Store) ApprovedWeight(docID, cmdID string) (int, error) {
	approvals, err := s.ListApprovals(cmdID)
	if err != nil {
		return 0, err
	}
	signers, err := s.ListSigners(docID)
	if err != nil {
		return 0, err
	}
	weightByAddr := make(map[string]int, len(signers))
	for _, sg := range signers {
		weightByAddr[sg.Address] = sg.Weight
	}
	total := 0
	for _, a := range approvals {
		if a.Decision == DecisionApprove {
			total += weightByAddr[a.SignerAddress]
		}
	}
	return total, nil
}

func clauseOnConflictUpdateWeight() clause.Expression {
	return onConflictUpdate([]string{"doc_id", "address"}, []string{"weight"})
}

func clauseOnConflictUpdateDecision() clause.Expression {
	return onConflictUpdate([]string{"doc_id", "cmd_id", "signer_address"}, []string{"decision", "at"})
}
