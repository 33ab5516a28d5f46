package store

import "gorm.io/gorm"

// UpsertDocument creates the document row if absent, otherwise updates only
// the display name (and updated_at). Addresses
// and policy ENS are set once via SetAddresses/SetPolicyENS.
func (s *Store) UpsertDocument(docID, displayName string) (*Document, error) {
	var doc Document
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&doc, "doc_id = ?", docID).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			doc = Document{DocID: docID, DisplayName: displayName, Quorum: 1, CreatedAt: s.now(), UpdatedAt: s.now()}
			return tx.Create(&doc).Error
		case err != nil:
			return err
		default:
			doc.DisplayName = displayName
			doc.UpdatedAt = s.now()
			return tx.Save(&doc).Error
		}
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument loads one document by id.
func (s *Store) GetDocument(docID string) (*Document, error) {
	var doc Document
	if err := s.db.First(&doc, "doc_id = ?", docID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocumentIDs returns every tracked document's id. The periodic loops
// call this once per tick to learn their scan set; no component caches it
// across ticks.
func (s *Store) ListDocumentIDs() ([]string, error) {
	var ids []string
	if err := s.db.Model(&Document{}).Pluck("doc_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SetAddresses persists the EVM/Sui addresses derived during SETUP. Only
// ever called once per document.
func (s *Store) SetAddresses(docID, evmAddr, suiAddr string) error {
	return s.db.Model(&Document{}).Where("doc_id = ?", docID).
		Updates(map[string]any{"evm_address": evmAddr, "sui_address": suiAddr, "updated_at": s.now()}).Error
}

// SetPolicyENS persists the configured policy-resolution name.
func (s *Store) SetPolicyENS(docID, ensName string) error {
	return s.db.Model(&Document{}).Where("doc_id = ?", docID).
		Updates(map[string]any{"policy_ens": ensName, "updated_at": s.now()}).Error
}

// SetQuorum updates the document's integer approval threshold.
func (s *Store) SetQuorum(docID string, quorum int) error {
	return s.db.Model(&Document{}).Where("doc_id = ?", docID).
		Updates(map[string]any{"quorum": quorum, "updated_at": s.now()}).Error
}

// SetLastUserHash stores the digest Document Sync uses to short-circuit
// idle polls.
func (s *Store) SetLastUserHash(docID, hash string) error {
	return s.db.Model(&Document{}).Where("doc_id = ?", docID).
		Updates(map[string]any{"last_user_hash": hash, "updated_at": s.now()}).Error
}
