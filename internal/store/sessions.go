package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetChannelSession loads the one-per-document state-channel session row.
func (s *Store) GetChannelSession(docID string) (*ChannelSession, error) {
	var sess ChannelSession
	if err := s.db.First(&sess, "doc_id = ?", docID).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpsertChannelSession creates or replaces the document's session row,
// called from SESSION_CREATE dispatch.
func (s *Store) UpsertChannelSession(docID, sessionID string, definition []byte, version uint64, status ChannelSessionStatus) error {
	sess := ChannelSession{
		DocID:      docID,
		SessionID:  sessionID,
		Definition: definition,
		Version:    version,
		Status:     status,
		UpdatedAt:  s.now(),
	}
	return s.db.Clauses(onConflictUpdate(
		[]string{"doc_id"},
		[]string{"session_id", "definition", "version", "status", "updated_at"},
	)).Create(&sess).Error
}

// UpdateChannelSessionVersion bumps the monotonic version after a
// successfully submitted co-signed state transition.
func (s *Store) UpdateChannelSessionVersion(docID string, version uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var sess ChannelSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sess, "doc_id = ?", docID).Error; err != nil {
			return err
		}
		if version <= sess.Version {
			return nil
		}
		return tx.Model(&ChannelSession{}).Where("doc_id = ?", docID).
			Updates(map[string]any{"version": version, "updated_at": s.now()}).Error
	})
}

// CloseChannelSession marks the document's session CLOSED.
func (s *Store) CloseChannelSession(docID string) error {
	return s.db.Model(&ChannelSession{}).Where("doc_id = ?", docID).
		Update("status", ChannelSessionClosed).Error
}

// UpsertSessionKey stores or replaces a signer's delegated co-signing key.
func (s *Store) UpsertSessionKey(key SessionKey) error {
	return s.db.Clauses(onConflictUpdate(
		[]string{"doc_id", "signer_address"},
		[]string{"session_key_address", "encrypted_private_key", "expires_at", "jwt"},
	)).Create(&key).Error
}

// GetSessionKeyRow loads one signer's session key row.
func (s *Store) GetSessionKeyRow(docID, signerAddress string) (*SessionKey, error) {
	var key SessionKey
	if err := s.db.First(&key, "doc_id = ? AND signer_address = ?", docID, signerAddress).Error; err != nil {
		return nil, err
	}
	return &key, nil
}
