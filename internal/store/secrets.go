package store

import "gorm.io/gorm"

// PutSecretsBlob overwrites a document's encrypted-secrets row.
func (s *Store) PutSecretsBlob(docID string, ciphertext, nonce []byte) error {
	row := DocumentSecrets{DocID: docID, Ciphertext: ciphertext, Nonce: nonce, UpdatedAt: s.now()}
	return s.db.Clauses(onConflictUpdate(
		[]string{"doc_id"},
		[]string{"ciphertext", "nonce", "updated_at"},
	)).Create(&row).Error
}

// GetSecretsBlob reads a document's encrypted-secrets row; ok is false
// when the document has never had secrets provisioned.
func (s *Store) GetSecretsBlob(docID string) (ciphertext, nonce []byte, ok bool, err error) {
	var row DocumentSecrets
	dbErr := s.db.First(&row, "doc_id = ?", docID).Error
	if dbErr == gorm.ErrRecordNotFound {
		return nil, nil, false, nil
	}
	if dbErr != nil {
		return nil, nil, false, dbErr
	}
	return row.Ciphertext, row.Nonce, true, nil
}
