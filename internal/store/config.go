package store

import "gorm.io/gorm"

// SetConfig upserts a per-document key/value config entry.
func (s *Store) SetConfig(docID, key, value string) error {
	entry := ConfigEntry{DocID: docID, Key: key, Value: value}
	return s.db.Clauses(onConflictUpdate(
		[]string{"doc_id", "key"},
		[]string{"value"},
	)).Create(&entry).Error
}

// GetConfig reads one config value; ok is false when the key is unset.
func (s *Store) GetConfig(docID, key string) (value string, ok bool, err error) {
	var entry ConfigEntry
	dbErr := s.db.First(&entry, "doc_id = ? AND key = ?", docID, key).Error
	if dbErr == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if dbErr != nil {
		return "", false, dbErr
	}
	return entry.Value, true, nil
}

// ListConfig returns the full config map for a document.
func (s *Store) ListConfig(docID string) (map[string]string, error) {
	var entries []ConfigEntry
	if err := s.db.Where("doc_id = ?", docID).Find(&entries).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}
