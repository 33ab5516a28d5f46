package store

import (
	"time"

	"gorm.io/gorm"
)

// Store wraps *gorm.DB. now is injected so tests can fix the clock that
// write helpers stamp onto rows, the same seam payoutd.Processor.now gives
// its tests.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the wall-clock now() used by write helpers.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.now = clock }
}

// New wraps an already-opened *gorm.DB and runs AutoMigrate across every
// entity in the data model.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.autoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) autoMigrate() error {
	return s.db.AutoMigrate(
		&Document{},
		&Command{},
		&Signer{},
		&Approval{},
		&ChannelSession{},
		&SessionKey{},
		&Schedule{},
		&ConditionalOrder{},
		&Trade{},
		&PricePoint{},
		&ConfigEntry{},
		&DocumentSecrets{},
	)
}

// Now returns the store's injected clock.
func (s *Store) Now() time.Time { return s.now() }

// DB exposes the underlying *gorm.DB for callers that need to open their
// own transaction spanning several Store helpers.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside a single gorm transaction, matching the
// "multi-row mutations that must agree execute in one transaction"
// contract of §4.A.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}
