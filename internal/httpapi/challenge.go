package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const challengeKeyPrefix = "join:"

// JoinMode distinguishes a plain wallet-signature join from one backed by
// a state-channel auth handshake.
type JoinMode string

const (
	ModeBasic  JoinMode = "basic"
	ModeYellow JoinMode = "yellow"
)

// pendingJoin is the record stored between /api/join/start and
// /api/join/finish. Yellow-mode joins are keyed by the opaque join token
// handed back to the caller; basic-mode joins by document and address.
type pendingJoin struct {
	DocID     string    `json:"docId"`
	Address   string    `json:"address"`
	Weight    int       `json:"weight"`
	Mode      JoinMode  `json:"mode"`
	Challenge []byte    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ChallengeStore persists in-flight join challenges to LevelDB so a
// restart between /start and /finish doesn't silently drop them, the same
// durability the teacher gives HMAC replay nonces.
type ChallengeStore struct {
	db  *leveldb.DB
	now func() time.Time
}

// NewChallengeStore opens (or creates) the LevelDB database at path.
func NewChallengeStore(path string) (*ChallengeStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("challenge store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve challenge store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open challenge store: %w", err)
	}
	return &ChallengeStore{db: db, now: time.Now}, nil
}

// Close releases the underlying LevelDB resources.
func (c *ChallengeStore) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put records a new pending join under joinToken with the supplied TTL.
func (c *ChallengeStore) Put(joinToken string, join pendingJoin, ttl time.Duration) error {
	join.ExpiresAt = c.clock().Add(ttl)
	raw, err := json.Marshal(join)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(challengeKeyPrefix+joinToken), raw, nil)
}

// Take retrieves and deletes a pending join, so a token can only ever be
// redeemed once. A missing entry is reported as ErrChallengeNotFound and an
// expired one as ErrChallengeExpired.
func (c *ChallengeStore) Take(joinToken string) (pendingJoin, error) {
	key := []byte(challengeKeyPrefix + joinToken)
	raw, err := c.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return pendingJoin{}, ErrChallengeNotFound
	}
	if err != nil {
		return pendingJoin{}, fmt.Errorf("load join challenge: %w", err)
	}
	_ = c.db.Delete(key, nil)
	var join pendingJoin
	if err := json.Unmarshal(raw, &join); err != nil {
		return pendingJoin{}, fmt.Errorf("decode join challenge: %w", err)
	}
	if c.clock().After(join.ExpiresAt) {
		return pendingJoin{}, ErrChallengeExpired
	}
	return join, nil
}

// PruneExpired deletes every challenge past its TTL. Nothing in this module
// calls it on a schedule; Take checks expiry when a join is redeemed.
func (c *ChallengeStore) PruneExpired() error {
	now := c.clock()
	iter := c.db.NewIterator(util.BytesPrefix([]byte(challengeKeyPrefix)), nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		var join pendingJoin
		if err := json.Unmarshal(iter.Value(), &join); err != nil {
			continue
		}
		if now.After(join.ExpiresAt) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate join challenges: %w", err)
	}
	if batch.Len() > 0 {
		return c.db.Write(batch, nil)
	}
	return nil
}

func (c *ChallengeStore) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// ErrChallengeNotFound is returned when a join token is unknown.
var ErrChallengeNotFound = errors.New("join challenge not found")

// ErrChallengeExpired is returned when a join token's TTL has lapsed.
var ErrChallengeExpired = errors.New("join challenge expired")
