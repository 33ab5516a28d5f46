// Package wallet provisions the per-document signing key the Executor
// borrows for the duration of one dispatch (§1, §4.F). Key generation and
// at-rest encryption are explicitly named external concerns in the core's
// contract; this package is the process's own choice of how to satisfy
// executor.WalletProvisioner, not part of the core itself.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"treasuryagent/crypto"
	"treasuryagent/internal/store"
)

// Provisioner generates and stores one EVM signing key per document,
// sealed under a single operator-supplied master key (§6 configuration
// surface). Sui key custody is a separate external concern; Provisioner
// only ever returns a placeholder Sui address derived from the same
// keypair so document setup has something stable to publish.
type Provisioner struct {
	store     *store.Store
	masterKey []byte
}

// New constructs a Provisioner. masterKey must be exactly 32 bytes
// (AES-256); cmd/agentd's decodeMasterKey checks this before calling New.
func New(st *store.Store, masterKey []byte) (*Provisioner, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("wallet: master key must be 32 bytes, got %d", len(masterKey))
	}
	return &Provisioner{store: st, masterKey: masterKey}, nil
}

// EnsureWallet returns the document's signing addresses, generating and
// sealing a fresh key the first time it is called for a given doc_id.
func (p *Provisioner) EnsureWallet(docID string) (evmAddress, suiAddress string, err error) {
	ciphertext, nonce, ok, err := p.store.GetSecretsBlob(docID)
	if err != nil {
		return "", "", fmt.Errorf("wallet: load secrets: %w", err)
	}
	if ok {
		keyBytes, err := p.open(ciphertext, nonce)
		if err != nil {
			return "", "", err
		}
		return addressesFor(keyBytes)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("wallet: generate key: %w", err)
	}
	keyBytes := key.Bytes()
	ciphertext, nonce, err = p.seal(keyBytes)
	if err != nil {
		return "", "", err
	}
	if err := p.store.PutSecretsBlob(docID, ciphertext, nonce); err != nil {
		return "", "", fmt.Errorf("wallet: persist secrets: %w", err)
	}
	evmAddress, suiAddress, err = addressesFor(keyBytes)
	if err != nil {
		return "", "", err
	}
	if err := p.store.SetAddresses(docID, evmAddress, suiAddress); err != nil {
		return "", "", fmt.Errorf("wallet: record addresses: %w", err)
	}
	return evmAddress, suiAddress, nil
}

// PrivateKeyFor decrypts and returns the document's hex-encoded private
// key. The Executor holds it only for the duration of one dispatch and
// never logs it.
func (p *Provisioner) PrivateKeyFor(docID string) (string, error) {
	ciphertext, nonce, ok, err := p.store.GetSecretsBlob(docID)
	if err != nil {
		return "", fmt.Errorf("wallet: load secrets: %w", err)
	}
	if !ok {
		return "", errors.New("wallet: no key provisioned for document")
	}
	keyBytes, err := p.open(ciphertext, nonce)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(keyBytes), nil
}

func addressesFor(keyBytes []byte) (evmAddress, suiAddress string, err error) {
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return "", "", fmt.Errorf("wallet: decode key: %w", err)
	}
	evmAddress = ethcrypto.PubkeyToAddress(*key.PubKey().PublicKey).Hex()
	// Sui key custody is an external concern (§1); this is a stable
	// placeholder derived from the same keypair, not a usable Sui key.
	suiAddress = "sui:" + hex.EncodeToString(ethcrypto.FromECDSAPub(key.PubKey().PublicKey))[:64]
	return evmAddress, suiAddress, nil
}

func (p *Provisioner) seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(p.masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: init gcm: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("wallet: generate nonce: %w", err)
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (p *Provisioner) open(ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(p.masterKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: init gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypt secrets: %w", err)
	}
	return plaintext, nil
}
