package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "treasuryagent_session"

// generateJoinToken mints an opaque identifier for a pending yellow-mode
// join (the caller never needs to parse it).
func generateJoinToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// joinChallengeText builds the human-readable message a basic-mode signer
// signs with their wallet, binding the signature to one document, one
// address, and one single-use nonce.
func joinChallengeText(docID, address, nonce string) []byte {
	return []byte(fmt.Sprintf("Join treasury document %s as %s\nnonce: %s", docID, address, nonce))
}

// verifyWalletSignature recovers the signer address from a 65-byte
// personal-sign signature over challenge and compares it against the
// claimed address, the same recovery path escrow-gateway uses for its
// wallet-authenticated write endpoints.
func verifyWalletSignature(challenge []byte, claimedAddress, sigHex string) error {
	cleaned := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"), "0X")
	sigBytes, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	digest := accounts.TextHash(challenge)
	pubKey, err := ethcrypto.SigToPub(digest, sigBytes)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(recovered.Hex())), []byte(strings.ToLower(strings.TrimSpace(claimedAddress)))) != 1 {
		return errors.New("signature does not match supplied address")
	}
	return nil
}

// sessionClaims is the JWT payload issued once a join completes.
type sessionClaims struct {
	DocID   string `json:"docId"`
	Address string `json:"address"`
	jwt.RegisteredClaims
}

func (s *Server) sessionCookieValue(docID, address string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		DocID:   docID,
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (s *Server) issueSession(w http.ResponseWriter, docID, address string) error {
	now := s.now()
	signed, err := s.sessionCookieValue(docID, address)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
		Expires:  now.Add(sessionTTL),
	})
	return nil
}

const sessionTTL = 24 * time.Hour

type principal struct {
	DocID   string
	Address string
}

type principalKey struct{}

func (s *Server) principalFromRequest(r *http.Request) (principal, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return principal{}, errors.New("not signed in")
	}
	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return principal{}, fmt.Errorf("invalid session: %w", err)
	}
	return principal{DocID: claims.DocID, Address: claims.Address}, nil
}

// requireSession rejects requests with no valid session cookie before the
// handler runs.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.principalFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}
