package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/approval"
	"treasuryagent/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)
	coord := approval.New(st)
	challenges, err := NewChallengeStore(filepath.Join(t.TempDir(), "challenges.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = challenges.Close() })
	return New(st, coord, challenges, []byte("test-secret"))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(string(reqBody)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJoinStartThenFinishRegistersSignerAndIssuesSession(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	privKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(privKey.PublicKey).Hex()

	startRec := doJSON(t, router, http.MethodPost, "/api/join/start", joinStartRequest{DocID: "doc-1", Address: address, Weight: 2})
	require.Equal(t, http.StatusOK, startRec.Code)
	var startResp joinStartResponse
	require.NoError(t, json.Unmarshal(startRec.Body.Bytes(), &startResp))
	require.Equal(t, ModeBasic, startResp.Mode)

	digest := accounts.TextHash([]byte(startResp.Challenge))
	sig, err := crypto.Sign(digest, privKey)
	require.NoError(t, err)

	finishRec := doJSON(t, router, http.MethodPost, "/api/join/finish", joinFinishRequest{
		DocID:     "doc-1",
		Address:   address,
		Signature: hex.EncodeToString(sig),
	})
	require.Equal(t, http.StatusOK, finishRec.Code)
	require.NotEmpty(t, finishRec.Result().Cookies())

	signer, err := s.store.GetSigner("doc-1", address)
	require.NoError(t, err)
	require.Equal(t, 2, signer.Weight)
}

func TestJoinFinishRejectsWrongSigner(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(signerKey.PublicKey).Hex()

	impostorKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	startRec := doJSON(t, router, http.MethodPost, "/api/join/start", joinStartRequest{DocID: "doc-1", Address: signerAddr, Weight: 1})
	require.Equal(t, http.StatusOK, startRec.Code)
	var startResp joinStartResponse
	require.NoError(t, json.Unmarshal(startRec.Body.Bytes(), &startResp))

	digest := accounts.TextHash([]byte(startResp.Challenge))
	sig, err := crypto.Sign(digest, impostorKey)
	require.NoError(t, err)

	finishRec := doJSON(t, router, http.MethodPost, "/api/join/finish", joinFinishRequest{
		DocID:     "doc-1",
		Address:   signerAddr,
		Signature: hex.EncodeToString(sig),
	})
	require.Equal(t, http.StatusUnauthorized, finishRec.Code)
}

func TestDecisionRequiresSessionCookie(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()
	rec := doJSON(t, router, http.MethodPost, "/api/cmd/decision", decisionRequest{DocID: "doc-1", CmdID: "c1", Decision: store.DecisionApprove})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecisionApprovesCommandReachingQuorum(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	privKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(privKey.PublicKey).Hex()
	require.NoError(t, s.store.UpsertSigner("doc-1", address, 1))
	require.NoError(t, s.store.SetQuorum("doc-1", 1))

	cmd, err := s.store.InsertCommand("cmd-1", "doc-1", "PAY 10 USDC TO 0xabc", nil, "PAY", store.StatusPendingApproval)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/cmd/decision", strings.NewReader(mustJSON(t, decisionRequest{DocID: "doc-1", CmdID: cmd.CmdID, Decision: store.DecisionApprove})))
	req.Header.Set("Content-Type", "application/json")
	token, err := s.sessionCookieValue("doc-1", address)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := s.metrics.Snapshot("doc-1")
	require.Equal(t, 1, snap.TotalApprovals)
	require.Equal(t, 1, snap.OnChainTxsAvoided)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
