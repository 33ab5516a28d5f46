package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"treasuryagent/internal/approval"
	"treasuryagent/internal/store"
)

const joinChallengeTTL = 5 * time.Minute

type joinStartRequest struct {
	DocID   string `json:"docId"`
	Address string `json:"address"`
	Weight  int    `json:"weight"`
}

type joinStartResponse struct {
	Mode      JoinMode `json:"mode"`
	Challenge string   `json:"challenge"`
	JoinToken string   `json:"joinToken,omitempty"`
}

func basicChallengeKey(docID, address string) string {
	return "basic:" + docID + "|" + strings.ToLower(address)
}

func (s *Server) handleJoinStart(w http.ResponseWriter, r *http.Request) {
	var req joinStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.DocID) == "" || strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, errors.New("docId and address are required"))
		return
	}
	if req.Weight <= 0 {
		req.Weight = 1
	}
	if _, err := s.store.GetDocument(req.DocID); err != nil {
		writeError(w, http.StatusNotFound, errors.New("unknown document"))
		return
	}

	if s.channel == nil {
		nonce, err := randomNonce()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		challenge := joinChallengeText(req.DocID, req.Address, nonce)
		join := pendingJoin{DocID: req.DocID, Address: req.Address, Weight: req.Weight, Mode: ModeBasic, Challenge: challenge}
		if err := s.challenges.Put(basicChallengeKey(req.DocID, req.Address), join, joinChallengeTTL); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, joinStartResponse{Mode: ModeBasic, Challenge: string(challenge)})
		return
	}

	authChallenge, err := s.channel.AuthRequest(r.Context(), req.Address)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	joinToken, err := generateJoinToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	join := pendingJoin{DocID: req.DocID, Address: req.Address, Weight: req.Weight, Mode: ModeYellow, Challenge: authChallenge.Challenge}
	if err := s.challenges.Put(joinToken, join, time.Until(authChallenge.ExpiresAt)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, joinStartResponse{
		Mode:      ModeYellow,
		Challenge: hex.EncodeToString(authChallenge.Challenge),
		JoinToken: joinToken,
	})
}

type joinFinishRequest struct {
	DocID     string `json:"docId"`
	Address   string `json:"address"`
	Signature string `json:"signature"`
	JoinToken string `json:"joinToken,omitempty"`
}

func (s *Server) handleJoinFinish(w http.ResponseWriter, r *http.Request) {
	var req joinFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Signature) == "" {
		writeError(w, http.StatusBadRequest, errors.New("signature is required"))
		return
	}

	key := req.JoinToken
	if key == "" {
		key = basicChallengeKey(req.DocID, req.Address)
	}
	join, err := s.challenges.Take(key)
	if errors.Is(err, ErrChallengeNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if errors.Is(err, ErrChallengeExpired) {
		writeError(w, http.StatusGone, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if join.DocID != req.DocID || !strings.EqualFold(join.Address, req.Address) {
		writeError(w, http.StatusConflict, errors.New("join does not match challenge"))
		return
	}

	switch join.Mode {
	case ModeYellow:
		sigBytes, err := decodeSignature(req.Signature)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.channel.AuthVerify(r.Context(), req.Address, sigBytes); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
	default:
		if err := verifyWalletSignature(join.Challenge, req.Address, req.Signature); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
	}

	if err := s.store.UpsertSigner(req.DocID, req.Address, join.Weight); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.issueSession(w, req.DocID, req.Address); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

type decisionRequest struct {
	DocID    string                 `json:"docId"`
	CmdID    string                 `json:"cmdId"`
	Decision store.ApprovalDecision `json:"decision"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("not signed in"))
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DocID != p.DocID {
		writeError(w, http.StatusUnauthorized, errors.New("session does not match document"))
		return
	}

	cmd, cmdErr := s.store.GetCommand(req.CmdID)
	if cmdErr != nil {
		writeError(w, http.StatusNotFound, errors.New("unknown command"))
		return
	}

	progress, err := s.coordinator.Decide(r.Context(), req.DocID, req.CmdID, p.Address, req.Decision)
	if err != nil {
		var conflict *approval.ConflictError
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, conflict)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if cmdErr == nil {
		s.metrics.RecordApproval(req.DocID, string(req.Decision), cmd.RawText, s.now().Unix())
		if progress.Status == store.StatusApproved {
			s.metrics.RecordOnChainAvoided(req.DocID)
		}
	}

	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docId")
	cmds, err := s.store.ListCommands(docID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}

type commandStatusResponse struct {
	store.Command
	ApprovedWeight int `json:"approvedWeight"`
	Quorum         int `json:"quorum"`
}

func (s *Server) handleCommandStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docId")
	cmdID := chi.URLParam(r, "cmdId")
	cmd, err := s.store.GetCommand(cmdID)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("unknown command"))
		return
	}
	if cmd.DocID != docID {
		writeError(w, http.StatusNotFound, errors.New("unknown command"))
		return
	}
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("unknown document"))
		return
	}
	approvedWeight, err := s.store.ApprovedWeight(docID, cmdID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, commandStatusResponse{Command: *cmd, ApprovedWeight: approvedWeight, Quorum: doc.Quorum})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docId")
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(docID))
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func decodeSignature(sigHex string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
