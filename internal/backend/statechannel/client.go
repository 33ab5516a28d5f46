package statechannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const protocolLabel = "NitroRPC/0.4"

const dialTimeout = 20 * time.Second

// rpcEnvelope is the wire shape of one NitroRPC/0.4 request/response.
type rpcEnvelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client speaks NitroRPC/0.4 over a single long-lived websocket
// connection to a state-channel back-end.
type Client struct {
	url     string
	conn    *websocket.Conn
	nextID  atomic.Uint64
}

// Dial opens the websocket connection used for every subsequent call.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("statechannel: dial %s: %w", url, err)
	}
	return &Client{url: url, conn: conn}, nil
}

// Close releases the underlying websocket connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("statechannel: marshal params: %w", err)
	}
	req := rpcEnvelope{ID: c.nextID.Add(1), Method: method, Params: paramsJSON}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return fmt.Errorf("statechannel: write %s: %w", method, err)
	}
	var resp rpcEnvelope
	if err := wsjson.Read(ctx, c.conn, &resp); err != nil {
		return fmt.Errorf("statechannel: read %s: %w", method, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("statechannel: %s: %s", method, resp.Error)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

func (c *Client) AuthRequest(ctx context.Context, signerAddress string) (AuthChallenge, error) {
	var out struct {
		Challenge string    `json:"challenge"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.call(ctx, "auth_request", map[string]string{"address": signerAddress}, &out); err != nil {
		return AuthChallenge{}, err
	}
	return AuthChallenge{Challenge: []byte(out.Challenge), ExpiresAt: out.ExpiresAt}, nil
}

func (c *Client) AuthVerify(ctx context.Context, signerAddress string, signature []byte) error {
	return c.call(ctx, "auth_verify", map[string]string{
		"address":   signerAddress,
		"signature": fmt.Sprintf("0x%x", signature),
	}, nil)
}

func (c *Client) CreateAppSession(ctx context.Context, docID string, participants []string, definition []byte) (AppSession, error) {
	var out sessionWire
	err := c.call(ctx, "create_app_session", map[string]any{
		"docId":        docID,
		"participants": participants,
		"definition":   json.RawMessage(definition),
		"protocol":     protocolLabel,
	}, &out)
	return out.toAppSession(), err
}

func (c *Client) SubmitAppState(ctx context.Context, docID, sessionID string, version uint64, statePayload []byte, coSignatures map[string][]byte) (AppSession, error) {
	sigHex := make(map[string]string, len(coSignatures))
	for addr, sig := range coSignatures {
		sigHex[addr] = fmt.Sprintf("0x%x", sig)
	}
	var out sessionWire
	err := c.call(ctx, "submit_app_state", map[string]any{
		"docId":     docID,
		"sessionId": sessionID,
		"version":   version,
		"state":     json.RawMessage(statePayload),
		"sigs":      sigHex,
	}, &out)
	return out.toAppSession(), err
}

func (c *Client) CloseAppSession(ctx context.Context, docID, sessionID string) error {
	return c.call(ctx, "close_app_session", map[string]string{"docId": docID, "sessionId": sessionID}, nil)
}

func (c *Client) GetSessionStatus(ctx context.Context, docID, sessionID string) (AppSession, error) {
	var out sessionWire
	err := c.call(ctx, "get_session_status", map[string]string{"docId": docID, "sessionId": sessionID}, &out)
	return out.toAppSession(), err
}

type sessionWire struct {
	SessionID string `json:"sessionId"`
	Version   uint64 `json:"version"`
	Status    string `json:"status"`
}

func (w sessionWire) toAppSession() AppSession {
	return AppSession{SessionID: w.SessionID, Version: w.Version, Status: SessionStatus(w.Status)}
}

var _ Backend = (*Client)(nil)
