package paymentrail

import (
	"context"

	"treasuryagent/internal/backend/rpcclient"
)

// HTTPNativeRail binds NativeRail to the generic rpcclient transport. A
// real chain's transfer wire format is out of scope (§1); this assumes a
// JSON-RPC rail exposing a transfer_usdc method.
type HTTPNativeRail struct {
	rpc *rpcclient.Client
}

// NewHTTPNativeRail constructs a NativeRail talking to endpoint.
func NewHTTPNativeRail(endpoint, apiKey string) *HTTPNativeRail {
	return &HTTPNativeRail{rpc: rpcclient.New(endpoint, apiKey)}
}

func (r *HTTPNativeRail) TransferUSDC(ctx context.Context, privKey, to string, amount float64) (string, error) {
	var out struct {
		TxID string `json:"txId"`
	}
	err := r.rpc.Call(ctx, "transfer_usdc", map[string]interface{}{
		"privKey": privKey, "to": to, "amount": amount,
	}, &out)
	return out.TxID, err
}

var _ NativeRail = (*HTTPNativeRail)(nil)

// HTTPManagedRail binds ManagedRail to the generic rpcclient transport,
// used for custodial PAYOUT/PAYOUT_SPLIT/BRIDGE/REBALANCE dispatch.
type HTTPManagedRail struct {
	rpc *rpcclient.Client
}

// NewHTTPManagedRail constructs a ManagedRail talking to endpoint.
func NewHTTPManagedRail(endpoint, apiKey string) *HTTPManagedRail {
	return &HTTPManagedRail{rpc: rpcclient.New(endpoint, apiKey)}
}

func (r *HTTPManagedRail) EnsureWallet(ctx context.Context, docID string) (string, error) {
	var out struct {
		WalletID string `json:"walletId"`
	}
	err := r.rpc.Call(ctx, "ensure_wallet", map[string]string{"docId": docID}, &out)
	return out.WalletID, err
}

func (r *HTTPManagedRail) Payout(ctx context.Context, walletID, to string, amount float64) (PayoutResult, error) {
	var out PayoutResult
	err := r.rpc.Call(ctx, "payout", map[string]interface{}{
		"walletId": walletID, "to": to, "amount": amount,
	}, &out)
	return out, err
}

func (r *HTTPManagedRail) Bridge(ctx context.Context, walletID, to string, amount float64, fromChain, toChain string) (PayoutResult, error) {
	var out PayoutResult
	err := r.rpc.Call(ctx, "bridge", map[string]interface{}{
		"walletId": walletID, "to": to, "amount": amount, "fromChain": fromChain, "toChain": toChain,
	}, &out)
	return out, err
}

var _ ManagedRail = (*HTTPManagedRail)(nil)
