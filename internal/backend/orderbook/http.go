package orderbook

import (
	"context"

	"treasuryagent/internal/backend/rpcclient"
)

// HTTPBackend binds Backend to the generic rpcclient transport. A real
// venue's wire protocol is out of scope (§1); this assumes a JSON-RPC
// venue exposing one method per Backend operation.
type HTTPBackend struct {
	rpc *rpcclient.Client
}

// NewHTTPBackend constructs a Backend talking to endpoint.
func NewHTTPBackend(endpoint, apiKey string) *HTTPBackend {
	return &HTTPBackend{rpc: rpcclient.New(endpoint, apiKey)}
}

func (b *HTTPBackend) Execute(ctx context.Context, rawCommand, privKey, poolKey, mgrID string) (Fill, error) {
	var out Fill
	err := b.rpc.Call(ctx, "execute", map[string]string{
		"rawCommand": rawCommand, "privKey": privKey, "poolKey": poolKey, "mgrId": mgrID,
	}, &out)
	return out, err
}

func (b *HTTPBackend) OpenOrders(ctx context.Context, address string) ([]Fill, error) {
	var out struct {
		Orders []Fill `json:"orders"`
	}
	err := b.rpc.Call(ctx, "open_orders", map[string]string{"address": address}, &out)
	return out.Orders, err
}

func (b *HTTPBackend) Balances(ctx context.Context, address string) (Balances, error) {
	var out Balances
	err := b.rpc.Call(ctx, "balances", map[string]string{"address": address}, &out)
	return out, err
}

func (b *HTTPBackend) Deposit(ctx context.Context, privKey, coin string, amount float64) (string, error) {
	var out struct {
		TxID string `json:"txId"`
	}
	err := b.rpc.Call(ctx, "deposit", map[string]interface{}{"privKey": privKey, "coin": coin, "amount": amount}, &out)
	return out.TxID, err
}

func (b *HTTPBackend) Withdraw(ctx context.Context, privKey, coin string, amount float64) (string, error) {
	var out struct {
		TxID string `json:"txId"`
	}
	err := b.rpc.Call(ctx, "withdraw", map[string]interface{}{"privKey": privKey, "coin": coin, "amount": amount}, &out)
	return out.TxID, err
}

func (b *HTTPBackend) MidPrice(ctx context.Context, poolKey string) (Quote, error) {
	var out Quote
	err := b.rpc.Call(ctx, "mid_price", map[string]string{"poolKey": poolKey}, &out)
	return out, err
}

func (b *HTTPBackend) CheckGas(ctx context.Context, address string) (GasStatus, error) {
	var out GasStatus
	err := b.rpc.Call(ctx, "check_gas", map[string]string{"address": address}, &out)
	return out, err
}

var _ Backend = (*HTTPBackend)(nil)
