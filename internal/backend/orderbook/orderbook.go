// Package orderbook declares the abstract order-book capability consumed
// by the Executor and the Price Oracle. HTTPBackend (http.go) is a
// JSON-RPC adapter that implements it; a process wires one at startup.
package orderbook

import "context"

// Quote is a snapshot of one pair's order book.
type Quote struct {
	Bid    float64
	Ask    float64
	Mid    float64
	Spread float64
}

// Fill is the outcome of an order-book mutation.
type Fill struct {
	TxID    string
	OrderID string
	MgrID   string
	Price   float64 // 0 when the back-end did not return a fill price
}

// Balances reports one wallet's holdings on the venue.
type Balances struct {
	Base  float64
	Quote float64
}

// GasStatus reports whether a wallet carries enough native gas to trade.
type GasStatus struct {
	OK      bool
	Balance float64
	Min     float64
}

// Backend is the order-book capability contract (§6). Base/quote asset
// identifiers are venue-specific strings (e.g. "SUI", "USDC").
type Backend interface {
	Execute(ctx context.Context, rawCommand, privKey, poolKey, mgrID string) (Fill, error)
	OpenOrders(ctx context.Context, address string) ([]Fill, error)
	Balances(ctx context.Context, address string) (Balances, error)
	Deposit(ctx context.Context, privKey, coin string, amount float64) (string, error)
	Withdraw(ctx context.Context, privKey, coin string, amount float64) (string, error)
	MidPrice(ctx context.Context, poolKey string) (Quote, error)
	CheckGas(ctx context.Context, address string) (GasStatus, error)
}
