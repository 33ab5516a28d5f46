package docprovider

import (
	"context"

	"treasuryagent/internal/backend/rpcclient"
)

// HTTPProvider binds Provider to the generic rpcclient transport. The
// concrete wire shape of a real document API is out of scope (§1); this
// assumes a JSON-RPC venue exposing discover_table/read_rows/write_rows.
type HTTPProvider struct {
	rpc *rpcclient.Client
}

// NewHTTPProvider constructs a provider talking to endpoint.
func NewHTTPProvider(endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{rpc: rpcclient.New(endpoint, apiKey)}
}

func (p *HTTPProvider) DiscoverTable(ctx context.Context, docID string) (string, error) {
	var out struct {
		TableHandle string `json:"tableHandle"`
	}
	err := p.rpc.Call(ctx, "discover_table", map[string]string{"docId": docID}, &out)
	return out.TableHandle, err
}

func (p *HTTPProvider) ReadRows(ctx context.Context, docID, tableHandle string) ([]Row, error) {
	var out struct {
		Rows []Row `json:"rows"`
	}
	err := p.rpc.Call(ctx, "read_rows", map[string]string{"docId": docID, "tableHandle": tableHandle}, &out)
	return out.Rows, err
}

func (p *HTTPProvider) WriteRows(ctx context.Context, docID, tableHandle string, rows []Row) error {
	return p.rpc.Call(ctx, "write_rows", map[string]interface{}{
		"docId":       docID,
		"tableHandle": tableHandle,
		"rows":        rows,
	}, nil)
}

var _ Provider = (*HTTPProvider)(nil)
