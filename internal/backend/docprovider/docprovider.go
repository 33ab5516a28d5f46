// Package docprovider declares the abstract contract Document Sync uses
// to read and write a document's Commands table. The concrete
// implementation (a specific document API's client) is supplied to the
// process at startup and is out of scope for this module (§1).
package docprovider

import "context"

// Row is one line of the rendered Commands table, as the provider sees
// it: both the user-editable columns and the columns the agent owns.
type Row struct {
	Index        int
	ID           string
	Text         string
	Status       string
	ApprovalURL  string
	Result       string
	Error        string
}

// Provider is the opaque capability Document Sync consumes; its wire
// behaviour and table-discovery mechanics are out of scope (§1).
type Provider interface {
	// DiscoverTable locates the Commands table anchor for a document and
	// returns an opaque handle subsequent calls can reuse.
	DiscoverTable(ctx context.Context, docID string) (tableHandle string, err error)

	// ReadRows returns every row currently rendered in the table.
	ReadRows(ctx context.Context, docID, tableHandle string) ([]Row, error)

	// WriteRows persists the agent-owned columns (id, status, result,
	// error, approval_url) for the given rows in a single batch.
	WriteRows(ctx context.Context, docID, tableHandle string, rows []Row) error
}
