// Package gql queries the ledger's GraphQL index for tagged transactions,
// with cursor pagination and primary/backup endpoint failover.
package gql

import "ardrive-go/internal/ledger"

const (
	// PageSize is the number of edges requested per page.
	PageSize = 100

	// HeightMargin is subtracted from a caller's last synced height so that
	// blocks near the chain tip are re-read after a reorganization.
	HeightMargin = 5
)

// TagFilter matches transactions carrying Name with any of Values.
type TagFilter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Tag builds a TagFilter.
func Tag(name string, values ...string) TagFilter {
	return TagFilter{Name: name, Values: values}
}

// Request describes one paginated transaction query.
type Request struct {
	IDs       []string
	Owners    []string
	Tags      []TagFilter
	MinHeight int64 // 0 means no floor
	First     int
	After     string
}

// NewRequest creates a request for transactions matching every tag filter.
func NewRequest(tags ...TagFilter) Request {
	return Request{Tags: tags, First: PageSize}
}

// WithOwner restricts the request to transactions signed by owner's address.
func (r Request) WithOwner(owner string) Request {
	if owner != "" {
		r.Owners = []string{owner}
	}
	return r
}

// WithIDs restricts the request to the given transaction IDs.
func (r Request) WithIDs(ids ...string) Request {
	r.IDs = append([]string(nil), ids...)
	return r
}

// WithSinceHeight sets the height floor to lastSynced minus HeightMargin.
// Heights at or below the margin query from genesis. Callers must tolerate
// re-reading edges they have already seen.
func (r Request) WithSinceHeight(lastSynced int64) Request {
	if lastSynced > HeightMargin {
		r.MinHeight = lastSynced - HeightMargin
	} else {
		r.MinHeight = 0
	}
	return r
}

// Edge is one transaction returned by the index.
type Edge struct {
	Cursor      string
	TxID        string
	Owner       string
	Tags        ledger.Tags
	BlockHeight int64
	BundledIn   string // outer bundle transaction, for bundled data items
}

// Page is one response page.
type Page struct {
	Edges       []Edge
	HasNextPage bool
}

// DedupeEdges drops repeated transactions, keeping the first occurrence.
// Height-floor overlap makes duplicates expected across syncs.
func DedupeEdges(edges []Edge) []Edge {
	seen := make(map[string]bool, len(edges))
	out := edges[:0:0]
	for _, e := range edges {
		if seen[e.TxID] {
			continue
		}
		seen[e.TxID] = true
		out = append(out, e)
	}
	return out
}
