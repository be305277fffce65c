package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ardrive-go/internal/ledger"
)

// Transport fetches a single page of a request from an endpoint.
type Transport interface {
	Fetch(ctx context.Context, endpoint string, req Request) (*Page, error)
}

// HTTPTransport speaks GraphQL over HTTP POST.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		Transactions struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []struct {
				Cursor string `json:"cursor"`
				Node   struct {
					ID    string `json:"id"`
					Owner struct {
						Address string `json:"address"`
					} `json:"owner"`
					Tags  []ledger.Tag `json:"tags"`
					Block *struct {
						Height int64 `json:"height"`
					} `json:"block"`
					BundledIn *struct {
						ID string `json:"id"`
					} `json:"bundledIn"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Document renders the GraphQL query text and variables for req.
func Document(req Request) (string, map[string]any) {
	var params, args []string
	vars := map[string]any{}

	params = append(params, "$first: Int")
	args = append(args, "first: $first")
	first := req.First
	if first <= 0 {
		first = PageSize
	}
	vars["first"] = first

	if len(req.IDs) > 0 {
		params = append(params, "$ids: [ID!]")
		args = append(args, "ids: $ids")
		vars["ids"] = req.IDs
	}
	if len(req.Owners) > 0 {
		params = append(params, "$owners: [String!]")
		args = append(args, "owners: $owners")
		vars["owners"] = req.Owners
	}
	if len(req.Tags) > 0 {
		params = append(params, "$tags: [TagFilter!]")
		args = append(args, "tags: $tags")
		vars["tags"] = req.Tags
	}
	if req.After != "" {
		params = append(params, "$after: String")
		args = append(args, "after: $after")
		vars["after"] = req.After
	}
	if req.MinHeight > 0 {
		params = append(params, "$min: Int")
		args = append(args, "block: {min: $min}")
		vars["min"] = req.MinHeight
	}
	args = append(args, "sort: HEIGHT_ASC")

	query := fmt.Sprintf(`query(%s) {
  transactions(%s) {
    pageInfo { hasNextPage }
    edges {
      cursor
      node {
        id
        owner { address }
        tags { name value }
        block { height }
        bundledIn { id }
      }
    }
  }
}`, strings.Join(params, ", "), strings.Join(args, ", "))
	return query, vars
}

// Fetch posts the query for req to endpoint and parses one page.
func (t *HTTPTransport) Fetch(ctx context.Context, endpoint string, req Request) (*Page, error) {
	query, vars := Document(req)
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting query to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query endpoint %s returned %s", endpoint, resp.Status)
	}
	return parsePage(raw)
}

func parsePage(raw []byte) (*Page, error) {
	var r gqlResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(r.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", r.Errors[0].Message)
	}

	txs := r.Data.Transactions
	page := &Page{HasNextPage: txs.PageInfo.HasNextPage, Edges: make([]Edge, 0, len(txs.Edges))}
	for _, e := range txs.Edges {
		edge := Edge{
			Cursor: e.Cursor,
			TxID:   e.Node.ID,
			Owner:  e.Node.Owner.Address,
			Tags:   ledger.Tags(e.Node.Tags),
		}
		if e.Node.Block != nil {
			edge.BlockHeight = e.Node.Block.Height
		}
		if e.Node.BundledIn != nil {
			edge.BundledIn = e.Node.BundledIn.ID
		}
		page.Edges = append(page.Edges, edge)
	}
	return page, nil
}
