package gql

import (
	"context"
	"errors"

	"ardrive-go/internal/ardrive"
)

// Client runs paginated queries through a Transport under a FailoverPolicy.
type Client struct {
	transport Transport
	policy    *FailoverPolicy
	logger    ardrive.Logger
}

// NewClient creates a query client.
func NewClient(transport Transport, policy *FailoverPolicy, logger ardrive.Logger) *Client {
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}
	return &Client{transport: transport, policy: policy, logger: logger}
}

// Pages returns a lazy page sequence for req. Nothing is fetched until Next.
func (c *Client) Pages(req Request) *Pager {
	if req.First <= 0 {
		req.First = PageSize
	}
	return &Pager{client: c, failover: c.policy.Start(), req: req}
}

// Query fetches every page of req. If the gateway becomes unavailable part way,
// the edges collected so far are returned together with an
// *ardrive.GatewayUnavailableError whose Cursor resumes the query.
func (c *Client) Query(ctx context.Context, req Request) ([]Edge, error) {
	var edges []Edge
	p := c.Pages(req)
	for p.Next(ctx) {
		edges = append(edges, p.Edges()...)
	}
	if err := p.Err(); err != nil {
		return edges, err
	}
	return edges, nil
}

// Pager walks the pages of one request. It is restartable: a new Pager built
// from a request whose After is a previous Cursor continues where that one stopped.
type Pager struct {
	client    *Client
	failover  *Failover
	req       Request
	edges     []Edge
	collected int
	done      bool
	err       error
}

// Next fetches the next page. It returns false when the sequence is exhausted
// or an error occurred; check Err afterwards.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	var page *Page
	err := p.failover.Do(ctx, func(ctx context.Context, endpoint string) error {
		var err error
		page, err = p.client.transport.Fetch(ctx, endpoint, p.req)
		return err
	})
	if err != nil {
		p.edges = nil
		if errors.Is(err, ardrive.ErrGatewayUnavailable) {
			err = &ardrive.GatewayUnavailableError{Cursor: p.req.After, Collected: p.collected, Err: err}
		}
		p.err = err
		return false
	}

	p.edges = page.Edges
	p.collected += len(page.Edges)
	if n := len(page.Edges); n > 0 {
		p.req.After = page.Edges[n-1].Cursor
	}
	if !page.HasNextPage || len(page.Edges) == 0 {
		p.done = true
	}
	p.client.logger.Debug("query page fetched", "edges", len(page.Edges), "endpoint", p.failover.Endpoint())
	return true
}

// Edges returns the edges of the current page.
func (p *Pager) Edges() []Edge { return p.edges }

// Err returns the error that stopped the sequence, if any.
func (p *Pager) Err() error { return p.err }

// Cursor returns the cursor after the last delivered edge.
func (p *Pager) Cursor() string { return p.req.After }
