// Package gateway talks to a ledger gateway node over HTTP: it submits
// transaction headers and chunks, polls status and reads transaction data.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/ledger"
)

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// HTTPGateway implements ardrive.Gateway against a gateway's REST API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	logger  ardrive.Logger
}

var _ ardrive.Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway client for baseURL, e.g. "https://arweave.net".
func NewHTTPGateway(baseURL string, timeout time.Duration, logger ardrive.Logger) *HTTPGateway {
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// PostTransaction submits the header of tx. Data is never inlined.
func (g *HTTPGateway) PostTransaction(ctx context.Context, tx *ledger.Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encoding transaction %s: %w", tx.ID, err)
	}
	if _, err := g.do(ctx, http.MethodPost, "/tx", body, http.StatusOK); err != nil {
		return fmt.Errorf("posting transaction %s: %w", tx.ID, err)
	}
	g.logger.Debug("transaction header posted", "txID", tx.ID, "size", tx.DataSize)
	return nil
}

// PostChunk submits one chunk with its proof.
func (g *HTTPGateway) PostChunk(ctx context.Context, chunk *ledger.Chunk) error {
	body, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk at offset %d: %w", chunk.Offset, err)
	}
	if _, err := g.do(ctx, http.MethodPost, "/chunk", body, http.StatusOK); err != nil {
		return fmt.Errorf("posting chunk at offset %d: %w", chunk.Offset, err)
	}
	return nil
}

type statusResponse struct {
	BlockHeight   int64 `json:"block_height"`
	Confirmations int64 `json:"number_of_confirmations"`
}

// GetTransactionStatus returns 200 for a mined transaction, 202 for a pending
// one and 404 for one the gateway has never seen. Only other codes are errors.
func (g *HTTPGateway) GetTransactionStatus(ctx context.Context, txID string) (ardrive.TxStatus, error) {
	resp, err := g.request(ctx, http.MethodGet, "/tx/"+txID+"/status", nil)
	if err != nil {
		return ardrive.TxStatus{}, fmt.Errorf("getting status of %s: %w", txID, err)
	}
	defer resp.Body.Close()

	status := ardrive.TxStatus{Code: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusOK:
		var s statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return ardrive.TxStatus{}, fmt.Errorf("parsing status of %s: %w", txID, err)
		}
		status.BlockHeight = s.BlockHeight
		status.Confirmations = s.Confirmations
	case http.StatusAccepted, http.StatusNotFound:
	default:
		return ardrive.TxStatus{}, fmt.Errorf("getting status of %s: %s", txID, readError(resp))
	}
	return status, nil
}

// GetData returns the raw body of a transaction or data item.
func (g *HTTPGateway) GetData(ctx context.Context, txID string) ([]byte, error) {
	resp, err := g.request(ctx, http.MethodGet, "/"+txID, nil)
	if err != nil {
		return nil, fmt.Errorf("getting data of %s: %w", txID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("data of %s: %w", txID, ardrive.ErrNotFound)
	default:
		return nil, fmt.Errorf("getting data of %s: %s", txID, readError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading data of %s: %w", txID, err)
	}
	return data, nil
}

// BlockHeight returns the gateway's current chain height.
func (g *HTTPGateway) BlockHeight(ctx context.Context) (int64, error) {
	raw, err := g.do(ctx, http.MethodGet, "/info", nil, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("getting network info: %w", err)
	}
	var info struct {
		Height int64 `json:"height"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return 0, fmt.Errorf("parsing network info: %w", err)
	}
	return info.Height, nil
}

func (g *HTTPGateway) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.client.Do(req)
}

// do performs a request and returns the body when the status is want.
func (g *HTTPGateway) do(ctx context.Context, method, path string, body []byte, want int) ([]byte, error) {
	resp, err := g.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: %s", method, path, readError(resp))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return raw, nil
}

func readError(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(msg) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(msg))
}
