package ardrive

import (
	"context"
	"net/http"

	"ardrive-go/internal/ledger"
)

// TxStatus is the ledger's view of a submitted transaction.
type TxStatus struct {
	Code          int
	BlockHeight   int64
	Confirmations int64
}

// Confirmed reports whether the transaction has been mined.
func (s TxStatus) Confirmed() bool { return s.Code == http.StatusOK }

// Pending reports whether the transaction was accepted but not yet mined.
func (s TxStatus) Pending() bool { return s.Code == http.StatusAccepted }

// Gateway is the ledger network's write and data-read surface.
// Every call is a suspension point and honors ctx cancellation.
type Gateway interface {
	// PostTransaction submits a signed transaction header. Data follows in chunks.
	PostTransaction(ctx context.Context, tx *ledger.Transaction) error

	// PostChunk submits one data chunk. Re-posting an accepted chunk is harmless.
	PostChunk(ctx context.Context, chunk *ledger.Chunk) error

	// GetTransactionStatus reports whether txID is pending or confirmed.
	GetTransactionStatus(ctx context.Context, txID string) (TxStatus, error)

	// GetData returns the body of a transaction or bundled data item.
	GetData(ctx context.Context, txID string) ([]byte, error)

	// BlockHeight returns the current chain height.
	BlockHeight(ctx context.Context) (int64, error)
}
