package upload

import (
	"context"
	"fmt"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/ledger"
)

// Uploader sends one transaction: its header, then its data one chunk at a
// time. Its progress is captured by State and can be restored with Restore.
type Uploader struct {
	gateway ardrive.Gateway
	tx      *ledger.Transaction
	chunks  []*ledger.Chunk
	state   UploaderState
}

// NewUploader prepares an upload of tx, which must be signed and carry its data.
func NewUploader(gateway ardrive.Gateway, tx *ledger.Transaction) (*Uploader, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("uploading transaction: not signed")
	}
	return newUploader(gateway, tx, newState(tx))
}

// Restore continues an upload from a persisted state. data is the body the
// state was created for; a body that does not match the signed data root is
// rejected.
func Restore(gateway ardrive.Gateway, state UploaderState, data []byte) (*Uploader, error) {
	tx := state.transaction(data)
	if err := tx.Verify(); err != nil {
		return nil, fmt.Errorf("restoring upload of %s: %w", state.TxID, err)
	}
	return newUploader(gateway, tx, state)
}

func newUploader(gateway ardrive.Gateway, tx *ledger.Transaction, state UploaderState) (*Uploader, error) {
	chunks, err := tx.Chunks()
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", tx.ID, err)
	}
	if state.NextChunk > len(chunks) {
		return nil, fmt.Errorf("upload of %s: chunk %d out of range", tx.ID, state.NextChunk)
	}
	return &Uploader{gateway: gateway, tx: tx, chunks: chunks, state: state}, nil
}

// TxID returns the ID of the transaction being uploaded.
func (u *Uploader) TxID() string { return u.tx.ID }

// State returns a copy of the current progress.
func (u *Uploader) State() UploaderState {
	s := u.state
	s.Tags = append([]stateTag(nil), u.state.Tags...)
	return s
}

// IsComplete reports whether the header and every chunk have been accepted.
func (u *Uploader) IsComplete() bool {
	return u.state.HeaderPosted && u.state.NextChunk >= u.state.TotalChunks
}

// NextChunk returns the index of the chunk the next UploadChunk call sends.
func (u *Uploader) NextChunk() int { return u.state.NextChunk }

// UploadChunk makes one step of progress. The first call posts the header;
// every call posts at most one chunk. Calling it on a complete upload does
// nothing. A failed step keeps its position, so it can be retried.
func (u *Uploader) UploadChunk(ctx context.Context) error {
	if u.IsComplete() {
		return nil
	}
	if !u.state.HeaderPosted {
		if err := u.gateway.PostTransaction(ctx, u.tx.Header()); err != nil {
			u.state.LastError = err.Error()
			return fmt.Errorf("posting header of %s: %w", u.tx.ID, err)
		}
		u.state.HeaderPosted = true
		if u.IsComplete() {
			return nil
		}
	}

	chunk := u.chunks[u.state.NextChunk]
	if err := u.gateway.PostChunk(ctx, chunk); err != nil {
		u.state.LastError = err.Error()
		return fmt.Errorf("posting chunk %d of %s: %w", chunk.Index, u.tx.ID, err)
	}
	u.state.NextChunk++
	u.state.LastError = ""
	return nil
}
