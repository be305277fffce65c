package ardrive

import (
	"errors"
	"fmt"
)

// Error kinds shared by every layer of the engine. Callers match them with
// errors.Is; the typed errors below carry the context needed to recover.
var (
	// ErrKeyDerivation indicates a malformed drive or entity identifier.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrDecryption indicates an authentication failure: wrong key or passphrase.
	ErrDecryption = errors.New("decryption failed")

	// ErrMalformedPayload indicates corrupt or unparseable ledger data.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrGatewayUnavailable indicates that every configured endpoint exhausted its tries.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrUploadIncomplete indicates a chunk could not be delivered within the retry budget.
	ErrUploadIncomplete = errors.New("upload incomplete")

	// ErrConflict indicates local and remote versions diverged.
	ErrConflict = errors.New("sync conflict")

	// ErrNotFound indicates the requested entity or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a sync status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid sync status transition")

	// ErrCycle indicates a parent-folder cycle was observed during path reconstruction.
	ErrCycle = errors.New("parent folder cycle")
)

// GatewayUnavailableError is returned when a paginated query gives up.
// Edges gathered before the failure are returned alongside it; Cursor is the
// last cursor seen, from which the query can be resumed.
type GatewayUnavailableError struct {
	Cursor    string
	Collected int
	Err       error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("gateway unavailable after %d edges (resume cursor %q): %v", e.Collected, e.Cursor, e.Err)
}

func (e *GatewayUnavailableError) Is(target error) bool { return target == ErrGatewayUnavailable }

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }

// UploadIncompleteError reports the chunk at which an upload stopped.
// The uploader state was persisted before returning, so the upload can resume.
type UploadIncompleteError struct {
	TxID  string
	Chunk int
	Err   error
}

func (e *UploadIncompleteError) Error() string {
	return fmt.Sprintf("upload of %s incomplete at chunk %d: %v", e.TxID, e.Chunk, e.Err)
}

func (e *UploadIncompleteError) Is(target error) bool { return target == ErrUploadIncomplete }

func (e *UploadIncompleteError) Unwrap() error { return e.Err }

// ConflictError describes a local/remote divergence for a single entity.
// Conflicts are surfaced to the user and never resolved automatically.
type ConflictError struct {
	EntityID string
	Path     string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s (%s): %s", e.Path, e.EntityID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
