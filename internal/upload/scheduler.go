package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/ledger"
)

const (
	DefaultWorkers         = 4
	DefaultMaxChunkRetries = 5
)

// Config tunes a Scheduler. Zero values select the defaults.
type Config struct {
	Workers         int
	MaxChunkRetries int
	// Backoff returns the pause before retry attempt (1-based). Nil retries immediately.
	Backoff func(attempt int) time.Duration
}

// LinearBackoff waits step times the attempt number between tries.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// Scheduler uploads signed transactions resumably. Each transaction's body
// is kept in the vault and its progress in the database after every chunk,
// so an interrupted upload continues where it stopped.
type Scheduler struct {
	gateway ardrive.Gateway
	vault   ardrive.Vault
	db      ardrive.Database
	clock   ardrive.Clock
	logger  ardrive.Logger
	cfg     Config
	locks   *txLocks
}

// NewScheduler creates a Scheduler.
func NewScheduler(gateway ardrive.Gateway, vault ardrive.Vault, db ardrive.Database, clock ardrive.Clock, logger ardrive.Logger, cfg Config) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxChunkRetries < 1 {
		cfg.MaxChunkRetries = DefaultMaxChunkRetries
	}
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}
	if clock == nil {
		clock = ardrive.RealClock{}
	}
	return &Scheduler{gateway: gateway, vault: vault, db: db, clock: clock, logger: logger, cfg: cfg, locks: newTxLocks()}
}

// Submit uploads tx, which must be signed and carry its data. If a chunk
// still fails after MaxChunkRetries attempts, or ctx is cancelled, it
// returns an *ardrive.UploadIncompleteError and the saved progress is kept
// for Resume. Calls for the same transaction run one at a time.
func (s *Scheduler) Submit(ctx context.Context, tx *ledger.Transaction) error {
	if int64(len(tx.Data)) != tx.DataSize {
		return fmt.Errorf("submitting %s: data not loaded", tx.ID)
	}
	unlock := s.locks.lock(tx.ID)
	defer unlock()

	saved, err := s.db.GetUploadState(tx.ID)
	if err != nil {
		return fmt.Errorf("loading upload state of %s: %w", tx.ID, err)
	}
	if saved != nil {
		state, err := UnmarshalState(saved.State)
		if err != nil {
			return err
		}
		u, err := Restore(s.gateway, state, tx.Data)
		if err != nil {
			return err
		}
		return s.finish(ctx, u)
	}

	if err := s.vault.PutContent(tx.ID, bytes.NewReader(tx.Data), tx.DataSize); err != nil {
		return fmt.Errorf("storing body of %s: %w", tx.ID, err)
	}
	u, err := NewUploader(s.gateway, tx)
	if err != nil {
		return err
	}
	if err := s.save(u); err != nil {
		return err
	}
	s.logger.Debug("upload started", "tx", tx.ID, "size", tx.DataSize, "chunks", tx.ChunkCount())
	return s.finish(ctx, u)
}

// Resume continues every upload with saved progress and returns the IDs of
// the transactions it completed. Failed uploads keep their progress; their
// errors are joined.
func (s *Scheduler) Resume(ctx context.Context) ([]string, error) {
	states, err := s.db.ListUploadStates()
	if err != nil {
		return nil, fmt.Errorf("listing upload states: %w", err)
	}
	txIDs := make([]string, 0, len(states))
	for _, saved := range states {
		txIDs = append(txIDs, saved.TxID)
	}
	return s.ResumeTxs(ctx, txIDs)
}

// ResumeTxs is Resume limited to txIDs. IDs without saved progress, such
// as uploads another caller finished meanwhile, are skipped.
func (s *Scheduler) ResumeTxs(ctx context.Context, txIDs []string) ([]string, error) {
	var done []string
	var errs []error
	for _, txID := range txIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		finished, err := s.resume(ctx, txID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if finished {
			done = append(done, txID)
		}
	}
	return done, errors.Join(errs...)
}

func (s *Scheduler) resume(ctx context.Context, txID string) (bool, error) {
	unlock := s.locks.lock(txID)
	defer unlock()

	saved, err := s.db.GetUploadState(txID)
	if err != nil {
		return false, fmt.Errorf("loading upload state of %s: %w", txID, err)
	}
	if saved == nil {
		return false, nil
	}
	u, err := s.restore(saved)
	if err != nil {
		return false, err
	}
	s.logger.Info("resuming upload", "tx", u.TxID(), "chunk", u.NextChunk())
	if err := s.finish(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns the transactions with saved, unfinished progress.
func (s *Scheduler) Pending() ([]UploaderState, error) {
	states, err := s.db.ListUploadStates()
	if err != nil {
		return nil, fmt.Errorf("listing upload states: %w", err)
	}
	out := make([]UploaderState, 0, len(states))
	for _, saved := range states {
		state, err := UnmarshalState(saved.State)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// Run submits txs on a bounded pool of workers. The returned slice holds
// the error of each transaction at its index.
func (s *Scheduler) Run(ctx context.Context, txs []*ledger.Transaction) []error {
	errs := make([]error, len(txs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range min(s.cfg.Workers, len(txs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = s.Submit(ctx, txs[i])
			}
		}()
	}

	for i := range txs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			errs[i] = ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return errs
}

func (s *Scheduler) restore(saved *ardrive.UploadState) (*Uploader, error) {
	state, err := UnmarshalState(saved.State)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if state.DataSize > 0 {
		if err := s.vault.GetContent(state.TxID, &body); err != nil {
			return nil, fmt.Errorf("loading body of %s: %w", state.TxID, err)
		}
	}
	return Restore(s.gateway, state, body.Bytes())
}

// finish drives u to completion, saving progress after every chunk.
func (s *Scheduler) finish(ctx context.Context, u *Uploader) error {
	for !u.IsComplete() {
		if err := s.step(ctx, u); err != nil {
			if saveErr := s.save(u); saveErr != nil {
				s.logger.Error("saving upload state failed", "tx", u.TxID(), "error", saveErr)
			}
			return &ardrive.UploadIncompleteError{TxID: u.TxID(), Chunk: u.NextChunk(), Err: err}
		}
		if err := s.save(u); err != nil {
			return err
		}
	}
	if err := s.db.DeleteUploadState(u.TxID()); err != nil {
		return fmt.Errorf("clearing upload state of %s: %w", u.TxID(), err)
	}
	s.logger.Info("upload complete", "tx", u.TxID())
	return nil
}

// step retries one UploadChunk call up to MaxChunkRetries times.
func (s *Scheduler) step(ctx context.Context, u *Uploader) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxChunkRetries; attempt++ {
		if err = u.UploadChunk(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("chunk upload failed", "tx", u.TxID(), "chunk", u.NextChunk(), "attempt", attempt, "error", err)
		if attempt < s.cfg.MaxChunkRetries && s.cfg.Backoff != nil {
			if err := sleep(ctx, s.cfg.Backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return err
}

func (s *Scheduler) save(u *Uploader) error {
	b, err := MarshalState(u.State())
	if err != nil {
		return err
	}
	if err := s.db.PutUploadState(&ardrive.UploadState{TxID: u.TxID(), State: b, UpdatedAt: s.clock.Now()}); err != nil {
		return fmt.Errorf("saving upload state of %s: %w", u.TxID(), err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// txLocks hands out one mutex per transaction ID.
type txLocks struct {
	mu    sync.Mutex
	locks map[string]*txLock
}

type txLock struct {
	mu   sync.Mutex
	refs int
}

func newTxLocks() *txLocks {
	return &txLocks{locks: make(map[string]*txLock)}
}

func (t *txLocks) lock(txID string) func() {
	t.mu.Lock()
	l, ok := t.locks[txID]
	if !ok {
		l = &txLock{}
		t.locks[txID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, txID)
		}
		t.mu.Unlock()
	}
}
