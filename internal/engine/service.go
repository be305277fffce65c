// Package engine orchestrates the sync core for the CLI: it creates drives,
// scans sync folders, pulls remote versions, uploads pending versions,
// confirms submissions and materializes remote files on disk.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/reconcile"
	"ardrive-go/internal/resolver"
	"ardrive-go/internal/txbuilder"
	"ardrive-go/internal/upload"
)

// DefaultAppURL is the web app that sharing links point at.
const DefaultAppURL = "https://app.ardrive.io"

// DefaultMaxBundleItems caps the data items in one bundle transaction.
const DefaultMaxBundleItems = 500

// ErrDriveLocked is returned when a private drive is used before its
// passphrase was supplied in this session.
var ErrDriveLocked = errors.New("drive is locked")

// Config holds the per-login settings of a Service.
type Config struct {
	Login          string
	SyncFolder     string
	AppURL         string
	Bundle         bool
	MaxBundleItems int
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Database   ardrive.Database
	Filesystem ardrive.FilesystemManager
	Gateway    ardrive.Gateway
	Resolver   *resolver.Resolver
	Builder    *txbuilder.Builder
	Scheduler  *upload.Scheduler
	Reconciler *reconcile.Reconciler
	Wallet     *ledger.Wallet
	Keys       *keys.Cache
	IDs        ardrive.IDGenerator
	Clock      ardrive.Clock
	Logger     ardrive.Logger
}

// Service is the orchestration layer behind every CLI command.
// Mutations of one drive are serialized; different drives proceed in parallel.
type Service struct {
	db         ardrive.Database
	fsmgr      ardrive.FilesystemManager
	gateway    ardrive.Gateway
	resolver   *resolver.Resolver
	builder    *txbuilder.Builder
	scheduler  *upload.Scheduler
	reconciler *reconcile.Reconciler
	wallet     *ledger.Wallet
	keys       *keys.Cache
	ids        ardrive.IDGenerator
	clock      ardrive.Clock
	logger     ardrive.Logger
	cfg        Config
	locks      *keyedMutex
}

// NewService creates a Service.
func NewService(d Deps, cfg Config) *Service {
	if cfg.AppURL == "" {
		cfg.AppURL = DefaultAppURL
	}
	if cfg.MaxBundleItems < 2 {
		cfg.MaxBundleItems = DefaultMaxBundleItems
	}
	if d.Keys == nil {
		d.Keys = keys.NewCache()
	}
	if d.Logger == nil {
		d.Logger = ardrive.NewNopLogger()
	}
	if d.Clock == nil {
		d.Clock = ardrive.RealClock{}
	}
	if d.IDs == nil {
		d.IDs = ardrive.UUIDGenerator{}
	}
	return &Service{
		db:         d.Database,
		fsmgr:      d.Filesystem,
		gateway:    d.Gateway,
		resolver:   d.Resolver,
		builder:    d.Builder,
		scheduler:  d.Scheduler,
		reconciler: d.Reconciler,
		wallet:     d.Wallet,
		keys:       d.Keys,
		ids:        d.IDs,
		clock:      d.Clock,
		logger:     d.Logger,
		cfg:        cfg,
		locks:      newKeyedMutex(),
	}
}

// Address returns the wallet address the service signs for.
func (s *Service) Address() string { return s.wallet.Address() }

// UnlockDrive derives the key of a private drive from passphrase and keeps
// it for the rest of the session. Whether the passphrase is right only shows
// when the drive's entities are decrypted.
func (s *Service) UnlockDrive(driveID, passphrase string) error {
	k, err := keys.DeriveDriveKey(s.wallet.PrivateKey(), driveID, passphrase)
	if err != nil {
		return err
	}
	s.keys.Put(driveID, k)
	return nil
}

// Close forgets every derived key.
func (s *Service) Close() {
	s.keys.Clear()
}

// drive returns the local row of driveID.
func (s *Service) drive(driveID string) (*ardrive.Drive, error) {
	d, err := s.db.GetDrive(driveID)
	if err != nil {
		return nil, fmt.Errorf("loading drive %s: %w", driveID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("drive %s: %w", driveID, ardrive.ErrNotFound)
	}
	return d, nil
}

// driveKey returns the session key of a private drive, or nil for a public one.
func (s *Service) driveKey(d *ardrive.Drive) (*keys.DriveKey, error) {
	if !d.IsPrivate() {
		return nil, nil
	}
	k, ok := s.keys.Get(d.DriveID)
	if !ok {
		return nil, fmt.Errorf("drive %s (%s): %w", d.Name, d.DriveID, ErrDriveLocked)
	}
	return k, nil
}

// rootPath returns where driveID's root folder lives on disk.
func (s *Service) rootPath(d *ardrive.Drive) (string, error) {
	recs, err := s.db.QueryRecords(ardrive.RecordQuery{
		DriveID:  d.DriveID,
		EntityID: d.RootFolderID,
		OrderBy:  ardrive.OrderByVersionDesc,
		Limit:    1,
	})
	if err != nil {
		return "", fmt.Errorf("loading root folder of %s: %w", d.DriveID, err)
	}
	if len(recs) > 0 && recs[0].FilePath != "" {
		return recs[0].FilePath, nil
	}
	return filepath.Join(s.cfg.SyncFolder, d.Name), nil
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
