package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/config"
	"ardrive-go/internal/database"
	"ardrive-go/internal/engine"
	"ardrive-go/internal/fs"
	"ardrive-go/internal/gateway"
	"ardrive-go/internal/gql"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/reconcile"
	"ardrive-go/internal/resolver"
	"ardrive-go/internal/txbuilder"
	"ardrive-go/internal/upload"
	"ardrive-go/internal/vault"
)

// Version is stamped into the App-Version tag when the config does not set one.
const Version = "0.1.0"

// snapshotName is the vault metadata item holding the local store snapshot.
const snapshotName = "db"

// ErrWalletRequired is returned by commands that sign or derive keys when
// the app was opened without an unlocked wallet.
var ErrWalletRequired = errors.New("this command needs the unlocked wallet")

// Options carries what the CLI supplies besides the config.
type Options struct {
	// Wallet is the unlocked wallet. Read-only commands may leave it nil.
	Wallet  *ledger.Wallet
	Verbose bool

	// Overrides for tests. Nil values use the configured implementations.
	Gateway    ardrive.Gateway
	Transport  gql.Transport
	Filesystem ardrive.FilesystemManager
	Clock      ardrive.Clock
}

// ArDriveApp is the application layer between the CLI and the engine.
// It constructs all dependencies from config, records mutating commands as
// operations, and snapshots the local store into the vault on Close.
type ArDriveApp struct {
	cfg     *config.Config
	db      ardrive.Database
	vault   ardrive.Vault
	wallet  *ledger.Wallet
	service *engine.Service
	op      *Operation
	logFile io.Closer
	logger  ardrive.Logger
}

// NewArDriveApp creates a fully wired ArDriveApp from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "CreateDrive").
// The caller must call Close when done.
func NewArDriveApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*ArDriveApp, error) {
	if cfg.Login == "" {
		return nil, fmt.Errorf("no login configured")
	}
	if opts.Wallet != nil && opts.Wallet.Address() != cfg.Login {
		return nil, fmt.Errorf("wallet %s does not belong to login %s", opts.Wallet.Address(), cfg.Login)
	}
	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Login)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Another installation may have snapshotted a newer store for this login.
	remoteVersion, err := v.GetMetadataVersion(cfg.Login, snapshotName)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking remote metadata version: %w", err)
	}
	localMax, err := db.MaxSyncOperationID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking local metadata version: %w", err)
	}
	if remoteVersion > localMax {
		db.Close()
		return nil, fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, cfg.Log, opID, level)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	fsmgr := opts.Filesystem
	if fsmgr == nil {
		fsmgr = fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)
	}
	clock := opts.Clock
	if clock == nil {
		clock = ardrive.RealClock{}
	}
	gw := opts.Gateway
	if gw == nil {
		gw = gateway.NewHTTPGateway(cfg.Gateway.Primary, cfg.Gateway.Timeout(), logger)
	}
	transport := opts.Transport
	if transport == nil {
		transport = gql.NewHTTPTransport(cfg.Gateway.Timeout())
	}
	endpoints := cfg.Gateway.GraphQLEndpoints()
	policy := gql.NewFailoverPolicy(logger, endpoints[0], endpoints[1:]...)
	if cfg.Gateway.MaxTries > 0 {
		policy.MaxTries = cfg.Gateway.MaxTries
	}

	appVersion := cfg.AppVersion
	if appVersion == "" {
		appVersion = Version
	}
	codec := arfs.NewCodec(cfg.AppName, appVersion)

	svc := engine.NewService(engine.Deps{
		Database:   db,
		Filesystem: fsmgr,
		Gateway:    gw,
		Resolver:   resolver.New(gql.NewClient(transport, policy, logger), gw, v, codec, logger),
		Builder:    txbuilder.New(opts.Wallet, codec),
		Scheduler: upload.NewScheduler(gw, v, db, clock, logger, upload.Config{
			Workers:         cfg.Upload.Workers,
			MaxChunkRetries: cfg.Upload.MaxChunkRetries,
			Backoff:         upload.LinearBackoff(time.Second),
		}),
		Reconciler: reconcile.NewReconciler(db, ardrive.UUIDGenerator{}, clock, logger, cfg.Login),
		Wallet:     opts.Wallet,
		IDs:        ardrive.UUIDGenerator{},
		Clock:      clock,
		Logger:     logger,
	}, engine.Config{
		Login:          cfg.Login,
		SyncFolder:     cfg.SyncFolder,
		AppURL:         cfg.AppURL,
		Bundle:         cfg.Upload.Bundle,
		MaxBundleItems: cfg.Upload.MaxBundleItems,
	})

	return &ArDriveApp{
		cfg:     cfg,
		db:      db,
		vault:   v,
		wallet:  opts.Wallet,
		service: svc,
		op:      NewOperation(operation, ""),
		logFile: logFile,
		logger:  logger,
	}, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// Only mutating commands call it.
func (a *ArDriveApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateSyncOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

func (a *ArDriveApp) requireWallet() error {
	if a.wallet == nil {
		return ErrWalletRequired
	}
	return nil
}

// Address returns the login's wallet address.
func (a *ArDriveApp) Address() string {
	return a.cfg.Login
}

// CreateDrive creates a drive under the sync folder and uploads it.
func (a *ArDriveApp) CreateDrive(ctx context.Context, name string, private bool, passphrase string) (*ardrive.Drive, error) {
	if err := a.requireWallet(); err != nil {
		return nil, err
	}
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	d, err := a.service.CreateDrive(ctx, engine.CreateDriveOptions{Name: name, Private: private, Passphrase: passphrase})
	return d, a.op.Fail(err)
}

// ListDrives returns the drives the wallet owns on the ledger.
func (a *ArDriveApp) ListDrives(ctx context.Context) ([]*arfs.Drive, error) {
	if err := a.requireWallet(); err != nil {
		return nil, err
	}
	return a.service.ListDrives(ctx)
}

// LocalDrives returns the drives attached to this login.
func (a *ArDriveApp) LocalDrives() ([]*ardrive.Drive, error) {
	return a.service.LocalDrives()
}

// AttachDrive records an existing drive locally so it can be synced.
func (a *ArDriveApp) AttachDrive(ctx context.Context, driveID, passphrase string) (*ardrive.Drive, error) {
	if err := a.requireWallet(); err != nil {
		return nil, err
	}
	if err := a.persistOperation(driveID); err != nil {
		return nil, err
	}
	d, err := a.service.AttachDrive(ctx, driveID, passphrase)
	return d, a.op.Fail(err)
}

// UnlockDrive supplies the passphrase of a private drive for this session.
func (a *ArDriveApp) UnlockDrive(driveID, passphrase string) error {
	if err := a.requireWallet(); err != nil {
		return err
	}
	return a.service.UnlockDrive(driveID, passphrase)
}

// SyncResult gathers the reports of one full sync of a drive.
type SyncResult struct {
	Pull     *engine.SyncReport
	Download *engine.DownloadReport
	Local    []reconcile.Change
	Upload   *engine.UploadReport
}

// Sync pulls remote changes of driveID, materializes them, then scans the
// sync folder and uploads local changes. Remote versions are applied before
// the scan so that files fetched in this run are not mistaken for local edits.
func (a *ArDriveApp) Sync(ctx context.Context, driveID string) (*SyncResult, error) {
	if err := a.requireWallet(); err != nil {
		return nil, err
	}
	if err := a.persistOperation(driveID); err != nil {
		return nil, err
	}
	res := &SyncResult{}
	var err error
	if res.Pull, err = a.service.SyncDrive(ctx, driveID); err != nil {
		return res, a.op.Fail(err)
	}
	if res.Download, err = a.service.Download(ctx, driveID); err != nil {
		return res, a.op.Fail(err)
	}
	if res.Local, err = a.service.ScanLocal(ctx, driveID); err != nil {
		return res, a.op.Fail(err)
	}
	res.Upload, err = a.service.UploadPending(ctx, driveID)
	return res, a.op.Fail(err)
}

// Upload scans the sync folder of driveID and uploads local changes.
func (a *ArDriveApp) Upload(ctx context.Context, driveID string) (*engine.UploadReport, error) {
	if err := a.requireWallet(); err != nil {
		return nil, err
	}
	if err := a.persistOperation(driveID); err != nil {
		return nil, err
	}
	if _, err := a.service.ScanLocal(ctx, driveID); err != nil {
		return nil, a.op.Fail(err)
	}
	report, err := a.service.UploadPending(ctx, driveID)
	return report, a.op.Fail(err)
}

// Confirm checks every submitted transaction against the network.
func (a *ArDriveApp) Confirm(ctx context.Context) (*engine.ConfirmReport, error) {
	if err := a.persistOperation(""); err != nil {
		return nil, err
	}
	report, err := a.service.CheckConfirmations(ctx)
	return report, a.op.Fail(err)
}

// Status reports the sync state of driveID.
func (a *ArDriveApp) Status(driveID string) (*engine.DriveStatus, error) {
	return a.service.Status(driveID)
}

// Conflicts returns the versions of driveID that need a user decision.
func (a *ArDriveApp) Conflicts(driveID string) ([]*ardrive.SyncRecord, error) {
	return a.service.Conflicts(driveID)
}

// History returns the most recent operations.
func (a *ArDriveApp) History(limit int) ([]*ardrive.SyncOperation, error) {
	return a.service.History(limit)
}

// ShareFile returns the sharing link of a file.
func (a *ArDriveApp) ShareFile(fileID string) (string, error) {
	return a.service.ShareFileLink(fileID)
}

// ShareDrive returns the sharing link of a drive.
func (a *ArDriveApp) ShareDrive(driveID string) (string, error) {
	return a.service.ShareDriveLink(driveID)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the
// database and uploads the snapshot to the vault.
// For non-persisted operations: just closes the database.
func (a *ArDriveApp) Close() error {
	var firstErr error
	a.service.Close()

	if a.op.Persisted() {
		if err := a.db.FinishSyncOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}

		tmpPath := ""
		tmpFile, err := os.CreateTemp("", "ardrive-db-snapshot-*.db")
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("creating temp file for db snapshot: %w", err)
			}
		} else {
			tmpPath = tmpFile.Name()
			tmpFile.Close()
			// VACUUM INTO refuses to overwrite an existing file.
			os.Remove(tmpPath)
			if err := a.db.BackupTo(tmpPath); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("snapshotting database: %w", err)
				}
				tmpPath = ""
			}
		}

		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}

		if tmpPath != "" {
			if err := a.uploadSnapshot(tmpPath, a.op.ID); err != nil && firstErr == nil {
				firstErr = err
			}
			os.Remove(tmpPath)
		}
	} else if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// uploadSnapshot stores the database snapshot at path in the vault.
func (a *ArDriveApp) uploadSnapshot(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db snapshot: %w", err)
	}
	if err := a.vault.PutMetadata(a.cfg.Login, snapshotName, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading db snapshot to vault: %w", err)
	}
	return nil
}
