package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/reconcile"
)

// CreateDriveOptions describes a new drive.
type CreateDriveOptions struct {
	Name       string
	Private    bool
	Passphrase string
}

// CreateDrive creates a drive and its root folder, named like the drive,
// and uploads both: as one bundle when bundling is on, otherwise as two
// transactions. The local root folder is created under the sync folder.
// An upload that fails part way returns the drive together with the error;
// UploadPending resumes it.
func (s *Service) CreateDrive(ctx context.Context, opts CreateDriveOptions) (*ardrive.Drive, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("creating drive: name is required")
	}
	if opts.Private && opts.Passphrase == "" {
		return nil, fmt.Errorf("creating drive: a private drive needs a passphrase")
	}

	driveID, rootID := s.ids.New(), s.ids.New()
	now := s.clock.Now().Unix()
	privacy := arfs.Public
	if opts.Private {
		privacy = arfs.Private
	}

	var dk *keys.DriveKey
	if opts.Private {
		var err error
		if dk, err = keys.DeriveDriveKey(s.wallet.PrivateKey(), driveID, opts.Passphrase); err != nil {
			return nil, err
		}
	}

	drive := &arfs.Drive{
		Metadata:     arfs.Metadata{EntityID: driveID, Name: opts.Name, UnixTime: now, Privacy: privacy},
		RootFolderID: rootID,
	}
	root := &arfs.Folder{
		Metadata: arfs.Metadata{EntityID: rootID, DriveID: driveID, Name: opts.Name, UnixTime: now, Privacy: privacy},
	}

	var txs []*ledger.Transaction
	bundleID := ""
	if s.cfg.Bundle {
		driveItem, err := s.builder.BuildItem(drive, dk)
		if err != nil {
			return nil, err
		}
		rootItem, err := s.builder.BuildItem(root, dk)
		if err != nil {
			return nil, err
		}
		bundle, err := s.builder.BuildBundle([]*ledger.DataItem{driveItem, rootItem})
		if err != nil {
			return nil, err
		}
		txs = append(txs, bundle)
		bundleID = bundle.ID
	} else {
		driveTx, err := s.builder.Build(drive, dk)
		if err != nil {
			return nil, err
		}
		rootTx, err := s.builder.Build(root, dk)
		if err != nil {
			return nil, err
		}
		txs = append(txs, driveTx, rootTx)
	}

	rootPath := filepath.Join(s.cfg.SyncFolder, opts.Name)
	if err := s.fsmgr.MkdirAll(rootPath); err != nil {
		return nil, fmt.Errorf("creating folder of drive %q: %w", opts.Name, err)
	}

	row := &ardrive.Drive{
		DriveID:       driveID,
		Login:         s.cfg.Login,
		Name:          opts.Name,
		RootFolderID:  rootID,
		Privacy:       string(privacy),
		DriveAuthMode: drive.DriveAuthMode,
		Cipher:        drive.Cipher,
		CipherIV:      drive.CipherIV,
		MetadataTxID:  drive.TxID,
		UnixTime:      now,
		SyncStatus:    ardrive.Submitted,
	}
	rec := &ardrive.SyncRecord{
		Login:            s.cfg.Login,
		AppName:          root.AppName,
		AppVersion:       root.AppVersion,
		UnixTime:         now,
		ContentType:      root.ContentType,
		EntityType:       string(arfs.FolderEntity),
		DriveID:          driveID,
		EntityID:         rootID,
		FileName:         opts.Name,
		FilePath:         rootPath,
		FileVersion:      1,
		Cipher:           root.Cipher,
		MetadataCipherIV: root.CipherIV,
		IsLocal:          ardrive.LocalPresent,
		IsPublic:         !opts.Private,
		BundleTxID:       bundleID,
		UploadTime:       now,
	}
	if err := reconcile.Queue(rec, reconcile.MetadataStatus); err != nil {
		return nil, err
	}
	if err := reconcile.Submit(rec, reconcile.MetadataStatus, root.TxID); err != nil {
		return nil, err
	}

	if err := s.db.PutDrive(row); err != nil {
		return nil, fmt.Errorf("recording drive: %w", err)
	}
	if err := s.db.PutRecord(rec); err != nil {
		return nil, fmt.Errorf("recording root folder: %w", err)
	}
	if bundleID != "" {
		if err := s.db.PutBundle(&ardrive.Bundle{BundleTxID: bundleID, Login: s.cfg.Login, ItemCount: 2, SyncStatus: ardrive.Submitted, UploadTime: now}); err != nil {
			return nil, fmt.Errorf("recording bundle: %w", err)
		}
	}
	if dk != nil {
		s.keys.Put(driveID, dk)
	}

	s.logger.Info("drive created", "drive", driveID, "name", opts.Name, "privacy", privacy, "bundled", bundleID != "")
	if err := errors.Join(s.scheduler.Run(ctx, txs)...); err != nil {
		return row, fmt.Errorf("uploading drive %q: %w", opts.Name, err)
	}
	return row, nil
}

// ListDrives returns the drives the wallet owns on the ledger. Private drives
// are invalid-password sentinels until attached with their passphrase.
func (s *Service) ListDrives(ctx context.Context) ([]*arfs.Drive, error) {
	return s.resolver.ListDrives(ctx, s.wallet.Address())
}

// LocalDrives returns the drives attached to this login.
func (s *Service) LocalDrives() ([]*ardrive.Drive, error) {
	drives, err := s.db.ListDrives(s.cfg.Login)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	return drives, nil
}

// AttachDrive resolves an existing drive from the ledger and records it
// locally, so SyncDrive can pull its contents. A private drive needs its
// passphrase; a wrong one returns an error wrapping ardrive.ErrDecryption.
func (s *Service) AttachDrive(ctx context.Context, driveID, passphrase string) (*ardrive.Drive, error) {
	var dk *keys.DriveKey
	if passphrase != "" {
		var err error
		if dk, err = keys.DeriveDriveKey(s.wallet.PrivateKey(), driveID, passphrase); err != nil {
			return nil, err
		}
	}

	e, err := s.resolver.GetEntity(ctx, arfs.DriveEntity, driveID, s.wallet.Address(), dk)
	if err != nil {
		return nil, fmt.Errorf("resolving drive %s: %w", driveID, err)
	}
	d, ok := e.(*arfs.Drive)
	if !ok {
		return nil, fmt.Errorf("entity %s is a %s, not a drive: %w", driveID, e.Kind(), ardrive.ErrMalformedPayload)
	}
	if d.Invalid {
		return nil, fmt.Errorf("drive %s: invalid passphrase: %w", driveID, ardrive.ErrDecryption)
	}

	existing, err := s.db.GetDrive(driveID)
	if err != nil {
		return nil, fmt.Errorf("loading drive %s: %w", driveID, err)
	}
	row := &ardrive.Drive{
		DriveID:       driveID,
		Login:         s.cfg.Login,
		Name:          d.Name,
		RootFolderID:  d.RootFolderID,
		Privacy:       string(d.Privacy),
		DriveAuthMode: d.DriveAuthMode,
		Cipher:        d.Cipher,
		CipherIV:      d.CipherIV,
		MetadataTxID:  d.TxID,
		UnixTime:      d.UnixTime,
		SyncStatus:    ardrive.Confirmed,
	}
	if existing != nil {
		row.LastBlockHeight = existing.LastBlockHeight
	}
	if err := s.db.PutDrive(row); err != nil {
		return nil, fmt.Errorf("recording drive: %w", err)
	}
	if dk != nil {
		s.keys.Put(driveID, dk)
	}
	s.logger.Info("drive attached", "drive", driveID, "name", d.Name)
	return row, nil
}
