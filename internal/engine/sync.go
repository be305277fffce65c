package engine

import (
	"context"
	"errors"
	"fmt"

	"ardrive-go/internal/arfs"
	"ardrive-go/internal/reconcile"
)

// SyncReport summarizes one pull of remote versions.
type SyncReport struct {
	Changes       []reconcile.Change
	PathsResolved int
	BlockHeight   int64
}

// Count returns the number of changes with the given action.
func (r *SyncReport) Count(a reconcile.Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == a {
			n++
		}
	}
	return n
}

// SyncDrive pulls the folder and file versions of driveID published since
// the last sync and applies them to the mirror, then rebuilds local paths.
// When the gateway gives out part way, whatever was fetched is still applied
// and the error is returned; the stored height is only advanced after a
// complete pull, so the next sync re-reads the gap.
func (s *Service) SyncDrive(ctx context.Context, driveID string) (*SyncReport, error) {
	unlock := s.locks.Lock(driveID)
	defer unlock()

	d, err := s.drive(driveID)
	if err != nil {
		return nil, err
	}
	dk, err := s.driveKey(d)
	if err != nil {
		return nil, err
	}

	owner := s.wallet.Address()
	folders, folderErr := s.resolver.GetAllEntities(ctx, arfs.FolderEntity, driveID, owner, d.LastBlockHeight, dk)
	files, fileErr := s.resolver.GetAllEntities(ctx, arfs.FileEntity, driveID, owner, d.LastBlockHeight, dk)
	fetchErr := errors.Join(folderErr, fileErr)

	entities := append(folders, files...)
	report := &SyncReport{BlockHeight: d.LastBlockHeight}
	for _, e := range entities {
		report.BlockHeight = max(report.BlockHeight, e.Meta().BlockHeight)
	}

	report.Changes, err = s.reconciler.ApplyRemote(driveID, entities)
	if err != nil {
		return report, err
	}
	rootPath, err := s.rootPath(d)
	if err != nil {
		return report, err
	}
	report.PathsResolved, err = s.reconciler.ResolvePaths(driveID, rootPath)
	if err != nil {
		return report, fmt.Errorf("syncing drive %q: %w", d.Name, err)
	}

	if fetchErr != nil {
		s.logger.Warn("partial sync", "drive", driveID, "fetched", len(entities), "error", fetchErr)
		return report, fmt.Errorf("syncing drive %q: %w", d.Name, fetchErr)
	}
	if report.BlockHeight > d.LastBlockHeight {
		if err := s.db.UpdateDriveLastBlockHeight(driveID, report.BlockHeight); err != nil {
			return report, fmt.Errorf("recording sync height: %w", err)
		}
	}
	for _, c := range report.Changes {
		if c.Err != nil {
			s.logger.Warn("conflict needs a decision", "path", c.Record.FilePath, "error", c.Err)
		}
	}
	s.logger.Info("sync complete", "drive", driveID, "versions", len(entities), "changes", len(report.Changes), "height", report.BlockHeight)
	return report, nil
}
