package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/fs"
	"ardrive-go/internal/keys"
)

// DownloadReport summarizes one Download run.
type DownloadReport struct {
	Folders int // folders created
	Files   int // files fetched
	Moved   int // files and folders relocated on disk without fetching
	Failed  int
}

// Download materializes the remote-only versions of driveID: folders first,
// then files. A folder or file already on disk under an older path is moved
// instead of created or fetched again.
func (s *Service) Download(ctx context.Context, driveID string) (*DownloadReport, error) {
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

	report := &DownloadReport{}
	folders, err := s.reconciler.FoldersToCreate(driveID)
	if err != nil {
		return nil, err
	}
	for _, rec := range folders {
		moved, err := s.moveFolder(rec)
		if err != nil {
			return report, err
		}
		if moved {
			report.Moved++
		} else {
			if err := s.fsmgr.MkdirAll(rec.FilePath); err != nil {
				return report, err
			}
			report.Folders++
		}
		if err := s.settle(rec); err != nil {
			return report, err
		}
	}

	files, err := s.reconciler.FilesToDownload(driveID)
	if err != nil {
		return report, err
	}
	var errs []error
	for _, rec := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		moved, err := s.relocate(rec)
		if err != nil {
			return report, err
		}
		if moved {
			report.Moved++
			continue
		}
		if err := s.fetch(ctx, d, rec, dk); err != nil {
			report.Failed++
			errs = append(errs, err)
			s.logger.Warn("download failed", "path", rec.FilePath, "error", err)
			rec.StatusReason = err.Error()
			if err := s.db.PutRecord(rec); err != nil {
				return report, fmt.Errorf("updating %s: %w", rec.FilePath, err)
			}
			continue
		}
		report.Files++
	}

	s.logger.Info("download complete", "drive", driveID, "folders", report.Folders, "files", report.Files, "moved", report.Moved, "failed", report.Failed)
	return report, errors.Join(errs...)
}

// fetch downloads the content of rec and writes it to its path.
func (s *Service) fetch(ctx context.Context, d *ardrive.Drive, rec *ardrive.SyncRecord, dk *keys.DriveKey) error {
	f, ok := entityFromRecord(rec, d, true).(*arfs.File)
	if !ok {
		return fmt.Errorf("%s is not a file", rec.EntityID)
	}
	content, err := s.resolver.FileData(ctx, f, dk)
	if err != nil {
		return err
	}
	hash, err := fs.HashReader(bytes.NewReader(content))
	if err != nil {
		return err
	}
	if err := s.fsmgr.WriteFile(rec.FilePath, bytes.NewReader(content), rec.LastModifiedDate); err != nil {
		return err
	}
	rec.FileHash = hash
	rec.FileSize = int64(len(content))
	return s.settle(rec)
}

// relocate moves the on-disk copy of an earlier version of rec's entity to
// rec's path. It reports true when that copy already holds rec's content;
// otherwise the moved file is overwritten by the fetch that follows.
func (s *Service) relocate(rec *ardrive.SyncRecord) (bool, error) {
	prev, err := s.db.QueryRecords(ardrive.RecordQuery{
		DriveID:  rec.DriveID,
		EntityID: rec.EntityID,
		IsLocal:  ardrive.Ptr(ardrive.LocalPresent),
		OrderBy:  ardrive.OrderByVersionDesc,
	})
	if err != nil {
		return false, fmt.Errorf("loading versions of %s: %w", rec.EntityID, err)
	}
	for _, p := range prev {
		if p.ID == rec.ID || p.FilePath == "" {
			continue
		}
		if p.FilePath != rec.FilePath {
			if err := s.fsmgr.Rename(p.FilePath, rec.FilePath); err != nil {
				s.logger.Debug("earlier copy is gone, fetching instead", "path", p.FilePath, "error", err)
				return false, nil
			}
		}
		if p.DataTxID != rec.DataTxID {
			return false, nil
		}
		if rec.FileHash == "" {
			rec.FileHash = p.FileHash
		}
		return true, s.settle(rec)
	}
	return false, nil
}

// moveFolder renames the on-disk directory of an earlier version of rec's
// folder to rec's path, taking its contents along. It reports false when no
// earlier copy exists.
func (s *Service) moveFolder(rec *ardrive.SyncRecord) (bool, error) {
	prev, err := s.db.QueryRecords(ardrive.RecordQuery{
		DriveID:  rec.DriveID,
		EntityID: rec.EntityID,
		IsLocal:  ardrive.Ptr(ardrive.LocalPresent),
		OrderBy:  ardrive.OrderByVersionDesc,
	})
	if err != nil {
		return false, fmt.Errorf("loading versions of %s: %w", rec.EntityID, err)
	}
	for _, p := range prev {
		if p.ID == rec.ID || p.FilePath == "" || p.FilePath == rec.FilePath {
			continue
		}
		if err := s.fsmgr.Rename(p.FilePath, rec.FilePath); err != nil {
			s.logger.Debug("earlier folder is gone, creating instead", "path", p.FilePath, "error", err)
			return false, nil
		}
		s.logger.Info("moved folder", "from", p.FilePath, "to", rec.FilePath)
		return true, nil
	}
	return false, nil
}

// settle marks rec as on disk and retires older on-disk versions of its entity.
func (s *Service) settle(rec *ardrive.SyncRecord) error {
	rec.IsLocal = ardrive.LocalPresent
	rec.CloudOnly = false
	rec.StatusReason = ""
	if err := s.db.PutRecord(rec); err != nil {
		return fmt.Errorf("updating %s: %w", rec.FilePath, err)
	}
	prev, err := s.db.QueryRecords(ardrive.RecordQuery{
		DriveID:  rec.DriveID,
		EntityID: rec.EntityID,
		IsLocal:  ardrive.Ptr(ardrive.LocalPresent),
	})
	if err != nil {
		return fmt.Errorf("loading versions of %s: %w", rec.EntityID, err)
	}
	for _, p := range prev {
		if p.ID == rec.ID {
			continue
		}
		p.IsLocal = ardrive.LocalAbsent
		if err := s.db.PutRecord(p); err != nil {
			return fmt.Errorf("updating %s: %w", p.FilePath, err)
		}
	}
	return nil
}
