package reconcile

import (
	"fmt"
	"path/filepath"

	"ardrive-go/internal/ardrive"
)

// LocalFile is one entry found by scanning a drive's sync folder.
type LocalFile struct {
	Path             string // absolute
	IsDir            bool
	Size             int64
	LastModifiedDate int64 // milliseconds since the epoch
	Hash             string
	ContentType      string
}

// Classification is the outcome of matching a scanned entry against the mirror.
type Classification struct {
	Action Action
	Match  *ardrive.SyncRecord
}

// ClassifyLocal matches f against the current records of driveID. Matching
// is first-match in priority order: the current version at the same path;
// then a vanished file with the same hash under the same parent (a rename);
// then a vanished file with the same hash and name under another parent
// (a move). Anything else is new.
func (r *Reconciler) ClassifyLocal(driveID string, f LocalFile) (Classification, error) {
	s, err := r.load(driveID)
	if err != nil {
		return Classification{}, err
	}
	return classify(s, f), nil
}

func classify(s *snapshot, f LocalFile) Classification {
	if rec := s.at(f.Path); rec != nil && (rec.EntityType == "folder") == f.IsDir {
		if f.IsDir || (rec.FileHash != "" && rec.FileHash == f.Hash && rec.FileSize == f.Size) {
			return Classification{Action: Unchanged, Match: rec}
		}
		return Classification{Action: NewVersion, Match: rec}
	}
	if f.IsDir || f.Hash == "" {
		return Classification{Action: New}
	}

	dir, name := filepath.Dir(f.Path), filepath.Base(f.Path)
	var move *ardrive.SyncRecord
	for _, rec := range s.all {
		if !s.isLatest(rec) || rec.EntityType != "file" || rec.FileHash != f.Hash {
			continue
		}
		if rec.IsLocal == ardrive.LocalPresent || rec.FilePath == "" || rec.FilePath == f.Path {
			continue
		}
		if filepath.Dir(rec.FilePath) == dir {
			return Classification{Action: Rename, Match: rec}
		}
		if move == nil && rec.FileName == name {
			move = rec
		}
	}
	if move != nil {
		return Classification{Action: Move, Match: move}
	}
	return Classification{Action: New}
}

// ApplyLocal folds a scan of driveID's sync folder into the mirror. Current
// versions whose path was not scanned are marked absent first, so that a
// renamed or moved file is recognized by its vanished original. Entries must
// be ordered parents first. Applying the same scan twice changes nothing.
func (r *Reconciler) ApplyLocal(driveID string, files []LocalFile) ([]Change, error) {
	drive, err := r.drive(driveID)
	if err != nil {
		return nil, err
	}
	s, err := r.load(driveID)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}

	var changes []Change
	for _, rec := range s.all {
		if !s.isLatest(rec) || rec.IsRoot() || rec.IsLocal != ardrive.LocalPresent || rec.FilePath == "" || present[rec.FilePath] {
			continue
		}
		rec.IsLocal = ardrive.LocalAbsent
		if err := r.db.PutRecord(rec); err != nil {
			return changes, fmt.Errorf("marking %s absent: %w", rec.FilePath, err)
		}
		changes = append(changes, Change{Action: Missing, Record: rec})
	}

	now := r.clock.Now().Unix()
	for _, f := range files {
		c := classify(s, f)
		if c.Match != nil && c.Match.IsLocal == ardrive.LocalConflict {
			continue
		}
		if c.Action == Unchanged {
			if err := r.touch(c.Match, f); err != nil {
				return changes, err
			}
			continue
		}

		parent := s.folderAt(filepath.Dir(f.Path))
		if parent == nil {
			r.logger.Warn("skipping entry outside a known folder", "path", f.Path)
			continue
		}

		var rec *ardrive.SyncRecord
		switch c.Action {
		case New:
			rec = &ardrive.SyncRecord{
				Login:       r.login,
				EntityType:  "file",
				DriveID:     driveID,
				EntityID:    r.ids.New(),
				FileVersion: 1,
				IsPublic:    !drive.IsPrivate(),
			}
			if f.IsDir {
				rec.EntityType = "folder"
			}
		default:
			rec = successor(c.Match)
			if c.Action == Rename || c.Action == Move {
				// Same content: the existing data transaction still applies.
				rec.DataTxID = c.Match.DataTxID
				rec.DataCipherIV = c.Match.DataCipherIV
				rec.DataSyncStatus = c.Match.DataSyncStatus
			}
		}
		rec.UnixTime = now
		rec.ParentFolderID = parent.EntityID
		rec.FileName = filepath.Base(f.Path)
		rec.FilePath = f.Path
		rec.IsLocal = ardrive.LocalPresent
		if !f.IsDir {
			rec.FileSize = f.Size
			rec.FileHash = f.Hash
			rec.LastModifiedDate = f.LastModifiedDate
			rec.DataContentType = f.ContentType
		}

		if err := r.db.PutRecord(rec); err != nil {
			return changes, fmt.Errorf("recording %s: %w", f.Path, err)
		}
		s.add(rec)
		changes = append(changes, Change{Action: c.Action, Record: rec, Previous: c.Match})
		r.logger.Debug("local change", "action", c.Action, "path", f.Path, "entity", rec.EntityID)
	}
	return changes, nil
}

// touch refreshes bookkeeping on an unchanged record: presence and the cached hash.
func (r *Reconciler) touch(rec *ardrive.SyncRecord, f LocalFile) error {
	dirty := false
	if rec.IsLocal == ardrive.LocalAbsent {
		rec.IsLocal = ardrive.LocalPresent
		rec.CloudOnly = false
		dirty = true
	}
	if !f.IsDir && rec.FileHash == "" && f.Hash != "" {
		rec.FileHash = f.Hash
		dirty = true
	}
	if !dirty {
		return nil
	}
	if err := r.db.PutRecord(rec); err != nil {
		return fmt.Errorf("updating %s: %w", rec.FilePath, err)
	}
	return nil
}

// successor starts a new, unsynced version of prev's entity.
func successor(prev *ardrive.SyncRecord) *ardrive.SyncRecord {
	return &ardrive.SyncRecord{
		Login:            prev.Login,
		EntityType:       prev.EntityType,
		DriveID:          prev.DriveID,
		ParentFolderID:   prev.ParentFolderID,
		EntityID:         prev.EntityID,
		FileSize:         prev.FileSize,
		FileName:         prev.FileName,
		FileHash:         prev.FileHash,
		FilePath:         prev.FilePath,
		FileVersion:      prev.FileVersion + 1,
		LastModifiedDate: prev.LastModifiedDate,
		IsPublic:         prev.IsPublic,
		DataContentType:  prev.DataContentType,
	}
}

// KnownHash returns the cached content hash of the current version at path
// when its size and modification time still match, so unchanged files are
// not rehashed on every scan. It returns "" when the file must be hashed.
func (r *Reconciler) KnownHash(driveID, path string, size, lastModified int64) (string, error) {
	recs, err := r.db.QueryRecords(ardrive.RecordQuery{
		DriveID:  driveID,
		FilePath: path,
		OrderBy:  ardrive.OrderByVersionDesc,
		Limit:    1,
	})
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", path, err)
	}
	if len(recs) == 0 {
		return "", nil
	}
	rec := recs[0]
	if rec.IsLocal == ardrive.LocalPresent && rec.FileSize == size && rec.LastModifiedDate == lastModified {
		return rec.FileHash, nil
	}
	return "", nil
}
