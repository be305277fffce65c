package reconcile

import (
	"fmt"
	"path/filepath"

	"ardrive-go/internal/ardrive"
)

// ResolvePaths fills in the local path of every record of driveID whose path
// is empty and whose parent folder's path is known. The drive's root folder
// maps to rootPath. Current versions whose path no longer agrees with their
// parent's current path are rewritten in place, which carries the contents of
// a renamed or moved folder along with it. Each pass settles at least one
// more tree level, so the loop stops after at most one pass per record.
// Records whose parent chain is still unknown keep an empty path; a chain
// that loops returns ErrCycle. It returns the number of records updated.
func (r *Reconciler) ResolvePaths(driveID, rootPath string) (int, error) {
	s, err := r.load(driveID)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for pass := 0; pass <= len(s.all); pass++ {
		progress := false
		for _, rec := range s.all {
			if rec.FilePath != "" && (rec.IsRoot() || !s.isLatest(rec)) {
				continue
			}
			path := rootPath
			if !rec.IsRoot() {
				parent := s.latest[rec.ParentFolderID]
				if parent == nil || parent.EntityType != "folder" || parent.FilePath == "" {
					continue
				}
				path = filepath.Join(parent.FilePath, rec.FileName)
			}
			if path == rec.FilePath {
				continue
			}
			if rec.FilePath != "" {
				r.logger.Debug("parent folder moved", "entity", rec.EntityID, "from", rec.FilePath, "to", path)
				if s.byPath[rec.FilePath] == rec {
					delete(s.byPath, rec.FilePath)
				}
			}
			rec.FilePath = path
			if err := r.db.PutRecord(rec); err != nil {
				return resolved, fmt.Errorf("setting path of %s: %w", rec.EntityID, err)
			}
			s.index(rec)
			resolved++
			progress = true
		}
		if !progress {
			break
		}
	}

	for _, rec := range s.all {
		if rec.FilePath == "" && s.isLatest(rec) && cyclic(s, rec) {
			return resolved, fmt.Errorf("resolving path of %s %q: %w", rec.EntityType, rec.FileName, ardrive.ErrCycle)
		}
	}
	return resolved, nil
}

// cyclic reports whether following parent links from rec revisits a folder.
func cyclic(s *snapshot, rec *ardrive.SyncRecord) bool {
	seen := map[string]bool{rec.EntityID: true}
	for id := rec.ParentFolderID; id != ""; {
		if seen[id] {
			return true
		}
		seen[id] = true
		parent := s.latest[id]
		if parent == nil {
			return false
		}
		id = parent.ParentFolderID
	}
	return false
}
