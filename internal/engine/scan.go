package engine

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"ardrive-go/internal/arfs"
	"ardrive-go/internal/reconcile"
)

// ScanLocal walks the sync folder of driveID and folds what it finds into
// the mirror. Files whose size and modification time match their record
// reuse the cached hash instead of being read again.
func (s *Service) ScanLocal(ctx context.Context, driveID string) ([]reconcile.Change, error) {
	unlock := s.locks.Lock(driveID)
	defer unlock()

	d, err := s.drive(driveID)
	if err != nil {
		return nil, err
	}
	rootPath, err := s.rootPath(d)
	if err != nil {
		return nil, err
	}
	root, err := s.fsmgr.Resolve(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving sync folder of %q: %w", d.Name, err)
	}
	paths, err := s.fsmgr.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", rootPath, err)
	}

	files := make([]reconcile.LocalFile, 0, len(paths))
	hashed := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.IsDir() {
			files = append(files, reconcile.LocalFile{Path: p.String(), IsDir: true})
			continue
		}
		info := p.Info()
		f := reconcile.LocalFile{
			Path:             p.String(),
			Size:             info.Size(),
			LastModifiedDate: info.ModTime().UnixMilli(),
			ContentType:      contentType(p.String()),
		}
		if f.Hash, err = s.reconciler.KnownHash(driveID, f.Path, f.Size, f.LastModifiedDate); err != nil {
			return nil, err
		}
		if f.Hash == "" {
			if f.Hash, err = s.fsmgr.Checksum(p); err != nil {
				return nil, fmt.Errorf("hashing %s: %w", f.Path, err)
			}
			hashed++
		}
		files = append(files, f)
	}

	changes, err := s.reconciler.ApplyLocal(driveID, files)
	if err != nil {
		return changes, err
	}
	s.logger.Info("scan complete", "drive", driveID, "entries", len(files), "hashed", hashed, "changes", len(changes))
	return changes, nil
}

// contentType guesses a MIME type from the file extension.
func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return arfs.ContentTypeBinary
}
