// Package reconcile keeps the local mirror consistent with the sync folder
// and the ledger. It classifies scanned files against known records, folds
// remote entity versions into the mirror, rebuilds paths from parent links
// and drives each version's sync status.
//
// A Reconciler is not safe for concurrent use on the same drive; callers
// serialize mutations per entity.
package reconcile

import (
	"fmt"

	"ardrive-go/internal/ardrive"
)

// Action classifies how a scanned file or remote version relates to the mirror.
type Action int

const (
	Unchanged Action = iota
	NewVersion
	Rename
	Move
	New
	Conflict
	Missing
)

func (a Action) String() string {
	switch a {
	case Unchanged:
		return "unchanged"
	case NewVersion:
		return "new-version"
	case Rename:
		return "rename"
	case Move:
		return "move"
	case New:
		return "new"
	case Conflict:
		return "conflict"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Change is one mutation applied to the mirror.
type Change struct {
	Action   Action
	Record   *ardrive.SyncRecord // the record written or updated
	Previous *ardrive.SyncRecord // the version it supersedes, if any
	Remote   bool
	Err      error // *ardrive.ConflictError for conflicts
}

// Reconciler applies local and remote observations to the local store.
type Reconciler struct {
	db     ardrive.Database
	ids    ardrive.IDGenerator
	clock  ardrive.Clock
	logger ardrive.Logger
	login  string
}

// NewReconciler creates a reconciler writing records for login.
func NewReconciler(db ardrive.Database, ids ardrive.IDGenerator, clock ardrive.Clock, logger ardrive.Logger, login string) *Reconciler {
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}
	return &Reconciler{db: db, ids: ids, clock: clock, logger: logger, login: login}
}

// snapshot is an in-memory view of one drive's records.
type snapshot struct {
	all    []*ardrive.SyncRecord
	latest map[string]*ardrive.SyncRecord // by entity ID
	byPath map[string]*ardrive.SyncRecord // current versions by local path
}

func (r *Reconciler) load(driveID string) (*snapshot, error) {
	recs, err := r.db.QueryRecords(ardrive.RecordQuery{DriveID: driveID, OrderBy: ardrive.OrderByID})
	if err != nil {
		return nil, fmt.Errorf("loading records of drive %s: %w", driveID, err)
	}
	s := &snapshot{
		latest: make(map[string]*ardrive.SyncRecord),
		byPath: make(map[string]*ardrive.SyncRecord),
	}
	for _, rec := range recs {
		s.add(rec)
	}
	return s, nil
}

func (s *snapshot) add(rec *ardrive.SyncRecord) {
	s.all = append(s.all, rec)
	cur, ok := s.latest[rec.EntityID]
	if ok && !newer(rec, cur) {
		return
	}
	if ok && s.byPath[cur.FilePath] == cur {
		delete(s.byPath, cur.FilePath)
	}
	s.latest[rec.EntityID] = rec
	s.index(rec)
}

// index records the path of a current version after it is set or changed.
func (s *snapshot) index(rec *ardrive.SyncRecord) {
	if rec.FilePath != "" && s.isLatest(rec) {
		s.byPath[rec.FilePath] = rec
	}
}

// isLatest reports whether rec is the current version of its entity.
func (s *snapshot) isLatest(rec *ardrive.SyncRecord) bool {
	return s.latest[rec.EntityID] == rec
}

// at returns the current version at path.
func (s *snapshot) at(path string) *ardrive.SyncRecord {
	return s.byPath[path]
}

// folderAt returns the current folder record at path.
func (s *snapshot) folderAt(path string) *ardrive.SyncRecord {
	if rec := s.byPath[path]; rec != nil && rec.EntityType == "folder" {
		return rec
	}
	return nil
}

// newer orders versions of one entity: file version, then unix time, then row.
func newer(a, b *ardrive.SyncRecord) bool {
	if a.FileVersion != b.FileVersion {
		return a.FileVersion > b.FileVersion
	}
	if a.UnixTime != b.UnixTime {
		return a.UnixTime > b.UnixTime
	}
	return a.ID > b.ID
}

func (r *Reconciler) drive(driveID string) (*ardrive.Drive, error) {
	d, err := r.db.GetDrive(driveID)
	if err != nil {
		return nil, fmt.Errorf("loading drive %s: %w", driveID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("drive %s: %w", driveID, ardrive.ErrNotFound)
	}
	return d, nil
}
