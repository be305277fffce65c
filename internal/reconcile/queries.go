package reconcile

import (
	"sort"

	"ardrive-go/internal/ardrive"
)

// current returns the current versions of driveID matching keep, ordered by path.
func (r *Reconciler) current(driveID string, keep func(*ardrive.SyncRecord) bool) ([]*ardrive.SyncRecord, error) {
	s, err := r.load(driveID)
	if err != nil {
		return nil, err
	}
	var out []*ardrive.SyncRecord
	for _, rec := range s.all {
		if s.isLatest(rec) && keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// FilesToDownload returns files known remotely whose current version is not on disk yet.
func (r *Reconciler) FilesToDownload(driveID string) ([]*ardrive.SyncRecord, error) {
	return r.current(driveID, func(rec *ardrive.SyncRecord) bool {
		return rec.EntityType == "file" && rec.CloudOnly && rec.IsLocal == ardrive.LocalAbsent &&
			rec.FilePath != "" && rec.DataTxID != ""
	})
}

// FoldersToCreate returns folders known remotely that do not exist on disk yet,
// parents before children.
func (r *Reconciler) FoldersToCreate(driveID string) ([]*ardrive.SyncRecord, error) {
	return r.current(driveID, func(rec *ardrive.SyncRecord) bool {
		return rec.EntityType == "folder" && rec.IsLocal == ardrive.LocalAbsent && rec.FilePath != ""
	})
}

// Conflicts returns current versions awaiting a user decision.
func (r *Reconciler) Conflicts(driveID string) ([]*ardrive.SyncRecord, error) {
	return r.current(driveID, func(rec *ardrive.SyncRecord) bool {
		return rec.IsLocal == ardrive.LocalConflict
	})
}

// MissingPaths returns current versions whose parent chain is not resolved yet.
func (r *Reconciler) MissingPaths(driveID string) ([]*ardrive.SyncRecord, error) {
	return r.current(driveID, func(rec *ardrive.SyncRecord) bool {
		return rec.FilePath == ""
	})
}

// RecordsToUpload returns on-disk versions with metadata or file data still
// to be sent, parents before children. Queued versions are included so an
// interrupted run picks them up again.
func (r *Reconciler) RecordsToUpload(driveID string) ([]*ardrive.SyncRecord, error) {
	return r.current(driveID, func(rec *ardrive.SyncRecord) bool {
		if rec.IsLocal != ardrive.LocalPresent {
			return false
		}
		if pending(rec.MetadataSyncStatus) {
			return true
		}
		return rec.EntityType == "file" && pending(rec.DataSyncStatus)
	})
}

func pending(s ardrive.SyncStatus) bool {
	return s == ardrive.Unsynced || s == ardrive.Queued
}
