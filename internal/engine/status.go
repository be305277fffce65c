package engine

import (
	"fmt"

	"ardrive-go/internal/ardrive"
)

// DriveStatus counts the current versions of one drive by sync state.
type DriveStatus struct {
	Drive     *ardrive.Drive
	Folders   int
	Files     int
	Unsynced  int // versions with a status not yet submitted
	Submitted int // versions waiting to be mined
	Confirmed int
	CloudOnly int // remote versions not on disk yet
	Conflicts int
	Unplaced  int // versions whose parent folder is not known yet
}

// Status reports the sync state of driveID.
func (s *Service) Status(driveID string) (*DriveStatus, error) {
	d, err := s.drive(driveID)
	if err != nil {
		return nil, err
	}
	recs, err := s.db.QueryRecords(ardrive.RecordQuery{DriveID: driveID, OrderBy: ardrive.OrderByVersionDesc})
	if err != nil {
		return nil, fmt.Errorf("loading records of %s: %w", driveID, err)
	}

	st := &DriveStatus{Drive: d}
	seen := make(map[string]bool)
	for _, rec := range recs {
		if seen[rec.EntityID] {
			continue
		}
		seen[rec.EntityID] = true

		if rec.EntityType == "folder" {
			st.Folders++
		} else {
			st.Files++
		}
		switch least(rec) {
		case ardrive.Unsynced, ardrive.Queued:
			st.Unsynced++
		case ardrive.Submitted:
			st.Submitted++
		case ardrive.Confirmed:
			st.Confirmed++
		}
		if rec.CloudOnly {
			st.CloudOnly++
		}
		if rec.IsLocal == ardrive.LocalConflict {
			st.Conflicts++
		}
		if rec.FilePath == "" {
			st.Unplaced++
		}
	}
	return st, nil
}

// least returns the less advanced of rec's two statuses. Folders only have metadata.
func least(rec *ardrive.SyncRecord) ardrive.SyncStatus {
	if rec.EntityType != "file" || rec.DataSyncStatus >= rec.MetadataSyncStatus {
		return rec.MetadataSyncStatus
	}
	return rec.DataSyncStatus
}

// Conflicts returns the versions of driveID that need a user decision.
func (s *Service) Conflicts(driveID string) ([]*ardrive.SyncRecord, error) {
	if _, err := s.drive(driveID); err != nil {
		return nil, err
	}
	return s.reconciler.Conflicts(driveID)
}

// History returns the latest recorded operations, newest first.
func (s *Service) History(limit int) ([]*ardrive.SyncOperation, error) {
	ops, err := s.db.ListSyncOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
