package reconcile

import (
	"fmt"
	"sort"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
)

// ApplyRemote folds resolved folder and file versions of driveID into the
// mirror, oldest first. Versions already recorded (by transaction ID) are
// skipped, as are invalid-password sentinels, drive entities and versions
// older than the current one. A current local version still on its way to the
// network is never superseded: it is marked as a conflict instead.
func (r *Reconciler) ApplyRemote(driveID string, entities []arfs.Entity) ([]Change, error) {
	s, err := r.load(driveID)
	if err != nil {
		return nil, err
	}
	recorded := make(map[string]bool, len(s.all))
	for _, rec := range s.all {
		if rec.MetadataTxID != "" {
			recorded[rec.MetadataTxID] = true
		}
	}

	ordered := append([]arfs.Entity(nil), entities...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Meta().UnixTime < ordered[j].Meta().UnixTime
	})

	var changes []Change
	for _, e := range ordered {
		m := e.Meta()
		switch {
		case e.Kind() == arfs.DriveEntity, arfs.DriveIDOf(e) != driveID:
			continue
		case m.Invalid:
			r.logger.Debug("skipping undecryptable version", "tx", m.TxID, "entity", m.EntityID)
			continue
		case m.TxID == "" || recorded[m.TxID]:
			continue
		}

		cur := s.latest[m.EntityID]
		if cur == nil {
			rec := recordFromEntity(e, r.login)
			rec.FileVersion = 1
			rec.CloudOnly = true
			if err := r.db.PutRecord(rec); err != nil {
				return changes, fmt.Errorf("recording %s %s: %w", e.Kind(), m.EntityID, err)
			}
			s.add(rec)
			recorded[m.TxID] = true
			changes = append(changes, Change{Action: New, Record: rec, Remote: true})
			continue
		}

		if cur.IsLocal == ardrive.LocalConflict {
			continue
		}
		if m.UnixTime < cur.UnixTime {
			r.logger.Debug("ignoring older remote version", "tx", m.TxID, "entity", m.EntityID)
			continue
		}
		if conflicts(cur, e) {
			reason := fmt.Sprintf("remote version %s differs from local changes not yet confirmed", m.TxID)
			cur.IsLocal = ardrive.LocalConflict
			cur.StatusReason = reason
			if err := r.db.PutRecord(cur); err != nil {
				return changes, fmt.Errorf("marking conflict on %s: %w", cur.FilePath, err)
			}
			r.logger.Warn("sync conflict", "path", cur.FilePath, "entity", cur.EntityID, "tx", m.TxID)
			changes = append(changes, Change{
				Action: Conflict,
				Record: cur,
				Remote: true,
				Err:    &ardrive.ConflictError{EntityID: cur.EntityID, Path: cur.FilePath, Reason: reason},
			})
			continue
		}

		rec, action := followRemote(cur, e, r.login)
		if err := r.db.PutRecord(rec); err != nil {
			return changes, fmt.Errorf("recording %s %s: %w", e.Kind(), m.EntityID, err)
		}
		s.add(rec)
		recorded[m.TxID] = true
		changes = append(changes, Change{Action: action, Record: rec, Previous: cur, Remote: true})
	}
	return changes, nil
}

// conflicts reports whether a remote file version would supersede a local
// version that has not reached the network yet, or whose upload is still in
// flight. Place changes only count while the local version is unsent;
// content changes count until the local upload is confirmed.
func conflicts(cur *ardrive.SyncRecord, e arfs.Entity) bool {
	f, ok := e.(*arfs.File)
	if !ok || cur.IsLocal != ardrive.LocalPresent {
		return false
	}
	unsent := cur.MetadataSyncStatus <= ardrive.Queued || cur.DataSyncStatus == ardrive.Queued
	inFlight := cur.UploadTime > 0 &&
		(cur.MetadataSyncStatus == ardrive.Submitted || cur.DataSyncStatus == ardrive.Submitted)
	if !unsent && !inFlight {
		return false
	}
	dataDiffers := cur.FileSize != f.Size ||
		cur.LastModifiedDate != f.LastModifiedDate ||
		(cur.DataTxID != "" && cur.DataTxID != f.DataTxID)
	placeDiffers := f.Name != cur.FileName || f.ParentFolderID != cur.ParentFolderID
	return dataDiffers || (unsent && placeDiffers)
}

// followRemote builds the record for a newer remote version of cur's entity.
func followRemote(cur *ardrive.SyncRecord, e arfs.Entity, login string) (*ardrive.SyncRecord, Action) {
	m := e.Meta()
	rec := recordFromEntity(e, login)
	rec.FileVersion = cur.FileVersion + 1

	action := NewVersion
	switch {
	case m.ParentFolderID != cur.ParentFolderID:
		action = Move
	case m.Name != cur.FileName:
		action = Rename
	}

	samePlace := action == NewVersion
	sameData := rec.DataTxID == cur.DataTxID
	if samePlace {
		rec.FilePath = cur.FilePath
	}
	if sameData {
		rec.FileHash = cur.FileHash
		rec.DataCipherIV = cur.DataCipherIV
	}
	if samePlace && sameData && cur.IsLocal == ardrive.LocalPresent {
		rec.IsLocal = ardrive.LocalPresent
	} else {
		rec.CloudOnly = true
	}
	return rec, action
}

// recordFromEntity maps a resolved version to a mirror record. Versions seen
// in a block are confirmed; pending ones are submitted.
func recordFromEntity(e arfs.Entity, login string) *ardrive.SyncRecord {
	m := e.Meta()
	status := ardrive.Submitted
	if m.BlockHeight > 0 {
		status = ardrive.Confirmed
	}
	rec := &ardrive.SyncRecord{
		Login:              login,
		AppName:            m.AppName,
		AppVersion:         m.AppVersion,
		UnixTime:           m.UnixTime,
		ContentType:        m.ContentType,
		EntityType:         string(e.Kind()),
		DriveID:            arfs.DriveIDOf(e),
		ParentFolderID:     m.ParentFolderID,
		EntityID:           m.EntityID,
		FileName:           m.Name,
		Cipher:             m.Cipher,
		MetadataCipherIV:   m.CipherIV,
		IsLocal:            ardrive.LocalAbsent,
		IsPublic:           m.Privacy != arfs.Private,
		MetadataTxID:       m.TxID,
		MetadataSyncStatus: status,
		BlockHeight:        m.BlockHeight,
		BundleTxID:         m.BundledIn,
	}
	if f, ok := e.(*arfs.File); ok {
		rec.FileSize = f.Size
		rec.LastModifiedDate = f.LastModifiedDate
		rec.DataTxID = f.DataTxID
		rec.DataContentType = f.DataContentType
		rec.DataSyncStatus = status
	}
	return rec
}
