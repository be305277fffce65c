package reconcile

import (
	"fmt"

	"ardrive-go/internal/ardrive"
)

// Field selects which of a record's two sync statuses a transition applies to.
type Field int

const (
	MetadataStatus Field = iota
	DataStatus
)

func (f Field) String() string {
	if f == DataStatus {
		return "data"
	}
	return "metadata"
}

// allowed lists every legal status change. Submitted falls back to Queued on
// failure so a submission is retried rather than dropped.
var allowed = map[ardrive.SyncStatus][]ardrive.SyncStatus{
	ardrive.Unsynced:  {ardrive.Queued},
	ardrive.Queued:    {ardrive.Submitted, ardrive.Unsynced},
	ardrive.Submitted: {ardrive.Confirmed, ardrive.Queued},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to ardrive.SyncStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

func status(rec *ardrive.SyncRecord, f Field) *ardrive.SyncStatus {
	if f == DataStatus {
		return &rec.DataSyncStatus
	}
	return &rec.MetadataSyncStatus
}

func transition(rec *ardrive.SyncRecord, f Field, to ardrive.SyncStatus) error {
	s := status(rec, f)
	if !CanTransition(*s, to) {
		return fmt.Errorf("%s status of %s: %s -> %s: %w", f, rec.EntityID, *s, to, ardrive.ErrInvalidTransition)
	}
	*s = to
	return nil
}

// Queue marks a version as selected for upload.
func Queue(rec *ardrive.SyncRecord, f Field) error {
	if err := transition(rec, f, ardrive.Queued); err != nil {
		return err
	}
	rec.StatusReason = ""
	return nil
}

// Submit marks a version as handed to the upload scheduler under txID.
func Submit(rec *ardrive.SyncRecord, f Field, txID string) error {
	if err := transition(rec, f, ardrive.Submitted); err != nil {
		return err
	}
	if f == DataStatus {
		rec.DataTxID = txID
	} else {
		rec.MetadataTxID = txID
	}
	return nil
}

// Confirm marks a submitted version as mined at blockHeight.
func Confirm(rec *ardrive.SyncRecord, f Field, blockHeight int64) error {
	if err := transition(rec, f, ardrive.Confirmed); err != nil {
		return err
	}
	if f == MetadataStatus && blockHeight > rec.BlockHeight {
		rec.BlockHeight = blockHeight
	}
	rec.StatusReason = ""
	return nil
}

// Fail returns a submitted version to the queue and records why.
func Fail(rec *ardrive.SyncRecord, f Field, reason string) error {
	if s := *status(rec, f); s != ardrive.Submitted {
		return fmt.Errorf("%s status of %s: cannot fail from %s: %w", f, rec.EntityID, s, ardrive.ErrInvalidTransition)
	}
	if err := transition(rec, f, ardrive.Queued); err != nil {
		return err
	}
	rec.StatusReason = reason
	return nil
}

// Cancel returns a queued version to unsynced.
func Cancel(rec *ardrive.SyncRecord, f Field) error {
	return transition(rec, f, ardrive.Unsynced)
}
