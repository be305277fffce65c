package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/reconcile"
)

// MissingTxGrace is how long a submitted transaction may stay unknown to
// the gateway before its version is queued again.
const MissingTxGrace = 30 * time.Minute

// ConfirmReport summarizes one CheckConfirmations run.
type ConfirmReport struct {
	Confirmed int // statuses moved to Confirmed
	Pending   int // statuses still waiting to be mined
	Requeued  int // statuses sent back to the queue
	Bundles   int // bundles confirmed
	Drives    int // drives confirmed
}

// CheckConfirmations asks the gateway about every submitted transaction.
// Mined transactions confirm their versions; transactions the network lost
// send their versions back to the queue once MissingTxGrace has passed and
// no interrupted upload of theirs is waiting to resume.
func (s *Service) CheckConfirmations(ctx context.Context) (*ConfirmReport, error) {
	c := &confirmer{s: s, statuses: make(map[string]ardrive.TxStatus), report: &ConfirmReport{}}

	drives, err := s.db.ListDrives(s.cfg.Login)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	driveIDs := make([]string, 0, len(drives))
	for _, d := range drives {
		driveIDs = append(driveIDs, d.DriveID)
	}
	sort.Strings(driveIDs)

	var errs []error
	for _, id := range driveIDs {
		if err := c.confirmDrive(ctx, id); err != nil {
			if ctx.Err() != nil {
				return c.report, err
			}
			errs = append(errs, err)
		}
	}
	if err := c.confirmBundles(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.confirmDriveRows(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("confirmations checked", "confirmed", c.report.Confirmed, "pending", c.report.Pending, "requeued", c.report.Requeued)
	return c.report, errors.Join(errs...)
}

type confirmer struct {
	s        *Service
	statuses map[string]ardrive.TxStatus
	report   *ConfirmReport
}

// submittedRecords returns every version of driveID with a submitted status, once.
func submittedRecords(db ardrive.Database, driveID string) ([]*ardrive.SyncRecord, error) {
	var out []*ardrive.SyncRecord
	seen := make(map[int64]bool)
	for _, q := range []ardrive.RecordQuery{
		{DriveID: driveID, MetadataStatus: ardrive.Ptr(ardrive.Submitted), OrderBy: ardrive.OrderByID},
		{DriveID: driveID, DataStatus: ardrive.Ptr(ardrive.Submitted), OrderBy: ardrive.OrderByID},
	} {
		recs, err := db.QueryRecords(q)
		if err != nil {
			return nil, fmt.Errorf("querying submitted records: %w", err)
		}
		for _, rec := range recs {
			if !seen[rec.ID] {
				seen[rec.ID] = true
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (c *confirmer) status(ctx context.Context, txID string) (ardrive.TxStatus, error) {
	if st, ok := c.statuses[txID]; ok {
		return st, nil
	}
	st, err := c.s.gateway.GetTransactionStatus(ctx, txID)
	if err != nil {
		return ardrive.TxStatus{}, fmt.Errorf("checking %s: %w", txID, err)
	}
	c.statuses[txID] = st
	return st, nil
}

// lost reports whether the network dropped txID.
func (c *confirmer) lost(rec *ardrive.SyncRecord, txID string, st ardrive.TxStatus) (bool, error) {
	if st.Code != http.StatusNotFound {
		return false, nil
	}
	if c.s.clock.Now().Sub(time.Unix(rec.UploadTime, 0)) < MissingTxGrace {
		return false, nil
	}
	state, err := c.s.db.GetUploadState(txID)
	if err != nil {
		return false, fmt.Errorf("loading upload state of %s: %w", txID, err)
	}
	return state == nil, nil
}

// confirmDrive loads the submitted versions of driveID under its lock, so
// that a concurrent upload or sync of the drive is never overwritten.
func (c *confirmer) confirmDrive(ctx context.Context, driveID string) error {
	unlock := c.s.locks.Lock(driveID)
	defer unlock()

	recs, err := submittedRecords(c.s.db, driveID)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range recs {
		if err := c.confirmRecord(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// confirmRecord settles both statuses of rec. Bundled versions follow their bundle.
func (c *confirmer) confirmRecord(ctx context.Context, rec *ardrive.SyncRecord) error {
	changed := false
	dataLost := false

	fields := []reconcile.Field{reconcile.DataStatus, reconcile.MetadataStatus}
	for _, f := range fields {
		st, txID := rec.MetadataSyncStatus, rec.MetadataTxID
		if f == reconcile.DataStatus {
			st, txID = rec.DataSyncStatus, rec.DataTxID
		}
		if st != ardrive.Submitted {
			continue
		}
		if rec.BundleTxID != "" {
			txID = rec.BundleTxID
		}

		txStatus, err := c.status(ctx, txID)
		if err != nil {
			return err
		}
		switch {
		case txStatus.Confirmed():
			if err := reconcile.Confirm(rec, f, txStatus.BlockHeight); err != nil {
				return err
			}
			c.report.Confirmed++
			changed = true
		case txStatus.Pending():
			c.report.Pending++
		default:
			lost, err := c.lost(rec, txID, txStatus)
			if err != nil {
				return err
			}
			// Metadata names its data transaction, so both go again together.
			if !lost && !(f == reconcile.MetadataStatus && dataLost) {
				c.report.Pending++
				continue
			}
			if f == reconcile.DataStatus {
				dataLost = true
			}
			if err := reconcile.Fail(rec, f, fmt.Sprintf("transaction %s was not found on the network", txID)); err != nil {
				return err
			}
			c.report.Requeued++
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := c.s.db.PutRecord(rec); err != nil {
		return fmt.Errorf("updating %s: %w", rec.FilePath, err)
	}
	return nil
}

func (c *confirmer) confirmBundles(ctx context.Context) error {
	bundles, err := c.s.db.ListBundlesByStatus(ardrive.Submitted)
	if err != nil {
		return fmt.Errorf("listing bundles: %w", err)
	}
	var errs []error
	for _, b := range bundles {
		st, err := c.status(ctx, b.BundleTxID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !st.Confirmed() {
			continue
		}
		b.SyncStatus = ardrive.Confirmed
		if err := c.s.db.PutBundle(b); err != nil {
			errs = append(errs, fmt.Errorf("updating bundle %s: %w", b.BundleTxID, err))
			continue
		}
		c.report.Bundles++
	}
	return errors.Join(errs...)
}

// confirmDriveRows confirms drives whose root folder is confirmed. A drive
// and its root folder are always submitted together.
func (c *confirmer) confirmDriveRows() error {
	drives, err := c.s.db.ListDrives(c.s.cfg.Login)
	if err != nil {
		return fmt.Errorf("listing drives: %w", err)
	}
	for _, d := range drives {
		if d.SyncStatus != ardrive.Submitted {
			continue
		}
		recs, err := c.s.db.QueryRecords(ardrive.RecordQuery{
			DriveID:  d.DriveID,
			EntityID: d.RootFolderID,
			OrderBy:  ardrive.OrderByVersionDesc,
			Limit:    1,
		})
		if err != nil {
			return fmt.Errorf("loading root folder of %s: %w", d.DriveID, err)
		}
		if len(recs) == 0 || recs[0].MetadataSyncStatus != ardrive.Confirmed {
			continue
		}
		d.SyncStatus = ardrive.Confirmed
		if err := c.s.db.PutDrive(d); err != nil {
			return fmt.Errorf("updating drive %s: %w", d.DriveID, err)
		}
		c.report.Drives++
	}
	return nil
}
