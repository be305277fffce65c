package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/reconcile"
)

// UploadReport summarizes one UploadPending run.
type UploadReport struct {
	Submitted    int      // versions handed to the scheduler
	Incomplete   int      // versions whose upload stopped part way and will resume
	Failed       int      // versions sent back to the queue
	Skipped      int      // versions that could not be prepared
	Transactions int      // outer transactions posted
	Resumed      []string // earlier uploads finished first
}

// uploadJob is one version on its way to the ledger.
type uploadJob struct {
	rec      *ardrive.SyncRecord
	entity   arfs.Entity
	content  []byte
	withData bool
	txs      []int // indexes into the submitted transactions
	dropped  bool
}

// UploadPending sends every on-disk version of driveID whose metadata or
// data has not been submitted yet. Interrupted uploads of driveID are
// resumed first; other drives' uploads are left to their own runs. Versions move Unsynced -> Queued when selected and Queued ->
// Submitted once their transaction is handed to the scheduler. A version
// whose upload could not even start falls back to Queued with a reason.
func (s *Service) UploadPending(ctx context.Context, driveID string) (*UploadReport, error) {
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

	report := &UploadReport{}
	txIDs, err := s.submittedTxIDs(d)
	if err != nil {
		return nil, err
	}
	resumed, resumeErr := s.scheduler.ResumeTxs(ctx, txIDs)
	report.Resumed = resumed
	if resumeErr != nil {
		s.logger.Warn("some earlier uploads are still incomplete", "error", resumeErr)
	}

	recs, err := s.reconciler.RecordsToUpload(driveID)
	if err != nil {
		return report, err
	}
	var jobs []*uploadJob
	for _, rec := range recs {
		job, err := s.prepare(d, rec)
		if err != nil {
			report.Skipped++
			s.logger.Warn("cannot upload", "path", rec.FilePath, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return report, nil
	}

	var txs []*ledger.Transaction
	if s.cfg.Bundle {
		txs, err = s.buildBundles(jobs, dk)
	} else {
		txs, err = s.buildEach(jobs, dk)
	}
	if err != nil {
		return report, err
	}
	report.Transactions = len(txs)

	errs := s.scheduler.Run(ctx, txs)
	var failures []error
	for _, job := range jobs {
		if job.dropped {
			report.Skipped++
			continue
		}
		report.Submitted++
		var jobErr error
		for _, i := range job.txs {
			jobErr = errors.Join(jobErr, errs[i])
		}
		switch {
		case jobErr == nil:
		case errors.Is(jobErr, ardrive.ErrUploadIncomplete):
			report.Incomplete++
			failures = append(failures, jobErr)
		default:
			report.Failed++
			failures = append(failures, jobErr)
			if err := s.requeue(job.rec, jobErr.Error()); err != nil {
				return report, err
			}
		}
	}
	s.logger.Info("upload complete", "drive", driveID, "versions", report.Submitted, "transactions", report.Transactions, "failed", report.Failed, "incomplete", report.Incomplete)
	if len(failures) > 0 {
		return report, fmt.Errorf("uploading drive %q: %w", d.Name, errors.Join(failures...))
	}
	return report, nil
}

// submittedTxIDs returns the transactions of d that were handed to the
// scheduler and are not confirmed yet.
func (s *Service) submittedTxIDs(d *ardrive.Drive) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if d.SyncStatus == ardrive.Submitted {
		add(d.MetadataTxID)
	}
	recs, err := submittedRecords(s.db, d.DriveID)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		add(rec.BundleTxID)
		if rec.MetadataSyncStatus == ardrive.Submitted {
			add(rec.MetadataTxID)
		}
		if rec.DataSyncStatus == ardrive.Submitted {
			add(rec.DataTxID)
		}
	}
	return out, nil
}

// prepare queues rec and loads what its upload needs.
func (s *Service) prepare(d *ardrive.Drive, rec *ardrive.SyncRecord) (*uploadJob, error) {
	job := &uploadJob{rec: rec, withData: rec.EntityType == string(arfs.FileEntity) && pending(rec.DataSyncStatus)}
	if job.withData && !pending(rec.MetadataSyncStatus) {
		return nil, fmt.Errorf("data of %s is pending but its metadata was already sent", rec.EntityID)
	}

	if job.withData {
		content, err := s.readFile(rec.FilePath)
		if err != nil {
			return nil, err
		}
		if int64(len(content)) != rec.FileSize {
			return nil, fmt.Errorf("%s changed since it was scanned", rec.FilePath)
		}
		job.content = content
	}

	if rec.MetadataSyncStatus == ardrive.Unsynced {
		if err := reconcile.Queue(rec, reconcile.MetadataStatus); err != nil {
			return nil, err
		}
	}
	if job.withData && rec.DataSyncStatus == ardrive.Unsynced {
		if err := reconcile.Queue(rec, reconcile.DataStatus); err != nil {
			return nil, err
		}
	}
	if err := s.db.PutRecord(rec); err != nil {
		return nil, fmt.Errorf("queueing %s: %w", rec.FilePath, err)
	}
	job.entity = entityFromRecord(rec, d, !job.withData)
	return job, nil
}

func (s *Service) readFile(path string) ([]byte, error) {
	p, err := s.fsmgr.Resolve(path)
	if err != nil {
		return nil, err
	}
	r, err := s.fsmgr.Open(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// buildEach signs standalone transactions for every job.
func (s *Service) buildEach(jobs []*uploadJob, dk *keys.DriveKey) ([]*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	for _, job := range jobs {
		dataID, dataIV := "", ""
		if f, ok := job.entity.(*arfs.File); ok && job.withData {
			dataTx, metaTx, err := s.builder.BuildFile(f, job.content, dk)
			if err != nil {
				if err := s.drop(job, err); err != nil {
					return nil, err
				}
				continue
			}
			dataID, dataIV = dataTx.ID, dataTx.Tags.Value(arfs.TagCipherIV)
			job.txs = []int{len(txs), len(txs) + 1}
			txs = append(txs, dataTx, metaTx)
		} else {
			metaTx, err := s.builder.Build(job.entity, dk)
			if err != nil {
				if err := s.drop(job, err); err != nil {
					return nil, err
				}
				continue
			}
			job.txs = []int{len(txs)}
			txs = append(txs, metaTx)
		}
		if err := s.markSubmitted(job, dataID, dataIV, ""); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

// buildBundles packs the jobs' data items into bundles of at most
// MaxBundleItems items. A file's data and metadata stay in one bundle.
func (s *Service) buildBundles(jobs []*uploadJob, dk *keys.DriveKey) ([]*ledger.Transaction, error) {
	var txs []*ledger.Transaction
	var items []*ledger.DataItem
	var members []*uploadJob
	type itemInfo struct{ dataID, dataIV string }
	info := make(map[*uploadJob]itemInfo)

	flush := func() error {
		if len(items) == 0 {
			return nil
		}
		bundle, err := s.builder.BuildBundle(items)
		if err != nil {
			return err
		}
		for _, job := range members {
			job.txs = []int{len(txs)}
			if err := s.markSubmitted(job, info[job].dataID, info[job].dataIV, bundle.ID); err != nil {
				return err
			}
		}
		b := &ardrive.Bundle{
			BundleTxID: bundle.ID,
			Login:      s.cfg.Login,
			ItemCount:  len(items),
			SyncStatus: ardrive.Submitted,
			UploadTime: s.clock.Now().Unix(),
		}
		if err := s.db.PutBundle(b); err != nil {
			return fmt.Errorf("recording bundle: %w", err)
		}
		txs = append(txs, bundle)
		items, members = nil, nil
		return nil
	}

	for _, job := range jobs {
		var jobItems []*ledger.DataItem
		if f, ok := job.entity.(*arfs.File); ok && job.withData {
			dataItem, metaItem, err := s.builder.BuildFileItems(f, job.content, dk)
			if err != nil {
				if err := s.drop(job, err); err != nil {
					return nil, err
				}
				continue
			}
			info[job] = itemInfo{dataID: dataItem.ID, dataIV: dataItem.Tags.Value(arfs.TagCipherIV)}
			jobItems = []*ledger.DataItem{dataItem, metaItem}
		} else {
			metaItem, err := s.builder.BuildItem(job.entity, dk)
			if err != nil {
				if err := s.drop(job, err); err != nil {
					return nil, err
				}
				continue
			}
			jobItems = []*ledger.DataItem{metaItem}
		}
		if len(items)+len(jobItems) > s.cfg.MaxBundleItems {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		items = append(items, jobItems...)
		members = append(members, job)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return txs, nil
}

// markSubmitted records the transactions built for job.
func (s *Service) markSubmitted(job *uploadJob, dataID, dataIV, bundleID string) error {
	rec, m := job.rec, job.entity.Meta()
	if err := reconcile.Submit(rec, reconcile.MetadataStatus, m.TxID); err != nil {
		return err
	}
	if job.withData {
		if err := reconcile.Submit(rec, reconcile.DataStatus, dataID); err != nil {
			return err
		}
		rec.DataCipherIV = dataIV
	}
	rec.AppName = m.AppName
	rec.AppVersion = m.AppVersion
	rec.ContentType = m.ContentType
	rec.Cipher = m.Cipher
	rec.MetadataCipherIV = m.CipherIV
	rec.BundleTxID = bundleID
	rec.UploadTime = s.clock.Now().Unix()
	if err := s.db.PutRecord(rec); err != nil {
		return fmt.Errorf("recording submission of %s: %w", rec.FilePath, err)
	}
	return nil
}

// drop returns a job that could not be signed to Unsynced.
func (s *Service) drop(job *uploadJob, cause error) error {
	job.dropped = true
	rec := job.rec
	s.logger.Warn("cannot build transaction", "path", rec.FilePath, "error", cause)
	if rec.MetadataSyncStatus == ardrive.Queued {
		if err := reconcile.Cancel(rec, reconcile.MetadataStatus); err != nil {
			return err
		}
	}
	if job.withData && rec.DataSyncStatus == ardrive.Queued {
		if err := reconcile.Cancel(rec, reconcile.DataStatus); err != nil {
			return err
		}
	}
	rec.StatusReason = cause.Error()
	if err := s.db.PutRecord(rec); err != nil {
		return fmt.Errorf("recording failure of %s: %w", rec.FilePath, err)
	}
	return nil
}

// requeue sends a submitted version back to the queue with a reason.
func (s *Service) requeue(rec *ardrive.SyncRecord, reason string) error {
	for _, f := range []reconcile.Field{reconcile.MetadataStatus, reconcile.DataStatus} {
		st := rec.MetadataSyncStatus
		if f == reconcile.DataStatus {
			st = rec.DataSyncStatus
		}
		if st != ardrive.Submitted {
			continue
		}
		if err := reconcile.Fail(rec, f, reason); err != nil {
			return err
		}
	}
	if err := s.db.PutRecord(rec); err != nil {
		return fmt.Errorf("requeueing %s: %w", rec.FilePath, err)
	}
	return nil
}

// entityFromRecord rebuilds the entity version rec describes. keepData
// carries the record's existing data transaction into a file's metadata.
func entityFromRecord(rec *ardrive.SyncRecord, d *ardrive.Drive, keepData bool) arfs.Entity {
	privacy := arfs.Public
	if d.IsPrivate() {
		privacy = arfs.Private
	}
	m := arfs.Metadata{
		EntityID:       rec.EntityID,
		DriveID:        rec.DriveID,
		ParentFolderID: rec.ParentFolderID,
		Name:           rec.FileName,
		UnixTime:       rec.UnixTime,
		Privacy:        privacy,
	}
	if rec.EntityType == string(arfs.FolderEntity) {
		return &arfs.Folder{Metadata: m}
	}
	f := &arfs.File{
		Metadata:         m,
		Size:             rec.FileSize,
		LastModifiedDate: rec.LastModifiedDate,
		DataContentType:  rec.DataContentType,
	}
	if keepData {
		f.DataTxID = rec.DataTxID
	}
	return f
}

func pending(s ardrive.SyncStatus) bool {
	return s == ardrive.Unsynced || s == ardrive.Queued
}
