package reconcile

import (
	"path/filepath"
	"testing"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/testutil"
)

const (
	driveID  = "6d5b3f1e-2c4a-4b8e-9f10-1a2b3c4d5e6f"
	rootID   = "11111111-2222-4333-8444-555555555555"
	syncRoot = "/sync/Docs"
	login    = "alice"
)

func newTestDatabaseWithDrive(t *testing.T) ardrive.Database {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	if err := db.PutDrive(&ardrive.Drive{DriveID: driveID, Login: login, Name: "Docs", RootFolderID: rootID, Privacy: "public"}); err != nil {
		t.Fatalf("PutDrive() error = %v", err)
	}
	return db
}

// newTestReconciler returns a reconciler over a drive whose root folder is
// already synced to syncRoot.
func newTestReconciler(t *testing.T) (*Reconciler, ardrive.Database) {
	t.Helper()
	db := newTestDatabaseWithDrive(t)
	root := &ardrive.SyncRecord{
		Login:              login,
		EntityType:         "folder",
		DriveID:            driveID,
		EntityID:           rootID,
		FileName:           "Docs",
		FilePath:           syncRoot,
		FileVersion:        1,
		UnixTime:           1,
		IsLocal:            ardrive.LocalPresent,
		IsPublic:           true,
		MetadataTxID:       "root-tx",
		MetadataSyncStatus: ardrive.Confirmed,
	}
	if err := db.PutRecord(root); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	return NewReconciler(db, testutil.NewStubIDGenerator(), testutil.FixedClock(), nil, login), db
}

func file(rel, content string) LocalFile {
	return LocalFile{
		Path:             filepath.Join(syncRoot, rel),
		Size:             int64(len(content)),
		LastModifiedDate: 1700000000000,
		Hash:             testutil.Blake3Hex([]byte(content)),
	}
}

func dir(rel string) LocalFile {
	return LocalFile{Path: filepath.Join(syncRoot, rel), IsDir: true}
}

func mustApplyLocal(t *testing.T, r *Reconciler, files ...LocalFile) []Change {
	t.Helper()
	changes, err := r.ApplyLocal(driveID, files)
	if err != nil {
		t.Fatalf("ApplyLocal() error = %v", err)
	}
	return changes
}

func latestAt(t *testing.T, db ardrive.Database, path string) *ardrive.SyncRecord {
	t.Helper()
	recs, err := db.QueryRecords(ardrive.RecordQuery{DriveID: driveID, FilePath: path, OrderBy: ardrive.OrderByVersionDesc, Limit: 1})
	if err != nil {
		t.Fatalf("QueryRecords() error = %v", err)
	}
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

func actions(changes []Change) []Action {
	out := make([]Action, len(changes))
	for i, c := range changes {
		out[i] = c.Action
	}
	return out
}
