package reconcile

import (
	"errors"
	"path/filepath"
	"testing"

	"ardrive-go/internal/ardrive"
)

func TestResolvePaths(t *testing.T) {
	t.Parallel()
	r, db := newTestReconciler(t)

	// Children are recorded before their parents.
	mustApplyRemote(t, r,
		remoteFile("f-1", "folder-b", "f.txt", 1, "meta-f", "data-f", 3),
		remoteFolder("folder-b", "folder-a", "B", 2, "meta-b"),
		remoteFolder("folder-a", rootID, "A", 3, "meta-a"),
		remoteFile("orphan", "unknown-folder", "lost.txt", 4, "meta-o", "data-o", 3),
	)

	n, err := r.ResolvePaths(driveID, syncRoot)
	if err != nil {
		t.Fatalf("ResolvePaths() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ResolvePaths() resolved %d, want 3", n)
	}

	for path, id := range map[string]string{
		filepath.Join(syncRoot, "A"):               "folder-a",
		filepath.Join(syncRoot, "A", "B"):          "folder-b",
		filepath.Join(syncRoot, "A", "B", "f.txt"): "f-1",
	} {
		if rec := latestAt(t, db, path); rec == nil || rec.EntityID != id {
			t.Errorf("record at %s = %+v, want %s", path, rec, id)
		}
	}

	missing, err := r.MissingPaths(driveID)
	if err != nil {
		t.Fatalf("MissingPaths() error = %v", err)
	}
	if len(missing) != 1 || missing[0].EntityID != "orphan" {
		t.Errorf("MissingPaths() = %+v, want the orphan", missing)
	}

	if n, err := r.ResolvePaths(driveID, syncRoot); err != nil || n != 0 {
		t.Errorf("second ResolvePaths() = %d, %v; want 0, nil", n, err)
	}
}

func TestResolvePaths_Root(t *testing.T) {
	t.Parallel()
	db := newTestDatabaseWithDrive(t)
	r := NewReconciler(db, nil, nil, nil, login)

	mustApplyRemote(t, r,
		remoteFolder(rootID, "", "Docs", 1, "meta-root"),
		remoteFolder("child", rootID, "Child", 2, "meta-child"),
	)
	if n, err := r.ResolvePaths(driveID, "/mnt/docs"); err != nil || n != 2 {
		t.Fatalf("ResolvePaths() = %d, %v; want 2, nil", n, err)
	}
	if rec := latestAt(t, db, "/mnt/docs/Child"); rec == nil || rec.EntityID != "child" {
		t.Errorf("child record = %+v", rec)
	}
}

func TestResolvePaths_Cycle(t *testing.T) {
	t.Parallel()
	r, _ := newTestReconciler(t)
	mustApplyRemote(t, r,
		remoteFolder("x", "y", "X", 1, "meta-x"),
		remoteFolder("y", "x", "Y", 2, "meta-y"),
	)

	_, err := r.ResolvePaths(driveID, syncRoot)
	if !errors.Is(err, ardrive.ErrCycle) {
		t.Errorf("ResolvePaths() error = %v, want ErrCycle", err)
	}
}

func TestResolvePaths_FolderRenameCarriesChildren(t *testing.T) {
	t.Parallel()
	r, db := newTestReconciler(t)

	mustApplyRemote(t, r,
		remoteFolder("photos", rootID, "Photos", 1, "meta-p1"),
		remoteFolder("2024", "photos", "2024", 2, "meta-y"),
		remoteFile("cat", "2024", "cat.jpg", 3, "meta-c", "data-c", 3),
	)
	if _, err := r.ResolvePaths(driveID, syncRoot); err != nil {
		t.Fatalf("ResolvePaths() error = %v", err)
	}

	mustApplyRemote(t, r, remoteFolder("photos", rootID, "Pictures", 4, "meta-p2"))
	n, err := r.ResolvePaths(driveID, syncRoot)
	if err != nil {
		t.Fatalf("ResolvePaths() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ResolvePaths() resolved %d, want 3", n)
	}

	for path, id := range map[string]string{
		filepath.Join(syncRoot, "Pictures"):                    "photos",
		filepath.Join(syncRoot, "Pictures", "2024"):            "2024",
		filepath.Join(syncRoot, "Pictures", "2024", "cat.jpg"): "cat",
	} {
		if rec := latestAt(t, db, path); rec == nil || rec.EntityID != id {
			t.Errorf("record at %s = %+v, want %s", path, rec, id)
		}
	}
	for _, path := range []string{
		filepath.Join(syncRoot, "Photos", "2024"),
		filepath.Join(syncRoot, "Photos", "2024", "cat.jpg"),
	} {
		if rec := latestAt(t, db, path); rec != nil {
			t.Errorf("record at %s = %+v, want none", path, rec)
		}
	}
}
