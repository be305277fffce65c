package resolver

import (
	"context"
	"errors"
	"testing"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/gql"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/testutil"
	"ardrive-go/internal/txbuilder"
)

const (
	driveID  = "6d5b3f1e-2c4a-4b8e-9f10-1a2b3c4d5e6f"
	rootID   = "11111111-2222-4333-8444-555555555555"
	folderID = "22222222-3333-4444-8555-666666666666"
)

type fixture struct {
	ledger   *testutil.FakeLedger
	wallet   *ledger.Wallet
	builder  *txbuilder.Builder
	vault    ardrive.Vault
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := testutil.NewFakeLedger()
	w := testutil.NewTestWallet(t, 9)
	codec := arfs.NewCodec("ArDrive-Go", "0.1.0")
	policy := gql.NewFailoverPolicy(nil, "primary", "backup")
	policy.Backoff = gql.NoBackoff
	v := testutil.NewTestVault()
	return &fixture{
		ledger:   l,
		wallet:   w,
		builder:  txbuilder.New(w, codec),
		vault:    v,
		resolver: New(gql.NewClient(l, policy, nil), l, v, codec, nil),
	}
}

func (f *fixture) driveKey(t *testing.T, passphrase string) *keys.DriveKey {
	t.Helper()
	k, err := keys.DeriveDriveKey(f.wallet.PrivateKey(), driveID, passphrase)
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	return k
}

func (f *fixture) publish(t *testing.T, e arfs.Entity, dk *keys.DriveKey) string {
	t.Helper()
	tx, err := f.builder.Build(e, dk)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := f.ledger.Add(tx); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return tx.ID
}

func folder(name string, unixTime int64, privacy arfs.Privacy) *arfs.Folder {
	return &arfs.Folder{Metadata: arfs.Metadata{
		EntityID: folderID, DriveID: driveID, ParentFolderID: rootID,
		Name: name, UnixTime: unixTime, Privacy: privacy,
	}}
}

func TestResolver_GetEntity(t *testing.T) {
	t.Run("returns greatest unix time", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("first", 10, arfs.Public), nil)
		f.publish(t, folder("newest", 20, arfs.Public), nil)
		f.publish(t, folder("backdated", 15, arfs.Public), nil)
		f.ledger.Mine()

		e, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, f.wallet.Address(), nil)
		if err != nil {
			t.Fatalf("GetEntity() error = %v", err)
		}
		if e.Meta().Name != "newest" {
			t.Errorf("GetEntity() name = %q, want %q", e.Meta().Name, "newest")
		}
		if e.Meta().Owner != f.wallet.Address() || e.Meta().BlockHeight != 2 {
			t.Errorf("edge fields not set: owner %q height %d", e.Meta().Owner, e.Meta().BlockHeight)
		}
	})

	t.Run("later edge wins a unix time tie", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("earlier", 10, arfs.Public), nil)
		f.ledger.Mine()
		f.publish(t, folder("later", 10, arfs.Public), nil)
		f.ledger.Mine()

		e, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, f.wallet.Address(), nil)
		if err != nil {
			t.Fatalf("GetEntity() error = %v", err)
		}
		if e.Meta().Name != "later" {
			t.Errorf("GetEntity() name = %q, want %q", e.Meta().Name, "later")
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, f.wallet.Address(), nil)
		if !errors.Is(err, ardrive.ErrNotFound) {
			t.Errorf("GetEntity() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("other owner is invisible", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("mine", 10, arfs.Public), nil)
		f.ledger.Mine()
		other := testutil.NewTestWallet(t, 1)
		_, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, other.Address(), nil)
		if !errors.Is(err, ardrive.ErrNotFound) {
			t.Errorf("GetEntity() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("wrong passphrase yields sentinel", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("secret", 10, arfs.Private), f.driveKey(t, "right"))
		f.ledger.Mine()

		e, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, f.wallet.Address(), f.driveKey(t, "wrong"))
		if err != nil {
			t.Fatalf("GetEntity() error = %v", err)
		}
		if !e.Meta().Invalid || e.Meta().Name != arfs.InvalidPasswordName {
			t.Errorf("expected sentinel, got %+v", e.Meta())
		}
		if e.Meta().EntityID != folderID {
			t.Errorf("sentinel EntityID = %q, want %q", e.Meta().EntityID, folderID)
		}
	})

	t.Run("caches bodies in the vault", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		txID := f.publish(t, folder("cached", 10, arfs.Public), nil)
		f.ledger.Mine()
		if _, err := f.resolver.GetEntity(context.Background(), arfs.FolderEntity, folderID, f.wallet.Address(), nil); err != nil {
			t.Fatalf("GetEntity() error = %v", err)
		}
		ok, err := f.vault.HasContent(txID)
		if err != nil || !ok {
			t.Errorf("HasContent(%s) = %v, %v; want true", txID, ok, err)
		}
	})
}

func TestResolver_GetAllEntities(t *testing.T) {
	t.Run("returns every version in edge order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		root := &arfs.Folder{Metadata: arfs.Metadata{EntityID: rootID, DriveID: driveID, Name: "Docs", UnixTime: 1}}
		f.publish(t, root, nil)
		f.publish(t, folder("v1", 10, arfs.Public), nil)
		f.ledger.Mine()
		f.publish(t, folder("v2", 5, arfs.Public), nil)
		f.ledger.Mine()

		got, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, nil)
		if err != nil {
			t.Fatalf("GetAllEntities() error = %v", err)
		}
		var names []string
		for _, e := range got {
			names = append(names, e.Meta().Name)
		}
		want := []string{"Docs", "v1", "v2"}
		if len(names) != len(want) {
			t.Fatalf("GetAllEntities() names = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})

	t.Run("skips malformed payloads", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		good, err := f.builder.Build(folder("good", 10, arfs.Public), nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		bad := ledger.NewTransaction([]byte("{not json"), good.Tags)
		bad.Sign(f.wallet)
		for _, tx := range []*ledger.Transaction{bad, good} {
			if err := f.ledger.Add(tx); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
		}
		f.ledger.Mine()

		got, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, nil)
		if err != nil {
			t.Fatalf("GetAllEntities() error = %v", err)
		}
		if len(got) != 1 || got[0].Meta().Name != "good" {
			t.Errorf("GetAllEntities() = %d entities, want only the good one", len(got))
		}
	})

	t.Run("honors the height floor", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("old", 10, arfs.Public), nil)
		f.ledger.Mine()
		for i := 0; i < 10; i++ {
			f.ledger.Mine()
		}
		f.publish(t, folder("new", 20, arfs.Public), nil)
		height := f.ledger.Mine()

		got, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), height, nil)
		if err != nil {
			t.Fatalf("GetAllEntities() error = %v", err)
		}
		if len(got) != 1 || got[0].Meta().Name != "new" {
			t.Errorf("GetAllEntities() since %d returned %d entities, want only the new one", height, len(got))
		}
	})

	t.Run("gateway outage propagates and resumes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.publish(t, folder("v1", 10, arfs.Public), nil)
		f.ledger.Mine()
		f.ledger.FailEndpoint("primary", -1)
		f.ledger.FailEndpoint("backup", -1)

		_, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, nil)
		var gwErr *ardrive.GatewayUnavailableError
		if !errors.As(err, &gwErr) {
			t.Fatalf("GetAllEntities() error = %v, want GatewayUnavailableError", err)
		}
		if f.ledger.FetchCalls("primary") != gql.DefaultMaxTries || f.ledger.FetchCalls("backup") != gql.DefaultMaxTries {
			t.Errorf("fetch calls = %d/%d, want %d each", f.ledger.FetchCalls("primary"), f.ledger.FetchCalls("backup"), gql.DefaultMaxTries)
		}

		f.ledger.FailEndpoint("primary", 0)
		f.ledger.FailEndpoint("backup", 0)
		got, err := f.resolver.Resume(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, gwErr.Cursor, nil)
		if err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if len(got) != 1 {
			t.Errorf("Resume() returned %d entities, want 1", len(got))
		}
	})

	t.Run("unpacks bundles the gateway will not serve itemwise", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		dk := f.driveKey(t, "pw")
		var items []*ledger.DataItem
		for _, e := range []arfs.Entity{folder("bundled-1", 10, arfs.Private), folder("bundled-2", 11, arfs.Private)} {
			item, err := f.builder.BuildItem(e, dk)
			if err != nil {
				t.Fatalf("BuildItem() error = %v", err)
			}
			items = append(items, item)
		}
		bundle, err := f.builder.BuildBundle(items)
		if err != nil {
			t.Fatalf("BuildBundle() error = %v", err)
		}
		f.ledger.HideBundledItems(true)
		if err := f.ledger.Add(bundle); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		f.ledger.Mine()

		got, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, dk)
		if err != nil {
			t.Fatalf("GetAllEntities() error = %v", err)
		}
		if len(got) != 2 || got[1].Meta().Name != "bundled-2" {
			t.Fatalf("GetAllEntities() = %d entities", len(got))
		}
		for _, item := range items {
			if ok, _ := f.vault.HasContent(item.ID); !ok {
				t.Errorf("item %s was not cached", item.ID)
			}
		}
	})

	t.Run("skips bundle items that fail verification", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		var items []*ledger.DataItem
		for _, e := range []arfs.Entity{folder("kept", 10, arfs.Public), folder("forged", 11, arfs.Public)} {
			item, err := f.builder.BuildItem(e, nil)
			if err != nil {
				t.Fatalf("BuildItem() error = %v", err)
			}
			items = append(items, item)
		}
		items[1].Data = []byte(`{"name":"forged elsewhere"}`)
		bundle, err := f.builder.BuildBundle(items)
		if err != nil {
			t.Fatalf("BuildBundle() error = %v", err)
		}
		f.ledger.HideBundledItems(true)
		if err := f.ledger.Add(bundle); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		f.ledger.Mine()

		got, err := f.resolver.GetAllEntities(context.Background(), arfs.FolderEntity, driveID, f.wallet.Address(), 0, nil)
		if err != nil {
			t.Fatalf("GetAllEntities() error = %v", err)
		}
		if len(got) != 1 || got[0].Meta().Name != "kept" {
			t.Fatalf("GetAllEntities() = %d entities, want the valid item only", len(got))
		}
		if ok, _ := f.vault.HasContent(items[1].ID); ok {
			t.Error("invalid item was cached")
		}
	})
}

func TestResolver_ListDrives(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	const privateID = "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	public := &arfs.Drive{Metadata: arfs.Metadata{EntityID: driveID, Name: "Old name", UnixTime: 1}, RootFolderID: rootID}
	f.publish(t, public, nil)
	renamed := &arfs.Drive{Metadata: arfs.Metadata{EntityID: driveID, Name: "Photos", UnixTime: 2}, RootFolderID: rootID}
	f.publish(t, renamed, nil)

	pk, err := keys.DeriveDriveKey(f.wallet.PrivateKey(), privateID, "pw")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	private := &arfs.Drive{Metadata: arfs.Metadata{EntityID: privateID, Name: "Secrets", UnixTime: 3, Privacy: arfs.Private}, RootFolderID: folderID}
	f.publish(t, private, pk)
	f.ledger.Mine()

	drives, err := f.resolver.ListDrives(context.Background(), f.wallet.Address())
	if err != nil {
		t.Fatalf("ListDrives() error = %v", err)
	}
	if len(drives) != 2 {
		t.Fatalf("ListDrives() returned %d drives, want 2", len(drives))
	}
	byID := map[string]*arfs.Drive{}
	for _, d := range drives {
		byID[d.EntityID] = d
	}
	if byID[driveID] == nil || byID[driveID].Name != "Photos" {
		t.Errorf("public drive = %+v, want latest name Photos", byID[driveID])
	}
	if p := byID[privateID]; p == nil || !p.Invalid || p.Privacy != arfs.Private {
		t.Errorf("private drive = %+v, want invalid-password sentinel", p)
	}
}

func TestResolver_FileData(t *testing.T) {
	const fileID = "99999999-8888-4777-8666-555555555555"
	newFile := func(privacy arfs.Privacy) *arfs.File {
		return &arfs.File{Metadata: arfs.Metadata{
			EntityID: fileID, DriveID: driveID, ParentFolderID: rootID,
			Name: "notes.txt", UnixTime: 10, Privacy: privacy,
		}, DataContentType: "text/plain"}
	}
	content := []byte("meeting notes")

	t.Run("public data transaction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		file := newFile(arfs.Public)
		dataTx, metaTx, err := f.builder.BuildFile(file, content, nil)
		if err != nil {
			t.Fatalf("BuildFile() error = %v", err)
		}
		for _, tx := range []*ledger.Transaction{dataTx, metaTx} {
			if err := f.ledger.Add(tx); err != nil {
				t.Fatalf("Add() error = %v", err)
			}
		}
		f.ledger.Mine()

		got, err := f.resolver.FileData(context.Background(), file, nil)
		if err != nil {
			t.Fatalf("FileData() error = %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("FileData() = %q, want %q", got, content)
		}
	})

	t.Run("private data inside a bundle", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		dk := f.driveKey(t, "secret")
		file := newFile(arfs.Private)
		dataItem, metaItem, err := f.builder.BuildFileItems(file, content, dk)
		if err != nil {
			t.Fatalf("BuildFileItems() error = %v", err)
		}
		bundle, err := f.builder.BuildBundle([]*ledger.DataItem{dataItem, metaItem})
		if err != nil {
			t.Fatalf("BuildBundle() error = %v", err)
		}
		f.ledger.HideBundledItems(true)
		if err := f.ledger.Add(bundle); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		f.ledger.Mine()

		got, err := f.resolver.FileData(context.Background(), file, dk)
		if err != nil {
			t.Fatalf("FileData() error = %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("FileData() = %q, want %q", got, content)
		}

		if _, err := f.resolver.FileData(context.Background(), file, f.driveKey(t, "wrong")); !errors.Is(err, ardrive.ErrDecryption) {
			t.Errorf("FileData() with the wrong key error = %v, want ErrDecryption", err)
		}
	})

	t.Run("private data not indexed yet", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		dk := f.driveKey(t, "secret")
		file := newFile(arfs.Private)
		dataTx, _, err := f.builder.BuildFile(file, content, dk)
		if err != nil {
			t.Fatalf("BuildFile() error = %v", err)
		}
		if err := f.ledger.Add(dataTx); err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		if _, err := f.resolver.FileData(context.Background(), file, dk); !errors.Is(err, ardrive.ErrNotFound) {
			t.Errorf("FileData() error = %v, want ErrNotFound", err)
		}
	})
}
