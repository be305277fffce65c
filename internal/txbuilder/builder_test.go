package txbuilder

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"ardrive-go/internal/arfs"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
	"ardrive-go/internal/testutil"
)

const (
	driveID = "6d5b3f1e-2c4a-4b8e-9f10-1a2b3c4d5e6f"
	rootID  = "11111111-2222-4333-8444-555555555555"
	fileID  = "0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
)

func newTestBuilder(t *testing.T) (*Builder, *ledger.Wallet) {
	t.Helper()
	w := testutil.NewTestWallet(t, 3)
	return New(w, arfs.NewCodec("ArDrive-Go", "0.1.0")), w
}

func testDriveKey(t *testing.T, w *ledger.Wallet) *keys.DriveKey {
	t.Helper()
	k, err := keys.DeriveDriveKey(w.PrivateKey(), driveID, "secret")
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	return k
}

func testFile(privacy arfs.Privacy) *arfs.File {
	return &arfs.File{
		Metadata: arfs.Metadata{
			EntityID: fileID, DriveID: driveID, ParentFolderID: rootID,
			Name: "notes.txt", UnixTime: 1700000000, Privacy: privacy,
		},
		LastModifiedDate: 1699999999000,
		DataContentType:  "text/plain",
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Run("root folder omits parent tag", func(t *testing.T) {
		t.Parallel()
		b, w := newTestBuilder(t)
		root := &arfs.Folder{Metadata: arfs.Metadata{EntityID: rootID, DriveID: driveID, Name: "Docs", UnixTime: 1}}
		tx, err := b.Build(root, nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if err := tx.Verify(); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if _, ok := tx.Tags.Get(arfs.TagParentFolderID); ok {
			t.Error("root folder should not carry Parent-Folder-Id")
		}
		if root.TxID != tx.ID {
			t.Errorf("entity TxID = %q, want %q", root.TxID, tx.ID)
		}
		if root.Owner != w.Address() {
			t.Errorf("entity Owner = %q, want %q", root.Owner, w.Address())
		}
	})

	t.Run("decodes back through the codec", func(t *testing.T) {
		t.Parallel()
		b, w := newTestBuilder(t)
		dk := testDriveKey(t, w)
		drive := &arfs.Drive{
			Metadata:     arfs.Metadata{EntityID: driveID, Name: "Docs", UnixTime: 5, Privacy: arfs.Private},
			RootFolderID: rootID,
		}
		tx, err := b.Build(drive, dk)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		got, err := b.Codec().Decode(arfs.TaggedPayload{Tags: tx.Tags, Body: tx.Data}, tx.ID, dk)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		d, ok := got.(*arfs.Drive)
		if !ok {
			t.Fatalf("Decode() returned %T, want *arfs.Drive", got)
		}
		if d.Name != "Docs" || d.RootFolderID != rootID {
			t.Errorf("decoded drive = %+v", d)
		}
	})
}

func TestBuilder_BuildFile(t *testing.T) {
	for _, privacy := range []arfs.Privacy{arfs.Public, arfs.Private} {
		t.Run(string(privacy), func(t *testing.T) {
			t.Parallel()
			b, w := newTestBuilder(t)
			dk := testDriveKey(t, w)
			f := testFile(privacy)
			content := []byte("hello ledger")

			dataTx, metaTx, err := b.BuildFile(f, content, dk)
			if err != nil {
				t.Fatalf("BuildFile() error = %v", err)
			}
			if f.DataTxID != dataTx.ID {
				t.Errorf("DataTxID = %q, want %q", f.DataTxID, dataTx.ID)
			}
			if f.Size != int64(len(content)) {
				t.Errorf("Size = %d, want %d", f.Size, len(content))
			}

			decoded, err := b.Codec().Decode(arfs.TaggedPayload{Tags: metaTx.Tags, Body: metaTx.Data}, metaTx.ID, dk)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := decoded.(*arfs.File).DataTxID; got != dataTx.ID {
				t.Errorf("metadata dataTxId = %q, want %q", got, dataTx.ID)
			}

			plain, err := b.Codec().DecodeData(arfs.TaggedPayload{Tags: dataTx.Tags, Body: dataTx.Data}, f, dk)
			if err != nil {
				t.Fatalf("DecodeData() error = %v", err)
			}
			if !bytes.Equal(plain, content) {
				t.Errorf("DecodeData() = %q, want %q", plain, content)
			}
			if privacy == arfs.Private && bytes.Equal(dataTx.Data, content) {
				t.Error("private data should be encrypted")
			}
		})
	}
}

type fixedFee struct{ target string }

func (f fixedFee) Fee(size int64) (string, string, error) { return f.target, "100", nil }

func TestBuilder_FeePolicy(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)

	dataTx, metaTx, err := b.WithFeePolicy(fixedFee{target: "tip-address"}).BuildFile(testFile(arfs.Public), []byte("x"), nil)
	if err != nil {
		t.Fatalf("BuildFile() error = %v", err)
	}
	if dataTx.Target != "tip-address" || dataTx.Quantity != "100" {
		t.Errorf("data tx transfer = %q/%q, want tip-address/100", dataTx.Target, dataTx.Quantity)
	}
	if metaTx.Target != "" {
		t.Errorf("metadata tx should carry no transfer, got %q", metaTx.Target)
	}

	plain, _, err := b.BuildFile(testFile(arfs.Public), []byte("x"), nil)
	if err != nil {
		t.Fatalf("BuildFile() error = %v", err)
	}
	if plain.Target != "" || plain.Quantity != "0" {
		t.Errorf("NoFee transfer = %q/%q", plain.Target, plain.Quantity)
	}
}

func TestBuilder_BuildBundle(t *testing.T) {
	t.Parallel()
	b, w := newTestBuilder(t)
	dk := testDriveKey(t, w)

	drive := &arfs.Drive{
		Metadata:     arfs.Metadata{EntityID: driveID, Name: "Docs", UnixTime: 5, Privacy: arfs.Private},
		RootFolderID: rootID,
	}
	root := &arfs.Folder{Metadata: arfs.Metadata{EntityID: rootID, DriveID: driveID, Name: "Docs", UnixTime: 5, Privacy: arfs.Private}}

	var items []*ledger.DataItem
	for _, e := range []arfs.Entity{drive, root} {
		item, err := b.BuildItem(e, dk)
		if err != nil {
			t.Fatalf("BuildItem() error = %v", err)
		}
		items = append(items, item)
	}
	dataItem, metaItem, err := b.BuildFileItems(testFile(arfs.Private), []byte("content"), dk)
	if err != nil {
		t.Fatalf("BuildFileItems() error = %v", err)
	}
	items = append(items, dataItem, metaItem)

	tx, err := b.BuildBundle(items)
	if err != nil {
		t.Fatalf("BuildBundle() error = %v", err)
	}
	if !ledger.IsBundle(tx.Tags) {
		t.Fatalf("bundle tags = %v", tx.Tags)
	}
	if got := tx.Tags.Value(arfs.TagContentType); got != arfs.ContentTypeBinary {
		t.Errorf("bundle Content-Type = %q, want %q", got, arfs.ContentTypeBinary)
	}

	decoded, err := ledger.DecodeBundle(tx.Data)
	if err != nil {
		t.Fatalf("DecodeBundle() error = %v", err)
	}
	if len(decoded) != 4 {
		t.Fatalf("bundle has %d items, want 4", len(decoded))
	}

	var kinds []arfs.EntityType
	for _, item := range decoded {
		if _, ok := item.Tags.Get(arfs.TagEntityType); !ok {
			continue
		}
		e, err := b.Codec().Decode(arfs.TaggedPayload{Tags: item.Tags, Body: item.Data}, item.ID, dk)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		kinds = append(kinds, e.Kind())
		if f, ok := e.(*arfs.File); ok && f.DataTxID != dataItem.ID {
			t.Errorf("bundled file dataTxId = %q, want %q", f.DataTxID, dataItem.ID)
		}
	}
	want := []arfs.EntityType{arfs.DriveEntity, arfs.FolderEntity, arfs.FileEntity}
	if len(kinds) != len(want) {
		t.Fatalf("decoded kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kind[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestBuilder_BuildBundleRejectsEmpty(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t)
	if _, err := b.BuildBundle(nil); err == nil {
		t.Error("BuildBundle() expected error for no items")
	}
}

func TestBuilder_DeterministicDriveKey(t *testing.T) {
	t.Parallel()
	w := testutil.NewTestWallet(t, 3)
	a, _ := keys.DeriveDriveKey(w.PrivateKey(), driveID, "secret")
	b, _ := keys.DeriveDriveKey(ed25519.NewKeyFromSeed(w.Seed()), driveID, "secret")
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("drive key should depend only on the wallet seed")
	}
}
