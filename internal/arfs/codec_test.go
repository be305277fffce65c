package arfs

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"reflect"
	"testing"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
)

const (
	driveID  = "6d5b3f1e-2c4a-4b8e-9f10-1a2b3c4d5e6f"
	rootID   = "11111111-2222-4333-8444-555555555555"
	folderID = "22222222-3333-4444-8555-666666666666"
	fileID   = "0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0"
)

func testDriveKey(t *testing.T, passphrase string) *keys.DriveKey {
	t.Helper()
	secret := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	k, err := keys.DeriveDriveKey(secret, driveID, passphrase)
	if err != nil {
		t.Fatalf("DeriveDriveKey() error = %v", err)
	}
	return k
}

func testEntities(privacy Privacy) []Entity {
	return []Entity{
		&Drive{
			Metadata:     Metadata{EntityID: driveID, Name: "Docs", UnixTime: 1700000000, Privacy: privacy},
			RootFolderID: rootID,
		},
		&Folder{Metadata: Metadata{EntityID: rootID, DriveID: driveID, Name: "Docs", UnixTime: 1700000001, Privacy: privacy}},
		&Folder{Metadata: Metadata{EntityID: folderID, DriveID: driveID, ParentFolderID: rootID, Name: "Archive", UnixTime: 1700000002, Privacy: privacy}},
		&File{
			Metadata:         Metadata{EntityID: fileID, DriveID: driveID, ParentFolderID: folderID, Name: "report.pdf", UnixTime: 1700000003, Privacy: privacy},
			Size:             1234,
			LastModifiedDate: 1699999999000,
			DataTxID:         "dataTx123",
			DataContentType:  "application/pdf",
		},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	dk := testDriveKey(t, "pw")

	for _, privacy := range []Privacy{Public, Private} {
		for _, e := range testEntities(privacy) {
			t.Run(string(privacy)+"/"+string(e.Kind())+"/"+e.Meta().Name, func(t *testing.T) {
				payload, err := codec.Encode(e, dk)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				e.Meta().TxID = "tx-1"

				got, err := codec.Decode(payload, "tx-1", dk)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				if !reflect.DeepEqual(got, e) {
					t.Errorf("Decode() = %+v, want %+v", got, e)
				}

				again, err := codec.Decode(payload, "tx-1", dk)
				if err != nil {
					t.Fatalf("second Decode() error = %v", err)
				}
				if !reflect.DeepEqual(got, again) {
					t.Error("Decode() is not idempotent")
				}
			})
		}
	}
}

func TestCodec_TagVocabulary(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	dk := testDriveKey(t, "pw")

	tests := []struct {
		name    string
		entity  Entity
		want    []string
		without []string
	}{
		{
			name:    "public drive",
			entity:  testEntities(Public)[0],
			want:    []string{TagAppName, TagAppVersion, TagUnixTime, TagContentType, TagArFS, TagEntityType, TagDriveID, TagDrivePrivacy},
			without: []string{TagCipher, TagCipherIV, TagDriveAuthMode, TagFolderID, TagParentFolderID},
		},
		{
			name:    "private drive",
			entity:  testEntities(Private)[0],
			want:    []string{TagDrivePrivacy, TagDriveAuthMode, TagCipher, TagCipherIV},
			without: []string{TagParentFolderID},
		},
		{
			name:    "root folder omits parent",
			entity:  testEntities(Public)[1],
			want:    []string{TagFolderID, TagDriveID},
			without: []string{TagParentFolderID, TagDrivePrivacy},
		},
		{
			name:    "nested folder carries parent",
			entity:  testEntities(Public)[2],
			want:    []string{TagFolderID, TagDriveID, TagParentFolderID},
			without: []string{TagFileID},
		},
		{
			name:    "private file",
			entity:  testEntities(Private)[3],
			want:    []string{TagFileID, TagDriveID, TagParentFolderID, TagCipher, TagCipherIV},
			without: []string{TagFolderID, TagDriveAuthMode},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := codec.Encode(tt.entity, dk)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			for _, name := range tt.want {
				if _, ok := payload.Tags.Get(name); !ok {
					t.Errorf("missing tag %s in %v", name, payload.Tags)
				}
			}
			for _, name := range tt.without {
				if _, ok := payload.Tags.Get(name); ok {
					t.Errorf("unexpected tag %s in %v", name, payload.Tags)
				}
			}
		})
	}
}

func TestCodec_ContentType(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	dk := testDriveKey(t, "pw")

	pub, err := codec.Encode(testEntities(Public)[2], nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got := pub.Tags.Value(TagContentType); got != ContentTypeJSON {
		t.Errorf("public Content-Type = %q, want %q", got, ContentTypeJSON)
	}

	priv, err := codec.Encode(testEntities(Private)[2], dk)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got := priv.Tags.Value(TagContentType); got != ContentTypeBinary {
		t.Errorf("private Content-Type = %q, want %q", got, ContentTypeBinary)
	}
	if bytes.Contains(priv.Body, []byte("Archive")) {
		t.Error("private body contains plaintext name")
	}
}

func TestCodec_WrongKeyIsDecryptionError(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")

	for _, e := range testEntities(Private) {
		t.Run(string(e.Kind()), func(t *testing.T) {
			payload, err := codec.Encode(e, testDriveKey(t, "right"))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			_, err = codec.Decode(payload, "tx", testDriveKey(t, "wrong"))
			if !errors.Is(err, ardrive.ErrDecryption) {
				t.Errorf("Decode() error = %v, want ErrDecryption", err)
			}
			if errors.Is(err, ardrive.ErrMalformedPayload) {
				t.Error("wrong key reported as malformed payload")
			}
		})
	}
}

func TestCodec_MalformedPayloads(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	dk := testDriveKey(t, "pw")

	good, err := codec.Encode(testEntities(Public)[2], nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	privGood, err := codec.Encode(testEntities(Private)[2], dk)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	without := func(tags ledger.Tags, name string) ledger.Tags {
		var out ledger.Tags
		for _, t := range tags {
			if t.Name != name {
				out = append(out, t)
			}
		}
		return out
	}
	replaced := func(tags ledger.Tags, name, value string) ledger.Tags {
		out := append(ledger.Tags(nil), tags...)
		for i := range out {
			if out[i].Name == name {
				out[i].Value = value
			}
		}
		return out
	}

	tests := []struct {
		name    string
		payload TaggedPayload
	}{
		{name: "missing entity type", payload: TaggedPayload{Tags: without(good.Tags, TagEntityType), Body: good.Body}},
		{name: "unknown entity type", payload: TaggedPayload{Tags: replaced(good.Tags, TagEntityType, "symlink"), Body: good.Body}},
		{name: "missing folder id", payload: TaggedPayload{Tags: without(good.Tags, TagFolderID), Body: good.Body}},
		{name: "bad unix time", payload: TaggedPayload{Tags: replaced(good.Tags, TagUnixTime, "yesterday"), Body: good.Body}},
		{name: "body not json", payload: TaggedPayload{Tags: good.Tags, Body: []byte("{not json")}},
		{name: "unknown cipher", payload: TaggedPayload{Tags: replaced(privGood.Tags, TagCipher, "ROT13"), Body: privGood.Body}},
		{name: "bad cipher iv", payload: TaggedPayload{Tags: replaced(privGood.Tags, TagCipherIV, "%%%"), Body: privGood.Body}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.payload, "tx", dk)
			if !errors.Is(err, ardrive.ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestCodec_Sentinel(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	payload, err := codec.Encode(testEntities(Private)[0], testDriveKey(t, "pw"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	e, err := codec.Sentinel(payload, "tx-9")
	if err != nil {
		t.Fatalf("Sentinel() error = %v", err)
	}
	if e.Meta().Name != InvalidPasswordName || !e.Meta().Invalid {
		t.Errorf("Sentinel() = %+v, want invalid-password marker", e.Meta())
	}
	if e.Meta().EntityID != driveID {
		t.Errorf("EntityID = %q, want %q", e.Meta().EntityID, driveID)
	}
}

func TestCodec_DataRoundTrip(t *testing.T) {
	codec := NewCodec("ArDrive-Sync", "1.0.0")
	dk := testDriveKey(t, "pw")
	content := bytes.Repeat([]byte("report "), 100)

	for _, privacy := range []Privacy{Public, Private} {
		t.Run(string(privacy), func(t *testing.T) {
			f := testEntities(privacy)[3].(*File)
			payload, err := codec.EncodeData(f, content, dk)
			if err != nil {
				t.Fatalf("EncodeData() error = %v", err)
			}
			_, hasCipher := payload.Tags.Get(TagCipher)
			if hasCipher != (privacy == Private) {
				t.Errorf("Cipher tag present = %v for %s data", hasCipher, privacy)
			}
			got, err := codec.DecodeData(payload, f, dk)
			if err != nil {
				t.Fatalf("DecodeData() error = %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Error("DecodeData() did not return the original content")
			}
		})
	}
}
