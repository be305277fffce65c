package arfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
)

// TaggedPayload is an entity's ledger form: its tag set and body bytes.
type TaggedPayload struct {
	Tags ledger.Tags
	Body []byte
}

// Codec encodes entities into tagged payloads and back.
type Codec struct {
	appName    string
	appVersion string
	nonces     io.Reader
}

// NewCodec creates a codec stamping the given provenance on encoded entities.
func NewCodec(appName, appVersion string) *Codec {
	return &Codec{appName: appName, appVersion: appVersion}
}

// AppName returns the App-Name stamped on encoded payloads.
func (c *Codec) AppName() string { return c.appName }

// AppVersion returns the App-Version stamped on encoded payloads.
func (c *Codec) AppVersion() string { return c.appVersion }

// WithNonceSource returns a copy of c that reads cipher nonces from r.
// Tests use it to make private payloads reproducible.
func (c *Codec) WithNonceSource(r io.Reader) *Codec {
	cc := *c
	cc.nonces = r
	return &cc
}

type driveBody struct {
	Name         string `json:"name"`
	RootFolderID string `json:"rootFolderId"`
}

type folderBody struct {
	Name string `json:"name"`
}

type fileBody struct {
	Name             string `json:"name"`
	Size             int64  `json:"size"`
	LastModifiedDate int64  `json:"lastModifiedDate"`
	DataTxID         string `json:"dataTxId"`
	DataContentType  string `json:"dataContentType"`
}

// Encode serializes e into its tagged ledger form. Private entities are
// encrypted under driveKey (files under their derived file key).
// Encode stamps provenance, content type and cipher fields onto e.
func (c *Codec) Encode(e Entity, driveKey *keys.DriveKey) (TaggedPayload, error) {
	m := e.Meta()
	if m.Privacy == "" {
		m.Privacy = Public
	}
	body, err := marshalBody(e)
	if err != nil {
		return TaggedPayload{}, err
	}

	m.AppName = c.appName
	m.AppVersion = c.appVersion
	m.ArFS = Version
	m.Cipher, m.CipherIV = "", ""

	if m.Privacy == Private {
		key, err := entityKey(e, driveKey)
		if err != nil {
			return TaggedPayload{}, err
		}
		ct, iv, err := keys.Seal(key, body, c.nonces)
		if err != nil {
			return TaggedPayload{}, fmt.Errorf("encrypting %s %s: %w", e.Kind(), m.EntityID, err)
		}
		body = ct
		m.ContentType = ContentTypeBinary
		m.Cipher = keys.CipherName
		m.CipherIV = iv
		if d, ok := e.(*Drive); ok {
			d.DriveAuthMode = AuthModePassword
		}
	} else {
		m.ContentType = ContentTypeJSON
		if d, ok := e.(*Drive); ok {
			d.DriveAuthMode = ""
		}
	}

	return TaggedPayload{Tags: encodeTags(e), Body: body}, nil
}

func encodeTags(e Entity) ledger.Tags {
	bit := kindBit(e.Kind())
	private := e.Meta().Privacy == Private
	var tags ledger.Tags
	for _, f := range tagTable {
		if f.kinds&bit == 0 || (f.private && !private) {
			continue
		}
		v := f.get(e)
		if v == "" {
			continue
		}
		tags = tags.Add(f.name, v)
	}
	return tags
}

// Decode rebuilds an entity from its tagged payload. driveKey may be nil for
// public entities. A wrong key yields ardrive.ErrDecryption; corrupt tags or
// bodies yield ardrive.ErrMalformedPayload.
func (c *Codec) Decode(p TaggedPayload, txID string, driveKey *keys.DriveKey) (Entity, error) {
	e, err := decodeTags(p.Tags)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", txID, err)
	}
	m := e.Meta()
	m.TxID = txID

	body := p.Body
	if m.Privacy == Private {
		key, err := entityKey(e, driveKey)
		if err != nil {
			if errors.Is(err, ardrive.ErrKeyDerivation) {
				return nil, fmt.Errorf("tx %s: %w: %w", txID, ardrive.ErrMalformedPayload, err)
			}
			return nil, fmt.Errorf("tx %s: %w", txID, err)
		}
		if body, err = keys.Open(key, m.CipherIV, body); err != nil {
			return nil, fmt.Errorf("tx %s: %w", txID, err)
		}
	}
	if err := unmarshalBody(e, body); err != nil {
		return nil, fmt.Errorf("tx %s: %w", txID, err)
	}
	return e, nil
}

// Sentinel builds the invalid-password placeholder for a payload that failed
// to decrypt. Identity fields come from the tags; the name is replaced.
func (c *Codec) Sentinel(p TaggedPayload, txID string) (Entity, error) {
	e, err := decodeTags(p.Tags)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", txID, err)
	}
	m := e.Meta()
	m.TxID = txID
	m.Name = InvalidPasswordName
	m.Invalid = true
	return e, nil
}

func decodeTags(tags ledger.Tags) (Entity, error) {
	kind, ok := tags.Get(TagEntityType)
	if !ok {
		return nil, fmt.Errorf("missing %s tag: %w", TagEntityType, ardrive.ErrMalformedPayload)
	}
	e, ok := newEntity(EntityType(kind))
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q: %w", kind, ardrive.ErrMalformedPayload)
	}
	bit := kindBit(e.Kind())
	for _, f := range tagTable {
		if f.kinds&bit == 0 {
			continue
		}
		v, ok := tags.Get(f.name)
		if !ok || v == "" {
			if f.required {
				return nil, fmt.Errorf("%s missing %s tag: %w", kind, f.name, ardrive.ErrMalformedPayload)
			}
			continue
		}
		if err := f.set(e, v); err != nil {
			return nil, fmt.Errorf("%w: %w", ardrive.ErrMalformedPayload, err)
		}
	}

	m := e.Meta()
	switch {
	case e.Kind() == DriveEntity && m.Privacy == "":
		m.Privacy = Public
	case e.Kind() != DriveEntity && m.Cipher != "":
		m.Privacy = Private
	case e.Kind() != DriveEntity:
		m.Privacy = Public
	}
	if m.Privacy == Private && (m.Cipher != keys.CipherName || m.CipherIV == "") {
		return nil, fmt.Errorf("private %s with cipher %q: %w", kind, m.Cipher, ardrive.ErrMalformedPayload)
	}
	return e, nil
}

// entityKey selects the encryption key for e: its file key for files,
// the drive key for drives and folders.
func entityKey(e Entity, driveKey *keys.DriveKey) ([]byte, error) {
	if driveKey == nil {
		return nil, fmt.Errorf("no drive key for private %s %s: %w", e.Kind(), e.Meta().EntityID, ardrive.ErrDecryption)
	}
	if e.Kind() != FileEntity {
		return driveKey.Bytes(), nil
	}
	fk, err := keys.DeriveFileKey(driveKey, e.Meta().EntityID)
	if err != nil {
		return nil, err
	}
	return fk.Bytes(), nil
}

func marshalBody(e Entity) ([]byte, error) {
	var v any
	switch x := e.(type) {
	case *Drive:
		v = driveBody{Name: x.Name, RootFolderID: x.RootFolderID}
	case *Folder:
		v = folderBody{Name: x.Name}
	case *File:
		v = fileBody{
			Name:             x.Name,
			Size:             x.Size,
			LastModifiedDate: x.LastModifiedDate,
			DataTxID:         x.DataTxID,
			DataContentType:  x.DataContentType,
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", e.Kind(), err)
	}
	return b, nil
}

func unmarshalBody(e Entity, body []byte) error {
	switch x := e.(type) {
	case *Drive:
		var b driveBody
		if err := json.Unmarshal(body, &b); err != nil {
			return fmt.Errorf("parsing drive body: %w: %w", ardrive.ErrMalformedPayload, err)
		}
		x.Name, x.RootFolderID = b.Name, b.RootFolderID
	case *Folder:
		var b folderBody
		if err := json.Unmarshal(body, &b); err != nil {
			return fmt.Errorf("parsing folder body: %w: %w", ardrive.ErrMalformedPayload, err)
		}
		x.Name = b.Name
	case *File:
		var b fileBody
		if err := json.Unmarshal(body, &b); err != nil {
			return fmt.Errorf("parsing file body: %w: %w", ardrive.ErrMalformedPayload, err)
		}
		x.Name, x.Size, x.LastModifiedDate = b.Name, b.Size, b.LastModifiedDate
		x.DataTxID, x.DataContentType = b.DataTxID, b.DataContentType
	}
	return nil
}
