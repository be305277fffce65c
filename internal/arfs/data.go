package arfs

import (
	"fmt"
	"strconv"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
)

// EncodeData prepares the body and tags of f's data transaction.
// Private files are encrypted under the file key derived from driveKey.
func (c *Codec) EncodeData(f *File, content []byte, driveKey *keys.DriveKey) (TaggedPayload, error) {
	tags := ledger.Tags{}.
		Add(TagAppName, c.appName).
		Add(TagAppVersion, c.appVersion).
		Add(TagUnixTime, strconv.FormatInt(f.UnixTime, 10))

	if f.Privacy != Private {
		ct := f.DataContentType
		if ct == "" {
			ct = ContentTypeBinary
		}
		return TaggedPayload{Tags: tags.Add(TagContentType, ct), Body: content}, nil
	}

	key, err := entityKey(f, driveKey)
	if err != nil {
		return TaggedPayload{}, err
	}
	body, iv, err := keys.Seal(key, content, c.nonces)
	if err != nil {
		return TaggedPayload{}, fmt.Errorf("encrypting data of file %s: %w", f.EntityID, err)
	}
	tags = tags.
		Add(TagContentType, ContentTypeBinary).
		Add(TagCipher, keys.CipherName).
		Add(TagCipherIV, iv)
	return TaggedPayload{Tags: tags, Body: body}, nil
}

// DecodeData returns the plaintext content of f's data transaction.
func (c *Codec) DecodeData(p TaggedPayload, f *File, driveKey *keys.DriveKey) ([]byte, error) {
	cipherName, private := p.Tags.Get(TagCipher)
	if !private {
		return p.Body, nil
	}
	if cipherName != keys.CipherName {
		return nil, fmt.Errorf("data of file %s uses cipher %q: %w", f.EntityID, cipherName, ardrive.ErrMalformedPayload)
	}
	key, err := entityKey(f, driveKey)
	if err != nil {
		return nil, err
	}
	content, err := keys.Open(key, p.Tags.Value(TagCipherIV), p.Body)
	if err != nil {
		return nil, fmt.Errorf("decrypting data of file %s: %w", f.EntityID, err)
	}
	return content, nil
}
