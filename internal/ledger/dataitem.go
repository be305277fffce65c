package ledger

import (
	"encoding/json"
	"fmt"
)

// DataItem is an independently signed, independently tagged entry of a bundle.
type DataItem struct {
	ID        string
	Owner     string
	Target    string
	Nonce     string
	Tags      Tags
	Data      []byte
	Signature string
}

// NewDataItem creates an unsigned data item.
func NewDataItem(data []byte, tags Tags) *DataItem {
	return &DataItem{
		Tags: append(Tags(nil), tags...),
		Data: data,
	}
}

func (d *DataItem) signatureData() []byte {
	return deepHash([]any{
		[]byte("dataitem"),
		[]byte("1"),
		[]byte(d.Owner),
		[]byte(d.Target),
		[]byte(d.Nonce),
		tagsForHash(d.Tags),
		d.Data,
	})
}

// Sign sets the owner, signature and ID of d using w.
func (d *DataItem) Sign(w *Wallet) {
	d.Owner = w.Owner()
	sig := w.Sign(d.signatureData())
	d.Signature = B64Encode(sig)
	d.ID = idFromSignature(sig)
}

// Verify checks the item's signature and ID.
func (d *DataItem) Verify() error {
	sig, err := B64Decode(d.Signature)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if err := verifySignature(d.Owner, d.signatureData(), sig); err != nil {
		return fmt.Errorf("data item %s: %w", d.ID, err)
	}
	if id := idFromSignature(sig); id != d.ID {
		return fmt.Errorf("data item id %s does not match signature (want %s)", d.ID, id)
	}
	return nil
}

type dataItemJSON struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Target    string    `json:"target"`
	Nonce     string    `json:"nonce"`
	Tags      []wireTag `json:"tags"`
	Data      string    `json:"data"`
	Signature string    `json:"signature"`
}

func (d *DataItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(dataItemJSON{
		ID:        d.ID,
		Owner:     d.Owner,
		Target:    d.Target,
		Nonce:     d.Nonce,
		Tags:      encodeTags(d.Tags),
		Data:      B64Encode(d.Data),
		Signature: d.Signature,
	})
}

func (d *DataItem) UnmarshalJSON(b []byte) error {
	var w dataItemJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	tags, err := decodeTags(w.Tags)
	if err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	data, err := B64Decode(w.Data)
	if err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	*d = DataItem{
		ID:        w.ID,
		Owner:     w.Owner,
		Target:    w.Target,
		Nonce:     w.Nonce,
		Tags:      tags,
		Data:      data,
		Signature: w.Signature,
	}
	return nil
}
