package upload

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"ardrive-go/internal/ledger"
)

// encMode uses core deterministic encoding, so equal states persist as
// identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("upload: CBOR encoder initialization failed: " + err.Error())
	}
}

// UploaderState is everything needed to continue an upload apart from the
// transaction body, which lives in the vault under TxID.
type UploaderState struct {
	TxID         string     `cbor:"1,keyasint"`
	Format       int        `cbor:"2,keyasint"`
	Owner        string     `cbor:"3,keyasint"`
	Target       string     `cbor:"4,keyasint,omitempty"`
	Quantity     string     `cbor:"5,keyasint"`
	Tags         []stateTag `cbor:"6,keyasint"`
	DataSize     int64      `cbor:"7,keyasint"`
	DataRoot     string     `cbor:"8,keyasint"`
	Signature    string     `cbor:"9,keyasint"`
	HeaderPosted bool       `cbor:"10,keyasint"`
	NextChunk    int        `cbor:"11,keyasint"`
	TotalChunks  int        `cbor:"12,keyasint"`
	LastError    string     `cbor:"13,keyasint,omitempty"`
}

type stateTag struct {
	Name  string `cbor:"1,keyasint"`
	Value string `cbor:"2,keyasint"`
}

func newState(tx *ledger.Transaction) UploaderState {
	tags := make([]stateTag, len(tx.Tags))
	for i, t := range tx.Tags {
		tags[i] = stateTag{Name: t.Name, Value: t.Value}
	}
	return UploaderState{
		TxID:        tx.ID,
		Format:      tx.Format,
		Owner:       tx.Owner,
		Target:      tx.Target,
		Quantity:    tx.Quantity,
		Tags:        tags,
		DataSize:    tx.DataSize,
		DataRoot:    tx.DataRoot,
		Signature:   tx.Signature,
		TotalChunks: tx.ChunkCount(),
	}
}

// transaction rebuilds the signed transaction around data.
func (s UploaderState) transaction(data []byte) *ledger.Transaction {
	tags := make(ledger.Tags, len(s.Tags))
	for i, t := range s.Tags {
		tags[i] = ledger.Tag{Name: t.Name, Value: t.Value}
	}
	return &ledger.Transaction{
		Format:    s.Format,
		ID:        s.TxID,
		Owner:     s.Owner,
		Target:    s.Target,
		Quantity:  s.Quantity,
		Tags:      tags,
		DataSize:  s.DataSize,
		DataRoot:  s.DataRoot,
		Signature: s.Signature,
		Data:      data,
	}
}

// MarshalState serializes s as deterministic CBOR.
func MarshalState(s UploaderState) ([]byte, error) {
	b, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding uploader state: %w", err)
	}
	return b, nil
}

// UnmarshalState parses a state written by MarshalState.
func UnmarshalState(b []byte) (UploaderState, error) {
	var s UploaderState
	if err := cbor.Unmarshal(b, &s); err != nil {
		return UploaderState{}, fmt.Errorf("decoding uploader state: %w", err)
	}
	if s.TxID == "" {
		return UploaderState{}, fmt.Errorf("decoding uploader state: missing transaction id")
	}
	return s, nil
}
