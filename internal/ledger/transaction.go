package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TxFormat is the transaction format version produced by this package.
const TxFormat = 2

// Transaction is a signed ledger transaction. Data travels separately from the
// header, in chunks; DataSize and DataRoot commit to it.
type Transaction struct {
	Format    int
	ID        string
	Owner     string
	Target    string
	Quantity  string
	Tags      Tags
	DataSize  int64
	DataRoot  string
	Signature string
	Data      []byte
}

// NewTransaction creates an unsigned transaction carrying data and tags.
func NewTransaction(data []byte, tags Tags) *Transaction {
	return &Transaction{
		Format:   TxFormat,
		Quantity: "0",
		Tags:     append(Tags(nil), tags...),
		DataSize: int64(len(data)),
		DataRoot: DataRoot(data),
		Data:     data,
	}
}

// signatureData is the deep hash over every signed header field.
func (tx *Transaction) signatureData() []byte {
	return deepHash([]any{
		[]byte(strconv.Itoa(tx.Format)),
		[]byte(tx.Owner),
		[]byte(tx.Target),
		[]byte(tx.Quantity),
		tagsForHash(tx.Tags),
		[]byte(strconv.FormatInt(tx.DataSize, 10)),
		[]byte(tx.DataRoot),
	})
}

// Sign sets the owner, signature and ID of tx using w.
// Signing is deterministic: the same header and wallet give the same ID.
func (tx *Transaction) Sign(w *Wallet) {
	tx.Owner = w.Owner()
	sig := w.Sign(tx.signatureData())
	tx.Signature = B64Encode(sig)
	tx.ID = idFromSignature(sig)
}

// Verify checks the signature, the ID, and (when data is present) the data root.
func (tx *Transaction) Verify() error {
	sig, err := B64Decode(tx.Signature)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if err := verifySignature(tx.Owner, tx.signatureData(), sig); err != nil {
		return fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if id := idFromSignature(sig); id != tx.ID {
		return fmt.Errorf("transaction id %s does not match signature (want %s)", tx.ID, id)
	}
	if tx.Data != nil {
		if int64(len(tx.Data)) != tx.DataSize {
			return fmt.Errorf("transaction %s: data size %d, header says %d", tx.ID, len(tx.Data), tx.DataSize)
		}
		if root := DataRoot(tx.Data); root != tx.DataRoot {
			return fmt.Errorf("transaction %s: data root mismatch", tx.ID)
		}
	}
	return nil
}

// Header returns a copy of tx without its data.
func (tx *Transaction) Header() *Transaction {
	h := *tx
	h.Tags = append(Tags(nil), tx.Tags...)
	h.Data = nil
	return &h
}

// ChunkCount returns the number of chunks the data splits into.
func (tx *Transaction) ChunkCount() int {
	return ChunkCount(tx.DataSize)
}

// Chunks splits the transaction's data into proof-carrying chunks.
func (tx *Transaction) Chunks() ([]*Chunk, error) {
	if int64(len(tx.Data)) != tx.DataSize {
		return nil, fmt.Errorf("transaction %s: data not loaded", tx.ID)
	}
	m := buildMerkle(tx.Data)
	chunks := make([]*Chunk, tx.ChunkCount())
	for i := range chunks {
		start := i * ChunkSize
		end := min(start+ChunkSize, len(tx.Data))
		data := tx.Data[start:end]
		chunks[i] = &Chunk{
			DataRoot: tx.DataRoot,
			DataSize: tx.DataSize,
			DataPath: B64Encode(m.proof(i)),
			Offset:   int64(start),
			Index:    i,
			Data:     data,
			Encoded:  B64Encode(data),
		}
	}
	return chunks, nil
}

// txJSON is the gateway's JSON representation of a transaction header.
type txJSON struct {
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Target    string    `json:"target"`
	Quantity  string    `json:"quantity"`
	Tags      []wireTag `json:"tags"`
	Data      string    `json:"data"`
	DataSize  string    `json:"data_size"`
	DataRoot  string    `json:"data_root"`
	Signature string    `json:"signature"`
}

// MarshalJSON encodes the header. Data is never inlined; it is sent in chunks.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Format:    tx.Format,
		ID:        tx.ID,
		Owner:     tx.Owner,
		Target:    tx.Target,
		Quantity:  tx.Quantity,
		Tags:      encodeTags(tx.Tags),
		DataSize:  strconv.FormatInt(tx.DataSize, 10),
		DataRoot:  tx.DataRoot,
		Signature: tx.Signature,
	})
}

func (tx *Transaction) UnmarshalJSON(b []byte) error {
	var w txJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	tags, err := decodeTags(w.Tags)
	if err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	size, err := strconv.ParseInt(w.DataSize, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing data_size: %w", err)
	}
	*tx = Transaction{
		Format:    w.Format,
		ID:        w.ID,
		Owner:     w.Owner,
		Target:    w.Target,
		Quantity:  w.Quantity,
		Tags:      tags,
		DataSize:  size,
		DataRoot:  w.DataRoot,
		Signature: w.Signature,
	}
	if w.Data != "" {
		data, err := B64Decode(w.Data)
		if err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
		tx.Data = data
	}
	return nil
}
