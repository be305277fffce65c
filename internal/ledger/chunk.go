package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"
)

// ChunkSize is the size of every chunk but the last.
const ChunkSize = 256 * 1024

// Chunk is a single uploadable slice of a transaction's data, with a Merkle
// proof binding it to the transaction's data root.
type Chunk struct {
	DataRoot string `json:"data_root"`
	DataSize int64  `json:"data_size,string"`
	DataPath string `json:"data_path"`
	Offset   int64  `json:"offset,string"`
	Index    int    `json:"-"`
	Data     []byte `json:"-"`
	Encoded  string `json:"chunk"`
}

// ChunkCount returns the number of chunks data of the given size splits into.
func ChunkCount(size int64) int {
	if size == 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

const proofEntrySize = 1 + sha256.Size

// merkle holds the leaf hashes and levels for a chunked payload.
type merkle struct {
	levels [][][]byte
}

func buildMerkle(data []byte) *merkle {
	n := ChunkCount(int64(len(data)))
	if n == 0 {
		return &merkle{}
	}
	leaves := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * ChunkSize
		end := min(start+ChunkSize, len(data))
		sum := sha256.Sum256(data[start:end])
		leaves[i] = sum[:]
	}
	m := &merkle{levels: [][][]byte{leaves}}
	for level := leaves; len(level) > 1; {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		m.levels = append(m.levels, next)
		level = next
	}
	return m
}

func hashPair(left, right []byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, left...), right...))
	return sum[:]
}

func (m *merkle) root() []byte {
	if len(m.levels) == 0 {
		return nil
	}
	return m.levels[len(m.levels)-1][0]
}

// proof returns the sibling path from leaf index up to the root. Each entry is
// a side byte (0 = sibling on the left, 1 = on the right) followed by the hash.
func (m *merkle) proof(index int) []byte {
	var path []byte
	for _, level := range m.levels[:max(len(m.levels)-1, 0)] {
		sibling := index ^ 1
		if sibling < len(level) {
			side := byte(1)
			if sibling < index {
				side = 0
			}
			path = append(path, side)
			path = append(path, level[sibling]...)
		}
		index /= 2
	}
	return path
}

// DataRoot computes the base64url Merkle root of data. Empty data has no root.
func DataRoot(data []byte) string {
	root := buildMerkle(data).root()
	if root == nil {
		return ""
	}
	return B64Encode(root)
}

// VerifyChunk checks that c's proof binds its data to c.DataRoot.
func VerifyChunk(c *Chunk) error {
	path, err := B64Decode(c.DataPath)
	if err != nil {
		return fmt.Errorf("decoding data path: %w", err)
	}
	if len(path)%proofEntrySize != 0 {
		return fmt.Errorf("data path length %d is not a multiple of %d", len(path), proofEntrySize)
	}
	data := c.Data
	if data == nil && c.Encoded != "" {
		if data, err = B64Decode(c.Encoded); err != nil {
			return fmt.Errorf("decoding chunk: %w", err)
		}
	}
	sum := sha256.Sum256(data)
	node := sum[:]
	for i := 0; i < len(path); i += proofEntrySize {
		sibling := path[i+1 : i+proofEntrySize]
		if path[i] == 0 {
			node = hashPair(sibling, node)
		} else {
			node = hashPair(node, sibling)
		}
	}
	root, err := B64Decode(c.DataRoot)
	if err != nil {
		return fmt.Errorf("decoding data root: %w", err)
	}
	if !bytes.Equal(node, root) {
		return fmt.Errorf("chunk at offset %d does not match data root", c.Offset)
	}
	return nil
}
