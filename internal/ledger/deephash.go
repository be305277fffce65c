package ledger

import (
	"crypto/sha512"
	"strconv"
)

// deepHash computes a structure-aware SHA-384 digest over nested byte blobs.
// A blob hashes its length-tagged header with its content; a list folds the
// digests of its members into an accumulator seeded with the list's header.
// Elements must be []byte or []any.
func deepHash(v any) []byte {
	switch x := v.(type) {
	case []byte:
		tag := sha384(append([]byte("blob"), strconv.Itoa(len(x))...))
		data := sha384(x)
		return sha384(append(tag, data...))
	case []any:
		acc := sha384(append([]byte("list"), strconv.Itoa(len(x))...))
		for _, item := range x {
			acc = sha384(append(acc, deepHash(item)...))
		}
		return acc
	default:
		panic("ledger: deepHash of unsupported type")
	}
}

func sha384(b []byte) []byte {
	sum := sha512.Sum384(b)
	return sum[:]
}

func tagsForHash(tags Tags) []any {
	out := make([]any, len(tags))
	for i, t := range tags {
		out[i] = []any{[]byte(t.Name), []byte(t.Value)}
	}
	return out
}
