package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Bundle tag names and the values identifying a JSON bundle.
const (
	TagBundleFormat  = "Bundle-Format"
	TagBundleVersion = "Bundle-Version"
	BundleFormat     = "json"
	BundleVersion    = "1.0.0"
)

type bundleJSON struct {
	Items []*DataItem `json:"items"`
}

// EncodeBundle serializes signed items into a JSON bundle body.
// Every item must already be signed.
func EncodeBundle(items []*DataItem) ([]byte, error) {
	for i, item := range items {
		if item.Signature == "" {
			return nil, fmt.Errorf("bundle item %d is not signed", i)
		}
	}
	return json.Marshal(bundleJSON{Items: items})
}

// DecodeBundle parses a JSON bundle body and verifies each item on its own.
// It returns the items that verify; the failures of the others are joined
// into the error, each with its index. An unparsable body yields no
// items at all.
func DecodeBundle(body []byte) ([]*DataItem, error) {
	var b bundleJSON
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}
	items := make([]*DataItem, 0, len(b.Items))
	var errs []error
	for i, item := range b.Items {
		if item == nil {
			errs = append(errs, fmt.Errorf("bundle item %d is empty", i))
			continue
		}
		if err := item.Verify(); err != nil {
			errs = append(errs, fmt.Errorf("bundle item %d: %w", i, err))
			continue
		}
		items = append(items, item)
	}
	return items, errors.Join(errs...)
}

// IsBundle reports whether tags mark a transaction as a JSON bundle.
func IsBundle(tags Tags) bool {
	return tags.Value(TagBundleFormat) == BundleFormat && tags.Value(TagBundleVersion) == BundleVersion
}
