package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundle_RoundTrip(t *testing.T) {
	w := testWallet(t, 5)

	var items []*DataItem
	for _, name := range []string{"drive", "folder"} {
		item := NewDataItem([]byte(`{"name":"`+name+`"}`), Tags{{Name: "Entity-Type", Value: name}})
		item.Sign(w)
		items = append(items, item)
	}

	body, err := EncodeBundle(items)
	require.NoError(t, err)

	decoded, err := DecodeBundle(body)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	for i := range items {
		assert.Equal(t, items[i].ID, decoded[i].ID)
		assert.Equal(t, items[i].Tags, decoded[i].Tags)
		assert.Equal(t, items[i].Data, decoded[i].Data)
	}
}

func TestEncodeBundle_RejectsUnsignedItem(t *testing.T) {
	_, err := EncodeBundle([]*DataItem{NewDataItem([]byte("x"), nil)})
	assert.Error(t, err)
}

func TestDecodeBundle_SkipsTamperedItem(t *testing.T) {
	w := testWallet(t, 5)
	var items []*DataItem
	for _, body := range []string{"first", "original", "third"} {
		item := NewDataItem([]byte(body), nil)
		item.Sign(w)
		items = append(items, item)
	}
	items[1].Data = []byte("tampered")

	body, err := EncodeBundle(items)
	require.NoError(t, err)

	decoded, err := DecodeBundle(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle item 1")
	require.Len(t, decoded, 2)
	assert.Equal(t, items[0].ID, decoded[0].ID)
	assert.Equal(t, items[2].ID, decoded[1].ID)
}

func TestDecodeBundle_RejectsUnparsableBody(t *testing.T) {
	decoded, err := DecodeBundle([]byte("not json"))
	assert.Error(t, err)
	assert.Empty(t, decoded)
}

func TestIsBundle(t *testing.T) {
	assert.True(t, IsBundle(Tags{{Name: TagBundleFormat, Value: "json"}, {Name: TagBundleVersion, Value: "1.0.0"}}))
	assert.False(t, IsBundle(Tags{{Name: TagBundleFormat, Value: "binary"}, {Name: TagBundleVersion, Value: "2.0.0"}}))
	assert.False(t, IsBundle(nil))
}
