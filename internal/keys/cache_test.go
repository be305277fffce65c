package keys

import (
	"bytes"
	"testing"
)

func TestCache(t *testing.T) {
	c := NewCache()
	k, _ := DriveKeyFromBytes(bytes.Repeat([]byte{0x42}, KeySize))
	c.Put("d1", k)

	got, ok := c.Get("d1")
	if !ok || got != k {
		t.Fatalf("Get(d1) = %v, %v, want cached key", got, ok)
	}

	c.Forget("d1")
	if _, ok := c.Get("d1"); ok {
		t.Error("Get(d1) found key after Forget")
	}
	if !bytes.Equal(k.Bytes(), make([]byte, KeySize)) {
		t.Error("Forget did not zero the key")
	}

	k2, _ := DriveKeyFromBytes(bytes.Repeat([]byte{0x43}, KeySize))
	c.Put("d2", k2)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
	if !bytes.Equal(k2.Bytes(), make([]byte, KeySize)) {
		t.Error("Clear did not zero the key")
	}
}
