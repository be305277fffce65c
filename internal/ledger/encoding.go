package ledger

import "encoding/base64"

// B64Encode encodes b as unpadded base64url, the ledger's binary encoding.
func B64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// B64Decode decodes unpadded base64url. Padded input is accepted as well.
func B64Decode(s string) ([]byte, error) {
	if n := len(s); n > 0 && s[n-1] == '=' {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
