package ledger

// Tag is a single name/value pair attached to a transaction or data item.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tags is an ordered tag list. Order is significant: it is part of the signed data.
type Tags []Tag

// Get returns the value of the first tag with the given name.
func (t Tags) Get(name string) (string, bool) {
	for _, tag := range t {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}

// Value returns the value of the first tag with the given name, or "".
func (t Tags) Value(name string) string {
	v, _ := t.Get(name)
	return v
}

// Add appends a tag and returns the extended list.
func (t Tags) Add(name, value string) Tags {
	return append(t, Tag{Name: name, Value: value})
}

// wireTag is the base64url-encoded form used on the wire and in bundles.
type wireTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeTags(tags Tags) []wireTag {
	out := make([]wireTag, len(tags))
	for i, t := range tags {
		out[i] = wireTag{Name: B64Encode([]byte(t.Name)), Value: B64Encode([]byte(t.Value))}
	}
	return out
}

func decodeTags(wire []wireTag) (Tags, error) {
	out := make(Tags, len(wire))
	for i, w := range wire {
		name, err := B64Decode(w.Name)
		if err != nil {
			return nil, err
		}
		value, err := B64Decode(w.Value)
		if err != nil {
			return nil, err
		}
		out[i] = Tag{Name: string(name), Value: string(value)}
	}
	return out, nil
}
