package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Arguments is an insertion-ordered string-to-string mapping holding the
// prompt representation of a function call's arguments. JSON objects do not
// guarantee key order, so the type tracks it explicitly; both codecs replay
// keys in the order they were first set.
type Arguments struct {
	keys   []string
	values map[string]string
}

// NewArguments returns an empty argument mapping.
func NewArguments() *Arguments {
	return &Arguments{values: make(map[string]string)}
}

// Set stores the value under key, appending the key on first use.
func (a *Arguments) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key.
func (a *Arguments) Get(key string) (string, bool) {
	if a == nil || a.values == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a *Arguments) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len returns the number of stored arguments.
func (a *Arguments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// MarshalJSON writes the mapping as a JSON object in insertion order.
func (a *Arguments) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(a.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order. String values are
// taken verbatim; any other value keeps its compact JSON rendering, matching
// how typed variables are flattened to prompt strings on the write path.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	*a = Arguments{values: make(map[string]string)}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("arguments: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("arguments: expected string key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		a.Set(key, scalarString(raw))
	}
	_, err = dec.Token()
	return err
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
