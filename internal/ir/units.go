package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Units is the insertion-ordered unit table of a workflow. It encodes as a
// JSON object keyed by unit name, in slice order.
type Units []Unit

// MarshalJSON writes {"name": unit, ...} preserving order.
func (us Units) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, u := range us {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(u.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(u)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", u.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form back, keeping key order.
func (us *Units) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("units: expected object, got %v", tok)
	}

	out := Units{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("units: expected key, got %v", tok)
		}
		var u Unit
		if err := dec.Decode(&u); err != nil {
			return fmt.Errorf("unit %q: %w", name, err)
		}
		if u.Name == "" {
			u.Name = name
		}
		if u.Name != name {
			return fmt.Errorf("unit %q: key and name %q disagree", name, u.Name)
		}
		out = append(out, u)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*us = out
	return nil
}

// Names returns the unit names in order.
func (us Units) Names() []string {
	names := make([]string, len(us))
	for i, u := range us {
		names[i] = u.Name
	}
	return names
}
