package viewsync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeOne unmarshals raw JSON that is either a single object or a
// one-element array wrapping it into dst. Some upstream serializers emit a
// joined to-one relation as a list; this is the single place that
// difference is absorbed — callers always see one value.
//
// An empty array decodes to the zero value. An array with more than one
// element is an error: a to-one relation with two rows is corrupt data,
// not a formatting quirk.
func DecodeOne(raw []byte, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] != '[' {
		return json.Unmarshal(trimmed, dst)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return fmt.Errorf("viewsync: decoding wrapped value: %w", err)
	}
	switch len(elems) {
	case 0:
		return nil
	case 1:
		return json.Unmarshal(elems[0], dst)
	default:
		return fmt.Errorf("viewsync: expected a single value, got %d", len(elems))
	}
}
