package domain

import (
	"encoding/json"
	"fmt"
)

const (
	metadataMaxKeys         = 32
	metadataMaxEncodedBytes = 4096
)

// Metadata is an open key/value bag attached to artifacts. It is bounded
// rather than free-form: at most 32 keys, at most 4kB JSON-encoded, and
// values must be scalars or flat lists/maps of scalars.
type Metadata map[string]any

func (m Metadata) Validate() error {
	if len(m) == 0 {
		return nil
	}
	if len(m) > metadataMaxKeys {
		return Validation("METADATA_TOO_LARGE", fmt.Sprintf("metadata has %d keys, maximum is %d", len(m), metadataMaxKeys))
	}
	for k, v := range m {
		if k == "" {
			return Validation("METADATA_EMPTY_KEY", "metadata keys must be non-empty")
		}
		if !metadataValueOK(v, true) {
			return Validation("METADATA_BAD_VALUE", fmt.Sprintf("metadata value for %q must be a scalar or a flat list/map of scalars", k))
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Validation("METADATA_NOT_ENCODABLE", "metadata must be JSON-encodable")
	}
	if len(b) > metadataMaxEncodedBytes {
		return Validation("METADATA_TOO_LARGE", fmt.Sprintf("metadata encodes to %d bytes, maximum is %d", len(b), metadataMaxEncodedBytes))
	}
	return nil
}

func metadataValueOK(v any, allowNested bool) bool {
	switch vv := v.(type) {
	case nil, bool, string, float64, int, int64:
		return true
	case []any:
		if !allowNested {
			return false
		}
		for _, e := range vv {
			if !metadataValueOK(e, false) {
				return false
			}
		}
		return true
	case map[string]any:
		if !allowNested {
			return false
		}
		for _, e := range vv {
			if !metadataValueOK(e, false) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
