package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is configured for CBOR's canonical encoding (RFC 7049 §3.9):
// length-first sorted map keys, shortest-form integers, no
// indefinite-length items. Two calls to
// Marshal with equal Go values always produce identical bytes.
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: build canonical encode mode: %v", err))
	}
	return mode
}

// Marshal deterministically encodes v.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes data into v, which must be a pointer.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}
