package configcascade

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeTier strictly decodes one stored override blob.
//
// Rejection is all-or-nothing: any unrecognized key, mistyped value, or
// non-object shape throws away the entire tier rather than salvaging the
// recognized fields. Applying half of a malformed payload risks partial,
// unintended state; falling through to the next-lower tier does not.
func decodeTier(raw json.RawMessage) (Overrides, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var o Overrides
	if err := dec.Decode(&o); err != nil {
		return Overrides{}, fmt.Errorf("invalid override payload: %w", err)
	}
	if dec.More() {
		return Overrides{}, fmt.Errorf("invalid override payload: trailing data")
	}
	return o, nil
}
