package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// LooseInt decodes a JSON number or numeric string. Anything else decodes
// without error and leaves Valid false, so callers can apply a default.
// Fractions are truncated toward zero.
type LooseInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler
func (l *LooseInt) UnmarshalJSON(data []byte) error {
	*l = LooseInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	*l = LooseInt{Value: int(f), Valid: true}
	return nil
}
