package spriteconfig

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a number that is stored in JSON either as number, as decimal
// string or as hex string with 0x prefix.
type Value int

// ParseValue parses a decimal or 0x prefixed hex string.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	var (
		v   int64
		err error
	)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err = strconv.ParseInt(hex, 16, 64)
	} else {
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("parsing value '%s': %w", s, err)
	}
	return Value(v), nil
}

// MarshalJSON encodes the value as hex string.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%X", int(v)))
}

// UnmarshalJSON decodes a number or a string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseValue(s)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a number or string: %w", err)
	}
	*v = Value(n)
	return nil
}
