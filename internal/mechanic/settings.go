package mechanic

import (
	"encoding/json"
	"math"
)

// Settings maps live as map[string]interface{} because patches arrive
// from JSON bodies and from config files alike. The helpers below coerce
// the value shapes both sources produce.

// CloneSettings copies a settings map one level deep. Settings values
// are JSON scalars, so a shallow value copy is enough.
func CloneSettings(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SettingString reads a string-valued setting.
func SettingString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// SettingInt reads an integer setting. JSON decoding hands numbers over
// as float64, so whole floats are accepted; fractional values are not.
func SettingInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// SettingBool reads a boolean setting.
func SettingBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
