package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders an argument the way it travels in a path, header,
// cookie or form field: numbers without exponent, arrays comma-joined,
// objects as compact JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case nil:
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// FormatValues renders a query or form argument; arrays become one value
// per item.
func FormatValues(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, FormatValue(item))
		}
		return out
	case []string:
		return val
	}
	return []string{FormatValue(v)}
}
