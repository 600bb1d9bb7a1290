package record

import "math"

// IsNaN reports whether v is a floating point not-a-number. Any other value,
// numeric or not, is not NaN.
func IsNaN(v any) bool {
	switch f := v.(type) {
	case float64:
		return math.IsNaN(f)
	case float32:
		return math.IsNaN(float64(f))
	}
	return false
}

// Clean returns values with every NaN replaced by nil. All other values,
// nested ones included, pass through untouched.
func Clean(values ...any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if IsNaN(v) {
			continue
		}
		out[i] = v
	}
	return out
}
