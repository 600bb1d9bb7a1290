package record

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode renders r as a Python dictionary literal with sorted keys. Decoding
// the result yields a record equal to r.
func Encode(r Record) (string, error) {
	var sb strings.Builder
	if err := encodeValue(&sb, map[string]any(r)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func encodeValue(sb *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		sb.WriteString("None")
	case bool:
		if t {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case string:
		encodeString(sb, t)
	case int64:
		sb.WriteString(strconv.FormatInt(t, 10))
	case int:
		sb.WriteString(strconv.Itoa(t))
	case float64:
		encodeFloat(sb, t)
	case []any:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := encodeValue(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case Record:
		return encodeValue(sb, map[string]any(t))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			encodeString(sb, k)
			sb.WriteString(": ")
			if err := encodeValue(sb, t[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %T", v)
	}
	return nil
}

func encodeFloat(sb *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		sb.WriteString("nan")
	case math.IsInf(f, 1):
		sb.WriteString("inf")
	case math.IsInf(f, -1):
		sb.WriteString("-inf")
	default:
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		sb.WriteString(s)
	}
}

func encodeString(sb *strings.Builder, s string) {
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(sb, `\x%02x`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('\'')
}
