package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeNodeID converts any wire spelling of a node identifier into the
// canonical "!<lowercase-hex>" form. It is total: every non-empty input maps
// to some identifier, malformed values are preserved lowercased rather than
// rejected. nil and empty inputs map to nil.
//
// Accepted inputs are the shapes seen on the wire: JSON numbers (float64),
// Go integers from the binary decoder, and strings in "!hex", "0xhex",
// plain-hex or decimal spellings.
func NormalizeNodeID(v any) *string {
	switch val := v.(type) {
	case nil:
		return nil
	case uint32:
		return strPtr(renderNodeNum(uint64(val)))
	case uint64:
		return strPtr(renderNodeNum(val))
	case int:
		return normalizeInt(int64(val))
	case int64:
		return normalizeInt(val)
	case float64:
		// JSON numbers arrive as float64; node ids are whole numbers.
		if val < 0 {
			return normalizeInt(int64(val))
		}
		return strPtr(renderNodeNum(uint64(val)))
	case string:
		return normalizeString(val)
	default:
		return normalizeString(fmt.Sprintf("%v", val))
	}
}

// NormalizeDestination normalizes like NormalizeNodeID but maps every
// spelling of the reserved all-nodes value 4294967295 to the Broadcast label.
func NormalizeDestination(v any) *string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "4294967295" {
		return strPtr(Broadcast)
	}
	norm := NormalizeNodeID(v)
	if norm == nil {
		return nil
	}
	if *norm == "!ffffffff" {
		return strPtr(Broadcast)
	}
	return norm
}

func normalizeInt(n int64) *string {
	if n < 0 {
		// Malformed upstream data; keep it identifiable rather than dropping it.
		return strPtr("!" + strings.ToLower(strconv.FormatInt(n, 16)))
	}
	return strPtr(renderNodeNum(uint64(n)))
}

func normalizeString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "!") {
		return strPtr("!" + strings.ToLower(s[1:]))
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if n, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
			return strPtr(renderNodeNum(n))
		}
		return strPtr("!" + strings.ToLower(s))
	}
	if n, err := strconv.ParseUint(s, 16, 64); err == nil {
		return strPtr(renderNodeNum(n))
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strPtr(renderNodeNum(n))
	}
	return strPtr("!" + strings.ToLower(s))
}

func renderNodeNum(n uint64) string {
	return "!" + strconv.FormatUint(n, 16)
}

func strPtr(s string) *string { return &s }
