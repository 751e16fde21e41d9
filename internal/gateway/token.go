package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Token computes the request signature: all top-level fields except the
// nested Receipt/DATA blocks and any prior Token, plus Password=secret,
// sorted by field name, values concatenated and hashed with SHA-256. The
// gateway applies the same scheme to its notifications.
func Token(params map[string]any, password string) string {
	fields := make(map[string]string, len(params)+1)
	for key, value := range params {
		switch key {
		case "Receipt", "DATA", "Token":
			continue
		}
		fields[key] = formatValue(value)
	}
	fields["Password"] = password

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(fields[key])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// formatValue renders a decoded JSON value the way the gateway concatenates
// it: numbers without a fractional tail, booleans as true/false.
func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case json.Number:
		return value.String()
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
