package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Fingerprint derives the cache key for an operation and its defining
// parameters. The parameter map is canonicalized first (JSON with sorted
// keys, dates and enums normalized to strings), so semantically identical
// requests always map to the same key regardless of field order or
// client-side formatting.
func Fingerprint(operation string, params map[string]any) string {
	canonical, err := json.Marshal(normalize(params))
	if err != nil {
		// Only non-serializable values can land here; fall back to a key
		// that still isolates the operation.
		canonical = []byte(fmt.Sprintf("%v", params))
	}

	sum := sha256.Sum256(canonical)
	return operation + ":" + hex.EncodeToString(sum[:])
}

// normalize rewrites parameter values into canonical forms before hashing.
// encoding/json already emits map keys in sorted order, so only the values
// need attention here.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalize(inner)
		}
		return out
	case time.Time:
		return val.UTC().Format("2006-01-02")
	case fmt.Stringer:
		return val.String()
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
