package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Redacted replaces the value of any denylisted field. The original
// value is unrecoverable by construction.
const Redacted = "[REDACTED]"

// denylist covers credential, secret and contact-like field names.
// Matching is on the normalized (lowercased, separator-stripped) key.
var denylist = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"authorization",
	"credential",
	"cookie",
	"email",
	"phone",
	"address",
}

// userIDKeys are field names treated as user identifiers: hashed
// one-way, never stored in the clear.
var userIDKeys = map[string]bool{
	"userid": true,
	"uid":    true,
	"user":   true,
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	k = strings.ReplaceAll(k, "-", "")
	return k
}

func denied(k string) bool {
	n := normalizeKey(k)
	for _, d := range denylist {
		if strings.Contains(n, d) {
			return true
		}
	}
	return false
}

// HashUserID one-way-hashes a user identifier for logging. Truncated
// sha256 is enough to correlate records without identifying anyone.
func HashUserID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}

// SanitizeMap returns a copy of fields with denylisted values redacted
// and user identifiers hashed. It runs before any console output,
// persistence or outward reporting; there is no path that records an
// unsanitized context.
func SanitizeMap(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case userIDKeys[normalizeKey(k)]:
			out[k] = HashUserID(fmt.Sprint(v))
		case denied(k):
			out[k] = Redacted
		default:
			out[k] = v
		}
	}
	return out
}
