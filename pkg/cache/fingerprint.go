package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint derives the deterministic cache key for a capability invocation.
// Arguments are normalized through canonical JSON (encoding/json marshals map
// keys in sorted order), so two calls with the same capability and logically
// identical arguments always produce the same key.
func Fingerprint(capability string, args map[string]interface{}) string {
	normalized, err := json.Marshal(args)
	if err != nil {
		// Arguments come from decoded JSON and are always marshalable; fall
		// back to the Go representation rather than failing the lookup.
		normalized = []byte(fmt.Sprintf("%v", args))
	}

	sum := sha256.Sum256(append([]byte(capability+":"), normalized...))
	return hex.EncodeToString(sum[:])
}
