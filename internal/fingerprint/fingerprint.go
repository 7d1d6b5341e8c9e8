// Package fingerprint computes deterministic cache keys for materialised
// tasks. It is a pure function over a task identity and a canonicalised
// input JSON string: no I/O, no global state.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pipedag/pipedag-engine/internal/domain"
)

const taskRecordPrefix = "PYDIVERSE-PIPEDAG-TASK"

// cacheKeyLen is the number of hex characters kept from the SHA-256
// digest: 20 hex chars = 80 bits of collision resistance.
const cacheKeyLen = 20

// ComputeCacheKey derives the 20-hex-character cache key for a task
// identity and its canonicalised input JSON. A missing version is
// represented by the literal string "None" via
// TaskIdentity.EffectiveVersion, so it hashes identically to "None".
func ComputeCacheKey(identity domain.TaskIdentity, inputJSON string) string {
	var b strings.Builder
	b.Grow(len(taskRecordPrefix) + len(identity.OriginalName) + len(inputJSON) + 16)
	b.WriteString(taskRecordPrefix)
	b.WriteByte('|')
	b.WriteString(identity.OriginalName)
	b.WriteByte('|')
	b.WriteString(identity.EffectiveVersion())
	b.WriteByte('|')
	b.WriteString(inputJSON)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:cacheKeyLen]
}
