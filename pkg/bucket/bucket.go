package bucket

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Percentage maps input deterministically onto [0,100). Identical inputs
// always yield an identical percentage, independent of process or time.
// The seed prefixes the hashed bytes; a nil seed and an empty seed are
// equivalent.
func Percentage(input string, seed []byte) float64 {
	h := sha256.New()
	h.Write(seed)
	h.Write([]byte(input))
	sum := h.Sum(nil)

	prefix := binary.BigEndian.Uint64(sum[:8])
	return float64(prefix) / float64(math.MaxUint64) * 100
}

// Key builds the canonical bucketing input for a flag and subject. The salt
// segment is omitted entirely when empty so existing assignments survive the
// introduction of the salt parameter.
func Key(flagID, bucketKey, salt string) string {
	if salt == "" {
		return flagID + ":" + bucketKey
	}
	return flagID + ":" + bucketKey + ":" + salt
}

// ForRollout returns the subject's stable percentage for a flag's rollout.
func ForRollout(flagID, bucketKey, salt string, seed []byte) float64 {
	return Percentage(Key(flagID, bucketKey, salt), seed)
}

// InRollout reports rollout membership: member iff the subject's percentage
// is at or below the configured percentage.
func InRollout(flagID, bucketKey, salt string, seed []byte, percentage float64) bool {
	return ForRollout(flagID, bucketKey, salt, seed) <= percentage
}

// VariantIndex selects a variant by cumulative-weight walk: the first
// variant whose cumulative weight reaches pct wins. The final variant is the
// mandatory fallback absorbing floating-point edge cases at the boundary.
// Returns -1 for an empty weight list.
func VariantIndex(weights []float64, pct float64) int {
	if len(weights) == 0 {
		return -1
	}
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if pct <= cumulative {
			return i
		}
	}
	return len(weights) - 1
}
