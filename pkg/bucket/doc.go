// Package bucket implements deterministic user-to-bucket assignment, the
// cross-language compatibility contract shared by the server and every SDK.
//
// The algorithm is fixed and must be reproduced byte-for-byte elsewhere:
// concatenate the optional seed bytes with the UTF-8 input, hash with
// SHA-256, take the big-endian 64-bit prefix of the digest, divide by the
// maximum uint64 and scale to [0,100).
//
// Rollout membership hashes "flagID:bucketKey" (plus ":salt" when a salt is
// configured); a subject is a member iff its percentage is at or below the
// configured rollout percentage. Changing the salt deliberately re-shuffles
// the population. Variant selection walks the ordered variant weights
// cumulatively and the final variant absorbs floating-point rounding at the
// boundary.
package bucket
