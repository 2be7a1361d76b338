// Package kcrypto implements the hash chain, cryptographic envelope,
// key hierarchy, and checkpoint signing required by the tenant
// isolation and audit-chain guarantees of §4.1/§4.2.
package kcrypto

import (
	"crypto/sha256"
	"hash/fnv"

	"github.com/fxamacker/cbor/v2"
)

// HashSize is the width of the compliance hash, sha256.Size.
const HashSize = sha256.Size

// ComplianceHash is a collision-resistant, widely standardized hash
// used for externally verifiable audit chains and signatures. It must
// never be substituted with FastHash for anything that leaves the
// process.
func ComplianceHash(b []byte) [HashSize]byte {
	return sha256.Sum256(b)
}

// FastHash is used only for internal integrity checks where replay
// from source is always available (in-process structural
// fingerprinting, cache keys). It must never appear in an externalized
// audit proof.
func FastHash(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b) // fnv.Write never returns an error
	return h.Sum64()
}

// canonicalEncMode is the deterministic CBOR mode used for
// canonical_bytes(entry): the canonical CBOR encoding of RFC 7049 §3.9
// (cbor.CanonicalEncOptions), so that two implementations encoding the same semantic value always
// produce identical bytes.
var canonicalEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic("kcrypto: failed to build canonical cbor encoder: " + err.Error())
	}
	canonicalEncMode = m
}

// CanonicalBytes encodes v with the deterministic CBOR mode used for
// hash-chain and signature input. v must be a struct with `cbor:"N,keyasint"`
// field tags so that the encoding is stable across Go struct layout
// changes.
func CanonicalBytes(v interface{}) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// ChainHash computes the prev_hash for the entry following prevCanonical,
// the canonical_bytes of the preceding entry.
func ChainHash(prevCanonical []byte) [HashSize]byte {
	return ComplianceHash(prevCanonical)
}
