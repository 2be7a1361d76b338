package kcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
)

func newSHA256() hash.Hash { return sha256.New() }

// KeySize is the width of a DEK/KEK: XChaCha20-Poly1305's key size.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the width of the XChaCha20-Poly1305 nonce (192 bits),
// chosen over AES-GCM's 96-bit nonce so a deterministic
// nonce-from-(stream,offset) policy has enough space to rule out
// birthday collisions across a tenant's whole stream lifetime.
const NonceSize = chacha20poly1305.NonceSizeX

// DEK is a data-encryption key: the symmetric key that encrypts
// payloads, wrapped under a KEK and rotated independently of data
// re-encryption.
type DEK [KeySize]byte

// KEK is a key-encryption key, unwrapped from the tenant's master key
// at tenant creation; it wraps DEKs for that tenant.
type KEK [KeySize]byte

// Nonce derives a deterministic 24-byte nonce from (streamKey, offset)
// so that replaying the same commit produces identical ciphertext,
// which the deterministic-replication verification requires.
// HKDF-Expand is used rather than a raw concatenation so the derived
// nonce does not trivially leak the offset to an observer who does not
// hold the DEK.
func Nonce(dek DEK, streamKey string, offset uint64) [NonceSize]byte {
	info := append([]byte(streamKey), encodeOffset(offset)...)
	r := hkdf.Expand(newSHA256, dek[:], info)
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(r, nonce[:]); err != nil {
		// hkdf.Expand only fails if the requested length exceeds its
		// output limit, which NonceSize never does.
		panic("kcrypto: hkdf expand failed: " + err.Error())
	}
	assert.NotZero(nonce[:], "derived nonce")
	return nonce
}

func encodeOffset(offset uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(offset >> (56 - 8*i))
	}
	return b
}

// Encrypt seals plaintext under dek with the given nonce and
// additional authenticated data, producing ciphertext||tag.
func Encrypt(dek DEK, nonce [NonceSize]byte, aad, plaintext []byte) ([]byte, error) {
	assert.NotZero(dek[:], "dek")
	assert.NotZero(nonce[:], "nonce")
	aead, err := chacha20poly1305.NewX(dek[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// Decrypt opens ciphertext||tag under dek with the given nonce and aad.
// It returns ErrAuthenticationFailure (never a panic) on tag mismatch,
// since a failed decrypt is caller data, not process corruption.
func Decrypt(dek DEK, nonce [NonceSize]byte, aad, ciphertext []byte) ([]byte, error) {
	assert.NotZero(dek[:], "dek")
	assert.NotZero(nonce[:], "nonce")
	aead, err := chacha20poly1305.NewX(dek[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return pt, nil
}

// GenerateDEK produces a fresh random DEK from a CSPRNG.
func GenerateDEK() (DEK, error) {
	var dek DEK
	if _, err := rand.Read(dek[:]); err != nil {
		return DEK{}, err
	}
	assert.NotZero(dek[:], "generated dek")
	return dek, nil
}

// GenerateKEK produces a fresh random KEK from a CSPRNG.
func GenerateKEK() (KEK, error) {
	var kek KEK
	if _, err := rand.Read(kek[:]); err != nil {
		return KEK{}, err
	}
	assert.NotZero(kek[:], "generated kek")
	return kek, nil
}

// WrapDEK wraps a DEK under a KEK using the same AEAD construction,
// with a fresh random nonce prepended to the returned blob (key
// wrapping is not subject to the deterministic-nonce replication
// requirement, only log record encryption is).
func WrapDEK(kek KEK, dek DEK) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(kek[:])
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce[:], dek[:], nil)
	assert.NotZero(sealed, "wrapped dek blob")
	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce[:]...)
	out = append(out, sealed...)
	return out, nil
}

// UnwrapDEK reverses WrapDEK. wrapped must be at least NonceSize plus
// the AEAD tag size, per the mandatory safety assertion that wrapped
// blobs are at least the size of an authentication tag.
func UnwrapDEK(kek KEK, wrapped []byte) (DEK, error) {
	assert.Invariant(len(wrapped) >= NonceSize+chacha20poly1305.Overhead,
		"wrapped DEK blob too small: %d bytes", len(wrapped))
	var nonce [NonceSize]byte
	copy(nonce[:], wrapped[:NonceSize])
	aead, err := chacha20poly1305.NewX(kek[:])
	if err != nil {
		return DEK{}, err
	}
	pt, err := aead.Open(nil, nonce[:], wrapped[NonceSize:], nil)
	if err != nil {
		return DEK{}, ErrAuthenticationFailure
	}
	var dek DEK
	assert.Invariant(len(pt) == KeySize, "unwrapped dek has wrong length: %d", len(pt))
	copy(dek[:], pt)
	return dek, nil
}
