package kcrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Checkpoint is the periodic externally verifiable commitment to a
// tenant's hash-chain head, signed with COSE_Sign1 the same way the
// teacher's RootSigner signs MMR roots (grounded reuse, a different
// payload: a hash-chain head instead of an MMR state).
type Checkpoint struct {
	Version     int    `cbor:"1,keyasint"`
	Tenant      uint64 `cbor:"2,keyasint"`
	Stream      uint64 `cbor:"3,keyasint"`
	HeadOffset  uint64 `cbor:"4,keyasint"`
	HeadHash    []byte `cbor:"5,keyasint"`
	Timestamp   int64  `cbor:"6,keyasint"`
	MerkleSize  uint64 `cbor:"7,keyasint"`
	MerkleRoot  []byte `cbor:"8,keyasint,omitempty"`
}

const CheckpointVersion = 1

// CheckpointSigner produces COSE_Sign1 signatures over Checkpoint
// values using ECDSA P-256, mirroring massifs/rootsigner.go's approach
// without the MMR-peak-receipt machinery, which has no analogue here.
type CheckpointSigner struct {
	privateKey *ecdsa.PrivateKey
	keyID      string
}

// NewCheckpointSigner generates a fresh ECDSA P-256 signing key. In
// production the private key is supplied by an external key
// management collaborator; this constructor covers the dev/test path.
func NewCheckpointSigner(keyID string) (*CheckpointSigner, error) {
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &CheckpointSigner{privateKey: pk, keyID: keyID}, nil
}

// Sign encodes cp with the deterministic CBOR mode and returns the
// COSE_Sign1 encoded signature bytes.
func (s *CheckpointSigner) Sign(cp Checkpoint) ([]byte, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, s.privateKey)
	if err != nil {
		return nil, err
	}

	payload, err := canonicalEncMode.Marshal(cp)
	if err != nil {
		return nil, err
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(s.keyID)
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// VerifyCheckpoint verifies a COSE_Sign1 encoded checkpoint signature
// against the given public key and decodes the signed Checkpoint.
func VerifyCheckpoint(pub *ecdsa.PublicKey, signed []byte) (Checkpoint, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(signed); err != nil {
		return Checkpoint{}, err
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return Checkpoint{}, err
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := cbor.Unmarshal(msg.Payload, &cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// PublicKey returns the signer's public key, for registering with
// verifiers out-of-band.
func (s *CheckpointSigner) PublicKey() *ecdsa.PublicKey {
	return &s.privateKey.PublicKey
}
