package ledger

import (
	"context"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
)

// CheckpointPublisher signs and publishes a periodic compliance
// checkpoint for a tenant's stream tail to an ObjectStore, typically an
// AzureBlobStore backing immutable off-cluster storage. Publication is
// asynchronous and side-channel to the hot segment write path.
type CheckpointPublisher struct {
	store  ObjectStore
	signer *kcrypto.CheckpointSigner
	seq    uint64
}

// NewCheckpointPublisher constructs a publisher backed by store and signer.
func NewCheckpointPublisher(store ObjectStore, signer *kcrypto.CheckpointSigner) *CheckpointPublisher {
	return &CheckpointPublisher{store: store, signer: signer}
}

// Publish signs a checkpoint for stream's current tail — including the
// Merkle root over every compliance hash appended so far, so a holder
// of this checkpoint can later verify an inclusion proof for any
// offset without trusting the replica that serves it — and writes it
// with failIfExists=true (checkpoints are append-only, never
// overwritten, matching the teacher's "periodically publish the root
// to something we can't change" pattern).
func (p *CheckpointPublisher) Publish(ctx context.Context, stream ids.StreamId, headOffset ids.Offset, headHash [32]byte, merkleSize int, merkleRoot [32]byte, timestamp int64) (string, error) {
	p.seq++
	cp := kcrypto.Checkpoint{
		Version:    kcrypto.CheckpointVersion,
		Tenant:     uint64(stream.Tenant),
		Stream:     stream.N,
		HeadOffset: uint64(headOffset),
		HeadHash:   append([]byte(nil), headHash[:]...),
		Timestamp:  timestamp,
		MerkleSize: uint64(merkleSize),
		MerkleRoot: append([]byte(nil), merkleRoot[:]...),
	}

	signed, err := p.signer.Sign(cp)
	if err != nil {
		return "", err
	}

	path := checkpointPath(stream.Tenant, p.seq)
	if _, err := p.store.Put(ctx, path, signed, "", true); err != nil {
		return "", err
	}
	return path, nil
}
