package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimberlitedb/kimberlite-sub005/kcrypto"
)

func hashOf(s string) [32]byte {
	return kcrypto.ComplianceHash([]byte(s))
}

func TestInclusionProofVerifiesForEveryLeaf(t *testing.T) {
	tree := New()
	var entries [][32]byte
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		h := hashOf(s)
		entries = append(entries, h)
		tree.Append(h)
	}
	root := tree.Root(tree.Size())

	for i := range entries {
		proof := tree.ProveInclusion(i, tree.Size())
		assert.True(t, VerifyInclusion(entries[i], proof, root), "inclusion proof failed to verify for leaf %d", i)
	}
}

func TestInclusionProofRejectsWrongLeaf(t *testing.T) {
	tree := New()
	for _, s := range []string{"a", "b", "c"} {
		tree.Append(hashOf(s))
	}
	root := tree.Root(tree.Size())
	proof := tree.ProveInclusion(0, tree.Size())
	assert.False(t, VerifyInclusion(hashOf("not-in-tree"), proof, root), "expected verification to fail for a leaf not in the tree")
}

func TestRootIsStableAcrossPrefixes(t *testing.T) {
	tree := New()
	roots := make(map[int][32]byte)
	for i, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		tree.Append(hashOf(s))
		roots[i+1] = tree.Root(i + 1)
	}
	// recomputing an earlier prefix's root from the same tree must be stable
	require.Equal(t, roots[3], tree.Root(3), "root for a historical prefix size changed")
}

func TestConsistencyProofPath(t *testing.T) {
	tree := New()
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		tree.Append(hashOf(s))
	}
	proof := tree.ProveConsistency(3, 5)
	assert.Equal(t, 3, proof.Size1)
	assert.Equal(t, 5, proof.Size2)
	assert.NotEmpty(t, proof.Path, "expected a non-empty consistency path for a genuine extension")
}

func TestEmptyTreeRootIsHashOfEmptyString(t *testing.T) {
	tree := New()
	got := tree.Root(0)
	want := kcrypto.ComplianceHash(nil)
	assert.Equal(t, want, got, "empty tree root must be the hash of the empty string")
}
