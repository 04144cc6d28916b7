package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
)

func TestHashFromByteSlices(t *testing.T) {
	// empty list hashes to 32 zero bytes
	root := HashFromByteSlices(nil)
	assert.Equal(t, make([]byte, sha256.Size), root)

	// single item is the leaf hash
	item := []byte("hello")
	root = HashFromByteSlices([][]byte{item})
	assert.Equal(t, leafHash(item), root)

	// two items
	a, b := []byte("a"), []byte("b")
	root = HashFromByteSlices([][]byte{a, b})
	assert.Equal(t, innerHash(leafHash(a), leafHash(b)), root)

	// three items: split point is 2
	c := []byte("c")
	root = HashFromByteSlices([][]byte{a, b, c})
	expected := innerHash(innerHash(leafHash(a), leafHash(b)), leafHash(c))
	assert.Equal(t, expected, root)
}

func TestGetSplitPoint(t *testing.T) {
	cases := []struct {
		length int64
		want   int64
	}{
		{1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 4}, {10, 8}, {20, 16}, {100, 64}, {255, 128}, {256, 128}, {257, 256},
	}
	for _, tc := range cases {
		assert.EqualValues(t, tc.want, getSplitPoint(tc.length), "getSplitPoint(%d)", tc.length)
	}
}

func TestProofsFromByteSlices(t *testing.T) {
	total := 50
	items := make([][]byte, total)
	for i := 0; i < total; i++ {
		items[i] = tmrand.Bytes(tmrand.Intn(100) + 1)
	}

	rootHash, proofs := ProofsFromByteSlices(items)
	require.Equal(t, HashFromByteSlices(items), rootHash)

	for i, proof := range proofs {
		require.EqualValues(t, i, proof.Index)
		require.EqualValues(t, total, proof.Total)
		require.NoError(t, proof.ValidateBasic())
		require.NoError(t, proof.Verify(rootHash, items[i]), "proof %d should verify", i)

		// any modified item fails verification
		tampered := append([]byte{0xde}, items[i]...)
		require.Error(t, proof.Verify(rootHash, tampered), "tampered item %d should not verify", i)

		// proof does not verify against a different root
		otherRoot := tmrand.Bytes(32)
		require.Error(t, proof.Verify(otherRoot, items[i]))

		// mangled aunts fail
		if len(proof.Aunts) > 0 {
			orig := proof.Aunts[0]
			proof.Aunts[0] = tmrand.Bytes(32)
			require.Error(t, proof.Verify(rootHash, items[i]))
			proof.Aunts[0] = orig
		}
	}
}

func TestProofValidateBasic(t *testing.T) {
	_, proofs := ProofsFromByteSlices([][]byte{[]byte("x"), []byte("y")})
	p := proofs[0]
	require.NoError(t, p.ValidateBasic())

	bad := *p
	bad.Total = -1
	assert.Error(t, bad.ValidateBasic())

	bad = *p
	bad.Index = -1
	assert.Error(t, bad.ValidateBasic())

	bad = *p
	bad.LeafHash = []byte("short")
	assert.Error(t, bad.ValidateBasic())
}
