package bits

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
)

func randBitArray(bits int) *BitArray {
	src := tmrand.Bytes((bits + 7) / 8)
	bA := NewBitArray(bits)
	for i := 0; i < len(src); i++ {
		for j := 0; j < 8; j++ {
			index := i*8 + j
			if index >= bits {
				break
			}
			bA.SetIndex(index, src[i]&(uint8(1)<<uint8(j)) > 0)
		}
	}
	return bA
}

func TestBitArrayGetSetIndex(t *testing.T) {
	bA := NewBitArray(100)

	assert.False(t, bA.GetIndex(0))
	assert.True(t, bA.SetIndex(0, true))
	assert.True(t, bA.GetIndex(0))
	assert.True(t, bA.SetIndex(0, false))
	assert.False(t, bA.GetIndex(0))

	assert.True(t, bA.SetIndex(99, true))
	assert.True(t, bA.GetIndex(99))

	// out of range indices are ignored
	assert.False(t, bA.SetIndex(100, true))
	assert.False(t, bA.GetIndex(100))
	assert.False(t, bA.SetIndex(-1, true))
	assert.False(t, bA.GetIndex(-1))

	// nil bit array
	var nilBA *BitArray
	assert.False(t, nilBA.SetIndex(0, true))
	assert.False(t, nilBA.GetIndex(0))
}

func TestBitArrayOnes(t *testing.T) {
	bA := NewBitArray(70)
	assert.Equal(t, 0, bA.Ones())
	for _, i := range []int{0, 1, 63, 64, 69} {
		bA.SetIndex(i, true)
	}
	assert.Equal(t, 5, bA.Ones())
	bA.SetIndex(1, false)
	assert.Equal(t, 4, bA.Ones())
}

func TestBitArrayAndOrSub(t *testing.T) {
	a := NewBitArray(10)
	b := NewBitArray(10)
	for _, i := range []int{0, 2, 4} {
		a.SetIndex(i, true)
	}
	for _, i := range []int{2, 3, 4, 5} {
		b.SetIndex(i, true)
	}

	and := a.And(b)
	assert.Equal(t, 2, and.Ones())
	assert.True(t, and.GetIndex(2))
	assert.True(t, and.GetIndex(4))

	or := a.Or(b)
	assert.Equal(t, 5, or.Ones())

	sub := a.Sub(b)
	assert.Equal(t, 1, sub.Ones())
	assert.True(t, sub.GetIndex(0))
}

func TestBitArrayMismatchedWidths(t *testing.T) {
	small := NewBitArray(5)
	big := NewBitArray(80)
	small.SetIndex(4, true)
	big.SetIndex(70, true)

	or := small.Or(big)
	assert.Equal(t, 80, or.Size())
	assert.True(t, or.GetIndex(4))
	assert.True(t, or.GetIndex(70))

	and := small.And(big)
	assert.Equal(t, 5, and.Size())

	sub := big.Sub(small)
	assert.Equal(t, 80, sub.Size())
	assert.True(t, sub.GetIndex(70))
}

func TestBitArrayIsFullIsEmpty(t *testing.T) {
	bA := NewBitArray(66)
	assert.True(t, bA.IsEmpty())
	assert.False(t, bA.IsFull())
	for i := 0; i < 66; i++ {
		bA.SetIndex(i, true)
	}
	assert.True(t, bA.IsFull())
	assert.False(t, bA.IsEmpty())
}

func TestBitArrayPickRandom(t *testing.T) {
	empty := NewBitArray(12)
	_, ok := empty.PickRandom()
	assert.False(t, ok)

	bA := NewBitArray(123)
	bA.SetIndex(55, true)
	for i := 0; i < 10; i++ {
		idx, ok := bA.PickRandom()
		require.True(t, ok)
		assert.Equal(t, 55, idx)
	}

	rand := randBitArray(500)
	if rand.Ones() > 0 {
		idx, ok := rand.PickRandom()
		require.True(t, ok)
		assert.True(t, rand.GetIndex(idx))
	}
}

func TestBitArrayJSON(t *testing.T) {
	bA := NewBitArray(5)
	bA.SetIndex(0, true)
	bA.SetIndex(3, true)

	bz, err := json.Marshal(bA)
	require.NoError(t, err)
	assert.Equal(t, `"x__x_"`, string(bz))

	var got BitArray
	require.NoError(t, json.Unmarshal(bz, &got))
	assert.Equal(t, bA.Bits, got.Bits)
	assert.True(t, got.GetIndex(0))
	assert.True(t, got.GetIndex(3))
	assert.False(t, got.GetIndex(1))
}
