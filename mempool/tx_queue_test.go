package mempool

import (
	"fmt"
	"testing"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
)

func queueTx(sender string, nonce, gas uint64, height int64, size int) *WrappedTx {
	tx := types.Tx(fmt.Sprintf("%s:%d:%d:", sender, nonce, gas))
	tx = append(tx, tmrand.Bytes(size-len(tx))...)
	return NewWrappedTx(tx, sender, nonce, gas, height)
}

func TestTxQueueAddEraseHas(t *testing.T) {
	q := NewTxQueue(0)
	assert.Equal(t, DefaultTxQueueBytes, q.MaxBytes())
	assert.True(t, q.Empty())

	wtx := queueTx("alice", 1, 100, 1, 64)
	require.True(t, q.Add(wtx))
	assert.True(t, q.Has(wtx.Key))
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, wtx.Size(), q.BytesSize())
	assert.EqualValues(t, 1, q.IncomingCount())

	// duplicate id rejected
	assert.False(t, q.Add(wtx))

	// duplicate (sender, nonce) rejected
	other := queueTx("alice", 1, 200, 1, 64)
	assert.False(t, q.Add(other))

	assert.True(t, q.Erase(wtx.Key))
	assert.False(t, q.Has(wtx.Key))
	assert.False(t, q.Erase(wtx.Key))
	assert.Equal(t, 0, q.Size())
	assert.EqualValues(t, 0, q.BytesSize())
	assert.EqualValues(t, 0, q.IncomingCount())
}

func TestTxQueueByteBudget(t *testing.T) {
	q := NewTxQueue(1024)

	first := queueTx("a", 1, 10, 1, 700)
	second := queueTx("b", 1, 10, 1, 700)
	third := queueTx("c", 1, 10, 1, 700)

	require.True(t, q.Add(first))
	assert.False(t, q.Add(second), "second 700B tx must exceed the 1024B budget")
	assert.EqualValues(t, 700, q.BytesSize())

	require.True(t, q.Erase(first.Key))
	assert.True(t, q.Add(third), "after erase the budget frees up")
	assert.EqualValues(t, 700, q.BytesSize())
}

func TestTxQueueGetBySender(t *testing.T) {
	q := NewTxQueue(0)
	require.True(t, q.Add(queueTx("bob", 7, 5, 1, 64)))
	require.True(t, q.Add(queueTx("bob", 3, 5, 1, 64)))
	require.True(t, q.Add(queueTx("carol", 1, 5, 1, 64)))

	first := q.GetBySender("bob")
	require.NotNil(t, first)
	assert.EqualValues(t, 3, first.Nonce, "lowest nonce first")

	assert.True(t, q.HasSender("bob"))
	assert.Nil(t, q.GetBySender("nobody"))
	assert.False(t, q.HasSender("nobody"))

	max, ok := q.MaxNonce("bob")
	require.True(t, ok)
	assert.EqualValues(t, 7, max)
}

func TestTxQueueByGas(t *testing.T) {
	q := NewTxQueue(0)
	gases := []uint64{50, 10, 30, 20, 40}
	for i, g := range gases {
		require.True(t, q.Add(queueTx(fmt.Sprintf("s%d", i), 1, g, 1, 64)))
	}

	var asc []uint64
	q.ByGas(false, func(wtx *WrappedTx) bool {
		asc = append(asc, wtx.Gas)
		return true
	})
	assert.Equal(t, []uint64{10, 20, 30, 40, 50}, asc)

	var desc []uint64
	q.ByGas(true, func(wtx *WrappedTx) bool {
		desc = append(desc, wtx.Gas)
		return true
	})
	assert.Equal(t, []uint64{50, 40, 30, 20, 10}, desc)

	// early exit
	var firstTwo []uint64
	q.ByGas(true, func(wtx *WrappedTx) bool {
		firstTwo = append(firstTwo, wtx.Gas)
		return len(firstTwo) < 2
	})
	assert.Equal(t, []uint64{50, 40}, firstTwo)
}

func TestTxQueueByNonceRange(t *testing.T) {
	q := NewTxQueue(0)
	for nonce := uint64(1); nonce <= 9; nonce++ {
		require.True(t, q.Add(queueTx("dave", nonce, 1, 1, 64)))
	}
	require.True(t, q.Add(queueTx("erin", 5, 1, 1, 64)))

	var nonces []uint64
	q.ByNonce("dave", 3, 6, func(wtx *WrappedTx) bool {
		nonces = append(nonces, wtx.Nonce)
		return true
	})
	assert.Equal(t, []uint64{3, 4, 5, 6}, nonces)

	// the range never leaks into another sender
	nonces = nil
	q.ByNonce("dave", 8, 100, func(wtx *WrappedTx) bool {
		nonces = append(nonces, wtx.Nonce)
		return true
	})
	assert.Equal(t, []uint64{8, 9}, nonces)
}

func TestTxQueueByHeightRange(t *testing.T) {
	q := NewTxQueue(0)
	for h := int64(1); h <= 5; h++ {
		require.True(t, q.Add(queueTx(fmt.Sprintf("h%d", h), 1, 1, h, 64)))
		require.True(t, q.Add(queueTx(fmt.Sprintf("h%d'", h), 1, 1, h, 64)))
	}

	var heights []int64
	q.ByHeight(2, 3, func(wtx *WrappedTx) bool {
		heights = append(heights, wtx.Height)
		return true
	})
	assert.Equal(t, []int64{2, 2, 3, 3}, heights)
}

func TestTxQueueClear(t *testing.T) {
	q := NewTxQueue(0)
	for i := 0; i < 10; i++ {
		require.True(t, q.Add(queueTx(fmt.Sprintf("s%d", i), 1, 1, 1, 64)))
	}
	q.Clear()
	assert.True(t, q.Empty())
	assert.EqualValues(t, 0, q.BytesSize())
	assert.EqualValues(t, 0, q.IncomingCount())
	assert.Nil(t, q.GetBySender("s0"))
}
