package mempool

import (
	"fmt"
	"testing"

	"bftchain/abci"
	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
)

func newMempoolWithApp(t *testing.T) (*CListMempool, *abci.KVStoreApplication) {
	app := abci.NewInMemoryKVStoreApplication()
	config := cfg.TestConfig().Mempool
	mem := NewCListMempool(config, app, 0)
	mem.SetLogger(log.TestingLogger())
	return mem, app
}

func kvTx(sender string, nonce, gas uint64, kv string) types.Tx {
	return types.Tx(fmt.Sprintf("%s:%d:%d:%s", sender, nonce, gas, kv))
}

func TestMempoolCheckTx(t *testing.T) {
	mem, _ := newMempoolWithApp(t)

	tx := kvTx("alice", 1, 10, "k=v")
	require.NoError(t, mem.CheckTx(tx, TxInfo{}))
	assert.Equal(t, 1, mem.Size())
	assert.EqualValues(t, len(tx), mem.TxsBytes())

	// the queue view carries the CheckTx metadata
	wtx := mem.Queue().Get(tx.Key())
	require.NotNil(t, wtx)
	assert.Equal(t, "alice", wtx.Sender)
	assert.EqualValues(t, 1, wtx.Nonce)
	assert.EqualValues(t, 10, wtx.Gas)

	// same tx again hits the cache
	err := mem.CheckTx(tx, TxInfo{})
	assert.Equal(t, ErrTxInCache, err)
	assert.Equal(t, 1, mem.Size())

	// malformed tx is rejected by the app
	err = mem.CheckTx(types.Tx("garbage"), TxInfo{})
	require.Error(t, err)
	_, ok := err.(ErrTxCheckFailed)
	assert.True(t, ok, "expected ErrTxCheckFailed, got %v", err)
	assert.Equal(t, 1, mem.Size())
}

func TestMempoolReapMaxBytesMaxGas(t *testing.T) {
	mem, _ := newMempoolWithApp(t)

	// 5 txs with increasing gas
	var sizeTotal int64
	for i := 1; i <= 5; i++ {
		tx := kvTx(fmt.Sprintf("s%d", i), 1, uint64(i*10), fmt.Sprintf("k%d=v", i))
		require.NoError(t, mem.CheckTx(tx, TxInfo{}))
		sizeTotal += int64(len(tx))
	}

	// unbounded reap returns everything, highest gas first
	txs := mem.ReapMaxBytesMaxGas(-1, -1)
	require.Len(t, txs, 5)
	prevGas := uint64(1 << 62)
	for _, tx := range txs {
		wtx := mem.Queue().Get(tx.Key())
		require.NotNil(t, wtx)
		assert.True(t, wtx.Gas <= prevGas, "reap must be gas-descending")
		prevGas = wtx.Gas
	}

	// gas cap keeps only the largest bids that fit
	txs = mem.ReapMaxBytesMaxGas(-1, 90)
	var gasSum uint64
	for _, tx := range txs {
		gasSum += mem.Queue().Get(tx.Key()).Gas
	}
	assert.True(t, gasSum <= 90)
	assert.True(t, len(txs) < 5)

	// byte cap
	txs = mem.ReapMaxBytesMaxGas(int64(len(txs[0]))+1, -1)
	assert.Len(t, txs, 1)
}

func TestMempoolUpdate(t *testing.T) {
	mem, _ := newMempoolWithApp(t)

	tx1 := kvTx("alice", 1, 10, "a=1")
	tx2 := kvTx("bob", 1, 10, "b=1")
	require.NoError(t, mem.CheckTx(tx1, TxInfo{}))
	require.NoError(t, mem.CheckTx(tx2, TxInfo{}))
	require.Equal(t, 2, mem.Size())

	mem.Lock()
	require.NoError(t, mem.Update(1, types.Txs{tx1}))
	mem.Unlock()

	assert.Equal(t, 1, mem.Size())
	assert.False(t, mem.Queue().Has(tx1.Key()))
	assert.True(t, mem.Queue().Has(tx2.Key()))

	// a committed tx stays in the cache and is refused on re-check
	err := mem.CheckTx(tx1, TxInfo{})
	assert.Equal(t, ErrTxInCache, err)
}

func TestMempoolTxsAvailable(t *testing.T) {
	mem, _ := newMempoolWithApp(t)
	mem.EnableTxsAvailable()

	select {
	case <-mem.TxsAvailable():
		t.Fatal("expected no tx available")
	default:
	}

	require.NoError(t, mem.CheckTx(kvTx("alice", 1, 1, "k=v"), TxInfo{}))

	select {
	case <-mem.TxsAvailable():
	default:
		t.Fatal("expected tx available after CheckTx")
	}
}

func TestMempoolFlush(t *testing.T) {
	mem, _ := newMempoolWithApp(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, mem.CheckTx(kvTx(fmt.Sprintf("s%d", i), 1, 1, "k=v"), TxInfo{}))
	}
	require.Equal(t, 4, mem.Size())

	mem.Flush()
	assert.Equal(t, 0, mem.Size())
	assert.EqualValues(t, 0, mem.TxsBytes())
	assert.Equal(t, 0, mem.Queue().Size())

	// cache was flushed too, so the same tx is accepted again
	require.NoError(t, mem.CheckTx(kvTx("s0", 1, 1, "k=v"), TxInfo{}))
}
