package abci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStoreCheckTx(t *testing.T) {
	app := NewInMemoryKVStoreApplication()

	res := app.CheckTx(RequestCheckTx{Tx: []byte("alice:1:50:color=blue")})
	require.True(t, res.IsOK())
	assert.Equal(t, "alice", res.Sender)
	assert.EqualValues(t, 1, res.Nonce)
	assert.EqualValues(t, 50, res.GasWanted)

	// malformed txs are rejected
	for _, tx := range []string{"", "garbage", "alice:x:1:k=v", "alice:1:x:k=v", "alice:1:1:novalue", ":1:1:k=v"} {
		res := app.CheckTx(RequestCheckTx{Tx: []byte(tx)})
		assert.Equal(t, CodeTypeEncodingError, res.Code, "tx %q should be rejected", tx)
	}
}

func TestKVStoreDeliverCommit(t *testing.T) {
	app := NewInMemoryKVStoreApplication()

	initialHash := app.Commit().AppHash
	require.NotEmpty(t, initialHash)

	res := app.DeliverTx(RequestDeliverTx{Tx: []byte("alice:1:5:color=blue")})
	require.True(t, res.IsOK())
	commitRes := app.Commit()
	require.NotEmpty(t, commitRes.AppHash)
	assert.NotEqual(t, initialHash, commitRes.AppHash, "the app hash changes with committed txs")

	// the value is readable after commit
	v, err := app.Get("color")
	require.NoError(t, err)
	assert.Equal(t, []byte("blue"), v)

	// the committed nonce now gates CheckTx
	check := app.CheckTx(RequestCheckTx{Tx: []byte("alice:1:5:color=red")})
	assert.Equal(t, CodeTypeBadNonce, check.Code)
	check = app.CheckTx(RequestCheckTx{Tx: []byte("alice:2:5:color=red")})
	assert.True(t, check.IsOK())
}

func TestKVStoreInitChain(t *testing.T) {
	app := NewInMemoryKVStoreApplication()
	app.InitChain(RequestInitChain{
		ChainID:  "t",
		AppState: []byte("genesis=1\nowner=bob"),
	})

	v, err := app.Get("genesis")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = app.Get("owner")
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), v)
}

func TestKVStoreDeterministicAppHash(t *testing.T) {
	run := func() []byte {
		app := NewInMemoryKVStoreApplication()
		app.DeliverTx(RequestDeliverTx{Tx: []byte("a:1:1:k1=v1")})
		app.DeliverTx(RequestDeliverTx{Tx: []byte("b:1:1:k2=v2")})
		return app.Commit().AppHash
	}
	assert.Equal(t, run(), run(), "the app hash is a pure function of the delivered txs")
}
