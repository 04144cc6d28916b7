package abci

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmdb "github.com/tendermint/tm-db"
)

const (
	// CodeTypeEncodingError is returned for transactions the app cannot parse.
	CodeTypeEncodingError uint32 = 1
	// CodeTypeBadNonce is returned when a sender reuses a nonce.
	CodeTypeBadNonce uint32 = 2
)

var (
	kvPairPrefix = []byte("kvPairKey:")
	nonceKeyFmt  = "nonceKey:%s"
	stateKey     = []byte("stateKey")
)

// KVStoreApplication is a simple key-value store driven over the four core
// verbs. Transactions are "sender:nonce:gas:key=value"; the app indexes the
// pair and remembers the nonce of the last delivered tx per sender.
//
// It replaces the smallbank tables the store used to carry: one table,
// same tm-db batch write path.
type KVStoreApplication struct {
	BaseApplication

	mtx sync.Mutex
	db  tmdb.DB

	// working state for the current block
	batch    tmdb.Batch
	appHash  []byte
	txCount  int64
	deliver  int64
}

var _ Application = (*KVStoreApplication)(nil)

func NewKVStoreApplication(db tmdb.DB) *KVStoreApplication {
	app := &KVStoreApplication{db: db}
	app.appHash = app.loadAppHash()
	return app
}

// NewInMemoryKVStoreApplication is a convenience constructor for tests.
func NewInMemoryKVStoreApplication() *KVStoreApplication {
	return NewKVStoreApplication(tmdb.NewMemDB())
}

func (app *KVStoreApplication) loadAppHash() []byte {
	bz, err := app.db.Get(stateKey)
	if err != nil || len(bz) == 0 {
		return make([]byte, tmhash.Size)
	}
	return bz
}

// InitChain stores the app state bytes verbatim, if any.
func (app *KVStoreApplication) InitChain(req RequestInitChain) ResponseInitChain {
	app.mtx.Lock()
	defer app.mtx.Unlock()
	if len(req.AppState) > 0 {
		for _, line := range strings.Split(string(req.AppState), "\n") {
			if key, value, ok := splitPair(line); ok {
				if err := app.db.Set(kvPairKey(key), []byte(value)); err != nil {
					panic(err)
				}
			}
		}
	}
	return ResponseInitChain{AppHash: app.appHash}
}

// CheckTx parses the tx and reports the sender/nonce/gas for mempool
// indexing. It rejects malformed txs and nonces at or below the last
// committed nonce of the sender.
func (app *KVStoreApplication) CheckTx(req RequestCheckTx) ResponseCheckTx {
	sender, nonce, gas, _, _, err := parseTx(req.Tx)
	if err != nil {
		return ResponseCheckTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}

	app.mtx.Lock()
	lastNonce := app.lastNonce(sender)
	app.mtx.Unlock()
	if nonce <= lastNonce {
		return ResponseCheckTx{
			Code: CodeTypeBadNonce,
			Log:  fmt.Sprintf("nonce %d <= last committed nonce %d for sender %s", nonce, lastNonce, sender),
		}
	}

	return ResponseCheckTx{
		Code:      CodeTypeOK,
		Sender:    sender,
		Nonce:     nonce,
		GasWanted: int64(gas),
	}
}

// DeliverTx applies the key=value write into the current block batch.
func (app *KVStoreApplication) DeliverTx(req RequestDeliverTx) ResponseDeliverTx {
	sender, nonce, _, key, value, err := parseTx(req.Tx)
	if err != nil {
		return ResponseDeliverTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}

	app.mtx.Lock()
	defer app.mtx.Unlock()

	if app.batch == nil {
		app.batch = app.db.NewBatch()
		app.deliver = 0
	}
	if err := app.batch.Set(kvPairKey(key), []byte(value)); err != nil {
		return ResponseDeliverTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}
	if err := app.batch.Set([]byte(fmt.Sprintf(nonceKeyFmt, sender)), uint64ToBytes(nonce)); err != nil {
		return ResponseDeliverTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}
	app.deliver++
	return ResponseDeliverTx{Code: CodeTypeOK}
}

// Commit writes the block batch and folds the tx count into the app hash.
func (app *KVStoreApplication) Commit() ResponseCommit {
	app.mtx.Lock()
	defer app.mtx.Unlock()

	if app.batch != nil {
		if err := app.batch.Write(); err != nil {
			panic(err)
		}
		if err := app.batch.Close(); err != nil {
			panic(err)
		}
		app.batch = nil
	}

	app.txCount += app.deliver
	app.deliver = 0

	hasher := tmhash.New()
	hasher.Write(app.appHash)
	countBz := make([]byte, 8)
	binary.BigEndian.PutUint64(countBz, uint64(app.txCount))
	hasher.Write(countBz)
	app.appHash = hasher.Sum(nil)

	if err := app.db.SetSync(stateKey, app.appHash); err != nil {
		panic(err)
	}
	return ResponseCommit{AppHash: app.appHash}
}

// Query-style helper for tests and rpc: read a committed value.
func (app *KVStoreApplication) Get(key string) ([]byte, error) {
	return app.db.Get(kvPairKey(key))
}

func (app *KVStoreApplication) lastNonce(sender string) uint64 {
	bz, err := app.db.Get([]byte(fmt.Sprintf(nonceKeyFmt, sender)))
	if err != nil || len(bz) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(bz)
}

func kvPairKey(key string) []byte {
	return append(kvPairPrefix, []byte(key)...)
}

func uint64ToBytes(v uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, v)
	return bz
}

// parseTx splits "sender:nonce:gas:key=value" into its components.
func parseTx(tx []byte) (sender string, nonce, gas uint64, key, value string, err error) {
	parts := bytes.SplitN(tx, []byte{':'}, 4)
	if len(parts) != 4 {
		return "", 0, 0, "", "", fmt.Errorf("tx must be sender:nonce:gas:key=value, got %d fields", len(parts))
	}
	sender = string(parts[0])
	if sender == "" {
		return "", 0, 0, "", "", fmt.Errorf("empty sender")
	}
	nonce, err = strconv.ParseUint(string(parts[1]), 10, 64)
	if err != nil {
		return "", 0, 0, "", "", fmt.Errorf("bad nonce: %w", err)
	}
	gas, err = strconv.ParseUint(string(parts[2]), 10, 64)
	if err != nil {
		return "", 0, 0, "", "", fmt.Errorf("bad gas: %w", err)
	}
	var ok bool
	key, value, ok = splitPair(string(parts[3]))
	if !ok {
		return "", 0, 0, "", "", fmt.Errorf("payload must be key=value")
	}
	return sender, nonce, gas, key, value, nil
}

func splitPair(s string) (key, value string, ok bool) {
	i := strings.Index(s, "=")
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
