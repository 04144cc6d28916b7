package mempool

import (
	"bytes"
	"math"

	"bftchain/types"

	"github.com/google/btree"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

// DefaultTxQueueBytes is the default byte budget of a TxQueue: 1 GiB.
const DefaultTxQueueBytes int64 = 1024 * 1024 * 1024

const btreeDegree = 32

// WrappedTx is a transaction annotated with the metadata the queue indexes
// on. The id is the SHA-256 of the raw transaction bytes, the rest comes
// from the application's CheckTx response.
type WrappedTx struct {
	Tx     types.Tx
	Key    types.TxKey
	Sender string
	Nonce  uint64
	Gas    uint64
	Height int64
}

// NewWrappedTx annotates tx for insertion at the given height.
func NewWrappedTx(tx types.Tx, sender string, nonce, gas uint64, height int64) *WrappedTx {
	return &WrappedTx{
		Tx:     tx,
		Key:    tx.Key(),
		Sender: sender,
		Nonce:  nonce,
		Gas:    gas,
		Height: height,
	}
}

// Size returns the byte cost of the entry against the queue budget.
func (wtx *WrappedTx) Size() int64 {
	return int64(len(wtx.Tx))
}

//---------------------------------------------------------------------------
// index items

type idItem struct {
	key types.TxKey
	tx  *WrappedTx
}

func (a idItem) Less(b btree.Item) bool {
	o := b.(idItem)
	return bytes.Compare(a.key[:], o.key[:]) < 0
}

type gasItem struct {
	gas uint64
	key types.TxKey
	tx  *WrappedTx
}

func (a gasItem) Less(b btree.Item) bool {
	o := b.(gasItem)
	if a.gas != o.gas {
		return a.gas < o.gas
	}
	return bytes.Compare(a.key[:], o.key[:]) < 0
}

type nonceItem struct {
	sender string
	nonce  uint64
	tx     *WrappedTx
}

func (a nonceItem) Less(b btree.Item) bool {
	o := b.(nonceItem)
	if a.sender != o.sender {
		return a.sender < o.sender
	}
	return a.nonce < o.nonce
}

type heightItem struct {
	height int64
	key    types.TxKey
	tx     *WrappedTx
}

func (a heightItem) Less(b btree.Item) bool {
	o := b.(heightItem)
	if a.height != o.height {
		return a.height < o.height
	}
	return bytes.Compare(a.key[:], o.key[:]) < 0
}

//---------------------------------------------------------------------------

// TxQueue holds unapplied transactions indexed simultaneously by id, gas,
// sender, (sender, nonce) and height, bounded by a byte budget.
//
// It is the proposer-path view of the mempool: reaping iterates the gas
// index descending, account-level scheduling uses the (sender, nonce)
// index, and expiry sweeps use the height index.
type TxQueue struct {
	mtx tmsync.RWMutex

	maxBytes int64

	byID     *btree.BTree // idItem, unique
	byGas    *btree.BTree // gasItem, non-unique on gas
	byNonce  *btree.BTree // nonceItem, unique on (sender, nonce)
	byHeight *btree.BTree // heightItem, non-unique on height
	bySender map[string]int

	sizeBytes     int64
	incomingCount int64
}

// NewTxQueue returns an empty queue with the given byte budget.
// A non-positive maxBytes selects the 1 GiB default.
func NewTxQueue(maxBytes int64) *TxQueue {
	if maxBytes <= 0 {
		maxBytes = DefaultTxQueueBytes
	}
	return &TxQueue{
		maxBytes: maxBytes,
		byID:     btree.New(btreeDegree),
		byGas:    btree.New(btreeDegree),
		byNonce:  btree.New(btreeDegree),
		byHeight: btree.New(btreeDegree),
		bySender: make(map[string]int),
	}
}

// Add inserts the entry into every index. It returns false if the id is
// already present, the (sender, nonce) slot is taken, or the insertion
// would exceed the byte budget.
func (q *TxQueue) Add(wtx *WrappedTx) bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.byID.Has(idItem{key: wtx.Key}) {
		return false
	}
	if q.byNonce.Has(nonceItem{sender: wtx.Sender, nonce: wtx.Nonce}) {
		return false
	}
	if q.sizeBytes+wtx.Size() > q.maxBytes {
		return false
	}

	q.byID.ReplaceOrInsert(idItem{key: wtx.Key, tx: wtx})
	q.byGas.ReplaceOrInsert(gasItem{gas: wtx.Gas, key: wtx.Key, tx: wtx})
	q.byNonce.ReplaceOrInsert(nonceItem{sender: wtx.Sender, nonce: wtx.Nonce, tx: wtx})
	q.byHeight.ReplaceOrInsert(heightItem{height: wtx.Height, key: wtx.Key, tx: wtx})
	q.bySender[wtx.Sender]++

	q.sizeBytes += wtx.Size()
	q.incomingCount++
	return true
}

// Erase removes the entry with the given id from every index.
func (q *TxQueue) Erase(key types.TxKey) bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.erase(key)
}

func (q *TxQueue) erase(key types.TxKey) bool {
	item := q.byID.Get(idItem{key: key})
	if item == nil {
		return false
	}
	wtx := item.(idItem).tx

	q.byID.Delete(idItem{key: key})
	q.byGas.Delete(gasItem{gas: wtx.Gas, key: key})
	q.byNonce.Delete(nonceItem{sender: wtx.Sender, nonce: wtx.Nonce})
	q.byHeight.Delete(heightItem{height: wtx.Height, key: key})
	if q.bySender[wtx.Sender]--; q.bySender[wtx.Sender] <= 0 {
		delete(q.bySender, wtx.Sender)
	}

	q.sizeBytes -= wtx.Size()
	q.incomingCount--
	return true
}

// Has reports whether the id is queued.
func (q *TxQueue) Has(key types.TxKey) bool {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	return q.byID.Has(idItem{key: key})
}

// Get returns the entry with the given id, or nil.
func (q *TxQueue) Get(key types.TxKey) *WrappedTx {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	item := q.byID.Get(idItem{key: key})
	if item == nil {
		return nil
	}
	return item.(idItem).tx
}

// GetBySender returns the sender's entry with the lowest nonce, or nil.
func (q *TxQueue) GetBySender(sender string) *WrappedTx {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	var found *WrappedTx
	q.byNonce.AscendGreaterOrEqual(nonceItem{sender: sender, nonce: 0}, func(i btree.Item) bool {
		it := i.(nonceItem)
		if it.sender != sender {
			return false
		}
		found = it.tx
		return false
	})
	return found
}

// HasSender reports whether any entry of the sender is queued.
func (q *TxQueue) HasSender(sender string) bool {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	return q.bySender[sender] > 0
}

// ByID iterates the id index in ascending key order.
func (q *TxQueue) ByID(fn func(*WrappedTx) bool) {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	q.byID.Ascend(func(i btree.Item) bool {
		return fn(i.(idItem).tx)
	})
}

// ByGas iterates the gas index; descending order serves the proposer path
// (highest bids first).
func (q *TxQueue) ByGas(descending bool, fn func(*WrappedTx) bool) {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	if descending {
		q.byGas.Descend(func(i btree.Item) bool {
			return fn(i.(gasItem).tx)
		})
		return
	}
	q.byGas.Ascend(func(i btree.Item) bool {
		return fn(i.(gasItem).tx)
	})
}

// ByNonce iterates the sender's entries with nonces in [lo, hi], ascending.
func (q *TxQueue) ByNonce(sender string, lo, hi uint64, fn func(*WrappedTx) bool) {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	q.byNonce.AscendGreaterOrEqual(nonceItem{sender: sender, nonce: lo}, func(i btree.Item) bool {
		it := i.(nonceItem)
		if it.sender != sender || it.nonce > hi {
			return false
		}
		return fn(it.tx)
	})
}

// ByHeight iterates entries with heights in [lo, hi], ascending.
func (q *TxQueue) ByHeight(lo, hi int64, fn func(*WrappedTx) bool) {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	q.byHeight.AscendGreaterOrEqual(heightItem{height: lo}, func(i btree.Item) bool {
		it := i.(heightItem)
		if it.height > hi {
			return false
		}
		return fn(it.tx)
	})
}

// Empty reports whether the queue holds no entries.
func (q *TxQueue) Empty() bool {
	return q.Size() == 0
}

// Size returns the number of queued entries.
func (q *TxQueue) Size() int {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	return q.byID.Len()
}

// BytesSize returns the total byte cost of queued entries.
func (q *TxQueue) BytesSize() int64 {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	return q.sizeBytes
}

// IncomingCount returns the running admission counter: incremented on Add,
// decremented on Erase.
func (q *TxQueue) IncomingCount() int64 {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	return q.incomingCount
}

// MaxBytes returns the byte budget.
func (q *TxQueue) MaxBytes() int64 {
	return q.maxBytes
}

// Clear drops every entry and resets the counters.
func (q *TxQueue) Clear() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	q.byID.Clear(false)
	q.byGas.Clear(false)
	q.byNonce.Clear(false)
	q.byHeight.Clear(false)
	q.bySender = make(map[string]int)
	q.sizeBytes = 0
	q.incomingCount = 0
}

// MaxNonce returns the highest queued nonce of the sender and whether the
// sender has any entry at all.
func (q *TxQueue) MaxNonce(sender string) (uint64, bool) {
	q.mtx.RLock()
	defer q.mtx.RUnlock()
	var (
		nonce uint64
		found bool
	)
	q.byNonce.DescendLessOrEqual(nonceItem{sender: sender, nonce: math.MaxUint64}, func(i btree.Item) bool {
		it := i.(nonceItem)
		if it.sender != sender {
			return false
		}
		nonce, found = it.nonce, true
		return false
	})
	return nonce, found
}
