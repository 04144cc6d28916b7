// fork from github.com/tendermint/tendermint/mempool/clist_mempool.go
package mempool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"bftchain/abci"
	"bftchain/types"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

// CListMempool is an ordered in-memory pool for transactions before they are
// proposed in a consensus round. Transaction validity is checked using the
// CheckTx abci verb on the application.
//
// Two views are kept in sync: a concurrent linked-list in arrival order that
// drives peer gossip, and a TxQueue whose id/gas/(sender,nonce)/height
// indexes drive the proposer path.
type CListMempool struct {
	// Atomic integers
	height   int64 // the last block Update()'d to
	txsBytes int64 // total size of mempool, in bytes

	// notify listeners (ie. consensus) when txs are available
	notifiedTxsAvailable bool
	txsAvailable         chan struct{} // fires once for each height, when the mempool is not empty

	config *cfg.MempoolConfig

	// Exclusive mutex for Update method to prevent concurrent execution of
	// CheckTx or ReapMaxBytesMaxGas(ReapMaxTxs) methods.
	updateMtx tmsync.RWMutex
	preCheck  PreCheckFunc

	app abci.Application

	txs    *clist.CList // concurrent linked-list of good txs
	queue  *TxQueue     // indexed view of the same txs
	txsMap sync.Map     // txKey -> *clist.CElement

	// Keep a cache of already-seen txs.
	// This reduces the pressure on the application.
	cache txCache

	logger log.Logger
}

var _ Mempool = &CListMempool{}

// CListMempoolOption sets an optional parameter on the mempool.
type CListMempoolOption func(*CListMempool)

// NewCListMempool returns a new mempool with the given configuration and
// application.
func NewCListMempool(
	config *cfg.MempoolConfig,
	app abci.Application,
	height int64,
	options ...CListMempoolOption,
) *CListMempool {
	mem := &CListMempool{
		config: config,
		app:    app,
		txs:    clist.New(),
		queue:  NewTxQueue(config.MaxTxsBytes),
		height: height,
		logger: log.NewNopLogger(),
	}
	if config.CacheSize > 0 {
		mem.cache = newMapTxCache(config.CacheSize)
	} else {
		mem.cache = nopTxCache{}
	}
	for _, option := range options {
		option(mem)
	}
	return mem
}

// SetLogger sets the Logger.
func (mem *CListMempool) SetLogger(l log.Logger) {
	mem.logger = l
}

// WithPreCheck sets a filter for the mempool to reject a tx if f(tx)
// returns an error. This is ran before CheckTx.
func WithPreCheck(f PreCheckFunc) CListMempoolOption {
	return func(mem *CListMempool) { mem.preCheck = f }
}

// Lock is for use by the consensus around Update.
func (mem *CListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock releases the update lock.
func (mem *CListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

// Size returns the number of queued transactions.
func (mem *CListMempool) Size() int {
	return mem.txs.Len()
}

// TxsBytes returns the total byte size of queued transactions.
func (mem *CListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// Flush removes every transaction from the mempool and the cache.
// NOTE: calling Flush may leave mempool in inconsistent state.
func (mem *CListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	_ = atomic.SwapInt64(&mem.txsBytes, 0)
	mem.cache.Reset()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}

	mem.queue.Clear()
	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
}

// TxsFront returns the first transaction in the ordered list for peer
// broadcasting; the caller should not modify the returned element.
func (mem *CListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// TxsWaitChan returns a channel to wait on transactions. It will be closed
// once the mempool is not empty (ie. the internal `mem.txs` has at least one
// element)
func (mem *CListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

// Queue exposes the indexed view for the proposer path and rpc.
func (mem *CListMempool) Queue() *TxQueue {
	return mem.queue
}

// CheckTx runs the transaction through the pre-check filter and the
// application; accepted transactions enter both views.
//
// Safe for concurrent use by multiple goroutines.
func (mem *CListMempool) CheckTx(tx types.Tx, txInfo TxInfo) error {
	mem.updateMtx.RLock()
	// use defer to unlock mutex because application can panic.
	defer mem.updateMtx.RUnlock()

	txSize := len(tx)

	if memSize := mem.Size(); memSize >= mem.config.Size ||
		int64(txSize)+mem.TxsBytes() > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			memSize, mem.config.Size,
			mem.TxsBytes(), mem.config.MaxTxsBytes,
		}
	}

	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			return ErrPreCheck{err}
		}
	}

	if !mem.cache.Push(tx) {
		// Record a new sender for a tx we've already seen.
		// Note it's possible a tx is still in the cache but no longer in the
		// mempool (eg. after committing a block, txs are removed from mempool
		// but not cache), so we only record the sender for txs still in the
		// mempool.
		if e, ok := mem.txsMap.Load(tx.Key()); ok {
			memTx := e.(*clist.CElement).Value.(*mempoolTx)
			memTx.senders.LoadOrStore(txInfo.SenderID, true)
			// TODO: consider punishing peer for dups,
			// its non-trivial since invalid txs can become valid,
			// but they can spam the same tx with little cost to them atm.
		}
		return ErrTxInCache
	}

	res := mem.app.CheckTx(abci.RequestCheckTx{Tx: tx})
	if !res.IsOK() {
		mem.cache.Remove(tx)
		mem.logger.Debug("rejected bad transaction",
			"tx", tx, "code", res.Code, "log", res.Log)
		return ErrTxCheckFailed{Code: res.Code, Log: res.Log}
	}

	memTx := &mempoolTx{
		height: mem.height,
		tx:     tx,
		wtx:    NewWrappedTx(tx, res.Sender, res.Nonce, uint64(res.GasWanted), mem.height),
	}
	memTx.senders.Store(txInfo.SenderID, true)
	if ok := mem.addTx(memTx); !ok {
		mem.cache.Remove(tx)
		return ErrTxInQueue
	}

	mem.logger.Debug("added good transaction",
		"tx", tx.String(),
		"height", mem.height,
		"total", mem.Size(),
	)
	mem.notifyTxsAvailable()
	return nil
}

// Called from CheckTx. Both list and queue accept or neither does.
func (mem *CListMempool) addTx(memTx *mempoolTx) bool {
	if !mem.queue.Add(memTx.wtx) {
		return false
	}
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(memTx.tx.Key(), e)
	atomic.AddInt64(&mem.txsBytes, int64(len(memTx.tx)))
	return true
}

// Called from Update. Removes the tx from both views.
func (mem *CListMempool) removeTx(tx types.Tx, elem *clist.CElement, removeFromCache bool) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(tx.Key())
	mem.queue.Erase(tx.Key())
	atomic.AddInt64(&mem.txsBytes, int64(-len(tx)))

	if removeFromCache {
		mem.cache.Remove(tx)
	}
}

// TxsAvailable returns a channel which fires once for every height when
// transactions are available in the mempool.
func (mem *CListMempool) TxsAvailable() <-chan struct{} {
	return mem.txsAvailable
}

// EnableTxsAvailable initializes the TxsAvailable channel.
// NOTE: not thread safe - should only be called once, on startup.
func (mem *CListMempool) EnableTxsAvailable() {
	mem.txsAvailable = make(chan struct{}, 1)
}

func (mem *CListMempool) notifyTxsAvailable() {
	if mem.Size() == 0 {
		panic("notified txs available but mempool is empty!")
	}
	if mem.txsAvailable != nil && !mem.notifiedTxsAvailable {
		// channel cap is 1, so this will send once
		mem.notifiedTxsAvailable = true
		select {
		case mem.txsAvailable <- struct{}{}:
		default:
		}
	}
}

// ReapMaxBytesMaxGas reaps transactions for a new proposal, highest gas bid
// first, within the block's byte and gas limits.
//
// Safe for concurrent use by multiple goroutines.
func (mem *CListMempool) ReapMaxBytesMaxGas(maxBytes, maxGas int64) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	var (
		totalBytes int64
		totalGas   int64
		txs        = make([]types.Tx, 0, mem.txs.Len())
	)
	mem.queue.ByGas(true, func(wtx *WrappedTx) bool {
		txBytes := wtx.Size()
		if maxBytes > -1 && totalBytes+txBytes > maxBytes {
			return false
		}
		newTotalGas := totalGas + int64(wtx.Gas)
		if maxGas > -1 && newTotalGas > maxGas {
			return false
		}
		totalBytes += txBytes
		totalGas = newTotalGas
		txs = append(txs, wtx.Tx)
		return true
	})
	return txs
}

// ReapMaxTxs reaps up to max transactions in gossip (arrival) order.
//
// Safe for concurrent use by multiple goroutines.
func (mem *CListMempool) ReapMaxTxs(max int) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}

	txs := make([]types.Tx, 0, minInt(mem.txs.Len(), max))
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		txs = append(txs, memTx.tx)
	}
	return txs
}

// Update removes committed transactions after a block commit.
// NOTE: caller holds the mempool lock via Lock/Unlock.
func (mem *CListMempool) Update(height int64, txs types.Txs) error {
	// Set height
	mem.height = height
	mem.notifiedTxsAvailable = false

	for _, tx := range txs {
		// Committed txs get pushed into the cache so re-broadcasts of them
		// are cheap to refuse.
		_ = mem.cache.Push(tx)

		// Remove committed tx from the mempool.
		if e, ok := mem.txsMap.Load(tx.Key()); ok {
			mem.removeTx(tx, e.(*clist.CElement), false)
		}
	}

	if mem.Size() > 0 {
		mem.notifyTxsAvailable()
	}
	return nil
}

//--------------------------------------------------------------------------------

// mempoolTx is a transaction that successfully ran
type mempoolTx struct {
	height int64 // height that this tx had been validated in
	tx     types.Tx
	wtx    *WrappedTx

	// ids of peers who've sent us this tx (as a map for quick lookups).
	// senders: PeerID -> bool
	senders sync.Map
}

// Height returns the height for this transaction
func (memTx *mempoolTx) Height() int64 {
	return atomic.LoadInt64(&memTx.height)
}

//--------------------------------------------------------------------------------

type txCache interface {
	Reset()
	Push(tx types.Tx) bool
	Remove(tx types.Tx)
}

// mapTxCache maintains a LRU cache of transactions. This only stores the
// hash of the tx, due to memory concerns.
type mapTxCache struct {
	mtx  tmsync.Mutex
	size int
	cacheMap map[types.TxKey]*list.Element
	list *list.List
}

var _ txCache = (*mapTxCache)(nil)

// newMapTxCache returns a new mapTxCache.
func newMapTxCache(cacheSize int) *mapTxCache {
	return &mapTxCache{
		size:     cacheSize,
		cacheMap: make(map[types.TxKey]*list.Element, cacheSize),
		list:     list.New(),
	}
}

// Reset resets the cache to an empty state.
func (cache *mapTxCache) Reset() {
	cache.mtx.Lock()
	cache.cacheMap = make(map[types.TxKey]*list.Element, cache.size)
	cache.list.Init()
	cache.mtx.Unlock()
}

// Push adds the given tx to the cache and returns true. It returns
// false if tx is already in the cache.
func (cache *mapTxCache) Push(tx types.Tx) bool {
	cache.mtx.Lock()
	defer cache.mtx.Unlock()

	txKey := tx.Key()
	if moved, exists := cache.cacheMap[txKey]; exists {
		cache.list.MoveToBack(moved)
		return false
	}

	if cache.list.Len() >= cache.size {
		popped := cache.list.Front()
		if popped != nil {
			poppedTxKey := popped.Value.(types.TxKey)
			delete(cache.cacheMap, poppedTxKey)
			cache.list.Remove(popped)
		}
	}
	e := cache.list.PushBack(txKey)
	cache.cacheMap[txKey] = e
	return true
}

// Remove removes the given tx from the cache.
func (cache *mapTxCache) Remove(tx types.Tx) {
	cache.mtx.Lock()
	txKey := tx.Key()
	popped := cache.cacheMap[txKey]
	delete(cache.cacheMap, txKey)
	if popped != nil {
		cache.list.Remove(popped)
	}
	cache.mtx.Unlock()
}

type nopTxCache struct{}

var _ txCache = (*nopTxCache)(nil)

func (nopTxCache) Reset()             {}
func (nopTxCache) Push(types.Tx) bool { return true }
func (nopTxCache) Remove(types.Tx)    {}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
