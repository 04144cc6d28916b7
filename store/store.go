// fork from github.com/tendermint/tendermint/store/store.go
package store

import (
	"fmt"

	"bftchain/libs/orderedcode"
	"bftchain/types"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	tmdb "github.com/tendermint/tm-db"
)

/*
BlockStore is a simple low level store for blocks.

The information stored is:
 - Block:       Each block, plus an index from block hash to height
 - Block part:  Parts of each block, aggregated w/ PartSet
 - Commit:      The commit part of each block, for gossiping precommit votes
 - Seen commit: The +2/3 precommits seen locally for each block
 - Range:       The base and height of the stored blocks

Currently the precommit signatures are duplicated in the Block parts as
well as the Commit.  In the future this may change, perhaps by moving
the Commit data outside the Block. (TODO)

The store can be assumed to contain all contiguous blocks between base and height (inclusive).
*/
type BlockStore struct {
	db tmdb.DB

	// mtx guards access to the struct fields listed below it. We rely on the
	// database to enforce fine-grained concurrency control for its data, and
	// thus this mutex does not apply to database contents. These fields cache
	// the stored range, which is also persisted under the range key.
	mtx    tmsync.RWMutex
	base   int64
	height int64
}

// NewBlockStore returns a new BlockStore with the given DB, initialized to
// the last height that was committed to the DB.
func NewBlockStore(db tmdb.DB) *BlockStore {
	bs := &BlockStore{db: db}
	bs.base, bs.height = bs.loadRange()
	return bs
}

func (bs *BlockStore) loadRange() (base, height int64) {
	bz, err := bs.db.Get(storeRangeKey())
	if err != nil || len(bz) == 0 {
		return 0, 0
	}
	var sr storeRange
	if err := tmjson.Unmarshal(bz, &sr); err != nil {
		panic(errors.Wrap(err, "cannot unmarshal block store range"))
	}
	return sr.Base, sr.Height
}

func (bs *BlockStore) saveRange(batch tmdb.Batch) error {
	bz, err := tmjson.Marshal(storeRange{Base: bs.base, Height: bs.height})
	if err != nil {
		return err
	}
	return batch.Set(storeRangeKey(), bz)
}

type storeRange struct {
	Base   int64 `json:"base"`
	Height int64 `json:"height"`
}

// Base returns the first known contiguous block height, or 0 for empty
// block stores.
func (bs *BlockStore) Base() int64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.base
}

// Height returns the last known contiguous block height, or 0 for empty
// block stores.
func (bs *BlockStore) Height() int64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.height
}

// Size returns the number of blocks in the block store.
func (bs *BlockStore) Size() int64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	if bs.height == 0 {
		return 0
	}
	return bs.height - bs.base + 1
}

// LoadBlock returns the block with the given height.
// If no block is found for that height, it returns nil.
func (bs *BlockStore) LoadBlock(height int64) *types.Block {
	bz, err := bs.db.Get(blockKey(height))
	if err != nil || len(bz) == 0 {
		return nil
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(bz, block); err != nil {
		panic(errors.Wrap(err, "error reading block"))
	}
	return block
}

// LoadBlockByHash returns the block with the given hash.
// If no block is found for that hash, it returns nil.
func (bs *BlockStore) LoadBlockByHash(hash []byte) *types.Block {
	bz, err := bs.db.Get(blockHashKey(hash))
	if err != nil || len(bz) == 0 {
		return nil
	}

	var height int64
	if _, err := orderedcode.Parse(bz, &height); err != nil {
		panic(errors.Wrap(err, "error reading block hash index"))
	}
	return bs.LoadBlock(height)
}

// LoadBlockPart returns the Part at the given index from the block at the
// given height. If no part is found for the given height and index, it
// returns nil.
func (bs *BlockStore) LoadBlockPart(height int64, index int) *types.Part {
	bz, err := bs.db.Get(blockPartKey(height, index))
	if err != nil || len(bz) == 0 {
		return nil
	}
	part := new(types.Part)
	if err := tmjson.Unmarshal(bz, part); err != nil {
		panic(errors.Wrap(err, "error reading block part"))
	}
	return part
}

// LoadBlockCommit returns the Commit for the given height. This commit
// consists of the +2/3 and other Precommit-votes for block at `height`, and
// it comes from the block.LastCommit for `height+1`.
// If no commit is found for the given height, it returns nil.
func (bs *BlockStore) LoadBlockCommit(height int64) *types.Commit {
	return bs.loadCommit(blockCommitKey(height))
}

// LoadSeenCommit returns the locally seen Commit for the given height.
// This is useful when we've seen a commit, but there has not yet been
// a new block at `height + 1` that includes this commit in its
// block.LastCommit.
func (bs *BlockStore) LoadSeenCommit(height int64) *types.Commit {
	return bs.loadCommit(seenCommitKey(height))
}

func (bs *BlockStore) loadCommit(key []byte) *types.Commit {
	bz, err := bs.db.Get(key)
	if err != nil || len(bz) == 0 {
		return nil
	}
	commit := new(types.Commit)
	if err := tmjson.Unmarshal(bz, commit); err != nil {
		panic(errors.Wrap(err, "error reading commit"))
	}
	return commit
}

// SaveBlock persists the given block, blockParts, and seenCommit to the
// underlying db. blockParts: Must be parts of the block seenCommit: The
// +2/3 precommits that were seen which committed at height.
//             If all the nodes restart after committing a block,
//             we need this to reload the precommits to catch-up nodes to the
//             most recent height.  Otherwise they'd stall at H-1.
func (bs *BlockStore) SaveBlock(block *types.Block, blockParts *types.PartSet, seenCommit *types.Commit) {
	if block == nil {
		panic("BlockStore can only save a non-nil block")
	}

	height := block.Height

	if g, w := height, bs.Height()+1; bs.Height() > 0 && g != w {
		panic(fmt.Sprintf("BlockStore can only save contiguous blocks. Wanted %v, got %v", w, g))
	}
	if !blockParts.IsComplete() {
		panic("BlockStore can only save complete block part sets")
	}

	batch := bs.db.NewBatch()
	defer batch.Close()

	// Save block parts. All keys go into one batch, written at the end.
	for i := 0; i < int(blockParts.Total()); i++ {
		part := blockParts.GetPart(i)
		mustSet(batch, blockPartKey(height, i), mustMarshal(part))
	}

	// Save block
	mustSet(batch, blockKey(height), mustMarshal(block))

	hashIndex, err := orderedcode.Append(nil, height)
	if err != nil {
		panic(err)
	}
	mustSet(batch, blockHashKey(block.Hash()), hashIndex)

	// Save block commit (duplicate and separate from the block)
	mustSet(batch, blockCommitKey(height-1), mustMarshal(block.LastCommit))

	// Save seen commit (seen +2/3 precommits for block)
	mustSet(batch, seenCommitKey(height), mustMarshal(seenCommit))

	bs.mtx.Lock()
	bs.height = height
	if bs.base == 0 {
		bs.base = height
	}
	if err := bs.saveRange(batch); err != nil {
		bs.mtx.Unlock()
		panic(errors.Wrap(err, "save block store range"))
	}
	bs.mtx.Unlock()

	if err := batch.WriteSync(); err != nil {
		panic(errors.Wrap(err, "write block batch"))
	}
}

func mustSet(batch tmdb.Batch, key, value []byte) {
	if err := batch.Set(key, value); err != nil {
		panic(err)
	}
}

func mustMarshal(v interface{}) []byte {
	bz, err := tmjson.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bz
}

//---------------------------------------------------------------------------
// keys
//
// Keys are built with the order-preserving tuple codec, so iterating the
// database visits blocks in height order and parts in index order.

func blockKey(height int64) []byte {
	key, err := orderedcode.Append(nil, "B", height)
	if err != nil {
		panic(err)
	}
	return key
}

func blockPartKey(height int64, partIndex int) []byte {
	key, err := orderedcode.Append(nil, "P", height, int64(partIndex))
	if err != nil {
		panic(err)
	}
	return key
}

func blockCommitKey(height int64) []byte {
	key, err := orderedcode.Append(nil, "C", height)
	if err != nil {
		panic(err)
	}
	return key
}

func seenCommitKey(height int64) []byte {
	key, err := orderedcode.Append(nil, "SC", height)
	if err != nil {
		panic(err)
	}
	return key
}

func blockHashKey(hash []byte) []byte {
	key, err := orderedcode.Append(nil, "BH", string(hash))
	if err != nil {
		panic(err)
	}
	return key
}

func storeRangeKey() []byte {
	key, err := orderedcode.Append(nil, "R")
	if err != nil {
		panic(err)
	}
	return key
}
