package store

import (
	"testing"
	"time"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"
	tmdb "github.com/tendermint/tm-db"
)

const testChainID = "store-test"

func makeTestBlock(height int64) (*types.Block, *types.PartSet, *types.Commit) {
	valSet, privVals := types.RandValidatorSet(2, 10)

	var lastCommit *types.Commit
	var lastBlockID types.BlockID
	if height == 1 {
		lastCommit = types.NewCommit(0, 0, types.BlockID{}, nil)
	} else {
		lastBlockID = types.BlockID{Hash: tmrand.Bytes(32), PartSetHeader: types.PartSetHeader{Total: 1, Hash: tmrand.Bytes(32)}}
		voteSet := types.NewVoteSet(testChainID, height-1, 0, types.PrecommitType, valSet)
		for i, pv := range privVals {
			pubKey, err := pv.GetPubKey()
			if err != nil {
				panic(err)
			}
			vote := &types.Vote{
				Type:             types.PrecommitType,
				Height:           height - 1,
				Round:            0,
				BlockID:          lastBlockID,
				Timestamp:        tmtime.Now(),
				ValidatorAddress: pubKey.Address(),
				ValidatorIndex:   int32(i),
			}
			if err := pv.SignVote(testChainID, vote); err != nil {
				panic(err)
			}
			if _, err := voteSet.AddVote(vote); err != nil {
				panic(err)
			}
		}
		lastCommit = voteSet.MakeCommit()
	}

	block := types.MakeBlock(height, []types.Tx{types.Tx("tx1"), types.Tx("tx2")}, lastCommit, nil)
	block.Header.Populate(
		testChainID, tmtime.Now().Add(-time.Minute), lastBlockID,
		valSet.Hash(), valSet.Hash(),
		types.DefaultConsensusParams().HashConsensusParams(), []byte("app"), nil,
		valSet.Validators[0].Address,
	)
	parts := block.MakePartSet(512)

	seenCommit := types.NewCommit(height, 0,
		types.BlockID{Hash: block.Hash(), PartSetHeader: parts.Header()},
		[]types.CommitSig{types.NewCommitSigForBlock(tmrand.Bytes(64), valSet.Validators[0].Address, tmtime.Now())},
	)
	return block, parts, seenCommit
}

func TestBlockStoreSaveLoad(t *testing.T) {
	bs := NewBlockStore(tmdb.NewMemDB())
	assert.EqualValues(t, 0, bs.Height())
	assert.EqualValues(t, 0, bs.Base())
	assert.EqualValues(t, 0, bs.Size())
	assert.Nil(t, bs.LoadBlock(1))

	block, parts, seenCommit := makeTestBlock(1)
	bs.SaveBlock(block, parts, seenCommit)

	assert.EqualValues(t, 1, bs.Height())
	assert.EqualValues(t, 1, bs.Base())
	assert.EqualValues(t, 1, bs.Size())

	loaded := bs.LoadBlock(1)
	require.NotNil(t, loaded)
	assert.Equal(t, block.Hash(), loaded.Hash())

	byHash := bs.LoadBlockByHash(block.Hash())
	require.NotNil(t, byHash)
	assert.Equal(t, block.Hash(), byHash.Hash())

	for i := 0; i < int(parts.Total()); i++ {
		part := bs.LoadBlockPart(1, i)
		require.NotNil(t, part)
		assert.EqualValues(t, i, part.Index)
		assert.Equal(t, parts.GetPart(i).Bytes, part.Bytes)
	}

	sc := bs.LoadSeenCommit(1)
	require.NotNil(t, sc)
	assert.EqualValues(t, 1, sc.Height)
	assert.Equal(t, seenCommit.BlockID, sc.BlockID)

	// block.LastCommit was stored as the commit of height 0
	lc := bs.LoadBlockCommit(0)
	require.NotNil(t, lc)
	assert.EqualValues(t, 0, lc.Height)
}

func TestBlockStoreContiguity(t *testing.T) {
	bs := NewBlockStore(tmdb.NewMemDB())
	block, parts, seenCommit := makeTestBlock(1)
	bs.SaveBlock(block, parts, seenCommit)

	// saving a non-contiguous height panics
	block3, parts3, seen3 := makeTestBlock(3)
	assert.Panics(t, func() { bs.SaveBlock(block3, parts3, seen3) })

	// an incomplete part set panics
	block2, parts2, seen2 := makeTestBlock(2)
	incomplete := types.NewPartSetFromHeader(parts2.Header())
	assert.Panics(t, func() { bs.SaveBlock(block2, incomplete, seen2) })
}

func TestBlockStoreReload(t *testing.T) {
	db := tmdb.NewMemDB()
	bs := NewBlockStore(db)
	block, parts, seenCommit := makeTestBlock(1)
	bs.SaveBlock(block, parts, seenCommit)

	// a new store over the same db picks up the range
	bs2 := NewBlockStore(db)
	assert.EqualValues(t, 1, bs2.Height())
	assert.EqualValues(t, 1, bs2.Base())
	require.NotNil(t, bs2.LoadBlock(1))
}
