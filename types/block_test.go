package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"
)

func makeBlockID(hash []byte, partSetSize uint32, partSetHash []byte) BlockID {
	var (
		h   = make([]byte, 32)
		psH = make([]byte, 32)
	)
	copy(h, hash)
	copy(psH, partSetHash)
	return BlockID{
		Hash: h,
		PartSetHeader: PartSetHeader{
			Total: partSetSize,
			Hash:  psH,
		},
	}
}

func makeTestCommit(height int64, valSet *ValidatorSet, privVals []PrivValidator, blockID BlockID) *Commit {
	voteSet := NewVoteSet(testChainID, height, 1, PrecommitType, valSet)
	for i, pv := range privVals {
		pk, err := pv.GetPubKey()
		if err != nil {
			panic(err)
		}
		vote := &Vote{
			Type:             PrecommitType,
			Height:           height,
			Round:            1,
			BlockID:          blockID,
			Timestamp:        tmtime.Now(),
			ValidatorAddress: pk.Address(),
			ValidatorIndex:   int32(i),
		}
		if _, err := signAddVote(pv, vote, voteSet); err != nil {
			panic(err)
		}
	}
	return voteSet.MakeCommit()
}

func makeTestBlock(t *testing.T) (*Block, *ValidatorSet, []PrivValidator) {
	valSet, privVals := RandValidatorSet(3, 10)
	prevBlockID := makeBlockID(tmrand.Bytes(32), 10, tmrand.Bytes(32))
	lastCommit := makeTestCommit(2, valSet, privVals, prevBlockID)

	txs := []Tx{Tx("tx0"), Tx("tx1")}
	block := MakeBlock(3, txs, lastCommit, nil)
	block.Header.Populate(
		testChainID, tmtime.Now(), prevBlockID,
		valSet.Hash(), valSet.Hash(),
		DefaultConsensusParams().HashConsensusParams(), []byte("app_hash"), nil,
		valSet.Validators[0].Address,
	)
	return block, valSet, privVals
}

func TestBlockValidateBasic(t *testing.T) {
	block, _, _ := makeTestBlock(t)
	require.NoError(t, block.ValidateBasic())

	// tampered data hash
	block2, _, _ := makeTestBlock(t)
	block2.DataHash = tmrand.Bytes(32)
	require.Error(t, block2.ValidateBasic())

	// missing last commit
	block3, _, _ := makeTestBlock(t)
	block3.LastCommit = nil
	require.Error(t, block3.ValidateBasic())

	var nilBlock *Block
	require.Error(t, nilBlock.ValidateBasic())
}

func TestBlockHash(t *testing.T) {
	assert.Nil(t, (*Block)(nil).Hash())

	block, _, _ := makeTestBlock(t)
	h := block.Hash()
	require.NotNil(t, h)
	assert.True(t, block.HashesTo(h))
	assert.False(t, block.HashesTo(nil))
	assert.False(t, block.HashesTo(tmrand.Bytes(32)))
}

func TestBlockMakePartSetRoundTrip(t *testing.T) {
	block, _, _ := makeTestBlock(t)

	partSet := block.MakePartSet(512)
	require.NotNil(t, partSet)
	assert.True(t, partSet.Total() > 1)
	assert.True(t, partSet.IsComplete())

	// refill from header + parts, then reassemble and compare hashes
	partSet2 := NewPartSetFromHeader(partSet.Header())
	for i := 0; i < int(partSet.Total()); i++ {
		added, err := partSet2.AddPart(partSet.GetPart(i))
		require.True(t, added)
		require.NoError(t, err)
	}
	require.True(t, partSet2.IsComplete())

	block2, err := BlockFromPartSetReader(partSet2)
	require.NoError(t, err)
	require.NoError(t, block2.ValidateBasic())
	assert.Equal(t, block.Hash(), block2.Hash())
	assert.Equal(t, partSet.Header(), block2.MakePartSet(512).Header())
}

func TestCommitToVoteSetRoundTrip(t *testing.T) {
	valSet, privVals := RandValidatorSet(4, 10)
	blockID := makeBlockID(tmrand.Bytes(32), 5, tmrand.Bytes(32))
	commit := makeTestCommit(7, valSet, privVals, blockID)

	voteSet := CommitToVoteSet(testChainID, commit, valSet)
	maj23, ok := voteSet.TwoThirdsMajority()
	require.True(t, ok)
	assert.True(t, maj23.Equals(blockID))

	commit2 := voteSet.MakeCommit()
	assert.Equal(t, commit.Height, commit2.Height)
	assert.Equal(t, commit.Round, commit2.Round)
	assert.Equal(t, commit.BlockID, commit2.BlockID)
	assert.Equal(t, len(commit.Signatures), len(commit2.Signatures))
}

func TestHeaderValidateBasic(t *testing.T) {
	block, _, _ := makeTestBlock(t)
	h := block.Header
	require.NoError(t, h.ValidateBasic())

	h2 := h
	h2.ChainID = ""
	require.Error(t, h2.ValidateBasic())

	h2 = h
	h2.ChainID = string(tmrand.Bytes(MaxChainIDLen + 1))
	require.Error(t, h2.ValidateBasic())

	h2 = h
	h2.Height = 0
	require.Error(t, h2.ValidateBasic())

	h2 = h
	h2.ProposerAddress = nil
	require.Error(t, h2.ValidateBasic())
}
