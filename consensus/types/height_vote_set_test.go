package types

import (
	"testing"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"
)

const testChainID = "test_chain_id"

func makeVoteHR(
	t *testing.T,
	height int64,
	valIndex, round int32,
	privVals []types.PrivValidator,
	voteType types.SignedMsgType,
) *types.Vote {
	privVal := privVals[valIndex]
	pubKey, err := privVal.GetPubKey()
	require.NoError(t, err)

	vote := &types.Vote{
		ValidatorAddress: pubKey.Address(),
		ValidatorIndex:   valIndex,
		Height:           height,
		Round:            round,
		Timestamp:        tmtime.Now(),
		Type:             voteType,
		BlockID:          types.BlockID{Hash: tmrand.Bytes(32), PartSetHeader: types.PartSetHeader{}},
	}
	err = privVal.SignVote(testChainID, vote)
	require.NoError(t, err)
	return vote
}

func TestHeightVoteSetPeerCatchupRounds(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(10, 1)

	hvs := NewHeightVoteSet(testChainID, 1, valSet)

	vote999_0 := makeVoteHR(t, 1, 0, 999, privVals, types.PrecommitType)
	added, err := hvs.AddVote(vote999_0, "peer1")
	if !added || err != nil {
		t.Error("Expected to successfully add vote from peer", added, err)
	}

	vote1000_0 := makeVoteHR(t, 1, 0, 1000, privVals, types.PrecommitType)
	added, err = hvs.AddVote(vote1000_0, "peer1")
	if !added || err != nil {
		t.Error("Expected to successfully add vote from peer", added, err)
	}

	vote1001_0 := makeVoteHR(t, 1, 0, 1001, privVals, types.PrecommitType)
	added, err = hvs.AddVote(vote1001_0, "peer1")
	if err != ErrGotVoteFromUnwantedRound {
		t.Errorf("expected GotVoteFromUnwantedRoundError, but got %v", err)
	}
	if added {
		t.Error("Expected to *not* add vote from peer, too many catchup rounds.")
	}

	added, err = hvs.AddVote(vote1001_0, "peer2")
	if !added || err != nil {
		t.Error("Expected to successfully add vote from another peer")
	}
}

func TestHeightVoteSetSetRoundMonotone(t *testing.T) {
	valSet, _ := types.RandValidatorSet(3, 10)
	hvs := NewHeightVoteSet(testChainID, 1, valSet)

	hvs.SetRound(3)
	assert.EqualValues(t, 3, hvs.Round())
	require.NotNil(t, hvs.Prevotes(0))
	require.NotNil(t, hvs.Prevotes(3))
	require.NotNil(t, hvs.Precommits(2))

	// rounds must not regress
	assert.Panics(t, func() { hvs.SetRound(2) })
	assert.NotPanics(t, func() { hvs.SetRound(3) })
	assert.EqualValues(t, 3, hvs.Round())

	hvs.SetRound(4)
	assert.EqualValues(t, 4, hvs.Round())
}

func TestHeightVoteSetPOLInfo(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(3, 10)
	hvs := NewHeightVoteSet(testChainID, 1, valSet)
	hvs.SetRound(1)

	// no POL yet
	polRound, _ := hvs.POLInfo()
	assert.EqualValues(t, -1, polRound)

	// all three prevote the same block at round 1
	blockID := types.BlockID{Hash: tmrand.Bytes(32), PartSetHeader: types.PartSetHeader{Total: 1, Hash: tmrand.Bytes(32)}}
	for i := int32(0); i < 3; i++ {
		pubKey, err := privVals[i].GetPubKey()
		require.NoError(t, err)
		vote := &types.Vote{
			ValidatorAddress: pubKey.Address(),
			ValidatorIndex:   i,
			Height:           1,
			Round:            1,
			Timestamp:        tmtime.Now(),
			Type:             types.PrevoteType,
			BlockID:          blockID,
		}
		require.NoError(t, privVals[i].SignVote(testChainID, vote))
		added, err := hvs.AddVote(vote, "")
		require.True(t, added)
		require.NoError(t, err)
	}

	polRound, polBlockID := hvs.POLInfo()
	assert.EqualValues(t, 1, polRound)
	assert.True(t, polBlockID.Equals(blockID))
}
