package evidence

import (
	"testing"
	"time"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"
)

const testChainID = "evidence-test"

func makeConflictingVotes(t *testing.T, valSet *types.ValidatorSet, privVals []types.PrivValidator,
	height int64) (*types.Vote, *types.Vote) {
	t.Helper()
	pubKey, err := privVals[0].GetPubKey()
	require.NoError(t, err)

	makeVote := func(hash []byte) *types.Vote {
		vote := &types.Vote{
			Type:             types.PrecommitType,
			Height:           height,
			Round:            0,
			BlockID:          types.BlockID{Hash: hash, PartSetHeader: types.PartSetHeader{Total: 1, Hash: tmrand.Bytes(32)}},
			Timestamp:        tmtime.Now(),
			ValidatorAddress: pubKey.Address(),
			ValidatorIndex:   0,
		}
		require.NoError(t, privVals[0].SignVote(testChainID, vote))
		return vote
	}
	return makeVote(tmrand.Bytes(32)), makeVote(tmrand.Bytes(32))
}

func TestReportConflictingVotes(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(3, 10)
	pool := NewPool(types.DefaultEvidenceParams(), log.TestingLogger())

	voteA, voteB := makeConflictingVotes(t, valSet, privVals, 1)
	pool.ReportConflictingVotes(voteA, voteB, valSet, tmtime.Now())

	require.Equal(t, 1, pool.Size())

	evs, size := pool.PendingEvidence(-1)
	require.Len(t, evs, 1)
	assert.True(t, size > 0)

	dve, ok := evs[0].(*types.DuplicateVoteEvidence)
	require.True(t, ok)
	require.NoError(t, dve.ValidateBasic())
	assert.EqualValues(t, 1, dve.Height())
	assert.EqualValues(t, 30, dve.TotalVotingPower)
	assert.EqualValues(t, 10, dve.ValidatorPower)

	// reporting the same conflict again does not duplicate
	pool.ReportConflictingVotes(voteA, voteB, valSet, dve.Timestamp)
	assert.Equal(t, 1, pool.Size())
}

func TestPendingEvidenceByteCap(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(3, 10)
	pool := NewPool(types.DefaultEvidenceParams(), log.TestingLogger())

	blockTime := tmtime.Now()
	for h := int64(1); h <= 3; h++ {
		voteA, voteB := makeConflictingVotes(t, valSet, privVals, h)
		pool.ReportConflictingVotes(voteA, voteB, valSet, blockTime)
	}
	require.Equal(t, 3, pool.Size())

	all, totalSize := pool.PendingEvidence(-1)
	require.Len(t, all, 3)

	// a cap below the total returns a prefix
	evSize := int64(len(all[0].Bytes()))
	capped, _ := pool.PendingEvidence(evSize)
	assert.Len(t, capped, 1)
	assert.True(t, totalSize > evSize)
}

func TestPoolUpdateRemovesCommitted(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(3, 10)
	pool := NewPool(types.DefaultEvidenceParams(), log.TestingLogger())

	voteA, voteB := makeConflictingVotes(t, valSet, privVals, 1)
	pool.ReportConflictingVotes(voteA, voteB, valSet, tmtime.Now())
	require.Equal(t, 1, pool.Size())

	evs, _ := pool.PendingEvidence(-1)
	pool.Update(2, tmtime.Now(), evs)
	assert.Equal(t, 0, pool.Size())
}

func TestPoolUpdatePrunesExpired(t *testing.T) {
	valSet, privVals := types.RandValidatorSet(3, 10)
	params := types.EvidenceParams{MaxAgeNumBlocks: 5, MaxAgeDuration: time.Minute, MaxBytes: 1 << 20}
	pool := NewPool(params, log.TestingLogger())

	voteA, voteB := makeConflictingVotes(t, valSet, privVals, 1)
	pool.ReportConflictingVotes(voteA, voteB, valSet, tmtime.Now().Add(-2*time.Minute))
	require.Equal(t, 1, pool.Size())

	// both windows exceeded: height 1 is more than 5 blocks old and the
	// evidence time is more than a minute old
	pool.Update(10, tmtime.Now(), nil)
	assert.Equal(t, 0, pool.Size())

	// not expired while within the block window
	voteC, voteD := makeConflictingVotes(t, valSet, privVals, 9)
	pool.ReportConflictingVotes(voteC, voteD, valSet, tmtime.Now())
	pool.Update(11, tmtime.Now(), nil)
	assert.Equal(t, 1, pool.Size())
}
