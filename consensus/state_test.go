package consensus

import (
	"testing"
	"time"

	cstypes "bftchain/consensus/types"
	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmrand "github.com/tendermint/tendermint/libs/rand"
)

/*
ProposeSuite
x * TestStateFullRound1 - 1 val, full successful round
x * TestStateFullRoundWithThreeValidators - 3 vals, full successful round
x * TestStateProposerTimeoutPrevoteNil - proposer silent, everyone prevotes nil, round increments
LockSuite
x * TestStateUnlockOnNilPolka - locked block is released by +2/3 nil prevotes
x * TestStatePrevoteLockGate - prevote rule around locks and POL rounds
*/

//----------------------------------------------------------------------------------------------------
// ProposeSuite

// TestStateFullRound1 walks a single validator through propose, prevote,
// precommit and commit of one block.
func TestStateFullRound1(t *testing.T) {
	cs, _ := randState(1)
	height, round := cs.Height, cs.Round

	voteCh := subscribe(cs.evsw, types.EventVote)
	newRoundCh := subscribe(cs.evsw, types.EventNewRound)
	propCh := subscribe(cs.evsw, types.EventCompleteProposal)

	// Maybe it would be better to call explicitly startRoutines(4)
	startTestRound(cs, height, round)

	ensureNewRound(t, newRoundCh, height, round)

	ensureNewEvent(t, propCh, "timeout waiting for complete proposal")
	rs := cs.GetRoundState()
	propBlockHash := rs.ProposalBlock.Hash()
	require.NotNil(t, propBlockHash)

	prevote := ensureVote(t, voteCh, height, round, types.PrevoteType)
	assert.Equal(t, []byte(propBlockHash), []byte(prevote.BlockID.Hash), "prevote should be for the proposal block")

	precommit := ensureVote(t, voteCh, height, round, types.PrecommitType)
	assert.Equal(t, []byte(propBlockHash), []byte(precommit.BlockID.Hash), "precommit should be for the proposal block")

	// the block is committed and we move to the next height
	ensureNewRound(t, newRoundCh, height+1, 0)

	assert.EqualValues(t, 1, cs.blockStore.Height())
	block := cs.blockStore.LoadBlock(1)
	require.NotNil(t, block)
	assert.Equal(t, []byte(propBlockHash), []byte(block.Hash()))
}

// TestStateFullRoundWithThreeValidators is the three validator happy path:
// all three prevote and precommit block B at (h=1, r=0); the commit carries
// three ForBlock signatures and the machine advances to height 2.
func TestStateFullRoundWithThreeValidators(t *testing.T) {
	cs, privVals := randState(3)
	height, round := cs.Height, cs.Round

	voteCh := subscribe(cs.evsw, types.EventVote)
	newRoundCh := subscribe(cs.evsw, types.EventNewRound)
	propCh := subscribe(cs.evsw, types.EventCompleteProposal)

	// cs signs with privVals[0], the proposer at (1, 0)
	startTestRound(cs, height, round)
	ensureNewRound(t, newRoundCh, height, round)

	ensureNewEvent(t, propCh, "timeout waiting for complete proposal")
	rs := cs.GetRoundState()
	blockID := types.BlockID{Hash: rs.ProposalBlock.Hash(), PartSetHeader: rs.ProposalBlockParts.Header()}

	// our own prevote
	prevote := ensureVote(t, voteCh, height, round, types.PrevoteType)
	assert.Equal(t, []byte(blockID.Hash), []byte(prevote.BlockID.Hash))

	// the other two prevote the block; with 3 equal validators +2/3 needs all 3
	signAddVotes(cs, privVals, []int32{1, 2}, types.PrevoteType, height, round, blockID)
	ensureVote(t, voteCh, height, round, types.PrevoteType)
	ensureVote(t, voteCh, height, round, types.PrevoteType)

	// on the prevote polka we precommit the block and lock it
	precommit := ensureVote(t, voteCh, height, round, types.PrecommitType)
	assert.Equal(t, []byte(blockID.Hash), []byte(precommit.BlockID.Hash))

	signAddVotes(cs, privVals, []int32{1, 2}, types.PrecommitType, height, round, blockID)
	ensureVote(t, voteCh, height, round, types.PrecommitType)
	ensureVote(t, voteCh, height, round, types.PrecommitType)

	// commit: next height, round 0
	ensureNewRound(t, newRoundCh, height+1, 0)

	rs = cs.GetRoundState()
	assert.EqualValues(t, height+1, rs.Height)
	assert.EqualValues(t, 0, rs.Round)
	assert.Equal(t, cstypes.RoundStepNewHeight, rs.Step)

	// every vote set latched the same majority
	commit := cs.blockStore.LoadSeenCommit(height)
	require.NotNil(t, commit)
	require.NoError(t, commit.ValidateBasic())
	assert.True(t, commit.BlockID.Equals(blockID))
	require.Len(t, commit.Signatures, 3)
	for i, sig := range commit.Signatures {
		assert.True(t, sig.ForBlock(), "commit signature %d should be for the block", i)
	}
}

// TestStateProposerTimeoutPrevoteNil: the proposer is silent, timeoutPropose
// fires and everyone prevotes nil; +2/3 nil prevotes lead to nil precommits
// and the round increments.
func TestStateProposerTimeoutPrevoteNil(t *testing.T) {
	cs, privVals := randState(3)
	// sign with privVals[1]: the round 0 proposer (privVals[0]) stays silent
	cs.SetPrivValidator(privVals[1])

	height, round := cs.Height, cs.Round
	voteCh := subscribe(cs.evsw, types.EventVote)
	newRoundCh := subscribe(cs.evsw, types.EventNewRound)
	timeoutCh := subscribe(cs.evsw, types.EventTimeoutPropose)

	startTestRound(cs, height, round)
	ensureNewRound(t, newRoundCh, height, round)

	// no proposal: timeoutPropose fires and we prevote nil
	ensureNewEvent(t, timeoutCh, "timeout waiting for propose timeout")
	prevote := ensureVote(t, voteCh, height, round, types.PrevoteType)
	assert.True(t, prevote.BlockID.IsZero(), "prevote should be nil")

	// the others saw nothing either
	signAddVotes(cs, privVals, []int32{0, 2}, types.PrevoteType, height, round, types.BlockID{})
	ensureVote(t, voteCh, height, round, types.PrevoteType)
	ensureVote(t, voteCh, height, round, types.PrevoteType)

	// +2/3 nil prevotes: precommit nil, no lock
	precommit := ensureVote(t, voteCh, height, round, types.PrecommitType)
	assert.True(t, precommit.BlockID.IsZero(), "precommit should be nil")

	rs := cs.GetRoundState()
	assert.EqualValues(t, -1, rs.LockedRound)
	assert.Nil(t, rs.LockedBlock)

	// +2/3 nil precommits: timeoutPrecommit fires, we enter round 1
	signAddVotes(cs, privVals, []int32{0, 2}, types.PrecommitType, height, round, types.BlockID{})
	ensureVote(t, voteCh, height, round, types.PrecommitType)
	ensureVote(t, voteCh, height, round, types.PrecommitType)

	ensureNewRound(t, newRoundCh, height, round+1)
}

//----------------------------------------------------------------------------------------------------
// LockSuite

// buildBlock makes a distinct proposable block carrying the given txs.
func buildBlock(cs *State, txs []types.Tx) (*types.Block, *types.PartSet) {
	commit := types.NewCommit(0, 0, types.BlockID{}, nil)
	addr := cs.privValidatorPubKey.Address()
	return cs.state.MakeBlock(cs.Height, txs, commit, nil, addr)
}

// drainVote reads the next internally queued vote without running the
// receive routine.
func drainVote(t *testing.T, cs *State) *types.Vote {
	t.Helper()
	select {
	case mi := <-cs.internalMsgQueue:
		voteMsg, ok := mi.Msg.(*VoteMessage)
		require.True(t, ok, "expected a VoteMessage, got %T", mi.Msg)
		return voteMsg.Vote
	case <-time.After(ensureTimeout):
		t.Fatal("no vote was queued")
		return nil
	}
}

// TestStateUnlockOnNilPolka: a validator locked on a block releases the lock
// and precommits nil when a later round prevotes +2/3 nil.
func TestStateUnlockOnNilPolka(t *testing.T) {
	cs, privVals := randState(3)
	height := cs.Height

	lockedBlock, lockedParts := buildBlock(cs, []types.Tx{types.Tx("locked")})

	// locked at round 0, now at round 1 prevote step
	cs.LockedRound = 0
	cs.LockedBlock = lockedBlock
	cs.LockedBlockParts = lockedParts
	cs.Votes.SetRound(1)
	cs.updateRoundStep(1, cstypes.RoundStepPrevote)

	// +2/3 prevote nil at round 1
	for _, idx := range []int32{0, 1, 2} {
		vote := signVote(privVals[idx], idx, types.PrevoteType, height, 1, types.BlockID{})
		added, err := cs.Votes.AddVote(vote, "")
		require.True(t, added)
		require.NoError(t, err)
	}

	cs.enterPrecommit(height, 1)

	assert.Nil(t, cs.LockedBlock, "the lock must be released on a nil polka")
	assert.EqualValues(t, -1, cs.LockedRound)

	precommit := drainVote(t, cs)
	assert.Equal(t, types.PrecommitType, precommit.Type)
	assert.True(t, precommit.BlockID.IsZero(), "precommit should be nil after unlocking")
}

// TestStatePrevoteLockGate exercises the prevote rule: a locked validator
// only prevotes a different proposal when it carries a proof-of-lock at a
// round not older than its own lock.
func TestStatePrevoteLockGate(t *testing.T) {
	cs, privVals := randState(3)
	height := cs.Height

	lockedBlock, lockedParts := buildBlock(cs, []types.Tx{types.Tx("locked")})
	propBlock, propParts := buildBlock(cs, []types.Tx{types.Tx("proposed")})
	require.False(t, lockedBlock.HashesTo(propBlock.Hash()))
	propBlockID := types.BlockID{Hash: propBlock.Hash(), PartSetHeader: propParts.Header()}

	// we are locked on lockedBlock since round 1, now in round 2
	cs.LockedRound = 1
	cs.LockedBlock = lockedBlock
	cs.LockedBlockParts = lockedParts
	cs.Votes.SetRound(2)
	cs.updateRoundStep(2, cstypes.RoundStepPropose)

	// proposal of a different block with POLRound = 0 < lockedRound: nil
	cs.Proposal = types.NewProposal(height, 2, 0, propBlockID)
	cs.ProposalBlock = propBlock
	cs.ProposalBlockParts = propParts

	cs.defaultDoPrevote(height, 2)
	vote := drainVote(t, cs)
	assert.True(t, vote.BlockID.IsZero(), "an old POL round must not override the lock")

	// same proposal but with POLRound = 1 >= lockedRound and an observed
	// +2/3 prevotes for it at round 1: the POL overrides the lock
	for _, idx := range []int32{0, 1, 2} {
		v := signVote(privVals[idx], idx, types.PrevoteType, height, 1, propBlockID)
		added, err := cs.Votes.AddVote(v, "")
		require.True(t, added)
		require.NoError(t, err)
	}
	cs.Proposal = types.NewProposal(height, 2, 1, propBlockID)

	cs.defaultDoPrevote(height, 2)
	vote = drainVote(t, cs)
	assert.Equal(t, []byte(propBlock.Hash()), []byte(vote.BlockID.Hash),
		"a POL at or after the locked round overrides the lock")

	// locked on the proposal itself: always prevote it
	cs.Proposal = types.NewProposal(height, 2, -1, propBlockID)
	cs.LockedBlock = propBlock
	cs.LockedBlockParts = propParts
	cs.defaultDoPrevote(height, 2)
	vote = drainVote(t, cs)
	assert.Equal(t, []byte(propBlock.Hash()), []byte(vote.BlockID.Hash))
}

// Three matching prevotes added to the consensus vote set latch that block
// as the round's +2/3 majority.
func TestStateMaj23Latch(t *testing.T) {
	cs, privVals := randState(3)
	height := cs.Height

	blockID := types.BlockID{Hash: tmrand.Bytes(32), PartSetHeader: types.PartSetHeader{Total: 1, Hash: tmrand.Bytes(32)}}
	for _, idx := range []int32{0, 1, 2} {
		vote := signVote(privVals[idx], idx, types.PrevoteType, height, 0, blockID)
		added, err := cs.Votes.AddVote(vote, "")
		require.True(t, added)
		require.NoError(t, err)
	}

	maj23, ok := cs.Votes.Prevotes(0).TwoThirdsMajority()
	require.True(t, ok)
	assert.True(t, maj23.Equals(blockID))
}
