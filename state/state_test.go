package state

import (
	"testing"
	"time"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmtime "github.com/tendermint/tendermint/types/time"
	tmdb "github.com/tendermint/tm-db"
)

func makeGenesisDoc(nVals int) (*types.GenesisDoc, []types.PrivValidator) {
	valSet, privVals := types.RandValidatorSet(nVals, 10)
	genVals := make([]types.GenesisValidator, nVals)
	for i, val := range valSet.Validators {
		genVals[i] = types.GenesisValidator{Address: val.Address, PubKey: val.PubKey, Power: val.VotingPower}
	}
	return &types.GenesisDoc{
		GenesisTime:     tmtime.Now().Add(-time.Minute),
		ChainID:         "state-test",
		InitialHeight:   1,
		ConsensusParams: types.DefaultConsensusParams(),
		Validators:      genVals,
	}, privVals
}

func TestMakeGenesisState(t *testing.T) {
	genDoc, _ := makeGenesisDoc(3)
	state, err := MakeGenesisState(genDoc)
	require.NoError(t, err)

	assert.Equal(t, "state-test", state.ChainID)
	assert.EqualValues(t, 1, state.InitialHeight)
	assert.EqualValues(t, 0, state.LastBlockHeight)
	assert.Equal(t, 3, state.Validators.Size())
	assert.Equal(t, 3, state.NextValidators.Size())
	assert.Equal(t, 0, state.LastValidators.Size())
	assert.EqualValues(t, 30, state.Validators.TotalVotingPower())

	// no validators is an error
	_, err = MakeGenesisState(&types.GenesisDoc{ChainID: "x", InitialHeight: 1})
	assert.Error(t, err)
}

func TestStateCopyEquals(t *testing.T) {
	genDoc, _ := makeGenesisDoc(2)
	state, err := MakeGenesisState(genDoc)
	require.NoError(t, err)

	cp := state.Copy()
	assert.True(t, state.Equals(cp))

	cp.LastBlockHeight++
	assert.False(t, state.Equals(cp))
}

func TestStateStoreRoundTrip(t *testing.T) {
	genDoc, _ := makeGenesisDoc(2)
	state, err := MakeGenesisState(genDoc)
	require.NoError(t, err)

	store := NewStore(tmdb.NewMemDB())

	// empty load
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.IsEmpty())

	require.NoError(t, store.Save(state))
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.True(t, state.Equals(loaded))
	assert.Equal(t, state.ChainID, loaded.ChainID)
	assert.Equal(t, state.Validators.Hash(), loaded.Validators.Hash())
}

func TestStateMakeBlock(t *testing.T) {
	genDoc, _ := makeGenesisDoc(2)
	state, err := MakeGenesisState(genDoc)
	require.NoError(t, err)

	proposer := state.Validators.Validators[0].Address
	commit := types.NewCommit(0, 0, types.BlockID{}, nil)
	block, parts := state.MakeBlock(1, []types.Tx{types.Tx("tx")}, commit, nil, proposer)

	require.NotNil(t, block)
	require.NotNil(t, parts)
	assert.True(t, parts.IsComplete())

	// the header is fully populated from state
	assert.Equal(t, state.ChainID, block.ChainID)
	assert.Equal(t, state.Validators.Hash(), []byte(block.ValidatorsHash))
	assert.Equal(t, state.NextValidators.Hash(), []byte(block.NextValidatorsHash))
	assert.Equal(t, []byte(proposer), []byte(block.ProposerAddress))
	// at the initial height the block carries the genesis time
	assert.True(t, block.Time.Equal(state.LastBlockTime))

	require.NoError(t, validateBlock(state, block))
}
