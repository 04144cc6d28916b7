// fork from github.com/tendermint/tendermint/state/state.go
package state

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"bftchain/types"

	tmtime "github.com/tendermint/tendermint/types/time"
)

// InitStateVersion is the blockchain-level protocol version. Bumping it
// invalidates persisted states.
const InitStateVersion = uint64(1)

//-----------------------------------------------------------------------------

// State is a short description of the latest committed block of the
// consensus protocol. It keeps all information necessary to validate new
// blocks, including the last validator set and the consensus params.
//
// Instead of modifying fields in place, use Copy() and change the copy.
// NOTE: not goroutine-safe.
type State struct {
	Version uint64

	// immutable
	ChainID       string
	InitialHeight int64 // should be 1, not 0, when starting from height 1

	// LastBlockHeight=0 at genesis (ie. block(H=0) does not exist)
	LastBlockHeight int64
	LastBlockID     types.BlockID
	LastBlockTime   time.Time

	// LastValidators is used to validate block.LastCommit.
	// Validators are persisted only as part of the saved state; historical
	// validator sets are not kept.
	// Note that if s.LastBlockHeight causes a valset change,
	// we set s.LastHeightValidatorsChanged = s.LastBlockHeight + 1 + 1
	// Extra +1 due to nextValSet delay.
	NextValidators              *types.ValidatorSet
	Validators                  *types.ValidatorSet
	LastValidators              *types.ValidatorSet
	LastHeightValidatorsChanged int64

	// Consensus parameters used for validating blocks.
	ConsensusParams types.ConsensusParams

	// Merkle root of the results from executing prev block
	LastResultsHash []byte

	// the latest AppHash we've received from calling abci.Commit()
	AppHash []byte
}

// Copy makes a copy of the State for mutating.
func (state State) Copy() State {
	return State{
		Version:       state.Version,
		ChainID:       state.ChainID,
		InitialHeight: state.InitialHeight,

		LastBlockHeight: state.LastBlockHeight,
		LastBlockID:     state.LastBlockID,
		LastBlockTime:   state.LastBlockTime,

		NextValidators:              state.NextValidators.Copy(),
		Validators:                  state.Validators.Copy(),
		LastValidators:              state.LastValidators.Copy(),
		LastHeightValidatorsChanged: state.LastHeightValidatorsChanged,

		ConsensusParams: state.ConsensusParams,

		AppHash: state.AppHash,

		LastResultsHash: state.LastResultsHash,
	}
}

// Equals returns true if the States are identical.
func (state State) Equals(state2 State) bool {
	return state.ChainID == state2.ChainID &&
		state.LastBlockHeight == state2.LastBlockHeight &&
		state.LastBlockID.Equals(state2.LastBlockID) &&
		bytes.Equal(state.AppHash, state2.AppHash) &&
		bytes.Equal(state.Validators.Hash(), state2.Validators.Hash())
}

// IsEmpty returns true if the State is equal to the empty State.
func (state State) IsEmpty() bool {
	return state.Validators == nil // XXX can't compare to Empty
}

//------------------------------------------------------------------------
// Create a block from the latest state

// MakeBlock builds a block from the current state with the given txs,
// commit, and evidence. Note it also takes a proposerAddress because the
// state does not track rounds, and hence does not know the correct proposer.
func (state State) MakeBlock(
	height int64,
	txs []types.Tx,
	commit *types.Commit,
	evidence []types.Evidence,
	proposerAddress []byte,
) (*types.Block, *types.PartSet) {

	// Build base block with block data.
	block := types.MakeBlock(height, txs, commit, evidence)

	// Set time.
	var timestamp time.Time
	if height == state.InitialHeight {
		timestamp = state.LastBlockTime // genesis time
	} else {
		timestamp = MedianTime(commit, state.LastValidators)
	}

	// Fill rest of header with state data.
	block.Header.Populate(
		state.ChainID,
		timestamp, state.LastBlockID,
		state.Validators.Hash(), state.NextValidators.Hash(),
		state.ConsensusParams.HashConsensusParams(), state.AppHash, state.LastResultsHash,
		proposerAddress,
	)

	return block, block.MakePartSet(types.BlockPartSizeBytes)
}

// MedianTime computes a median time for a given Commit (based on
// Timestamp field of votes messages) and the corresponding validator set.
// The computed time is always between timestamps of the votes sent by
// honest processes, i.e., a faulty processes can not arbitrarily increase
// or decrease the computed value.
func MedianTime(commit *types.Commit, validators *types.ValidatorSet) time.Time {
	weightedTimes := make([]*weightedTime, len(commit.Signatures))
	totalVotingPower := int64(0)

	for i, commitSig := range commit.Signatures {
		if commitSig.Absent() {
			continue
		}
		_, validator := validators.GetByAddress(commitSig.ValidatorAddress)
		// If there's no condition, TestValidateBlockCommit panics; not needed normally.
		if validator != nil {
			totalVotingPower += validator.VotingPower
			weightedTimes[i] = &weightedTime{Time: commitSig.Timestamp, Weight: validator.VotingPower}
		}
	}

	if totalVotingPower == 0 {
		return tmtime.Now()
	}
	return weightedMedian(weightedTimes, totalVotingPower)
}

type weightedTime struct {
	Time   time.Time
	Weight int64
}

func weightedMedian(weightedTimes []*weightedTime, totalVotingPower int64) (res time.Time) {
	median := totalVotingPower / 2

	sorted := make([]*weightedTime, 0, len(weightedTimes))
	for _, weightedTime := range weightedTimes {
		if weightedTime != nil {
			sorted = append(sorted, weightedTime)
		}
	}
	sortWeightedTimes(sorted)

	for _, weightedTime := range sorted {
		if median < weightedTime.Weight {
			res = weightedTime.Time
			break
		}
		median -= weightedTime.Weight
	}
	return
}

func sortWeightedTimes(times []*weightedTime) {
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j].Time.Before(times[j-1].Time); j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}
}

//------------------------------------------------------------------------
// Genesis

// MakeGenesisStateFromFile reads and unmarshals state from the given
// file.
//
// Used during replay and in tests.
func MakeGenesisStateFromFile(genDocFile string) (State, error) {
	genDoc, err := types.GenesisDocFromFile(genDocFile)
	if err != nil {
		return State{}, err
	}
	return MakeGenesisState(genDoc)
}

// MakeGenesisState creates state from types.GenesisDoc.
func MakeGenesisState(genDoc *types.GenesisDoc) (State, error) {
	err := genDoc.ValidateAndComplete()
	if err != nil {
		return State{}, fmt.Errorf("error in genesis file: %v", err)
	}

	var validatorSet, nextValidatorSet *types.ValidatorSet
	if genDoc.Validators == nil {
		return State{}, errors.New("genesis file has no validators")
	}
	validators := make([]*types.Validator, len(genDoc.Validators))
	for i, val := range genDoc.Validators {
		validators[i] = types.NewValidator(val.PubKey, val.Power)
	}
	validatorSet = types.NewValidatorSet(validators)
	nextValidatorSet = types.NewValidatorSet(validators).CopyIncrementProposerPriority(1)

	return State{
		Version:       InitStateVersion,
		ChainID:       genDoc.ChainID,
		InitialHeight: genDoc.InitialHeight,

		LastBlockHeight: 0,
		LastBlockID:     types.BlockID{},
		LastBlockTime:   genDoc.GenesisTime,

		NextValidators:              nextValidatorSet,
		Validators:                  validatorSet,
		LastValidators:              types.NewValidatorSet(nil),
		LastHeightValidatorsChanged: genDoc.InitialHeight,

		ConsensusParams: *genDoc.ConsensusParams,

		AppHash: genDoc.AppHash,
	}, nil
}
