// fork from github.com/tendermint/tendermint/state/execution.go
package state

import (
	"fmt"
	"time"

	"bftchain/abci"
	"bftchain/crypto/merkle"
	"bftchain/mempool"
	"bftchain/types"

	"github.com/tendermint/tendermint/libs/log"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

//-----------------------------------------------------------------------------
// BlockExecutor handles block execution and state updates.
// It exposes ApplyBlock(), which validates & executes the block, commits the app,
// updates state w/ ABCI responses, updates the mempool under its lock, then saves state.

// EvidencePool defines the evidence view the executor uses: pending
// evidence for proposals, pruning on commit.
type EvidencePool interface {
	PendingEvidence(maxBytes int64) (ev []types.Evidence, size int64)
	Update(height int64, time time.Time, evidence []types.Evidence)
}

// EmptyEvidencePool is an empty implementation of EvidencePool, useful for testing.
type EmptyEvidencePool struct{}

func (EmptyEvidencePool) PendingEvidence(int64) ([]types.Evidence, int64) { return nil, 0 }
func (EmptyEvidencePool) Update(int64, time.Time, []types.Evidence)      {}

// BlockExecutor provides the context and accessories for properly executing
// a block.
type BlockExecutor struct {
	// save state, validators, consensus params, abci responses here
	store Store

	// execute the app against this
	app abci.Application

	// update these with block results after commit
	mempool mempool.Mempool
	evpool  EvidencePool

	logger log.Logger
}

// NewBlockExecutor returns a new BlockExecutor with a Store that persists
// the resulting state.
func NewBlockExecutor(
	stateStore Store,
	logger log.Logger,
	app abci.Application,
	mempool mempool.Mempool,
	evpool EvidencePool,
) *BlockExecutor {
	return &BlockExecutor{
		store:   stateStore,
		app:     app,
		mempool: mempool,
		evpool:  evpool,
		logger:  logger,
	}
}

// Store returns the state store of the executor.
func (blockExec *BlockExecutor) Store() Store {
	return blockExec.store
}

// CreateProposalBlock calls state.MakeBlock with evidence from the evpool
// and txs from the mempool. The max bytes must be big enough to fit the
// commit. Pending evidence takes up to ConsensusParams.Evidence.MaxBytes.
// The rest is given to txs, up to the max gas.
func (blockExec *BlockExecutor) CreateProposalBlock(
	height int64,
	state State,
	commit *types.Commit,
	proposerAddr []byte,
) (*types.Block, *types.PartSet) {

	maxBytes := state.ConsensusParams.Block.MaxBytes
	maxGas := state.ConsensusParams.Block.MaxGas

	evidence, evSize := blockExec.evpool.PendingEvidence(state.ConsensusParams.Evidence.MaxBytes)

	// Fetch a limited amount of valid txs
	maxDataBytes := types.MaxDataBytes(maxBytes, evSize, state.Validators.Size())

	txs := blockExec.mempool.ReapMaxBytesMaxGas(maxDataBytes, maxGas)

	return state.MakeBlock(height, txs, commit, evidence, proposerAddr)
}

// ValidateBlock validates the given block against the given state.
// If the block is invalid, it returns an error.
// Validation does not mutate state and uses only the given state.
func (blockExec *BlockExecutor) ValidateBlock(state State, block *types.Block) error {
	return validateBlock(state, block)
}

// ApplyBlock validates the block against the state, executes it against the
// app, commits the app, updates the mempool and evidence pool, and saves the
// new state.
// It's the only function that needs to be called from outside this package
// to process and commit an entire block.
// It takes a blockID to avoid recomputing the parts hash.
func (blockExec *BlockExecutor) ApplyBlock(
	state State, blockID types.BlockID, block *types.Block,
) (State, error) {

	if err := validateBlock(state, block); err != nil {
		return state, ErrInvalidBlock(err)
	}

	startTime := time.Now().UnixNano()
	deliverTxResponses := blockExec.execBlockOnApp(block)
	endTime := time.Now().UnixNano()
	blockExec.logger.Debug("executed block against app",
		"height", block.Height,
		"num_txs", len(block.Txs),
		"elapsed_ms", float64(endTime-startTime)/1000000,
	)

	// Commit the app state to get the new app hash.
	commitRes := blockExec.app.Commit()
	appHash := commitRes.AppHash

	// Update the state with the block and responses.
	state, err := updateState(state, blockID, &block.Header, deliverTxResponses)
	if err != nil {
		return state, fmt.Errorf("commit failed for application: %v", err)
	}
	state.AppHash = appHash

	// Lock mempool, update mempool.
	blockExec.mempool.Lock()
	err = blockExec.mempool.Update(block.Height, block.Txs)
	blockExec.mempool.Unlock()
	if err != nil {
		return state, err
	}

	// Update evidence pool with latest state.
	blockExec.evpool.Update(block.Height, block.Time, block.Evidence.Evidence)

	if err := blockExec.store.Save(state); err != nil {
		return state, err
	}

	return state, nil
}

// Executes block's transactions on the application one by one. A non-zero
// response code is recorded in the results, never fatal: the chain has
// already agreed on the order.
func (blockExec *BlockExecutor) execBlockOnApp(block *types.Block) []abci.ResponseDeliverTx {
	responses := make([]abci.ResponseDeliverTx, len(block.Txs))
	validTxs, invalidTxs := 0, 0
	for i, tx := range block.Txs {
		responses[i] = blockExec.app.DeliverTx(abci.RequestDeliverTx{Tx: tx})
		if responses[i].IsOK() {
			validTxs++
		} else {
			blockExec.logger.Debug("invalid tx", "code", responses[i].Code, "log", responses[i].Log)
			invalidTxs++
		}
	}
	blockExec.logger.Info("executed block", "height", block.Height, "num_valid_txs", validTxs, "num_invalid_txs", invalidTxs)
	return responses
}

// updateState returns a new State updated according to the header and
// responses.
func updateState(
	state State,
	blockID types.BlockID,
	header *types.Header,
	deliverTxResponses []abci.ResponseDeliverTx,
) (State, error) {

	// Copy the valset so we can update s.LastValidators and s.Validators.
	nValSet := state.NextValidators.Copy()

	// Update validator proposer priority and set state variables.
	nValSet.IncrementProposerPriority(1)

	return State{
		Version:                     state.Version,
		ChainID:                     state.ChainID,
		InitialHeight:               state.InitialHeight,
		LastBlockHeight:             header.Height,
		LastBlockID:                 blockID,
		LastBlockTime:               header.Time,
		NextValidators:              nValSet,
		Validators:                  state.NextValidators.Copy(),
		LastValidators:              state.Validators.Copy(),
		LastHeightValidatorsChanged: state.LastHeightValidatorsChanged,
		ConsensusParams:             state.ConsensusParams,
		LastResultsHash:             resultsHash(deliverTxResponses),
		AppHash:                     nil,
	}, nil
}

// resultsHash computes the merkle root over the deterministic encodings of
// the DeliverTx responses.
func resultsHash(responses []abci.ResponseDeliverTx) []byte {
	bzs := make([][]byte, len(responses))
	for i, res := range responses {
		bz, err := tmjson.Marshal(struct {
			Code uint32 `json:"code"`
		}{Code: res.Code})
		if err != nil {
			panic(err)
		}
		bzs[i] = bz
	}
	return merkle.HashFromByteSlices(bzs)
}
