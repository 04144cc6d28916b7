package consensus

import (
	"fmt"
	"testing"
	"time"

	"bftchain/abci"
	cstypes "bftchain/consensus/types"
	"bftchain/mempool"
	sm "bftchain/state"
	"bftchain/store"
	"bftchain/types"

	"github.com/go-kit/kit/log/term"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	tmtime "github.com/tendermint/tendermint/types/time"
	tmdb "github.com/tendermint/tm-db"
)

const (
	testChainID = "t"

	ensureTimeout = 2 * time.Second
)

// consensusLogger is a colorful testing logger: entries tagged with a
// validator key are highlighted.
func consensusLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "validator" {
				return term.FgBgColor{Fg: term.Green}
			}
		}
		return term.FgBgColor{}
	}).With("module", "consensus")
}

// randState returns a new consensus state with nValidators equally powered
// validators, signing with privVals[0] by default.
func randState(nValidators int) (*State, []types.PrivValidator) {
	valSet, privVals := types.RandValidatorSet(nValidators, 10)

	genVals := make([]types.GenesisValidator, nValidators)
	for i, val := range valSet.Validators {
		genVals[i] = types.GenesisValidator{
			Address: val.Address,
			PubKey:  val.PubKey,
			Power:   val.VotingPower,
			Name:    fmt.Sprintf("val-%d", i),
		}
	}
	genDoc := &types.GenesisDoc{
		GenesisTime:     tmtime.Now().Add(-1 * time.Minute),
		ChainID:         testChainID,
		InitialHeight:   1,
		ConsensusParams: types.DefaultConsensusParams(),
		Validators:      genVals,
	}
	state, err := sm.MakeGenesisState(genDoc)
	if err != nil {
		panic(err)
	}

	config := cfg.TestConfig()

	app := abci.NewInMemoryKVStoreApplication()
	mem := mempool.NewCListMempool(config.Mempool, app, 0)
	mem.SetLogger(log.TestingLogger().With("module", "mempool"))

	stateStore := sm.NewStore(tmdb.NewMemDB())
	blockStore := store.NewBlockStore(tmdb.NewMemDB())
	blockExec := sm.NewBlockExecutor(stateStore, log.TestingLogger(), app, mem, sm.EmptyEvidencePool{})

	cs := NewState(config.Consensus, state, blockExec, blockStore)
	cs.SetLogger(consensusLogger())
	cs.SetPrivValidator(privVals[0])

	return cs, privVals
}

// startTestRound starts the receive routine and enters the given round.
func startTestRound(cs *State, height int64, round int32) {
	cs.enterNewRound(height, round)
	cs.startRoutines(0)
}

// subscribe registers a buffered listener on the internal event switch.
func subscribe(evsw events.EventSwitch, event string) <-chan events.EventData {
	ch := make(chan events.EventData, 100)
	if err := evsw.AddListenerForEvent("test-"+event, event, func(data events.EventData) {
		ch <- data
	}); err != nil {
		panic(err)
	}
	return ch
}

func ensureNewEvent(t *testing.T, ch <-chan events.EventData, errorMessage string) events.EventData {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(ensureTimeout):
		t.Fatal(errorMessage)
		return nil
	}
}

func ensureNewRound(t *testing.T, roundCh <-chan events.EventData, height int64, round int32) {
	t.Helper()
	for {
		data := ensureNewEvent(t, roundCh, fmt.Sprintf("timeout waiting for NewRound %d/%d", height, round))
		rs := data.(*cstypes.RoundState)
		if rs.Height == height && rs.Round == round {
			return
		}
		if rs.Height > height || (rs.Height == height && rs.Round > round) {
			t.Fatalf("new round %d/%d passed expected %d/%d", rs.Height, rs.Round, height, round)
		}
	}
}

func ensureVote(t *testing.T, voteCh <-chan events.EventData, height int64, round int32,
	voteType types.SignedMsgType) *types.Vote {
	t.Helper()
	for {
		data := ensureNewEvent(t, voteCh, fmt.Sprintf("timeout waiting for %v at %d/%d", voteType, height, round))
		vote := data.(*types.Vote)
		if vote.Height == height && vote.Round == round && vote.Type == voteType {
			return vote
		}
	}
}

// signVote builds and signs a vote for the given validator index.
func signVote(
	privVal types.PrivValidator,
	valIndex int32,
	voteType types.SignedMsgType,
	height int64,
	round int32,
	blockID types.BlockID,
) *types.Vote {
	pubKey, err := privVal.GetPubKey()
	if err != nil {
		panic(err)
	}
	vote := &types.Vote{
		Type:             voteType,
		Height:           height,
		Round:            round,
		BlockID:          blockID,
		Timestamp:        tmtime.Now(),
		ValidatorAddress: pubKey.Address(),
		ValidatorIndex:   valIndex,
	}
	if err := privVal.SignVote(testChainID, vote); err != nil {
		panic(err)
	}
	return vote
}

// signAddVotes signs votes for all the given validator indices and feeds
// them to the consensus as if they arrived from peers.
func signAddVotes(
	cs *State,
	privVals []types.PrivValidator,
	indices []int32,
	voteType types.SignedMsgType,
	height int64,
	round int32,
	blockID types.BlockID,
) {
	for _, idx := range indices {
		vote := signVote(privVals[idx], idx, voteType, height, round, blockID)
		cs.peerMsgQueue <- msgInfo{&VoteMessage{vote}, "peer"}
	}
}
