package rpc

import (
	jsoniter "github.com/json-iterator/go"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

// ResultDumpConsensusState is the live round state dump.
type ResultDumpConsensusState struct {
	RoundState jsoniter.RawMessage `json:"round_state"`
}

// DumpConsensusState dumps the internal consensus round state.
func DumpConsensusState(ctx *rpctypes.Context) (*ResultDumpConsensusState, error) {
	rs := env.Consensus.GetRoundState()
	bz, err := json.Marshal(rs.RoundStateSimple())
	if err != nil {
		return nil, err
	}
	return &ResultDumpConsensusState{RoundState: bz}, nil
}
