package rpc

import rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpcserver.RPCFunc{
	"status":               rpcserver.NewRPCFunc(Status, ""),
	"block":                rpcserver.NewRPCFunc(Block, "height"),
	"commit":               rpcserver.NewRPCFunc(Commit, "height"),
	"broadcast_tx_async":   rpcserver.NewRPCFunc(BroadcastTxAsync, "tx"),
	"broadcast_tx_sync":    rpcserver.NewRPCFunc(BroadcastTxSync, "tx"),
	"unconfirmed_txs":      rpcserver.NewRPCFunc(UnconfirmedTxs, "limit"),
	"dump_consensus_state": rpcserver.NewRPCFunc(DumpConsensusState, ""),
	"metrics":              rpcserver.NewRPCFunc(JSONMetrics, "label"),
}
