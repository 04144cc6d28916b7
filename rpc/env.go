package rpc

import (
	"bftchain/consensus"
	"bftchain/libs/metric"
	"bftchain/mempool"
	sm "bftchain/state"
	"bftchain/store"

	jsoniter "github.com/json-iterator/go"
)

var (
	env  *Environment
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// SetEnvironment installs the handler dependencies; called once by the node
// before the rpc server starts.
func SetEnvironment(e *Environment) {
	env = e
}

// Environment carries everything the rpc handlers read.
type Environment struct {
	Mempool    mempool.Mempool
	Consensus  *consensus.State
	BlockStore *store.BlockStore
	StateStore sm.Store

	MetricSet *metric.MetricSet
}
