// fork from chain node wiring in github.com/tendermint/tendermint/node/node.go
package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"bftchain/abci"
	"bftchain/consensus"
	"bftchain/evidence"
	"bftchain/libs/metric"
	"bftchain/mempool"
	"bftchain/privval"
	"bftchain/rpc"
	sm "bftchain/state"
	"bftchain/store"
	"bftchain/types"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	"github.com/tendermint/tendermint/version"
	tmdb "github.com/tendermint/tm-db"
)

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node is the highest level interface to a full node.
// It includes all configuration information and running services.
type Node struct {
	service.BaseService

	// config
	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	app              abci.Application
	stateStore       sm.Store
	blockStore       *store.BlockStore
	mempool          *mempool.CListMempool
	mempoolReactor   *mempool.Reactor
	evidencePool     *evidence.Pool
	consensusState   *consensus.State
	consensusReactor *consensus.Reactor
	metricSet        *metric.MetricSet
	rpcListeners     []net.Listener
}

// Option sets optional parameters on the Node.
type Option func(*Node)

// DefaultNewNode returns a node with the default kvstore application, the
// file priv validator and the genesis doc found in the config directory.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}

	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}

	pv := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())

	appDB, err := tmdb.NewGoLevelDB("app", config.DBDir())
	if err != nil {
		return nil, err
	}

	return NewNode(config, genDoc, pv, nodeKey,
		abci.NewKVStoreApplication(appDB), logger)
}

// NewNode wires the stores, the mempool, the evidence pool and the
// consensus and returns a ready to start node.
func NewNode(
	config *cfg.Config,
	genDoc *types.GenesisDoc,
	pv types.PrivValidator,
	nodeKey *p2p.NodeKey,
	app abci.Application,
	logger log.Logger,
	options ...Option,
) (*Node, error) {

	stateDB, err := tmdb.NewGoLevelDB("state", config.DBDir())
	if err != nil {
		return nil, err
	}
	blockDB, err := tmdb.NewGoLevelDB("blockstore", config.DBDir())
	if err != nil {
		return nil, err
	}

	return makeNode(config, genDoc, pv, nodeKey, app,
		sm.NewStore(stateDB), store.NewBlockStore(blockDB), logger, options...)
}

// NewNodeWithDBs is NewNode with caller-provided databases; tests pass
// in-memory ones.
func NewNodeWithDBs(
	config *cfg.Config,
	genDoc *types.GenesisDoc,
	pv types.PrivValidator,
	nodeKey *p2p.NodeKey,
	app abci.Application,
	stateDB, blockDB tmdb.DB,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	return makeNode(config, genDoc, pv, nodeKey, app,
		sm.NewStore(stateDB), store.NewBlockStore(blockDB), logger, options...)
}

func makeNode(
	config *cfg.Config,
	genDoc *types.GenesisDoc,
	pv types.PrivValidator,
	nodeKey *p2p.NodeKey,
	app abci.Application,
	stateStore sm.Store,
	blockStore *store.BlockStore,
	logger log.Logger,
	options ...Option,
) (*Node, error) {

	state, err := stateStore.Load()
	if err != nil {
		return nil, err
	}
	if state.IsEmpty() {
		state, err = sm.MakeGenesisState(genDoc)
		if err != nil {
			return nil, err
		}
		app.InitChain(abci.RequestInitChain{ChainID: genDoc.ChainID, AppState: genDoc.AppState})
		if err := stateStore.Save(state); err != nil {
			return nil, err
		}
	}

	// mempool
	mem := mempool.NewCListMempool(
		config.Mempool,
		app,
		blockStore.Height(),
		mempool.WithPreCheck(mempool.PreCheckMaxBytes(state.ConsensusParams.Block.MaxBytes)),
	)
	mem.SetLogger(logger.With("module", "mempool"))
	if config.Consensus.WaitForTxs() {
		mem.EnableTxsAvailable()
	}
	mempoolReactor := mempool.NewReactor(config.Mempool, mem)
	mempoolReactor.SetLogger(logger.With("module", "mempool"))

	// evidence
	evidencePool := evidence.NewPool(state.ConsensusParams.Evidence, logger.With("module", "evidence"))

	// consensus
	blockExec := sm.NewBlockExecutor(stateStore, logger.With("module", "state"), app, mem, evidencePool)
	consensusState := consensus.NewState(
		config.Consensus,
		state.Copy(),
		blockExec,
		blockStore,
		consensus.WithEvidencePool(evidencePool),
		consensus.WithTxNotifier(mem),
	)
	consensusState.SetLogger(logger.With("module", "consensus"))
	if pv != nil {
		consensusState.SetPrivValidator(pv)
	}
	consensusReactor := consensus.NewReactor(consensusState)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	// metrics
	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("consensus", consensusState); err != nil {
		return nil, err
	}

	// setup node identity
	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc.ChainID)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeInfo, nodeKey)

	// Setup Switch.
	p2pLogger := logger.With("module", "p2p")
	sw := createSwitch(
		config, transport, mempoolReactor, consensusReactor, nodeInfo, nodeKey, p2pLogger,
	)

	node := &Node{
		config:     config,
		genesisDoc: genDoc,

		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		app:              app,
		stateStore:       stateStore,
		blockStore:       blockStore,
		mempool:          mem,
		mempoolReactor:   mempoolReactor,
		evidencePool:     evidencePool,
		consensusState:   consensusState,
		consensusReactor: consensusReactor,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	for _, option := range options {
		option(node)
	}

	return node, nil
}

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)
	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	mempoolReactor *mempool.Reactor,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("MEMPOOL", mempoolReactor)
	sw.AddReactor("CONSENSUS", consensusReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	chainID string,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			8, // global
			11,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       chainID,
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			consensus.StateChannel,
			consensus.DataChannel,
			consensus.VoteChannel,
			consensus.VoteSetBitsChannel,
			mempool.MempoolChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress

	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}

	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

// Switch returns the p2p switch of the node.
func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

// NodeInfo returns this node's identity as shared on the network.
func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

// ConsensusState returns the consensus state machine.
func (n *Node) ConsensusState() *consensus.State {
	return n.consensusState
}

// Mempool returns the node's mempool.
func (n *Node) Mempool() *mempool.CListMempool {
	return n.mempool
}

// BlockStore returns the node's block store.
func (n *Node) BlockStore() *store.BlockStore {
	return n.blockStore
}

// GenesisDoc returns the genesis document of the chain.
func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genesisDoc
}

// OnStart starts the transport, the switch (which starts the reactors) and
// the rpc server.
func (n *Node) OnStart() error {
	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// Start the RPC server before the P2P server so we can eg. receive
	// transactions for the first block.
	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	// start the Switch (and with it, all the reactors)
	err = n.sw.Start()
	if err != nil {
		return err
	}

	// dial the persistent peers
	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return nil
}

// OnStop stops all running services, the switch and the transport.
func (n *Node) OnStop() {
	n.BaseService.OnStop()

	for _, l := range n.rpcListeners {
		if err := l.Close(); err != nil {
			n.Logger.Error("error closing rpc listener", "err", err)
		}
	}

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("error stopping switch", "err", err)
	}

	if err := n.transport.Close(); err != nil {
		n.Logger.Error("error closing transport", "err", err)
	}
}

func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:    n.mempool,
		Consensus:  n.consensusState,
		BlockStore: n.blockStore,
		StateStore: n.stateStore,
		MetricSet:  n.metricSet,
	})

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	listeners := make([]net.Listener, 0, len(listenAddrs))
	rpcLogger := n.Logger.With("module", "rpc-server")

	for _, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		config := rpcserver.DefaultConfig()
		config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				rpcLogger.Error("rpc server stopped", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}

	return listeners, nil
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
