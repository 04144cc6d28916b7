// Package abci defines the interface between the consensus core and the
// application it drives. The core uses exactly four verbs: InitChain at
// genesis, CheckTx on mempool admission, DeliverTx for every transaction of
// a decided block, and Commit to obtain the resulting application hash.
package abci

// CodeTypeOK is the response code of a successful check/deliver.
const CodeTypeOK uint32 = 0

// Application is the interface the state executor and the mempool drive.
// Implementations must be safe for use from the consensus goroutine and the
// mempool goroutines.
type Application interface {
	InitChain(RequestInitChain) ResponseInitChain
	CheckTx(RequestCheckTx) ResponseCheckTx
	DeliverTx(RequestDeliverTx) ResponseDeliverTx
	Commit() ResponseCommit
}

type RequestInitChain struct {
	ChainID  string
	AppState []byte
}

type ResponseInitChain struct {
	AppHash []byte
}

type RequestCheckTx struct {
	Tx []byte
}

// ResponseCheckTx carries the admission verdict plus the tx metadata the
// mempool indexes on: the sender identity, its nonce and the gas bid.
type ResponseCheckTx struct {
	Code      uint32
	Sender    string
	Nonce     uint64
	GasWanted int64
	Log       string
}

type RequestDeliverTx struct {
	Tx []byte
}

type ResponseDeliverTx struct {
	Code uint32
	Log  string
}

type ResponseCommit struct {
	AppHash []byte
}

// IsOK returns true if the transaction was accepted.
func (r ResponseCheckTx) IsOK() bool {
	return r.Code == CodeTypeOK
}

// IsOK returns true if the transaction was applied.
func (r ResponseDeliverTx) IsOK() bool {
	return r.Code == CodeTypeOK
}

//---------------------------------------------------------------------------

// BaseApplication accepts everything and changes nothing. Embed it to get
// no-op defaults.
type BaseApplication struct{}

func NewBaseApplication() *BaseApplication {
	return &BaseApplication{}
}

func (BaseApplication) InitChain(req RequestInitChain) ResponseInitChain {
	return ResponseInitChain{}
}

func (BaseApplication) CheckTx(req RequestCheckTx) ResponseCheckTx {
	return ResponseCheckTx{Code: CodeTypeOK, GasWanted: 1}
}

func (BaseApplication) DeliverTx(req RequestDeliverTx) ResponseDeliverTx {
	return ResponseDeliverTx{Code: CodeTypeOK}
}

func (BaseApplication) Commit() ResponseCommit {
	return ResponseCommit{}
}

var _ Application = (*BaseApplication)(nil)
