package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrTxInCache is returned to the client if we saw tx earlier
	ErrTxInCache = errors.New("tx already exists in cache")

	// ErrTxInQueue is returned when the same tx id is already queued
	ErrTxInQueue = errors.New("tx already exists in queue")
)

// ErrTxTooLarge defines an error when a transaction is too big to be sent in
// a message to other peers.
type ErrTxTooLarge struct {
	Max    int64
	Actual int64
}

func (e ErrTxTooLarge) Error() string {
	return fmt.Sprintf("Tx too large. Max size is %d, but got %d", e.Max, e.Actual)
}

// ErrMempoolIsFull defines an error where there are too many transactions in
// the mempool, or their total byte size exceeds the budget.
type ErrMempoolIsFull struct {
	NumTxs      int
	MaxTxs      int
	TxsBytes    int64
	MaxTxsBytes int64
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf(
		"mempool is full: number of txs %d (max: %d), total txs bytes %d (max: %d)",
		e.NumTxs, e.MaxTxs,
		e.TxsBytes, e.MaxTxsBytes)
}

// ErrTxCheckFailed is returned when the application rejects a transaction
// in CheckTx.
type ErrTxCheckFailed struct {
	Code uint32
	Log  string
}

func (e ErrTxCheckFailed) Error() string {
	return fmt.Sprintf("tx check failed: code %d, log: %s", e.Code, e.Log)
}

// ErrPreCheck defines an error where a transaction fails the pre-check.
type ErrPreCheck struct {
	Reason error
}

func (e ErrPreCheck) Error() string {
	return e.Reason.Error()
}

// IsPreCheckError returns true if err is due to pre check failure.
func IsPreCheckError(err error) bool {
	var e ErrPreCheck
	return errors.As(err, &e)
}
