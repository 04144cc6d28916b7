// fork from github.com/tendermint/tendermint/evidence/pool.go
package evidence

import (
	"fmt"
	"time"

	"bftchain/types"

	"github.com/tendermint/tendermint/libs/log"
	tmsync "github.com/tendermint/tendermint/libs/sync"
)

// Pool maintains duplicate-vote evidence reported by the consensus until it
// is committed in a block or expires.
//
// Evidence older than MaxAgeNumBlocks AND MaxAgeDuration (both must be
// exceeded) is pruned on Update.
type Pool struct {
	logger log.Logger

	mtx      tmsync.Mutex
	pending  map[string]types.Evidence // key: hex hash
	ordered  []types.Evidence          // insertion order, for deterministic PendingEvidence
	height   int64                     // last committed height
	lastTime time.Time                 // last committed block time

	maxAgeNumBlocks int64
	maxAgeDuration  time.Duration
}

// NewPool returns an empty pool configured with the evidence params.
func NewPool(params types.EvidenceParams, logger log.Logger) *Pool {
	return &Pool{
		logger:          logger,
		pending:         make(map[string]types.Evidence),
		maxAgeNumBlocks: params.MaxAgeNumBlocks,
		maxAgeDuration:  params.MaxAgeDuration,
	}
}

// ReportConflictingVotes forms DuplicateVoteEvidence from two conflicting
// votes of one validator, as detected by the vote sets, and adds it to the
// pool. The vote set guarantees the votes conflict; malformed pairs are
// dropped.
func (evpool *Pool) ReportConflictingVotes(voteA, voteB *types.Vote, valSet *types.ValidatorSet, blockTime time.Time) {
	ev := types.NewDuplicateVoteEvidence(voteA, voteB, blockTime, valSet)
	if ev == nil {
		return
	}
	if err := evpool.AddEvidence(ev); err != nil {
		evpool.logger.Error("failed to add duplicate vote evidence", "err", err)
	}
}

// AddEvidence validates the evidence and adds it to the pending set. Adding
// already-pending evidence is a no-op.
func (evpool *Pool) AddEvidence(ev types.Evidence) error {
	if err := ev.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid evidence: %w", err)
	}

	evpool.mtx.Lock()
	defer evpool.mtx.Unlock()

	key := string(ev.Hash())
	if _, ok := evpool.pending[key]; ok {
		return nil
	}
	if evpool.isExpired(ev.Height(), ev.Time()) {
		return fmt.Errorf("evidence from height %d (%v) is too old", ev.Height(), ev.Time())
	}

	evpool.pending[key] = ev
	evpool.ordered = append(evpool.ordered, ev)
	evpool.logger.Info("added evidence to the pool", "ev", ev)
	return nil
}

// PendingEvidence returns up to maxBytes of pending evidence, in insertion
// order, plus the total byte size of what is returned.
func (evpool *Pool) PendingEvidence(maxBytes int64) ([]types.Evidence, int64) {
	evpool.mtx.Lock()
	defer evpool.mtx.Unlock()

	var (
		evs  []types.Evidence
		size int64
	)
	for _, ev := range evpool.ordered {
		evSize := int64(len(ev.Bytes()))
		if maxBytes >= 0 && size+evSize > maxBytes {
			break
		}
		evs = append(evs, ev)
		size += evSize
	}
	return evs, size
}

// Update removes committed and expired evidence after a block commit.
func (evpool *Pool) Update(height int64, blockTime time.Time, committed []types.Evidence) {
	evpool.mtx.Lock()
	defer evpool.mtx.Unlock()

	evpool.height = height
	evpool.lastTime = blockTime

	for _, ev := range committed {
		delete(evpool.pending, string(ev.Hash()))
	}

	kept := evpool.ordered[:0]
	for _, ev := range evpool.ordered {
		key := string(ev.Hash())
		if _, ok := evpool.pending[key]; !ok {
			continue // committed
		}
		if evpool.isExpired(ev.Height(), ev.Time()) {
			delete(evpool.pending, key)
			continue
		}
		kept = append(kept, ev)
	}
	evpool.ordered = kept
}

// Size returns the number of pending evidence items.
func (evpool *Pool) Size() int {
	evpool.mtx.Lock()
	defer evpool.mtx.Unlock()
	return len(evpool.pending)
}

// isExpired reports whether the evidence is outside both the block and the
// time windows. Callers hold the mutex.
func (evpool *Pool) isExpired(height int64, t time.Time) bool {
	var (
		ageDuration  = evpool.lastTime.Sub(t)
		ageNumBlocks = evpool.height - height
	)
	return ageNumBlocks > evpool.maxAgeNumBlocks &&
		ageDuration > evpool.maxAgeDuration
}
