package types

// Reserved event types (alphabetically sorted).
const (
	EventCompleteProposal = "CompleteProposal"
	EventLock             = "Lock"
	EventNewBlock         = "NewBlock"
	EventNewRound         = "NewRound"
	EventNewRoundStep     = "NewRoundStep"
	EventPolka            = "Polka"
	EventRelock           = "Relock"
	EventTimeoutPropose   = "TimeoutPropose"
	EventTimeoutWait      = "TimeoutWait"
	EventTx               = "Tx"
	EventUnlock           = "Unlock"
	EventValidBlock       = "ValidBlock"
	EventVote             = "Vote"
)

// PeerStateKey is the key under which the consensus reactor stores its
// per-peer state in the peer's kv store; the mempool reactor reads it to
// learn the peer's height.
const PeerStateKey = "ConsensusReactor.peerState"
