// fork from github.com/tendermint/tendermint/types/canonical.go
package types

import (
	"time"

	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Canonical* wraps the structs in types for signing purposes: the encoding
// is deterministic (fixed field order, canonical time) and zeroes the
// signature and the signer's identity, so sign bytes depend only on what
// is being voted on.

type CanonicalPartSetHeader struct {
	Total uint32 `json:"total"`
	Hash  []byte `json:"hash"`
}

type CanonicalBlockID struct {
	Hash          []byte                 `json:"hash"`
	PartSetHeader CanonicalPartSetHeader `json:"part_set_header"`
}

type CanonicalVote struct {
	Type      SignedMsgType    `json:"type"`
	Height    int64            `json:"height"`
	Round     int64            `json:"round"`
	BlockID   CanonicalBlockID `json:"block_id"`
	Timestamp time.Time        `json:"timestamp"`
	ChainID   string           `json:"chain_id"`
}

type CanonicalProposal struct {
	Type      SignedMsgType    `json:"type"`
	Height    int64            `json:"height"`
	Round     int64            `json:"round"`
	POLRound  int64            `json:"pol_round"`
	BlockID   CanonicalBlockID `json:"block_id"`
	Timestamp time.Time        `json:"timestamp"`
	ChainID   string           `json:"chain_id"`
}

func CanonicalizeBlockID(bid BlockID) CanonicalBlockID {
	return CanonicalBlockID{
		Hash: bid.Hash,
		PartSetHeader: CanonicalPartSetHeader{
			Total: bid.PartSetHeader.Total,
			Hash:  bid.PartSetHeader.Hash,
		},
	}
}

func CanonicalizeVote(chainID string, vote *Vote) CanonicalVote {
	return CanonicalVote{
		Type:      vote.Type,
		Height:    vote.Height,
		Round:     int64(vote.Round),
		BlockID:   CanonicalizeBlockID(vote.BlockID),
		Timestamp: CanonicalTime(vote.Timestamp),
		ChainID:   chainID,
	}
}

func CanonicalizeProposal(chainID string, proposal *Proposal) CanonicalProposal {
	return CanonicalProposal{
		Type:      ProposalType,
		Height:    proposal.Height,
		Round:     int64(proposal.Round),
		POLRound:  int64(proposal.POLRound),
		BlockID:   CanonicalizeBlockID(proposal.BlockID),
		Timestamp: CanonicalTime(proposal.Timestamp),
		ChainID:   chainID,
	}
}

// CanonicalTime can be used to stringify time in a canonical way.
func CanonicalTime(t time.Time) time.Time {
	// Note that sending time over wire resets monotonic part, so we
	// also do it here for consistency.
	return t.Round(0).UTC()
}

// VoteSignBytes returns the deterministic byte representation of the vote
// that is signed: the canonical vote with signature, validator address and
// validator index zeroed.
func VoteSignBytes(chainID string, vote *Vote) []byte {
	bz, err := tmjson.Marshal(CanonicalizeVote(chainID, vote))
	if err != nil {
		panic(err)
	}
	return bz
}

// ProposalSignBytes returns the deterministic byte representation of the
// proposal that is signed.
func ProposalSignBytes(chainID string, proposal *Proposal) []byte {
	bz, err := tmjson.Marshal(CanonicalizeProposal(chainID, proposal))
	if err != nil {
		panic(err)
	}
	return bz
}
