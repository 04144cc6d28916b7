package consensus

import (
	jsoniter "github.com/json-iterator/go"
	"time"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		Height:          0,
		Round:           0,
		Step:            "",
		StartTime:       time.Time{},
		IsProposer:      false,
		ProposerAddress: "",
	}
}

// consensusMetric is the jsoniter-rendered snapshot served on the rpc
// metrics route.
type consensusMetric struct {
	Height    int64     `json:"height"`
	Round     int32     `json:"round"`
	Step      string    `json:"step"`
	StartTime time.Time `json:"start_time"`

	ReceivedProposal bool `json:"received_proposal"`

	IsProposer      bool   `json:"is_proposer"`
	ProposerAddress string `json:"proposer_address"`
}

func (cm *consensusMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

// MetricSnapshot renders the live round state for the metrics registry.
func (cs *State) MetricSnapshot() string {
	rs := cs.GetRoundState()
	cm := newConsensusMetric()
	cm.Height = rs.Height
	cm.Round = rs.Round
	cm.Step = rs.Step.String()
	cm.StartTime = rs.StartTime
	cm.ReceivedProposal = rs.Proposal != nil
	if proposer := rs.Validators.GetProposer(); proposer != nil {
		cm.ProposerAddress = proposer.Address.String()
		if cs.privValidatorPubKey != nil {
			cm.IsProposer = proposer.Address.String() == cs.privValidatorPubKey.Address().String()
		}
	}
	return cm.JSONString()
}

// JSONString implements the metric item interface of libs/metric.
func (cs *State) JSONString() string {
	return cs.MetricSnapshot()
}
