package types

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
)

func newValidator(secret []byte, power int64) *Validator {
	return NewValidator(ed25519.GenPrivKeyFromSecret(secret).PubKey(), power)
}

func TestValidatorSetBasic(t *testing.T) {
	// empty or nil validator lists are allowed,
	// but attempting to IncrementProposerPriority on them will panic.
	vset := NewValidatorSet([]*Validator{})
	assert.Panics(t, func() { vset.IncrementProposerPriority(1) })

	vset = NewValidatorSet(nil)
	assert.Panics(t, func() { vset.IncrementProposerPriority(1) })

	assert.EqualValues(t, vset, vset.Copy())
	assert.False(t, vset.HasAddress([]byte("some val")))
	idx, val := vset.GetByAddress([]byte("some val"))
	assert.EqualValues(t, -1, idx)
	assert.Nil(t, val)
	addr, val := vset.GetByIndex(-100)
	assert.Nil(t, addr)
	assert.Nil(t, val)
	addr, val = vset.GetByIndex(0)
	assert.Nil(t, addr)
	assert.Nil(t, val)
	addr, val = vset.GetByIndex(100)
	assert.Nil(t, addr)
	assert.Nil(t, val)
	assert.Zero(t, vset.Size())
	assert.Equal(t, int64(0), vset.TotalVotingPower())
	assert.Nil(t, vset.GetProposer())

	// add
	val = newValidator([]byte("first"), 10)
	require.NoError(t, vset.UpdateWithChangeSet([]*Validator{val}))

	assert.True(t, vset.HasAddress(val.Address))
	idx, _ = vset.GetByAddress(val.Address)
	assert.EqualValues(t, 0, idx)
	addr, _ = vset.GetByIndex(0)
	assert.Equal(t, []byte(val.Address), addr)
	assert.Equal(t, 1, vset.Size())
	assert.Equal(t, val.VotingPower, vset.TotalVotingPower())

	// update
	val = newValidator([]byte("first"), 20)
	require.NoError(t, vset.UpdateWithChangeSet([]*Validator{val}))
	_, val = vset.GetByAddress(val.Address)
	assert.Equal(t, int64(20), val.VotingPower)
}

func TestValidatorSetTotalVotingPower(t *testing.T) {
	vset := NewValidatorSet([]*Validator{
		newValidator([]byte("v1"), 10),
		newValidator([]byte("v2"), 20),
		newValidator([]byte("v3"), 30),
	})
	assert.Equal(t, int64(60), vset.TotalVotingPower())
}

func TestProposerSelection(t *testing.T) {
	vset := NewValidatorSet([]*Validator{
		newValidator([]byte("foo"), 1000),
		newValidator([]byte("bar"), 300),
		newValidator([]byte("baz"), 330),
	})
	var proposers []string

	for i := 0; i < 99; i++ {
		val := vset.GetProposer()
		proposers = append(proposers, string(val.Address))
		vset.IncrementProposerPriority(1)
	}

	// the total number of times each validator proposes is proportional to
	// its voting power
	counts := make(map[string]int)
	for _, p := range proposers {
		counts[p]++
	}
	var foo, bar, baz int
	for _, v := range vset.Validators {
		switch v.VotingPower {
		case 1000:
			foo = counts[string(v.Address)]
		case 300:
			bar = counts[string(v.Address)]
		case 330:
			baz = counts[string(v.Address)]
		}
	}
	assert.InDelta(t, 60, foo, 5)
	assert.InDelta(t, 18, bar, 5)
	assert.InDelta(t, 20, baz, 5)
}

func TestProposerSelectionRoundRobinEqualPower(t *testing.T) {
	vset := NewValidatorSet([]*Validator{
		newValidator([]byte("a"), 10),
		newValidator([]byte("b"), 10),
		newValidator([]byte("c"), 10),
	})

	// with equal power the proposer rotates round-robin, each validator
	// exactly once per 3 increments
	seen := make(map[string]int)
	for i := 0; i < 9; i++ {
		seen[string(vset.GetProposer().Address)]++
		vset.IncrementProposerPriority(1)
	}
	for _, v := range vset.Validators {
		assert.Equal(t, 3, seen[string(v.Address)])
	}
}

func TestProposerPriorityCentering(t *testing.T) {
	vset := NewValidatorSet([]*Validator{
		newValidator([]byte("a"), 10),
		newValidator([]byte("b"), 20),
		newValidator([]byte("c"), 30),
	})

	for i := 0; i < 100; i++ {
		vset.IncrementProposerPriority(1)

		// priorities stay within the window |priority| <= 2 * totalPower
		diffMax := PriorityWindowSizeFactor * vset.TotalVotingPower()
		for _, v := range vset.Validators {
			assert.True(t, v.ProposerPriority <= diffMax && v.ProposerPriority >= -diffMax,
				"priority %d outside window %d", v.ProposerPriority, diffMax)
		}
	}
}

func TestProposerTieBreakByAddress(t *testing.T) {
	v1 := newValidator([]byte("tie1"), 10)
	v2 := newValidator([]byte("tie2"), 10)
	v1.ProposerPriority = 5
	v2.ProposerPriority = 5

	lowest := v1
	if bytes.Compare(v2.Address, v1.Address) < 0 {
		lowest = v2
	}
	assert.Equal(t, lowest, v1.CompareProposerPriority(v2))
}

func TestValidatorSetUpdateWithChangeSet(t *testing.T) {
	v1 := newValidator([]byte("v1"), 10)
	v2 := newValidator([]byte("v2"), 20)
	v3 := newValidator([]byte("v3"), 30)
	vset := NewValidatorSet([]*Validator{v1, v2, v3})

	// update v2's power, remove v1, add v4
	v4 := newValidator([]byte("v4"), 15)
	changes := []*Validator{
		newValidator([]byte("v2"), 25),
		{Address: v1.Address, PubKey: v1.PubKey, VotingPower: 0}, // deletion
		v4,
	}
	require.NoError(t, vset.UpdateWithChangeSet(changes))

	assert.Equal(t, 3, vset.Size())
	assert.False(t, vset.HasAddress(v1.Address))
	_, updated := vset.GetByAddress(v2.Address)
	assert.Equal(t, int64(25), updated.VotingPower)
	assert.True(t, vset.HasAddress(v4.Address))
	assert.Equal(t, int64(70), vset.TotalVotingPower())

	// deletions are rejected by NewValidatorSet's path
	err := vset.updateWithChangeSet([]*Validator{
		{Address: v3.Address, PubKey: v3.PubKey, VotingPower: 0},
	}, false)
	assert.Error(t, err)

	// duplicates are rejected
	err = vset.UpdateWithChangeSet([]*Validator{v4, v4})
	assert.Error(t, err)

	// emptying the set is rejected
	err = vset.UpdateWithChangeSet([]*Validator{
		{Address: v2.Address, PubKey: v2.PubKey, VotingPower: 0},
		{Address: v3.Address, PubKey: v3.PubKey, VotingPower: 0},
		{Address: v4.Address, PubKey: v4.PubKey, VotingPower: 0},
	})
	assert.Error(t, err)
}

func TestValidatorSetHash(t *testing.T) {
	vset, _ := RandValidatorSet(3, 10)
	h := vset.Hash()
	require.Len(t, h, 32)

	// hash is independent of the proposer priorities
	vset2 := vset.CopyIncrementProposerPriority(3)
	assert.Equal(t, h, vset2.Hash())
}

func TestValidatorsSortedByAddress(t *testing.T) {
	vals := []*Validator{
		newValidator([]byte("z"), 1),
		newValidator([]byte("a"), 1),
		newValidator([]byte("m"), 1),
	}
	sort.Sort(ValidatorsByAddress(vals))
	for i := 1; i < len(vals); i++ {
		assert.True(t, bytes.Compare(vals[i-1].Address, vals[i].Address) < 0)
	}
}
