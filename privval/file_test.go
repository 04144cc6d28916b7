package privval

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"bftchain/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"
)

func tempFiles(t *testing.T) (keyFile, stateFile string, cleanup func()) {
	t.Helper()
	keyF, err := ioutil.TempFile("", "priv_validator_key_")
	require.NoError(t, err)
	stateF, err := ioutil.TempFile("", "priv_validator_state_")
	require.NoError(t, err)
	require.NoError(t, keyF.Close())
	require.NoError(t, stateF.Close())
	return keyF.Name(), stateF.Name(), func() {
		os.Remove(keyF.Name())
		os.Remove(stateF.Name())
	}
}

func TestGenLoadValidator(t *testing.T) {
	keyFile, stateFile, cleanup := tempFiles(t)
	defer cleanup()

	privVal := GenFilePV(keyFile, stateFile)

	height := int64(100)
	privVal.LastSignState.Height = height
	privVal.Save()
	addr := privVal.GetAddress()

	privVal = LoadFilePV(keyFile, stateFile)
	assert.Equal(t, addr, privVal.GetAddress(), "expected privval addr to be the same")
	assert.Equal(t, height, privVal.LastSignState.Height, "expected privval.LastHeight to have been saved")
}

func TestLoadOrGenValidator(t *testing.T) {
	keyFile, stateFile, cleanup := tempFiles(t)
	defer cleanup()
	// the temp files exist but empty; remove so LoadOrGen generates
	os.Remove(keyFile)
	os.Remove(stateFile)

	privVal := LoadOrGenFilePV(keyFile, stateFile)
	addr := privVal.GetAddress()
	privVal = LoadOrGenFilePV(keyFile, stateFile)
	assert.Equal(t, addr, privVal.GetAddress(), "expected privval addr to be the same")
}

func TestUnmarshalValidatorKey(t *testing.T) {
	privKey := ed25519.GenPrivKey()
	pubKey := privKey.PubKey()
	pv := NewFilePV(privKey, "", "")

	bz, err := tmjson.Marshal(pv.Key)
	require.NoError(t, err)

	var decoded FilePVKey
	require.NoError(t, tmjson.Unmarshal(bz, &decoded))
	assert.Equal(t, pubKey, decoded.PubKey)
	assert.Equal(t, privKey, decoded.PrivKey)
}

func TestSignVote(t *testing.T) {
	keyFile, stateFile, cleanup := tempFiles(t)
	defer cleanup()

	privVal := GenFilePV(keyFile, stateFile)

	randbytes := tmrand.Bytes(32)
	block1 := types.BlockID{Hash: randbytes, PartSetHeader: types.PartSetHeader{Total: 5, Hash: randbytes}}
	block2 := types.BlockID{
		Hash:          tmrand.Bytes(32),
		PartSetHeader: types.PartSetHeader{Total: 10, Hash: tmrand.Bytes(32)},
	}

	height, round := int64(10), int32(1)
	voteType := types.PrecommitType

	// sign a vote for first time
	vote := newVote(privVal.GetAddress(), 0, height, round, voteType, block1)
	err := privVal.SignVote("mychainid", vote)
	require.NoError(t, err, "expected no error signing vote")

	// try to sign the same vote again; should be fine
	err = privVal.SignVote("mychainid", vote)
	require.NoError(t, err, "expected no error on signing same vote")

	// now try some bad votes
	cases := []*types.Vote{
		newVote(privVal.GetAddress(), 0, height, round-1, voteType, block1),   // round regression
		newVote(privVal.GetAddress(), 0, height-1, round, voteType, block1),   // height regression
		newVote(privVal.GetAddress(), 0, height-2, round+4, voteType, block1), // height regression and different round
		newVote(privVal.GetAddress(), 0, height, round, voteType, block2),     // different block at same h/r
	}

	for _, c := range cases {
		err = privVal.SignVote("mychainid", c)
		assert.Error(t, err, "expected error on signing conflicting vote")
	}

	// try signing a vote with a different time stamp
	sig := vote.Signature
	vote.Timestamp = vote.Timestamp.Add(time.Duration(1000))
	err = privVal.SignVote("mychainid", vote)
	require.NoError(t, err)
	assert.Equal(t, sig, vote.Signature)
}

func TestSignProposal(t *testing.T) {
	keyFile, stateFile, cleanup := tempFiles(t)
	defer cleanup()

	privVal := GenFilePV(keyFile, stateFile)

	randbytes := tmrand.Bytes(32)
	block1 := types.BlockID{Hash: randbytes, PartSetHeader: types.PartSetHeader{Total: 5, Hash: randbytes}}
	height, round := int64(10), int32(1)

	// sign a proposal for first time
	proposal := newProposal(height, round, block1)
	err := privVal.SignProposal("mychainid", proposal)
	require.NoError(t, err, "expected no error signing proposal")

	// try to sign the same proposal again; should be fine
	err = privVal.SignProposal("mychainid", proposal)
	require.NoError(t, err, "expected no error on signing same proposal")

	// now try some bad proposals
	cases := []*types.Proposal{
		newProposal(height, round-1, block1),   // round regression
		newProposal(height-1, round, block1),   // height regression
		newProposal(height-2, round+4, block1), // height regression and different round
	}

	for _, c := range cases {
		err = privVal.SignProposal("mychainid", c)
		assert.Error(t, err, "expected error on signing conflicting proposal")
	}
}

func newVote(addr types.Address, idx int32, height int64, round int32,
	typ types.SignedMsgType, blockID types.BlockID) *types.Vote {
	return &types.Vote{
		ValidatorAddress: addr,
		ValidatorIndex:   idx,
		Height:           height,
		Round:            round,
		Type:             typ,
		Timestamp:        tmtime.Now(),
		BlockID:          blockID,
	}
}

func newProposal(height int64, round int32, blockID types.BlockID) *types.Proposal {
	return &types.Proposal{
		Type:      types.ProposalType,
		Height:    height,
		Round:     round,
		BlockID:   blockID,
		Timestamp: tmtime.Now(),
	}
}
