package types

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

func TestGenesisBad(t *testing.T) {
	// test some bad ones from raw json
	testCases := [][]byte{
		{},              // empty
		{1, 1, 1, 1, 1}, // junk
		[]byte(`{}`),    // empty
		[]byte(`{"chain_id":"mychain","validators":[{}]}`), // invalid validator
		// missing pub_key type
		[]byte(
			`{"validators":[{"pub_key":{"value":"AT/+aaL1eB0477Mud9JMm8Sh8BIvOYlPGC9KkIUmFaE="},"power":"10","name":""}]}`,
		),
		// missing chain_id
		[]byte(
			`{"validators":[` +
				`{"pub_key":{` +
				`"type":"tendermint/PubKeyEd25519","value":"AT/+aaL1eB0477Mud9JMm8Sh8BIvOYlPGC9KkIUmFaE="` +
				`},"power":"10","name":""}` +
				`]}`,
		),
		// too big chain_id
		[]byte(
			`{"chain_id": "Lorem ipsum dolor sit amet, consectetuer adipiscing", "validators": [` +
				`{"pub_key":{` +
				`"type":"tendermint/PubKeyEd25519","value":"AT/+aaL1eB0477Mud9JMm8Sh8BIvOYlPGC9KkIUmFaE="` +
				`},"power":"10","name":""}` +
				`]}`,
		),
		// wrong address
		[]byte(
			`{"chain_id":"mychain", "validators":[` +
				`{"address": "A", "pub_key":{` +
				`"type":"tendermint/PubKeyEd25519","value":"AT/+aaL1eB0477Mud9JMm8Sh8BIvOYlPGC9KkIUmFaE="` +
				`},"power":"10","name":""}` +
				`]}`,
		),
	}

	for _, testCase := range testCases {
		_, err := GenesisDocFromJSON(testCase)
		assert.Error(t, err, "expected error for empty genDoc json")
	}
}

func TestGenesisGood(t *testing.T) {
	// test a good one by raw json
	genDocBytes := []byte(
		`{
			"genesis_time": "0001-01-01T00:00:00Z",
			"chain_id": "test-chain-QDKdJr",
			"initial_height": "1000",
			"consensus_params": null,
			"validators": [{
				"pub_key":{"type":"tendermint/PubKeyEd25519","value":"AT/+aaL1eB0477Mud9JMm8Sh8BIvOYlPGC9KkIUmFaE="},
				"power":"10",
				"name":""
			}],
			"app_hash":"",
			"app_state":{"account_owner": "Bob"}
		}`,
	)
	_, err := GenesisDocFromJSON(genDocBytes)
	assert.NoError(t, err, "expected no error for good genDoc json")

	pubkey := ed25519.GenPrivKey().PubKey()
	// create a base gendoc from struct
	baseGenDoc := &GenesisDoc{
		ChainID:    "abc",
		Validators: []GenesisValidator{{pubkey.Address(), pubkey, 10, "myval"}},
	}
	genDocBytes, err = tmjson.Marshal(baseGenDoc)
	require.NoError(t, err)
	genDoc, err := GenesisDocFromJSON(genDocBytes)
	assert.NoError(t, err, "expected no error for valid genDoc json")

	// the consensus params are filled in with defaults
	require.NotNil(t, genDoc.ConsensusParams)
	assert.EqualValues(t, 22020096, genDoc.ConsensusParams.Block.MaxBytes)
	assert.EqualValues(t, -1, genDoc.ConsensusParams.Block.MaxGas)
	assert.Equal(t, []string{ABCIPubKeyTypeEd25519}, genDoc.ConsensusParams.Validator.PubKeyTypes)

	// genesis time is set
	assert.False(t, genDoc.GenesisTime.IsZero())
}

func TestGenesisValidation(t *testing.T) {
	pubkey := ed25519.GenPrivKey().PubKey()

	// initial_height normalization: 0 becomes 1
	genDoc := &GenesisDoc{
		ChainID:       "test",
		InitialHeight: 0,
		Validators:    []GenesisValidator{{nil, pubkey, 10, ""}},
	}
	require.NoError(t, genDoc.ValidateAndComplete())
	assert.EqualValues(t, 1, genDoc.InitialHeight)

	// the validator address is derived from the pubkey when absent
	assert.Equal(t, []byte(pubkey.Address()), []byte(genDoc.Validators[0].Address))

	// negative initial height is rejected
	genDoc = &GenesisDoc{
		ChainID:       "test",
		InitialHeight: -1,
		Validators:    []GenesisValidator{{nil, pubkey, 10, ""}},
	}
	require.Error(t, genDoc.ValidateAndComplete())

	// zero-power validators are rejected
	genDoc = &GenesisDoc{
		ChainID:    "test",
		Validators: []GenesisValidator{{nil, pubkey, 0, ""}},
	}
	require.Error(t, genDoc.ValidateAndComplete())
}

func TestGenesisSaveAs(t *testing.T) {
	tmpfile, err := ioutil.TempFile("", "genesis")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	genDoc := randomGenesisDoc()

	// save
	err = genDoc.SaveAs(tmpfile.Name())
	require.NoError(t, err)
	stat, err := tmpfile.Stat()
	require.NoError(t, err)
	if err != nil && stat.Size() <= 0 {
		t.Fatalf("SaveAs failed to write any bytes to %v", tmpfile.Name())
	}

	err = tmpfile.Close()
	require.NoError(t, err)

	// load
	genDoc2, err := GenesisDocFromFile(tmpfile.Name())
	require.NoError(t, err)
	assert.EqualValues(t, genDoc2.ChainID, genDoc.ChainID)
	assert.EqualValues(t, len(genDoc2.Validators), len(genDoc.Validators))
}

func randomGenesisDoc() *GenesisDoc {
	pubkey := ed25519.GenPrivKey().PubKey()
	return &GenesisDoc{
		ChainID:         "abc",
		InitialHeight:   1,
		Validators:      []GenesisValidator{{pubkey.Address(), pubkey, 10, "myval"}},
		ConsensusParams: DefaultConsensusParams(),
	}
}
