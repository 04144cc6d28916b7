package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"bftchain/types"

	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/crypto"
	tmtime "github.com/tendermint/tendermint/types/time"
)

var (
	chainID      string
	validatorKey []string
	votingPower  int64
)

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "test-chain", "chain id of the new genesis file")
	GenGenesisCmd.Flags().StringArrayVar(&validatorKey, "validator", nil,
		"validator pubkey JSON (as printed by show-validator); repeat for each validator")
	GenGenesisCmd.Flags().Int64Var(&votingPower, "power", 10, "voting power assigned to every validator")
}

// GenGenesisCmd assembles a genesis file from a list of validator pubkeys.
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file for the cluster",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	if len(validatorKey) == 0 {
		return fmt.Errorf("at least one --validator pubkey is required")
	}

	valList := make([]types.GenesisValidator, len(validatorKey))
	for i, keyJSON := range validatorKey {
		var pubKey crypto.PubKey
		if err := tmjson.Unmarshal([]byte(keyJSON), &pubKey); err != nil {
			return fmt.Errorf("cannot parse validator #%d pubkey: %w", i, err)
		}
		valList[i] = types.GenesisValidator{
			Address: pubKey.Address(),
			PubKey:  pubKey,
			Power:   votingPower,
			Name:    fmt.Sprintf("validator-%v", i+1),
		}
	}

	genDoc := types.GenesisDoc{
		ChainID:         chainID,
		GenesisTime:     tmtime.Now(),
		InitialHeight:   1,
		ConsensusParams: types.DefaultConsensusParams(),
		Validators:      valList,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}

	logger.Info("Generated genesis file", "path", genFile, "validators", len(valList))
	return nil
}
