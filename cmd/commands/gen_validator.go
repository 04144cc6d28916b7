package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"bftchain/privval"

	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// GenValidatorCmd generates a new consensus validator keypair and prints it
// as JSON.
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	Run:     genValidator,
}

func genValidator(cmd *cobra.Command, args []string) {
	privValKeyFile := config.PrivValidatorKeyFile()
	privValStateFile := config.PrivValidatorStateFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return
	}

	pv := privval.GenFilePV(privValKeyFile, privValStateFile)
	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		panic(err)
	}
	pv.Save()

	fmt.Printf(`%v
`, string(jsbz))
}
