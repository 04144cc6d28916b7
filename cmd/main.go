package main

import (
	"os"
	"path/filepath"

	cmd "bftchain/cmd/commands"
	nm "bftchain/node"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/cli"
)

func main() {
	cfg.DefaultTendermintDir = ".bftchain"
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.GenValidatorCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowValidatorCmd,
		cmd.GenGenesisCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// Users wishing to:
	//	* Use an external signer for their validators
	//	* Supply an in-proc abci app
	//	* Supply a genesis doc file from another source
	//	* Provide their own DB implementation
	// can copy this file and use something other than the
	// DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	executor := cli.PrepareBaseCmd(rootCmd, "BFT", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultTendermintDir)))
	if err := executor.Execute(); err != nil {
		panic(err)
	}
}
