package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is bumped on releases.
const Version = "0.1.0"

// VersionCmd prints the node version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
