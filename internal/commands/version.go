package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		buildTime := BuildTime
		if buildTime == "" {
			buildTime = "unknown"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "text2image %s (built %s)\n", Version, buildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
