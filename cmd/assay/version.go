package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/assay/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.PrintBanner(common.GetVersion())
		fmt.Printf("assay version %s\n", common.GetVersion())
		fmt.Printf("build:  %s\n", common.GetBuild())
		fmt.Printf("commit: %s\n", common.GetGitCommit())
	},
}
