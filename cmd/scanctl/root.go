package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scanctl",
	Short: "Run prospect scans locally",
	Long: `scanctl runs the prospect scan pipeline in process against screenshot
files on disk, without Redis or a database.`,
	SilenceUsage: true,
}
