package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vmsd",
	Short: "Validation workflow and traceability engine",
	Long: "vmsd runs the computer system validation workflow engine: URS through\n" +
		"FS/DS specification, test execution with evidence, deviation CAPA\n" +
		"tracking, change control, and derived traceability reporting.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}
