package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dataserver",
	Short: "Transcoding proxy for the Xiino handheld browser",
	Long: `OpenXiino DataServer sits between a Palm OS handheld running the
Xiino browser and the modern web. It fetches pages over HTTPS, rewrites
the HTML down to the tag set the client can render, and re-encodes
images into the EBDImage format the browser displays inline.`,
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// 1 on a fatal startup error, 2 on signal termination.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// exitCode is set by commands that terminate for non-error reasons, such
// as signal shutdown.
var exitCode int

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "xiino.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
