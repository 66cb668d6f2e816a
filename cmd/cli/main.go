// Package main runs delivery and reposition scenarios against the simulated arm.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"
)

var (
	verbose  bool
	maxTicks int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "plushie-arm",
	Short: "Run arm controller scenarios against the simulator",
	Long: `plushie-arm drives the delivery and reposition controllers against an in-process
simulated dual arm, so motions can be tried without hardware.

Examples:
  # Hand the plushie over with the left arm toward a head at -0.4 rad
  plushie-arm deliver --left --head-pan -0.4

  # Push the right hand into a table at z=0 and watch it stall
  plushie-arm reposition --x 0.3 --z -0.2 --floor 0 --consistent

  # Replay a scenario file
  plushie-arm run scenarios/deliver.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().IntVar(&maxTicks, "max-ticks", 300, "Give up after this many simulated ticks")
	rootCmd.AddCommand(deliverCmd)
	rootCmd.AddCommand(repositionCmd)
	rootCmd.AddCommand(runCmd)
}

func newLogger() logging.Logger {
	logger := logging.NewLogger("plushie-arm")
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	return logger
}
