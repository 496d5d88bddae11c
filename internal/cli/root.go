package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/ui"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "televisit",
	Short: "Real-time consultation signaling for the TeleMedAI platform",
	Long: `Televisit is the real-time consultation core of the TeleMedAI platform.
It ships the room-based signaling relay that brokers WebRTC negotiation
between a patient and a doctor, and a headless call client for exercising a
deployed relay end to end.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
