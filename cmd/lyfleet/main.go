package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lyfleet",
	Short: "Xiaomi LYWSD02 / LYWSD03MMC thermometer fleet tool",
	Long: `Command-line tool for Xiaomi Bluetooth thermometers (LYWSD02 and LYWSD03MMC):

- Take live temperature, humidity and battery readings
- Download the hourly min/max history as CSV
- Get and set display units and the device clock
- Poll a whole fleet on a schedule with quality scoring, holds and radio resets
- Publish fleet state to NATS and append it to CSV
- Power cycle the Bluetooth adapter
- Discover nearby thermometers`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("lyfleet %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	// Add subcommands
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(batteryCmd)
	rootCmd.AddCommand(unitsCmd)
	rootCmd.AddCommand(clockCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(scanCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
