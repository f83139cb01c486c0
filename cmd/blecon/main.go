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

// rootCmd represents the console; blecon has no subcommands
var rootCmd = &cobra.Command{
	Use:   "blecon",
	Short: "Interactive Bluetooth Low Energy GATT console",
	Long: `Interactive Bluetooth Low Energy (BLE) GATT console that provides:

- Discovery of nearby BLE devices in the background
- Connecting to a device and browsing its services and characteristics
- Reading and writing characteristic values in several display formats
- Retried reads and write-retry-repeat cycles for flaky peripherals
- Notifications with wait and delay for scripted test runs

Commands are read from the prompt, or line by line from a redirected stdin.
The exit code is the number of failed commands, or 250 after a retry timeout.`,
	Args:    cobra.NoArgs,
	Version: formatVersion(version),
	RunE:    runConsole,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
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
	rootCmd.SilenceUsage = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blecon {{.Version}} (commit %s, built %s)\n", commit, date))

	addConsoleFlags(rootCmd)

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}

// addConsoleFlags registers the flags of the console command.
func addConsoleFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("verbose", false, "Enable debug logging (same as --log-level debug)")

	cmd.Flags().String("config", "", "Config file (default ~/.config/blecon/config.yaml)")
	cmd.Flags().Uint("timeout", 0, "Device connection timeout in seconds, 1-59 (default from config, 3)")
	cmd.Flags().String("format", "", "Initial display format: ascii, utf8, dec, hex or bin")
	cmd.Flags().String("log-dir", "", "Directory for retry result logs")
}
