// Package commands implements the CLI commands for mfcctl, the control
// client for mfcd's Unix control socket.
package commands

import (
	"os"

	"github.com/marmos91/mfcd/internal/cli/client"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	socketFlag string
	outputFlag string
	noColor    bool
)

const defaultSocketPath = "/var/run/mfc_daemon.sock"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mfcctl",
	Short: "mfcctl - control client for the mfcd multicast forwarding daemon",
	Long: `mfcctl manages IPv4 multicast forwarding rules on a running mfcd
daemon through its local control socket.

Use "mfcctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Control socket path (default: "+defaultSocketPath+")")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// newClient returns a client.Client targeting the configured socket path.
func newClient() *client.Client {
	path := socketFlag
	if path == "" {
		path = defaultSocketPath
	}
	return client.New(path)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
