package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/mfcd/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon reachability and rule counts",
	Long: `Check whether mfcd is reachable on its control socket and report how
many VIFs and forwarding rules it currently holds.

Examples:
  # Check status of the default socket
  mfcctl status

  # Output as JSON
  mfcctl status -o json`,
	RunE: runStatus,
}

// daemonStatus represents the daemon's reachability for display.
type daemonStatus struct {
	Socket    string `json:"socket" yaml:"socket"`
	Reachable bool   `json:"reachable" yaml:"reachable"`
	VIFCount  int    `json:"vif_count,omitempty" yaml:"vif_count,omitempty"`
	RuleCount int    `json:"rule_count,omitempty" yaml:"rule_count,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()
	status := daemonStatus{Socket: c.SocketPath()}

	resp, err := c.Show()
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Reachable = true
		if resp.Payload != nil {
			status.VIFCount = len(resp.Payload.VIFMap)
			status.RuleCount = len(resp.Payload.MFCRules)
		}
	}

	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status daemonStatus) {
	fmt.Println()
	fmt.Println("mfcd Status")
	fmt.Println("===========")
	fmt.Println()
	fmt.Printf("  Socket:     %s\n", status.Socket)

	green, red, reset := "\033[32m", "\033[31m", "\033[0m"
	if noColor {
		green, red, reset = "", "", ""
	}

	if status.Reachable {
		fmt.Printf("  Status:     %s● reachable%s\n", green, reset)
		fmt.Printf("  VIFs:       %d\n", status.VIFCount)
		fmt.Printf("  Rules:      %d\n", status.RuleCount)
	} else {
		fmt.Printf("  Status:     %s○ unreachable%s\n", red, reset)
	}
	if status.Error != "" {
		fmt.Printf("  Error:      %s\n", status.Error)
	}
	fmt.Println()
}
