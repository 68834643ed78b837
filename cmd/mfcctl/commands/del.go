package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/mfcd/internal/cli/client"
)

var (
	delSource string
	delGroup  string
	delDryRun bool
)

var delCmd = &cobra.Command{
	Use:   "del",
	Short: "Remove a multicast forwarding rule",
	Long: `Remove the forwarding rule keyed by (source, group). Source defaults
to the wildcard 0.0.0.0 when omitted.

Examples:
  mfcctl del --group 239.1.2.3

  mfcctl del --source 10.0.0.5 --group 239.1.2.3`,
	RunE: runDel,
}

func init() {
	delCmd.Flags().StringVar(&delSource, "source", "", "Source IPv4 address (default: 0.0.0.0, any source)")
	delCmd.Flags().StringVar(&delGroup, "group", "", "Multicast group address (required)")
	delCmd.Flags().BoolVar(&delDryRun, "dry-run", false, "Send the request as a dry run: nothing is removed and the rule is not looked up")

	_ = delCmd.MarkFlagRequired("group")
}

func runDel(cmd *cobra.Command, args []string) error {
	c := newClient()
	if _, err := c.DelMFC(client.DelMFCPayload{
		Source: delSource,
		Group:  delGroup,
		DryRun: delDryRun,
	}); err != nil {
		return fmt.Errorf("delete rule failed: %w", err)
	}

	if delDryRun {
		fmt.Println("dry run: request accepted, nothing removed")
	} else {
		fmt.Println("rule removed")
	}
	return nil
}
