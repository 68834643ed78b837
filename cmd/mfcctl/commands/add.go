package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/mfcd/internal/cli/client"
)

var (
	addSource string
	addGroup  string
	addIIF    string
	addOIFs   []string
	addDryRun bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Install a multicast forwarding rule",
	Long: `Install a forwarding rule for a (source, group) pair: packets arriving
on the input interface are forwarded out every output interface.

Source defaults to the wildcard 0.0.0.0 (forward regardless of origin) when
omitted.

Examples:
  mfcctl add --group 239.1.2.3 --iif eth0 --oif eth1 --oif eth2

  mfcctl add --source 10.0.0.5 --group 239.1.2.3 --iif eth0 --oif eth1`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addSource, "source", "", "Source IPv4 address (default: 0.0.0.0, any source)")
	addCmd.Flags().StringVar(&addGroup, "group", "", "Multicast group address (required)")
	addCmd.Flags().StringVar(&addIIF, "iif", "", "Input interface name (required)")
	addCmd.Flags().StringSliceVar(&addOIFs, "oif", nil, "Output interface name (repeatable)")
	addCmd.Flags().BoolVar(&addDryRun, "dry-run", false, "Send the request as a dry run: nothing is installed and the rule is not validated")

	_ = addCmd.MarkFlagRequired("group")
	_ = addCmd.MarkFlagRequired("iif")
	_ = addCmd.MarkFlagRequired("oif")
}

func runAdd(cmd *cobra.Command, args []string) error {
	c := newClient()
	if _, err := c.AddMFC(client.AddMFCPayload{
		Source: addSource,
		Group:  addGroup,
		IIF:    addIIF,
		OIFs:   addOIFs,
		DryRun: addDryRun,
	}); err != nil {
		return fmt.Errorf("add rule failed: %w", err)
	}

	if addDryRun {
		fmt.Println("dry run: request accepted, nothing installed")
	} else {
		fmt.Println("rule installed")
	}
	return nil
}
