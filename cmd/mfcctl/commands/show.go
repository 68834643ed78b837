package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/mfcd/internal/cli/output"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List active VIF bindings and forwarding rules",
	Long: `Query mfcd for every bound virtual interface and every installed
forwarding rule.

Examples:
  mfcctl show
  mfcctl show -o json`,
	RunE: runShow,
}

type showResult struct {
	VIFs  []vifRow  `json:"vifs" yaml:"vifs"`
	Rules []ruleRow `json:"rules" yaml:"rules"`
}

type vifRow struct {
	Name     string `json:"name" yaml:"name"`
	VIFIndex uint16 `json:"vifi" yaml:"vifi"`
	Ifindex  uint32 `json:"ifindex" yaml:"ifindex"`
	RefCount uint32 `json:"ref_count" yaml:"ref_count"`
}

type ruleRow struct {
	Source string   `json:"source" yaml:"source"`
	Group  string   `json:"group" yaml:"group"`
	IIF    string   `json:"iif" yaml:"iif"`
	OIFs   []string `json:"oifs" yaml:"oifs"`
}

// Headers implements output.TableRenderer for the rule table; VIFs print as
// a separate table above it since the two have unrelated columns.
func (s showResult) Headers() []string {
	return []string{"SOURCE", "GROUP", "IIF", "OIFS"}
}

func (s showResult) Rows() [][]string {
	rows := make([][]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		rows = append(rows, []string{r.Source, r.Group, r.IIF, strings.Join(r.OIFs, ",")})
	}
	return rows
}

func runShow(cmd *cobra.Command, args []string) error {
	c := newClient()
	resp, err := c.Show()
	if err != nil {
		return fmt.Errorf("show failed: %w", err)
	}

	result := showResult{}
	if resp.Payload != nil {
		for name, v := range resp.Payload.VIFMap {
			result.VIFs = append(result.VIFs, vifRow{Name: name, VIFIndex: v.VIFIndex, Ifindex: v.Ifindex, RefCount: v.RefCount})
		}
		for _, r := range resp.Payload.MFCRules {
			result.Rules = append(result.Rules, ruleRow{Source: r.Source, Group: r.Group, IIF: r.IIF, OIFs: r.OIFs})
		}
	}

	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, result)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, result)
	default:
		printShowTables(result)
	}
	return nil
}

func printShowTables(result showResult) {
	fmt.Println("VIFs:")
	vifTable := output.NewTableData("INTERFACE", "VIFI", "IFINDEX", "REFS")
	for _, v := range result.VIFs {
		vifTable.AddRow(v.Name, strconv.Itoa(int(v.VIFIndex)), strconv.Itoa(int(v.Ifindex)), strconv.Itoa(int(v.RefCount)))
	}
	_ = output.PrintTable(os.Stdout, vifTable)

	fmt.Println()
	fmt.Println("Rules:")
	_ = output.PrintTable(os.Stdout, result)
}
