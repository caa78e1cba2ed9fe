package app

import (
	"fmt"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/lakasli/TCP-VDA5050-bridge-server/cmd/vda5050-bridge/app/options"
)

func newRoutesCommand() *cobra.Command {
	opts := options.NewBridgeOptions()
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the action routing table",
		Long:  "Print the routing table the bridge would use: the file given by --routing.file, or the built-in table on the --tcp.ports.* ports.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if errs := opts.RoutingOptions.Validate(); len(errs) > 0 {
				return errs[0]
			}
			table, err := opts.RoutingTable()
			if err != nil {
				return err
			}

			tbl := uitable.New()
			tbl.MaxColWidth = 40
			tbl.AddRow("ACTION", "PORT", "CODE", "FORMAT", "BLOCKING", "PRIORITY", "PARAMETERS")
			for _, m := range table.Mappings() {
				priority := "-"
				if p, ok := m.PriorityOverride(); ok {
					priority = p.String()
				}
				params := make([]string, 0, len(m.Parameters))
				for _, p := range m.Parameters {
					name := p.Name
					if p.Required {
						name += "*"
					}
					params = append(params, name)
				}
				tbl.AddRow(m.Action, m.Port, m.MessageType, m.PayloadFormat, m.BlockingType, priority, strings.Join(params, ","))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			fmt.Fprintf(cmd.OutOrStdout(), "\nfeatures: %s\n", strings.Join(table.Features(), ", "))
			return nil
		},
	}

	fs := cmd.Flags()
	opts.RoutingOptions.AddFlags(fs)
	opts.TCPOptions.AddFlags(fs)
	return cmd
}
