package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/lakasli/TCP-VDA5050-bridge-server/internal/bridge/fleet"
)

func newVehiclesCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "Show the vehicles of a running bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			vehicles, err := fetchVehicles(ctx, server)
			if err != nil {
				return err
			}

			tbl := uitable.New()
			tbl.AddRow("MANUFACTURER", "SERIAL", "ADDRESS", "STATE", "LAST ACTIVITY", "QUEUE", "SUSPENDED", "IN FLIGHT", "ORDER")
			for _, v := range vehicles {
				last := "-"
				if !v.LastActivity.IsZero() {
					last = v.LastActivity.Local().Format(time.DateTime)
				}
				order := "-"
				if v.OrderID != "" {
					order = fmt.Sprintf("%s/%d", v.OrderID, v.OrderUpdateID)
				}
				inFlight := v.InFlight
				if inFlight == "" {
					inFlight = "-"
				}
				tbl.AddRow(v.Manufacturer, v.SerialNumber, v.Address, v.ConnectionState, last, v.QueueDepth, v.Suspended, inFlight, order)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:8080", "Diagnostics address of the bridge.")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout.")
	return cmd
}

func fetchVehicles(ctx context.Context, server string) ([]fleet.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/v1/vehicles", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query bridge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge returned %s", resp.Status)
	}

	var vehicles []fleet.Status
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return vehicles, nil
}
