package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"capowatch/internal/app"
)

var (
	showOracle  string
	showLimit   int
	alertsLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent snapshots of an oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showOracle == "" {
			return fmt.Errorf("--oracle must be provided")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Oracle: showOracle,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Alerts(cmd.Context(), alertsLimit)
	},
}

func init() {
	showCmd.Flags().StringVar(&showOracle, "oracle", "", "Oracle address")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of snapshots to display")

	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to display")
}
