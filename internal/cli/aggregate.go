package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"capowatch/internal/app"
)

var (
	aggregateFrom string
	aggregateTo   string

	aggregationsOracle string
	aggregationsAsset  string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute daily aggregations for a range of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if aggregateFrom == "" || aggregateTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseTimeFlag("from", aggregateFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", aggregateTo)
		if err != nil {
			return err
		}

		return getApp().Aggregate(cmd.Context(), app.AggregateOptions{From: from, To: to})
	},
}

var aggregationsCmd = &cobra.Command{
	Use:   "aggregations",
	Short: "List stored daily aggregations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Aggregations(cmd.Context(), app.AggregationsOptions{
			Oracle: aggregationsOracle,
			Asset:  aggregationsAsset,
		})
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateFrom, "from", "", "First day (RFC3339 or YYYY-MM-DD, inclusive)")
	aggregateCmd.Flags().StringVar(&aggregateTo, "to", "", "End day (RFC3339 or YYYY-MM-DD, exclusive)")

	aggregationsCmd.Flags().StringVar(&aggregationsOracle, "oracle", "", "Filter by oracle address")
	aggregationsCmd.Flags().StringVar(&aggregationsAsset, "asset", "", "Filter by asset address")
}
