package cli

import (
	"github.com/spf13/cobra"

	"capowatch/internal/app"
)

var simulateScenario string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一个触发告警的预言机并发送到已配置的通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{Scenario: simulateScenario})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScenario, "scenario", "capped", "capped, rapid, slow, spike 或 error")
}
