package cmd

import (
	"github.com/spf13/cobra"

	"docforge/pkg/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the composite system health",
	Long:  `Retrieve the merged metrics-pipeline and alerting health of the coordinator.`,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd)
		if !ok {
			return
		}

		health, err := client.GetHealth()
		if err != nil {
			cmd.Printf("Failed to get health: %v\n", err)
			return
		}

		cmd.Printf("%s %sSystem Health%s\n", healthIcon(health.Status), colorBold, colorReset)
		cmd.Println("──────────────────────────────")
		cmd.Printf("%sOverall:%s   %s\n", colorDim, colorReset, health.Status)
		cmd.Printf("%sAlerts:%s    %d active, %d critical\n", colorDim, colorReset,
			health.Alerts.ActiveAlerts, health.Alerts.CriticalAlerts)

		for _, check := range health.Metrics.Checks {
			cmd.Printf("%s %s: %s (%.2f)", healthIcon(check.Status), check.Name, check.Status, check.Value)
			if check.Message != "" {
				cmd.Printf(" %s%s%s", colorDim, check.Message, colorReset)
			}
			cmd.Println()
		}
	},
}

func healthIcon(state models.HealthState) string {
	switch state {
	case models.HealthHealthy:
		return colorGreen + "✓" + colorReset
	case models.HealthDegraded:
		return colorYellow + "⚠" + colorReset
	case models.HealthUnhealthy:
		return colorRed + "✗" + colorReset
	default:
		return "•"
	}
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
