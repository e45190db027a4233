package cmd

import (
	"github.com/spf13/cobra"

	"docforge/pkg/models"
)

var (
	alertSeverity string
	alertResolved bool
	alertLimit    int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts, most recent first",
	Long:  `List alerts raised by the coordinator, optionally filtered by severity and resolution state.`,
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd)
		if !ok {
			return
		}

		var resolved *bool
		if cmd.Flags().Changed("resolved") {
			resolved = &alertResolved
		}

		alerts, err := client.ListAlerts(alertSeverity, resolved, alertLimit)
		if err != nil {
			cmd.Printf("Failed to list alerts: %v\n", err)
			return
		}

		if len(alerts) == 0 {
			cmd.Println("No alerts")
			return
		}

		for _, alert := range alerts {
			printAlert(cmd, alert)
		}
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve [alert_id]",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd)
		if !ok {
			return
		}

		if err := client.ResolveAlert(args[0]); err != nil {
			cmd.Printf("Failed to resolve alert: %v\n", err)
			return
		}
		cmd.Printf("%s✓%s Alert %s resolved\n", colorGreen, colorReset, args[0])
	},
}

func printAlert(cmd *cobra.Command, alert *models.Alert) {
	marker := colorYellow + "!" + colorReset
	if alert.Severity == models.SeverityCritical {
		marker = colorRed + "!!" + colorReset
	}
	state := colorYellow + "open" + colorReset
	if alert.ResolvedAt != nil {
		state = colorGreen + "resolved" + colorReset
	}

	cmd.Printf("%s [%s] %s%s%s (%s)\n", marker, alert.Severity, colorBold, alert.Title, colorReset, state)
	cmd.Printf("   %s%s%s\n", colorDim, alert.ID, colorReset)
	cmd.Printf("   %s\n", alert.Description)
	if alert.WorkflowID != "" {
		cmd.Printf("   %sworkflow:%s %s\n", colorDim, colorReset, alert.WorkflowID)
	}
	cmd.Printf("   %screated:%s %s\n", colorDim, colorReset, formatTime(alert.CreatedAt))
}

func init() {
	alertsCmd.Flags().StringVar(&alertSeverity, "severity", "", "filter by severity (info, warning, critical)")
	alertsCmd.Flags().BoolVar(&alertResolved, "resolved", false, "filter by resolution state")
	alertsCmd.Flags().IntVar(&alertLimit, "limit", 50, "maximum number of alerts to list")
	alertsCmd.AddCommand(alertsResolveCmd)
	rootCmd.AddCommand(alertsCmd)
}
