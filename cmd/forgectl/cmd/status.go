package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"docforge/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow_id]",
	Short: "Get status of a workflow",
	Long:  `Retrieve the current lifecycle state of a workflow, its step progress, and which controls (pause, resume, cancel) are available.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, ok := newClient(cmd)
		if !ok {
			return
		}

		status, err := client.GetWorkflowStatus(args[0])
		if err != nil {
			cmd.Printf("Failed to get status: %v\n", err)
			return
		}

		printStatus(cmd, status)
	},
}

func printStatus(cmd *cobra.Command, status *WorkflowStatusResponse) {
	icon := statusIcon(status.Status)
	cmd.Printf("%s %sWorkflow Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sStatus:%s       %s\n", colorDim, colorReset, colorizeStatus(status.Status))

	if exec := status.Progress; exec != nil {
		cmd.Printf("%sWorkflow:%s     %s\n", colorDim, colorReset, exec.WorkflowID)
		cmd.Printf("%sExecution:%s    %s\n", colorDim, colorReset, exec.ExecutionID)
		cmd.Printf("%sSteps:%s        %d/%d (%.0f%%)\n", colorDim, colorReset,
			exec.CompletedSteps, exec.TotalSteps, exec.ProgressPercentage)
		if exec.CurrentStep != "" {
			cmd.Printf("%sCurrent Step:%s %s\n", colorDim, colorReset, exec.CurrentStep)
		}
		if exec.FailureReason != "" {
			cmd.Printf("%sFailure:%s      %s%s%s\n", colorDim, colorReset, colorRed, exec.FailureReason, colorReset)
		}
		cmd.Printf("%sStarted:%s      %s\n", colorDim, colorReset, formatTime(exec.StartedAt))
		if exec.CompletedAt != nil {
			duration := exec.CompletedAt.Sub(exec.StartedAt)
			cmd.Printf("%sFinished:%s     %s %s(%s)%s\n", colorDim, colorReset,
				formatTime(*exec.CompletedAt), colorCyan, formatDuration(duration), colorReset)
		}
	}

	cmd.Printf("%sControls:%s     pause=%t resume=%t cancel=%t\n", colorDim, colorReset,
		status.Controls.CanPause, status.Controls.CanResume, status.Controls.CanCancel)
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status models.WorkflowStatus) string {
	switch status {
	case models.WorkflowStatusCompleted:
		return colorGreen + "✓" + colorReset
	case models.WorkflowStatusFailed:
		return colorRed + "✗" + colorReset
	case models.WorkflowStatusRunning:
		return colorYellow + "⏳" + colorReset
	case models.WorkflowStatusPending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status models.WorkflowStatus) string {
	icon := statusIcon(status)
	switch status {
	case models.WorkflowStatusCompleted:
		return icon + " " + colorGreen + string(status) + colorReset
	case models.WorkflowStatusFailed, models.WorkflowStatusCancelled:
		return icon + " " + colorRed + string(status) + colorReset
	case models.WorkflowStatusRunning:
		return icon + " " + colorYellow + string(status) + colorReset
	case models.WorkflowStatusPending:
		return icon + " " + colorCyan + string(status) + colorReset
	default:
		return string(status)
	}
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func newClient(cmd *cobra.Command) (*CoordinatorClient, bool) {
	url := viper.GetString("url")
	token := viper.GetString("token")

	if token == "" {
		cmd.Println("API token not found. Please set it using the --token flag or the DOCFORGE_TOKEN environment variable")
		return nil, false
	}
	return NewCoordinatorClient(url, token), true
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
