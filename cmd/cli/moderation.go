package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagReason       string
	flagActionTaken  string
	flagReportStatus string
	flagSuspendHours int
)

var moderationCmd = &cobra.Command{
	Use:   "mod",
	Short: "Moderation commands",
	Long:  "Report queue and account sanctions. Requires a moderator or admin account.",
}

var listReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reports, pending first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listReports()
	},
}

var resolveReportCmd = &cobra.Command{
	Use:   "resolve <report-id>",
	Short: "Resolve a report with an action note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]interface{}{"action_taken": flagActionTaken}
		if _, err := apiRequest("POST", "/api/v1/admin/reports/"+args[0]+"/resolve", payload); err != nil {
			return err
		}
		fmt.Println("✓ Report resolved")
		return nil
	},
}

var dismissReportCmd = &cobra.Command{
	Use:   "dismiss <report-id>",
	Short: "Dismiss a report without action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("POST", "/api/v1/admin/reports/"+args[0]+"/dismiss", nil); err != nil {
			return err
		}
		fmt.Println("✓ Report dismissed")
		return nil
	},
}

var banCmd = &cobra.Command{
	Use:   "ban <username>",
	Short: "Ban a user (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagReason == "" {
			return fmt.Errorf("a ban reason is required: pass --reason")
		}
		payload := map[string]interface{}{"reason": flagReason}
		if _, err := apiRequest("POST", "/api/v1/admin/users/"+args[0]+"/ban", payload); err != nil {
			return err
		}
		fmt.Printf("✓ %s banned\n", args[0])
		return nil
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <username>",
	Short: "Lift a user's ban (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("DELETE", "/api/v1/admin/users/"+args[0]+"/ban", nil); err != nil {
			return err
		}
		fmt.Printf("✓ %s unbanned\n", args[0])
		return nil
	},
}

var suspendCmd = &cobra.Command{
	Use:   "suspend <username>",
	Short: "Suspend a user for a number of hours (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]interface{}{"hours": flagSuspendHours}
		if flagReason != "" {
			payload["reason"] = flagReason
		}
		if _, err := apiRequest("POST", "/api/v1/admin/users/"+args[0]+"/suspend", payload); err != nil {
			return err
		}
		fmt.Printf("✓ %s suspended for %d hours\n", args[0], flagSuspendHours)
		return nil
	},
}

var unsuspendCmd = &cobra.Command{
	Use:   "unsuspend <username>",
	Short: "Lift a user's suspension (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("DELETE", "/api/v1/admin/users/"+args[0]+"/suspend", nil); err != nil {
			return err
		}
		fmt.Printf("✓ %s unsuspended\n", args[0])
		return nil
	},
}

func init() {
	listReportsCmd.Flags().StringVar(&flagReportStatus, "status", "", "Filter by status: pending, resolved, dismissed")
	resolveReportCmd.Flags().StringVar(&flagActionTaken, "action", "", "Note describing the action taken")
	banCmd.Flags().StringVar(&flagReason, "reason", "", "Reason for the ban")
	suspendCmd.Flags().StringVar(&flagReason, "reason", "", "Reason for the suspension")
	suspendCmd.Flags().IntVar(&flagSuspendHours, "hours", 24, "Suspension length in hours")

	moderationCmd.AddCommand(listReportsCmd)
	moderationCmd.AddCommand(resolveReportCmd)
	moderationCmd.AddCommand(dismissReportCmd)
	moderationCmd.AddCommand(banCmd)
	moderationCmd.AddCommand(unbanCmd)
	moderationCmd.AddCommand(suspendCmd)
	moderationCmd.AddCommand(unsuspendCmd)
}

func listReports() error {
	path := "/api/v1/admin/reports"
	if flagReportStatus != "" {
		path += "?status=" + flagReportStatus
	}

	body, err := apiRequest("GET", path, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var resp struct {
		Reports []map[string]interface{} `json:"reports"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n🚩 Reports (%d)\n", len(resp.Reports))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, r := range resp.Reports {
		id, _ := r["id"].(string)
		status, _ := r["status"].(string)
		reason, _ := r["reason"].(string)
		targetType, _ := r["target_type"].(string)
		fmt.Printf("%s  [%s]  %s %s\n", id, status, targetType, reason)
	}
	fmt.Printf("\n")

	return nil
}
