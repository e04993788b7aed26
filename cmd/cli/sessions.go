package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage your login sessions",
	Long:  "List and revoke the sessions attached to your account",
}

var listSessionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List your sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions()
	},
}

var revokeSessionCmd = &cobra.Command{
	Use:   "revoke <session-id>",
	Short: "Revoke one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("DELETE", "/api/v1/auth/sessions/"+args[0], nil); err != nil {
			return err
		}
		fmt.Println("✓ Session revoked")
		return nil
	},
}

var revokeAllSessionsCmd = &cobra.Command{
	Use:   "revoke-all",
	Short: "Revoke every session, including this one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := apiRequest("DELETE", "/api/v1/auth/sessions", nil); err != nil {
			return err
		}
		fmt.Println("✓ All sessions revoked. You will need to log in again.")
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(revokeSessionCmd)
	sessionsCmd.AddCommand(revokeAllSessionsCmd)
}

func listSessions() error {
	body, err := apiRequest("GET", "/api/v1/auth/sessions", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var resp struct {
		Sessions []map[string]interface{} `json:"sessions"`
		Current  string                   `json:"current"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n🔑 Sessions (%d)\n", len(resp.Sessions))
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, s := range resp.Sessions {
		id, _ := s["id"].(string)
		marker := " "
		if id == resp.Current {
			marker = "*"
		}
		device, _ := s["user_agent"].(string)
		lastActive, _ := s["last_active_at"].(string)
		fmt.Printf("%s %s  %s  last active %s\n", marker, id, device, lastActive)
	}
	fmt.Printf("\n* = current session\n\n")

	return nil
}
