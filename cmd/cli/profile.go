package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagDisplayName string
	flagBio         string
	flagLocation    string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
	Long:  "Commands for viewing and updating your profile",
}

var getProfileCmd = &cobra.Command{
	Use:   "get",
	Short: "Get your current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getProfile()
	},
}

var updateProfileCmd = &cobra.Command{
	Use:   "update",
	Short: "Update your profile fields",
	Long:  "Update display name, bio or location. Only the flags you pass are changed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfile(cmd)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate your account",
	Long: `Deactivate your account. This will:
- Hide your profile from other users
- Revoke all of your sessions
- Reactivate automatically the next time you log in`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := apiRequest("POST", "/api/v1/users/me/deactivate", nil)
		if err != nil {
			return err
		}
		fmt.Println("✓ Account deactivated. Log in again to reactivate.")
		return nil
	},
}

func init() {
	updateProfileCmd.Flags().StringVar(&flagDisplayName, "display-name", "", "New display name")
	updateProfileCmd.Flags().StringVar(&flagBio, "bio", "", "New bio")
	updateProfileCmd.Flags().StringVar(&flagLocation, "location", "", "New location")

	profileCmd.AddCommand(getProfileCmd)
	profileCmd.AddCommand(updateProfileCmd)
	profileCmd.AddCommand(deactivateCmd)
}

func getProfile() error {
	body, err := apiRequest("GET", "/api/v1/auth/me", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var resp struct {
		User map[string]interface{} `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n📋 Profile Information\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	printField(resp.User, "username", "Username")
	printField(resp.User, "display_name", "Display Name")
	printField(resp.User, "bio", "Bio")
	printField(resp.User, "location", "Location")
	printField(resp.User, "role", "Role")
	if n, ok := resp.User["follower_count"].(float64); ok {
		fmt.Printf("Followers: %d\n", int(n))
	}
	if n, ok := resp.User["following_count"].(float64); ok {
		fmt.Printf("Following: %d\n", int(n))
	}
	fmt.Printf("\n")

	return nil
}

func updateProfile(cmd *cobra.Command) error {
	payload := map[string]interface{}{}
	if cmd.Flags().Changed("display-name") {
		payload["display_name"] = flagDisplayName
	}
	if cmd.Flags().Changed("bio") {
		payload["bio"] = flagBio
	}
	if cmd.Flags().Changed("location") {
		payload["location"] = flagLocation
	}
	if len(payload) == 0 {
		return fmt.Errorf("nothing to update: pass --display-name, --bio or --location")
	}

	body, err := apiRequest("PATCH", "/api/v1/users/me", payload)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		fmt.Println("✓ Profile updated")
	}
	return nil
}

func printField(m map[string]interface{}, key, label string) {
	if v, ok := m[key].(string); ok && v != "" {
		fmt.Printf("%s: %s\n", label, v)
	}
}
