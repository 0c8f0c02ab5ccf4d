package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// tokensCmd represents the tokens command
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage authentication tokens",
	Long:  `Issue authentication tokens for marketplace actors. Requires an admin identity.`,
}

// tokensIssueCmd issues a token for an actor
var tokensIssueCmd = &cobra.Command{
	Use:   "issue <actor-id>",
	Short: "Issue a token for an actor",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokensIssue,
}

var (
	tokenRole string
	tokenTTL  string
)

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensIssueCmd)

	tokensIssueCmd.Flags().StringVar(&tokenRole, "for-role", "evaluator", "role granted to the token holder (client, evaluator, admin)")
	tokensIssueCmd.Flags().StringVar(&tokenTTL, "ttl", "24h", "token lifetime (e.g., 24h, 7h30m)")
}

func runTokensIssue(cmd *cobra.Command, args []string) error {
	body := map[string]string{
		"actor_id": args[0],
		"role":     tokenRole,
		"ttl":      tokenTTL,
	}

	var result map[string]string
	if err := postJSON("/tokens", body, &result, http.StatusCreated); err != nil {
		return err
	}

	if IsJSONOutput() {
		fmt.Printf("{\"actor_id\": %q, \"token\": %q}\n", result["actor_id"], result["token"])
	} else {
		fmt.Printf("Token for %s (role %s, ttl %s):\n%s\n", result["actor_id"], tokenRole, tokenTTL, result["token"])
	}

	return nil
}
