package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagehq/sage/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a signed identity token for the HTTP API",
	Long: `Mint an HMAC-signed bearer token for the given user ID.

The user ID is also the conversation thread ID. Pass the token in the
Authorization header:

  curl -H "Authorization: Bearer $(sage token alice)" ...`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runToken(args[0])
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(userID string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	fmt.Println(api.SignToken(userID, []byte(cfg.AuthSecret)))
	return nil
}
