package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mixdeck-io/mixdeck/internal/daemon/server"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the snapshot and resend it to the display",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := withDaemon(func(ctx context.Context, c *server.DaemonClient) error {
			return c.Refresh(ctx)
		})
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Println(styleSuccess.Render("Snapshot resent."))
		return nil
	},
}
