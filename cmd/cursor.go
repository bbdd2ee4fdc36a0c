package cmd

import (
	"fmt"

	"doltsync/core/syncer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for cursor reset
	cursorTargetID  string
	cursorDirection string
	cursorYes       bool
)

// cursorCmd is the parent command for cursor operations.
var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect and reset sync cursors",
	Long: `Cursors record the last commit synchronized per table, target, and
direction. Resetting one makes the next sync replay the table from scratch.`,
}

// cursorListCmd prints every stored cursor.
var cursorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sync cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}

		cursors, err := rt.store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list cursors: %w", err)
		}

		if len(cursors) == 0 {
			fmt.Println("No cursors stored yet.")
			return nil
		}

		fmt.Println("\n--- Sync Cursors ---")
		for _, c := range cursors {
			fmt.Printf("%-24s %-24s %-10s %s  (%s)\n",
				c.Key.Table, c.Key.TargetID, c.Key.Direction,
				shortCommit(c.LastCommit), c.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("--------------------")
		return nil
	},
}

// cursorResetCmd forgets the stored position of one cursor.
var cursorResetCmd = &cobra.Command{
	Use:   "reset [table]",
	Short: "Reset the cursor of a table",
	Long: `Reset deletes the stored cursor, so the next sync of the table replays
every commit from the beginning. This can rewrite large parts of the target
table and therefore asks for confirmation.

Examples:
  # Reset the forward cursor of orders (prompts)
  doltsync cursor reset orders

  # Reset the reverse cursor, non-interactive
  doltsync cursor reset orders --direction to_dolt --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}

		key := syncer.CursorKey{
			Table:     args[0],
			TargetID:  cursorTargetID,
			Direction: syncer.Direction(cursorDirection),
		}
		if key.TargetID == "" {
			key.TargetID = rt.cfg.TargetID()
		}
		if key.Direction == "" {
			key.Direction = syncer.ToTarget
		}

		fmt.Printf("About to reset cursor %s. The next sync will replay the whole table.\n", key)
		if !confirmAction(cursorYes) {
			rt.log.Warn("Reset cancelled by user. No changes were made.")
			return nil
		}

		if err := rt.store.Reset(cmd.Context(), key); err != nil {
			return fmt.Errorf("failed to reset cursor: %w", err)
		}

		rt.log.Info("Cursor reset",
			zap.String("table", key.Table),
			zap.String("target", key.TargetID),
			zap.String("direction", string(key.Direction)),
		)
		return nil
	},
}

func init() {
	cursorCmd.AddCommand(cursorListCmd, cursorResetCmd)

	cursorResetCmd.Flags().StringVar(&cursorTargetID, "target", "", "Target id of the cursor (defaults to the configured target)")
	cursorResetCmd.Flags().StringVar(&cursorDirection, "direction", "", "Direction of the cursor: to_target or to_dolt")
	cursorResetCmd.Flags().BoolVar(&cursorYes, "yes", false, "Auto-confirm (non-interactive)")

	RootCmd.AddCommand(cursorCmd)
}
