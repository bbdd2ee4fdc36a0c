package cmd

import (
	"fmt"

	"doltsync/core/storage"
	"doltsync/core/syncer"
	"doltsync/feature/export"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the snapshot commands
	exportToRef      string
	importObject     string
	importOnConflict string
	importYes        bool
	snapshotsRemove  string
	snapshotsPurge   bool
	snapshotsYes     bool
)

// exportCmd uploads a CSV snapshot of a table at a commit.
var exportCmd = &cobra.Command{
	Use:   "export [table]",
	Short: "Export a table snapshot to object storage",
	Long: `Exports the rows of a table as of a commit (the head when --to is absent)
and uploads them as a CSV object named <table>/<commit>.csv.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, rt, err := newExportService()
		if err != nil {
			return err
		}

		result, err := svc.Export(cmd.Context(), args[0], exportToRef)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Println("\n--- Snapshot Export ---")
		fmt.Printf("Table:          %s\n", result.Table)
		fmt.Printf("Commit:         %s\n", shortCommit(result.Commit))
		fmt.Printf("Object:         %s\n", result.Object)
		fmt.Printf("Rows:           %d\n", result.Rows)
		fmt.Printf("Size:           %d bytes\n", result.Bytes)
		fmt.Println("-----------------------")

		rt.log.Info("Snapshot exported",
			zap.String("object", result.Object),
			zap.Int("rows", result.Rows),
		)
		return nil
	},
}

// importCmd applies a stored snapshot back onto the target database.
var importCmd = &cobra.Command{
	Use:   "import [table]",
	Short: "Import a stored snapshot into the target database",
	Long: `Downloads a snapshot object and applies its rows to the target table.
Existing rows are rewritten under the update policy, so this asks for
confirmation.

Examples:
  # Restore orders from a snapshot
  doltsync import orders --object orders/ht1v5p8rck4q.csv --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importObject == "" {
			return fmt.Errorf("--object is required")
		}

		svc, rt, err := newExportService()
		if err != nil {
			return err
		}

		fmt.Printf("About to apply %s onto the target table %s.\n", importObject, args[0])
		if !confirmAction(importYes) {
			rt.log.Warn("Import cancelled by user. No changes were made.")
			return nil
		}

		result, err := svc.Import(cmd.Context(), args[0], importObject, syncer.OnConflict(importOnConflict))
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		rt.log.Info("Snapshot imported",
			zap.String("object", result.Object),
			zap.Int64("rows_applied", result.RowsApplied),
			zap.Int("batches", result.Batches),
		)
		return nil
	},
}

// snapshotsCmd lists or removes the stored snapshots of a table.
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [table]",
	Short: "List or remove stored table snapshots",
	Long: `Lists the snapshot objects of a table, newest first. With --remove one
object is deleted; with --purge all of the table's snapshots are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, rt, err := newExportService()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		table := args[0]

		if snapshotsRemove != "" {
			fmt.Printf("About to remove snapshot %s.\n", snapshotsRemove)
			if !confirmAction(snapshotsYes) {
				rt.log.Warn("Removal cancelled by user. No changes were made.")
				return nil
			}
			if err := svc.Remove(ctx, table, snapshotsRemove); err != nil {
				return fmt.Errorf("failed to remove snapshot: %w", err)
			}
			rt.log.Info("Snapshot removed", zap.String("object", snapshotsRemove))
			return nil
		}

		if snapshotsPurge {
			fmt.Printf("About to remove every stored snapshot of %s.\n", table)
			if !confirmAction(snapshotsYes) {
				rt.log.Warn("Purge cancelled by user. No changes were made.")
				return nil
			}
			count, err := svc.RemoveAll(ctx, table)
			if err != nil {
				return fmt.Errorf("failed to purge snapshots: %w", err)
			}
			rt.log.Info("Snapshots purged", zap.String("table", table), zap.Int("removed", count))
			return nil
		}

		snaps, err := svc.Snapshots(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots stored for this table.")
			return nil
		}

		fmt.Println("\n--- Stored Snapshots ---")
		for _, s := range snaps {
			fmt.Printf("%-48s %10d bytes  %s\n", s.Object, s.Size, s.Modified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("------------------------")
		return nil
	},
}

// newExportService wires the snapshot service; object storage is required
// here, unlike the server where the feature simply stays disabled.
func newExportService() (*export.Service, *runtime, error) {
	rt, err := newRuntime()
	if err != nil {
		return nil, nil, err
	}
	if rt.cfg.Storage.Endpoint == "" {
		return nil, nil, fmt.Errorf("storage.endpoint is not configured")
	}
	client, err := storage.NewClient(rt.cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	svc := export.NewService(rt.source, rt.target, rt.doltDB, client, rt.cfg.Storage.Bucket, rt.cfg.Sync, rt.log)
	return svc, rt, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportToRef, "to", "", "Commit, branch, or tag to snapshot (defaults to head)")

	importCmd.Flags().StringVar(&importObject, "object", "", "Snapshot object to import, e.g. orders/ht1v5p8rck4q.csv")
	importCmd.Flags().StringVar(&importOnConflict, "on-conflict", "", "Conflict policy: update or ignore")
	importCmd.Flags().BoolVar(&importYes, "yes", false, "Auto-confirm (non-interactive)")

	snapshotsCmd.Flags().StringVar(&snapshotsRemove, "remove", "", "Remove one snapshot object")
	snapshotsCmd.Flags().BoolVar(&snapshotsPurge, "purge", false, "Remove all snapshots of the table")
	snapshotsCmd.Flags().BoolVar(&snapshotsYes, "yes", false, "Auto-confirm (non-interactive)")

	RootCmd.AddCommand(exportCmd, importCmd, snapshotsCmd)
}
