package cmd

import (
	"fmt"

	"doltsync/core/syncer"
	syncFeature "doltsync/feature/sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	syncAll         bool
	syncTables      []string
	syncTargetTable string
	syncColumns     []string
	syncPrimaryKey  []string
	syncDirection   string
	syncToRef       string
	syncBatchSize   int
	syncOnConflict  string
	syncCreate      bool
	syncDecode      bool
	syncDryRun      bool
	syncMessage     string
	syncLimit       int
	syncYes         bool
)

// syncCmd runs one table (or every configured table) up to a commit.
var syncCmd = &cobra.Command{
	Use:   "sync [table]",
	Short: "Synchronize commits between Dolt and the target database",
	Long: `Synchronize a table by replaying the Dolt commits made since the stored
cursor, or fold target-side edits back into a Dolt commit with
--direction to_dolt.

Examples:
  # Sync one table up to the current head
  doltsync sync orders

  # Sync every configured table, four at a time
  doltsync sync --all --limit 4

  # Preview what a sync would apply, without writing
  doltsync sync orders --dry-run

  # Rebuild the target table at an exact commit
  doltsync sync orders --to ht1v5p8rck4q

  # Fold target edits back into Dolt
  doltsync sync orders --direction to_dolt --message "nightly backfill"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every configured table")
	syncCmd.Flags().StringSliceVar(&syncTables, "tables", nil, "Tables for --all (defaults to sync.tables from config)")
	syncCmd.Flags().StringVar(&syncTargetTable, "target-table", "", "Target table name (defaults to the source name)")
	syncCmd.Flags().StringSliceVar(&syncColumns, "columns", nil, "Columns to sync (defaults to the table schema)")
	syncCmd.Flags().StringSliceVar(&syncPrimaryKey, "pk", nil, "Primary key columns (defaults to the table schema)")
	syncCmd.Flags().StringVar(&syncDirection, "direction", "", "Sync direction: to_target or to_dolt")
	syncCmd.Flags().StringVar(&syncToRef, "to", "", "Commit, branch, or tag to sync up to (defaults to head)")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0, "Change records per transaction")
	syncCmd.Flags().StringVar(&syncOnConflict, "on-conflict", "", "Conflict policy: update or ignore")
	syncCmd.Flags().BoolVar(&syncCreate, "create", false, "Create missing target tables")
	syncCmd.Flags().BoolVar(&syncDecode, "decode", false, "Decode coerced values on reverse syncs")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Extract and count changes without writing")
	syncCmd.Flags().StringVar(&syncMessage, "message", "", "Commit message for reverse syncs")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Max concurrent tables for --all (0 runs all at once)")
	syncCmd.Flags().BoolVar(&syncYes, "yes", false, "Auto-confirm reverse syncs (non-interactive)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if !syncAll && len(args) == 0 {
		return fmt.Errorf("a table argument or --all is required")
	}
	if syncAll && len(args) > 0 {
		return fmt.Errorf("--all and a table argument are mutually exclusive")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	params := syncFeature.Params{
		TargetTable:   syncTargetTable,
		Columns:       syncColumns,
		PrimaryKey:    syncPrimaryKey,
		Direction:     syncDirection,
		ToRef:         syncToRef,
		BatchSize:     syncBatchSize,
		OnConflict:    syncOnConflict,
		DryRun:        syncDryRun,
		CommitMessage: syncMessage,
	}
	// Only explicit flags override the configured defaults.
	if cmd.Flags().Changed("create") {
		params.Create = &syncCreate
	}
	if cmd.Flags().Changed("decode") {
		params.Decode = &syncDecode
	}

	// Reverse runs write commits into Dolt; ask before doing that for real.
	if params.Direction == string(syncer.ToDolt) && !syncDryRun {
		fmt.Println("About to fold target-side edits into new Dolt commits.")
		if !confirmAction(syncYes) {
			rt.log.Warn("Sync cancelled by user. No changes were made.")
			return nil
		}
	}

	svc := syncFeature.NewService(rt.engine, rt.source, rt.doltDB, rt.store, rt.cfg.TargetID(), rt.cfg.Sync, rt.log)
	ctx := cmd.Context()

	if syncAll {
		outcomes, err := svc.SyncAll(ctx, syncFeature.AllParams{
			Params: params,
			Tables: syncTables,
			Limit:  syncLimit,
		})
		if err != nil {
			return err
		}

		failed := 0
		fmt.Println("\n=== Sync Results ===")
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
				fmt.Printf("%-24s FAILED: %v\n", o.Request.Mapping.SourceTable, o.Err)
				continue
			}
			fmt.Printf("%-24s %s\n", o.Result.Table, describeResult(o.Result))
		}
		fmt.Println("====================")

		if failed > 0 {
			return fmt.Errorf("%d of %d tables failed", failed, len(outcomes))
		}
		rt.log.Info("Whole-database sync finished", zap.Int("tables", len(outcomes)))
		return nil
	}

	params.Table = args[0]
	result, err := svc.Sync(ctx, params)
	if err != nil {
		return err
	}

	printSyncResult(result)
	rt.log.Info("Sync finished",
		zap.String("table", result.Table),
		zap.String("direction", string(result.Direction)),
		zap.Int64("rows_applied", result.RowsApplied),
		zap.String("cursor", result.CursorAdvancedTo),
		zap.Duration("duration", result.Duration),
	)
	return nil
}

func printSyncResult(r *syncer.Result) {
	fmt.Println("\n--- Sync Result ---")
	fmt.Printf("Table:          %s\n", r.Table)
	fmt.Printf("Direction:      %s\n", r.Direction)
	fmt.Printf("Rows Applied:   %d\n", r.RowsApplied)
	fmt.Printf("Batches:        %d\n", r.Batches)
	fmt.Printf("Final Commit:   %s\n", r.FinalCommit)
	fmt.Printf("Cursor:         %s\n", r.CursorAdvancedTo)
	fmt.Printf("Duration:       %s\n", r.Duration)
	if r.UpToDate {
		fmt.Println("Status:         already up to date")
	}
	fmt.Println("-------------------")
}

func describeResult(r *syncer.Result) string {
	if r.UpToDate {
		return "up to date"
	}
	return fmt.Sprintf("%d rows in %d batches -> %s", r.RowsApplied, r.Batches, shortCommit(r.CursorAdvancedTo))
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
