package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"doltsync/core/config"
	"doltsync/core/database"
	"doltsync/core/dialect"
	"doltsync/core/dolt"
	"doltsync/core/logger"
	"doltsync/core/syncer"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime bundles the connections and the sync engine the CLI commands share.
// Every command needs the same two databases, so the wiring lives here once.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	doltDB   *gorm.DB
	targetDB *gorm.DB
	source   *dolt.Client
	target   syncer.Adapter
	store    *syncer.SQLCursorStore
	engine   *syncer.Engine
}

func newRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	doltDB, err := database.Connect(cfg.Dolt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dolt: %w", err)
	}
	targetDB, err := database.Connect(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}

	source := dolt.NewClient(doltDB, l)
	target, err := dialect.New(cfg.Dialect(), targetDB, l)
	if err != nil {
		return nil, err
	}
	// Dolt speaks the MySQL wire protocol, so reverse syncs write through
	// the mysql adapter.
	doltSide, err := dialect.New(dialect.MySQL, doltDB, l)
	if err != nil {
		return nil, err
	}

	stateDB := targetDB
	if cfg.Sync.StateDB == "dolt" {
		stateDB = doltDB
	}
	store, err := syncer.NewSQLCursorStore(stateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare cursor store: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		log:      l,
		doltDB:   doltDB,
		targetDB: targetDB,
		source:   source,
		target:   target,
		store:    store,
		engine:   syncer.NewEngine(source, target, doltSide, store, l),
	}, nil
}

// confirmAction prompts the user for confirmation unless --yes was given.
func confirmAction(autoConfirm bool) bool {
	if autoConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(response) == "yes"
}
