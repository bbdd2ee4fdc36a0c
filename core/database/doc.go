// Package database handles database connections and schema inspection.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) that
// builds connections from configuration for every engine this module talks
// to: Dolt (over the MySQL wire protocol), MySQL, Postgres, and SQLite.
//
// # Connect
//
// The generic Connect function establishes a connection for the configured
// driver and verifies it with a ping before returning. Oracle handles are the
// one exception: callers construct those themselves and hand the *gorm.DB to
// the dialect adapter directly.
//
// # Schema Inspection
//
// The package includes tools to inspect live table schemas: column
// definitions, primary key columns, and table existence. Sync jobs use the
// inspector to resolve table mappings and to detect schema drift before
// applying changes. The Inspector type adds a TTL cache with stampede
// protection on top of the raw lookups.
//
// # Usage
//
//	db, err := database.Connect(cfg.Target)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	insp := database.NewInspector(db, 5*time.Minute)
//	schema, err := insp.Schema("orders")
package database
