package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"doltsync/core/config"
	"doltsync/core/database"
	"doltsync/core/dolt"
	"doltsync/core/syncer"

	"go.uber.org/zap"
)

// Dumps the commit range and raw diff rows for one table, straight from
// dolt_log and dolt_diff. Usage:
//
//	go run ./cmd/debug_diff <table> [from] [to]
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: debug_diff <table> [from] [to]")
	}
	table := os.Args[1]
	from, to := "", ""
	if len(os.Args) > 2 {
		from = os.Args[2]
	}
	if len(os.Args) > 3 {
		to = os.Args[3]
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.Dolt)
	if err != nil {
		log.Fatal(err)
	}

	client := dolt.NewClient(db, zap.NewNop())
	ctx := context.Background()

	head, err := client.ResolveCommit(ctx, to)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("to commit: %s\n", head)

	if from != "" {
		commits, err := client.CommitsBetween(ctx, from, head)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("\n=== %d commits between %s and %s ===\n", len(commits), from, head)
		for _, c := range commits {
			fmt.Printf("%s  %s  %s\n", c.Hash, c.Date.Format("2006-01-02 15:04:05"), c.Message)
		}
	}

	columns, err := client.TableColumns(ctx, table, head)
	if err != nil {
		log.Fatal(err)
	}
	pk, err := database.GetPrimaryKeyColumns(db, table)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("\ncolumns: %v\nprimary key: %v\n", columns, pk)

	mapping := syncer.TableMapping{SourceTable: table, Columns: columns, PrimaryKey: pk}

	var iter syncer.RecordIterator
	if from == "" {
		fmt.Printf("\n=== snapshot rows at %s ===\n", head)
		iter, err = client.SnapshotRows(ctx, mapping, head)
	} else {
		fmt.Printf("\n=== diff rows %s..%s ===\n", from, head)
		iter, err = client.DiffRows(ctx, mapping, from, head)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer iter.Close()

	count := 0
	for iter.Next() {
		rec := iter.Record()
		if count < 50 {
			fmt.Printf("%-8s %s  %v\n", rec.Op, rec.Fingerprint[:12], rec.Row())
		}
		count++
	}
	if err := iter.Err(); err != nil {
		log.Fatal(err)
	}
	if count > 50 {
		fmt.Printf("... and %d more\n", count-50)
	}
	fmt.Printf("\ntotal records: %d\n", count)
}
