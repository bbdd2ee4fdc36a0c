// Package utils provides common utility functions shared across the sync
// engine. It mainly covers loose type conversion for values scanned from SQL
// drivers, which disagree about the Go types they hand back.
package utils
