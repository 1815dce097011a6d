// Package storage implements alert.Repository on SQLite.
//
// The database is a single local file (WAL mode, one writer). Criteria
// are stored as a JSON column so the schema stays stable while the
// parser's output evolves.
package storage
