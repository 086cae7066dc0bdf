// Package journal records download runs and the outcome of every transfer
// and extraction in a SQLite database.
//
// Each run gets a UUID. The history subcommand reads runs back newest first.
package journal
