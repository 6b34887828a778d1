// Package database provides the SQLite connection and schema migrations.
//
// Box Panel keeps very little on disk: the reboot schedule and the schema
// version table. The database is opened once at startup, migrated, and
// closed last during shutdown.
package database
