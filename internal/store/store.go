// Package store holds the persistence backends: an in-memory store, a SQL
// store over Postgres or SQLite, and the Redis client.
package store

import (
	"context"
	"fmt"

	"messhall/internal/attendance"
	"messhall/internal/feedback"
	"messhall/internal/menu"
	"messhall/internal/registration"
	"messhall/internal/roster"
	"messhall/internal/schedule"
)

// Backend is everything the service needs from persistence.
type Backend interface {
	attendance.Store
	registration.Repository
	roster.Directory
	menu.Repository
	feedback.Repository
	schedule.Repository
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*SQL)(nil)
)

// Open selects a backend by name: memory, postgres or sqlite.
func Open(ctx context.Context, kind, databaseURL, sqlitePath string) (Backend, error) {
	var (
		db  *SQL
		err error
	)
	switch kind {
	case "memory":
		return NewMemory(), nil
	case "postgres":
		db, err = OpenPostgres(ctx, databaseURL)
	case "sqlite":
		db, err = OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}
