package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Open opens the relational database backing the event log and wraps it in a
// bun.DB with the matching dialect. Callers own closing the returned handle.
func Open(driver, dsn string) (*bun.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, sqlstoreBadInput("sqlstore: dsn is required", nil)
	}

	var dialect schema.Dialect
	switch driver {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, sqlstoreBadInput("sqlstore: unsupported driver", map[string]any{
			"driver": driver,
		})
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, sqlstoreWrapInternal(err, "sqlstore: open database", map[string]any{
			"driver": driver,
		})
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// OpenEventStore is the one-call composition path: open the database and
// build the event log on top of it.
func OpenEventStore(driver, dsn string) (*EventStore, *bun.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewEventStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// NewEventStoreFromPersistence builds the relational event log from a
// go-persistence-bun client, the composition path applications use after
// running migrations through the same client.
func NewEventStoreFromPersistence(client *persistence.Client) (*EventStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewEventStore(db)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, sqlstoreBadInput("sqlstore: persistence client is required", nil)
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, sqlstoreInternal("sqlstore: persistence client returned nil bun db", nil)
		}
		return db, nil
	default:
		return nil, sqlstoreBadInput("sqlstore: unsupported persistence client type", map[string]any{
			"type": fmt.Sprintf("%T", candidate),
		})
	}
}
