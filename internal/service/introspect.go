package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"datapilot/internal/core"
)

// maxSchemaTables bounds how many tables a snapshot may describe, keeping
// prompt size and introspection latency in check.
const maxSchemaTables = 10

// Introspector produces a bounded structural description of a target
// database for use as generation context.
type Introspector struct {
	log *zap.SugaredLogger
}

func NewIntrospector(log *zap.SugaredLogger) *Introspector {
	return &Introspector{log: log}
}

// Describe opens a short-lived connection, lists base tables in the default
// namespace and fetches ordered columns for up to maxSchemaTables of them.
// On any failure it returns an empty snapshot; the caller decides whether an
// empty snapshot is fatal for its operation.
func (in *Introspector) Describe(ctx context.Context, conn *core.DataConnection, password string) *core.SchemaSnapshot {
	snapshot := &core.SchemaSnapshot{}

	driver, dsn, err := buildDSN(conn, password)
	if err != nil {
		in.log.Errorw("schema introspection failed", "connection_id", conn.ID, "error", err)
		return snapshot
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		in.log.Errorw("schema introspection failed", "connection_id", conn.ID, "error", err)
		return snapshot
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, connectTimeoutSeconds*time.Second)
	defer cancel()

	tables, err := listTables(ctx, db, driver)
	if err != nil {
		in.log.Errorw("listing tables failed", "connection_id", conn.ID, "error", err)
		return snapshot
	}
	if len(tables) > maxSchemaTables {
		tables = tables[:maxSchemaTables]
	}

	for _, table := range tables {
		columns, err := listColumns(ctx, db, driver, table)
		if err != nil {
			in.log.Errorw("listing columns failed",
				"connection_id", conn.ID, "table", table, "error", err)
			continue
		}
		snapshot.Tables = append(snapshot.Tables, core.TableSchema{Name: table, Columns: columns})
	}

	return snapshot
}

func listTables(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	var query string
	switch driver {
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	case "mysql":
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	case "sqlserver":
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_type = 'BASE TABLE' ORDER BY table_name`
	case "sqlite":
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// listColumns fetches ordered (name, declared type) pairs for one table.
// The table name is always passed as a bind parameter, never interpolated.
func listColumns(ctx context.Context, db *sql.DB, driver, table string) ([]core.ColumnSchema, error) {
	var query string
	switch driver {
	case "postgres":
		query = `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1
			ORDER BY ordinal_position`
	case "mysql":
		query = `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	case "sqlserver":
		query = `SELECT column_name, data_type FROM information_schema.columns
			WHERE table_name = @p1 ORDER BY ordinal_position`
	case "sqlite":
		query = `SELECT name, type FROM pragma_table_info(?)`
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []core.ColumnSchema
	for rows.Next() {
		var col core.ColumnSchema
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		col.Type = strings.ToLower(col.Type)
		columns = append(columns, col)
	}
	return columns, rows.Err()
}
