package data

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// InitDB opens the metadata database at the given path and runs migrations.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		max_members INTEGER NOT NULL DEFAULT 10,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT,
		last_name TEXT,
		username TEXT,
		image_url TEXT,
		organization_id TEXT REFERENCES organizations(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT 'member',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_users_org ON users(organization_id);

	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		created_by TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		column_count INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_org ON datasets(organization_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		organization_id TEXT,
		name TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size_bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'uploading',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS data_connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		organization_id TEXT,
		name TEXT NOT NULL,
		connection_type TEXT NOT NULL DEFAULT 'postgresql',
		host TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 5432,
		database_name TEXT NOT NULL,
		username TEXT NOT NULL,
		password_enc TEXT NOT NULL,
		ssl_enabled INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_tested_at DATETIME,
		last_test_status TEXT,
		last_test_error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_connections_user ON data_connections(user_id);

	CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		organization_id TEXT,
		connection_id TEXT REFERENCES data_connections(id),
		document_id TEXT REFERENCES documents(id),
		natural_language_query TEXT NOT NULL,
		sql_query TEXT,
		query_type TEXT NOT NULL,
		result_data TEXT,
		row_count INTEGER,
		execution_time_ms INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		is_saved INTEGER NOT NULL DEFAULT 0,
		title TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_queries_user ON queries(user_id);
	`
	_, err := db.Exec(schema)
	return err
}
