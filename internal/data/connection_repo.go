package data

import (
	"database/sql"

	"datapilot/internal/core"
)

type ConnectionRepo struct {
	db *sql.DB
}

func NewConnectionRepo(db *sql.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionColumns = `id, user_id, organization_id, name, connection_type, host, port,
	database_name, username, password_enc, ssl_enabled, is_active,
	last_tested_at, last_test_status, last_test_error, created_at, updated_at`

func (r *ConnectionRepo) Create(conn *core.DataConnection) error {
	_, err := r.db.Exec(`INSERT INTO data_connections
		(id, user_id, organization_id, name, connection_type, host, port,
		 database_name, username, password_enc, ssl_enabled, is_active,
		 last_tested_at, last_test_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.OrganizationID, conn.Name, conn.ConnectionType,
		conn.Host, conn.Port, conn.Database, conn.Username, conn.PasswordEnc,
		conn.SSLEnabled, conn.IsActive, conn.LastTestedAt, conn.LastTestStatus)
	return err
}

// ListForUser returns the user's own connections plus any shared with the
// user's organization.
func (r *ConnectionRepo) ListForUser(userID string, orgID *string) ([]core.DataConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM data_connections WHERE user_id = ?`
	args := []any{userID}
	if orgID != nil {
		query = `SELECT ` + connectionColumns + ` FROM data_connections
			WHERE user_id = ? OR organization_id = ?`
		args = append(args, *orgID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []core.DataConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepo) GetForUser(id, userID string) (*core.DataConnection, error) {
	row := r.db.QueryRow(`SELECT `+connectionColumns+` FROM data_connections
		WHERE id = ? AND user_id = ?`, id, userID)
	return scanConnection(row)
}

func (r *ConnectionRepo) Update(conn *core.DataConnection) error {
	_, err := r.db.Exec(`UPDATE data_connections SET
		name=?, connection_type=?, host=?, port=?, database_name=?, username=?,
		password_enc=?, ssl_enabled=?, is_active=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`,
		conn.Name, conn.ConnectionType, conn.Host, conn.Port, conn.Database,
		conn.Username, conn.PasswordEnc, conn.SSLEnabled, conn.IsActive, conn.ID)
	return err
}

func (r *ConnectionRepo) UpdateTestStatus(id, status, testErr string) error {
	_, err := r.db.Exec(`UPDATE data_connections SET
		last_tested_at=CURRENT_TIMESTAMP, last_test_status=?, last_test_error=?
		WHERE id=?`, status, testErr, id)
	return err
}

func (r *ConnectionRepo) Delete(id, userID string) error {
	res, err := r.db.Exec(`DELETE FROM data_connections WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*core.DataConnection, error) {
	var c core.DataConnection
	var sslEnabled, isActive int
	var orgID, lastStatus, lastError sql.NullString
	var lastTested, updatedAt sql.NullTime

	err := row.Scan(&c.ID, &c.UserID, &orgID, &c.Name, &c.ConnectionType,
		&c.Host, &c.Port, &c.Database, &c.Username, &c.PasswordEnc,
		&sslEnabled, &isActive, &lastTested, &lastStatus, &lastError,
		&c.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	// SQLite stores booleans as integers
	c.SSLEnabled = sslEnabled == 1
	c.IsActive = isActive == 1
	if orgID.Valid {
		c.OrganizationID = &orgID.String
	}
	c.LastTestStatus = lastStatus.String
	c.LastTestError = lastError.String
	if lastTested.Valid {
		t := lastTested.Time
		c.LastTestedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		c.UpdatedAt = &t
	}
	return &c, nil
}
