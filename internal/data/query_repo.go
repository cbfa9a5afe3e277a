package data

import (
	"database/sql"

	"datapilot/internal/core"
)

type QueryRepo struct {
	db *sql.DB
}

func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

const queryColumns = `id, user_id, organization_id, connection_id, document_id,
	natural_language_query, sql_query, query_type, result_data, row_count,
	execution_time_ms, status, error_message, is_saved, title, created_at`

// Create persists the record in its pending state. This happens before any
// pipeline stage runs so even a crash leaves an audit trail.
func (r *QueryRepo) Create(q *core.Query) error {
	_, err := r.db.Exec(`INSERT INTO queries
		(id, user_id, organization_id, connection_id, document_id,
		 natural_language_query, query_type, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.UserID, q.OrganizationID, q.ConnectionID, q.DocumentID,
		q.NaturalLanguageQuery, q.QueryType, q.Status)
	return err
}

// Finalize writes the terminal outcome: status, error, generated SQL,
// results and timing. Called exactly once per record.
func (r *QueryRepo) Finalize(q *core.Query) error {
	_, err := r.db.Exec(`UPDATE queries SET
		sql_query=?, result_data=?, row_count=?, execution_time_ms=?,
		status=?, error_message=?
		WHERE id=?`,
		nullIfEmpty(q.SQLQuery), nullIfEmpty(q.ResultData), q.RowCount,
		q.ExecutionTimeMs, q.Status, nullIfEmpty(q.ErrorMessage), q.ID)
	return err
}

func (r *QueryRepo) ListForUser(userID string, savedOnly bool, offset, limit int) ([]core.Query, int, error) {
	where := `WHERE user_id = ?`
	if savedOnly {
		where += ` AND is_saved = 1`
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM queries `+where, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(`SELECT `+queryColumns+` FROM queries `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var queries []core.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, 0, err
		}
		queries = append(queries, *q)
	}
	return queries, total, rows.Err()
}

func (r *QueryRepo) GetForUser(id, userID string) (*core.Query, error) {
	row := r.db.QueryRow(`SELECT `+queryColumns+` FROM queries
		WHERE id = ? AND user_id = ?`, id, userID)
	return scanQuery(row)
}

func (r *QueryRepo) Save(id, userID, title string) error {
	res, err := r.db.Exec(`UPDATE queries SET is_saved=1, title=?
		WHERE id=? AND user_id=?`, title, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *QueryRepo) Delete(id, userID string) error {
	res, err := r.db.Exec(`DELETE FROM queries WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanQuery(row rowScanner) (*core.Query, error) {
	var q core.Query
	var orgID, connID, docID, sqlQuery, resultData, errMsg, title sql.NullString
	var rowCount sql.NullInt64
	var execMs sql.NullInt64
	var isSaved int

	err := row.Scan(&q.ID, &q.UserID, &orgID, &connID, &docID,
		&q.NaturalLanguageQuery, &sqlQuery, &q.QueryType, &resultData, &rowCount,
		&execMs, &q.Status, &errMsg, &isSaved, &title, &q.CreatedAt)
	if err != nil {
		return nil, err
	}

	if orgID.Valid {
		q.OrganizationID = &orgID.String
	}
	if connID.Valid {
		q.ConnectionID = &connID.String
	}
	if docID.Valid {
		q.DocumentID = &docID.String
	}
	q.SQLQuery = sqlQuery.String
	q.ResultData = resultData.String
	q.ErrorMessage = errMsg.String
	q.Title = title.String
	q.IsSaved = isSaved == 1
	if rowCount.Valid {
		n := int(rowCount.Int64)
		q.RowCount = &n
	}
	if execMs.Valid {
		ms := execMs.Int64
		q.ExecutionTimeMs = &ms
	}
	return &q, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
