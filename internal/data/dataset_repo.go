package data

import (
	"database/sql"

	"datapilot/internal/core"
)

type DatasetRepo struct {
	db *sql.DB
}

func NewDatasetRepo(db *sql.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

func (r *DatasetRepo) Create(d *core.Dataset) error {
	_, err := r.db.Exec(`INSERT INTO datasets
		(id, organization_id, name, description, created_by, row_count, column_count, file_size, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OrganizationID, d.Name, d.Description, d.CreatedBy,
		d.RowCount, d.ColumnCount, d.FileSize, d.IsActive)
	return err
}

func (r *DatasetRepo) ListByOrganization(orgID string) ([]core.Dataset, error) {
	rows, err := r.db.Query(`SELECT id, organization_id, name, description, created_by,
		row_count, column_count, file_size, is_active, created_at, updated_at
		FROM datasets WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []core.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

func (r *DatasetRepo) Get(id, orgID string) (*core.Dataset, error) {
	row := r.db.QueryRow(`SELECT id, organization_id, name, description, created_by,
		row_count, column_count, file_size, is_active, created_at, updated_at
		FROM datasets WHERE id = ? AND organization_id = ?`, id, orgID)
	return scanDataset(row)
}

func (r *DatasetRepo) Update(d *core.Dataset) error {
	_, err := r.db.Exec(`UPDATE datasets SET
		name=?, description=?, row_count=?, column_count=?, file_size=?,
		is_active=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=? AND organization_id=?`,
		d.Name, d.Description, d.RowCount, d.ColumnCount, d.FileSize,
		d.IsActive, d.ID, d.OrganizationID)
	return err
}

func (r *DatasetRepo) Delete(id, orgID string) error {
	res, err := r.db.Exec(`DELETE FROM datasets WHERE id=? AND organization_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanDataset(row rowScanner) (*core.Dataset, error) {
	var d core.Dataset
	var description, createdBy sql.NullString
	var isActive int
	var updatedAt sql.NullTime

	err := row.Scan(&d.ID, &d.OrganizationID, &d.Name, &description, &createdBy,
		&d.RowCount, &d.ColumnCount, &d.FileSize, &isActive, &d.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Description = description.String
	d.CreatedBy = createdBy.String
	d.IsActive = isActive == 1
	if updatedAt.Valid {
		t := updatedAt.Time
		d.UpdatedAt = &t
	}
	return &d, nil
}
