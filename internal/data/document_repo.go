package data

import (
	"database/sql"

	"datapilot/internal/core"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) GetForUser(id, userID string) (*core.Document, error) {
	var d core.Document
	var orgID sql.NullString
	err := r.db.QueryRow(`SELECT id, user_id, organization_id, name, original_filename,
		file_type, file_size_bytes, status, created_at
		FROM documents WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&d.ID, &d.UserID, &orgID, &d.Name, &d.OriginalFilename,
			&d.FileType, &d.FileSizeBytes, &d.Status, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		d.OrganizationID = &orgID.String
	}
	return &d, nil
}
