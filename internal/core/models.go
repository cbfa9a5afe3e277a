package core

import (
	"time"
)

// Query status values. Transitions are monotonic: pending -> success|failed.
const (
	QueryStatusPending = "pending"
	QueryStatusSuccess = "success"
	QueryStatusFailed  = "failed"
)

// Query kind values.
const (
	QueryTypeDatabase = "database"
	QueryTypeDocument = "document"
)

// User mirrors an identity-provider user. Rows are synced lazily from
// verified token claims; the provider remains the source of truth.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	Username       string     `json:"username,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	OrganizationID *string    `json:"organization_id,omitempty"`
	Role           string     `json:"role"` // admin, member, viewer
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Organization is the tenant root.
type Organization struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	IsActive   bool      `json:"is_active"`
	MaxMembers int       `json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`
}

// Dataset is tenant-scoped data metadata.
type Dataset struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	RowCount       int        `json:"row_count"`
	ColumnCount    int        `json:"column_count"`
	FileSize       int64      `json:"file_size"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Document is an uploaded-file query target. The document query path is not
// implemented yet; the model exists so query records can reference it.
type Document struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	OrganizationID   *string   `json:"organization_id,omitempty"`
	Name             string    `json:"name"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// DataConnection holds credentials and network coordinates for one external
// relational database. The password is stored vault-encrypted only and is
// never serialized into API responses.
type DataConnection struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	OrganizationID *string `json:"organization_id,omitempty"`

	Name           string `json:"name"`
	ConnectionType string `json:"connection_type"` // postgresql, mysql, sqlserver, sqlite
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Database       string `json:"database"`
	Username       string `json:"username"`
	PasswordEnc    string `json:"-"` // vault ciphertext
	SSLEnabled     bool   `json:"ssl_enabled"`

	IsActive       bool       `json:"is_active"`
	LastTestedAt   *time.Time `json:"last_tested_at,omitempty"`
	LastTestStatus string     `json:"last_test_status,omitempty"`
	LastTestError  string     `json:"last_test_error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Query is the durable provenance record for one natural-language request.
// Exactly one of ConnectionID / DocumentID is set.
type Query struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	OrganizationID *string `json:"organization_id,omitempty"`
	ConnectionID   *string `json:"connection_id,omitempty"`
	DocumentID     *string `json:"document_id,omitempty"`

	NaturalLanguageQuery string `json:"natural_language_query"`
	SQLQuery             string `json:"sql_query,omitempty"` // empty until generation succeeds
	QueryType            string `json:"query_type"`

	ResultData      string `json:"-"` // serialized rows, JSON
	RowCount        *int   `json:"row_count,omitempty"`
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`

	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`

	IsSaved   bool      `json:"is_saved"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SchemaSnapshot is the ephemeral structural description handed to the SQL
// generator. Table order is preserved so prompts are stable.
type SchemaSnapshot struct {
	Tables []TableSchema
}

// TableSchema is one table with ordered columns.
type TableSchema struct {
	Name    string
	Columns []ColumnSchema
}

// ColumnSchema is a column name plus its declared type.
type ColumnSchema struct {
	Name string
	Type string
}

// Empty reports whether introspection produced nothing usable.
func (s *SchemaSnapshot) Empty() bool {
	return s == nil || len(s.Tables) == 0
}
