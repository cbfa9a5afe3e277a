package core

// Claims is the verified identity delivered by the token verifier.
type Claims struct {
	UserID         string
	Email          string
	OrganizationID *string
	Role           string
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// TokenVerifier verifies a bearer token and returns the identity claims.
// Token cryptography lives behind this boundary.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// UserRepository defines storage operations for users and organizations.
type UserRepository interface {
	Upsert(user *User) error
	GetByID(id string) (*User, error)
	Update(user *User) error
	ListByOrganization(orgID string) ([]User, error)
	UpsertOrganization(org *Organization) error
	GetOrganization(id string) (*Organization, error)
}

// ConnectionRepository defines storage operations for data connections.
// Reads are owner-scoped: a connection is visible to its owning user, or to
// members of the organization it is shared with.
type ConnectionRepository interface {
	Create(conn *DataConnection) error
	ListForUser(userID string, orgID *string) ([]DataConnection, error)
	GetForUser(id, userID string) (*DataConnection, error)
	Update(conn *DataConnection) error
	UpdateTestStatus(id, status, testErr string) error
	Delete(id, userID string) error
}

// QueryRepository defines storage operations for query provenance records.
type QueryRepository interface {
	Create(q *Query) error
	Finalize(q *Query) error
	ListForUser(userID string, savedOnly bool, offset, limit int) ([]Query, int, error)
	GetForUser(id, userID string) (*Query, error)
	Save(id, userID, title string) error
	Delete(id, userID string) error
}

// DatasetRepository defines storage operations for tenant datasets.
type DatasetRepository interface {
	Create(d *Dataset) error
	ListByOrganization(orgID string) ([]Dataset, error)
	Get(id, orgID string) (*Dataset, error)
	Update(d *Dataset) error
	Delete(id, orgID string) error
}

// DocumentRepository defines storage operations for uploaded documents.
type DocumentRepository interface {
	GetForUser(id, userID string) (*Document, error)
}
