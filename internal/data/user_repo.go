package data

import (
	"database/sql"

	"datapilot/internal/core"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Upsert inserts or refreshes a user row from verified token claims. The
// identity provider owns these fields, so a conflict simply overwrites them.
func (r *UserRepo) Upsert(user *core.User) error {
	_, err := r.db.Exec(`INSERT INTO users
		(id, email, first_name, last_name, username, image_url, organization_id, role, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email=excluded.email,
			organization_id=excluded.organization_id,
			role=excluded.role,
			updated_at=CURRENT_TIMESTAMP`,
		user.ID, user.Email, user.FirstName, user.LastName, user.Username,
		user.ImageURL, user.OrganizationID, user.Role, user.IsActive)
	return err
}

func (r *UserRepo) GetByID(id string) (*core.User, error) {
	row := r.db.QueryRow(`SELECT id, email, first_name, last_name, username, image_url,
		organization_id, role, is_active, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// Update persists profile fields a user may edit themselves.
func (r *UserRepo) Update(user *core.User) error {
	_, err := r.db.Exec(`UPDATE users SET
		first_name=?, last_name=?, username=?, image_url=?, updated_at=CURRENT_TIMESTAMP
		WHERE id=?`,
		user.FirstName, user.LastName, user.Username, user.ImageURL, user.ID)
	return err
}

func (r *UserRepo) ListByOrganization(orgID string) ([]core.User, error) {
	rows, err := r.db.Query(`SELECT id, email, first_name, last_name, username, image_url,
		organization_id, role, is_active, created_at, updated_at
		FROM users WHERE organization_id = ? ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *UserRepo) UpsertOrganization(org *core.Organization) error {
	_, err := r.db.Exec(`INSERT INTO organizations (id, name, slug, is_active, max_members)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		org.ID, org.Name, org.Slug, org.IsActive, org.MaxMembers)
	return err
}

func (r *UserRepo) GetOrganization(id string) (*core.Organization, error) {
	var org core.Organization
	var isActive int
	err := r.db.QueryRow(`SELECT id, name, slug, is_active, max_members, created_at
		FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &org.Slug, &isActive, &org.MaxMembers, &org.CreatedAt)
	if err != nil {
		return nil, err
	}
	org.IsActive = isActive == 1
	return &org, nil
}

func scanUser(row rowScanner) (*core.User, error) {
	var u core.User
	var firstName, lastName, username, imageURL, orgID sql.NullString
	var isActive int
	var updatedAt sql.NullTime

	err := row.Scan(&u.ID, &u.Email, &firstName, &lastName, &username, &imageURL,
		&orgID, &u.Role, &isActive, &u.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Username = username.String
	u.ImageURL = imageURL.String
	if orgID.Valid {
		u.OrganizationID = &orgID.String
	}
	u.IsActive = isActive == 1
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}
	return &u, nil
}
