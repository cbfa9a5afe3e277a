package data

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapilot/internal/core"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, id string, orgID *string) {
	t.Helper()
	require.NoError(t, NewUserRepo(db).Upsert(&core.User{
		ID:             id,
		Email:          id + "@example.com",
		OrganizationID: orgID,
		Role:           "member",
		IsActive:       true,
	}))
}

func TestUserRepoUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)

	require.NoError(t, repo.Upsert(&core.User{
		ID: "user_1", Email: "a@example.com", Role: "member", IsActive: true,
	}))

	u, err := repo.GetByID("user_1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, "member", u.Role)
	assert.True(t, u.IsActive)

	// Upsert again with refreshed identity fields
	require.NoError(t, repo.Upsert(&core.User{
		ID: "user_1", Email: "b@example.com", Role: "admin", IsActive: true,
	}))

	u, err = repo.GetByID("user_1")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", u.Email)
	assert.Equal(t, "admin", u.Role)
}

func TestUserRepoUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)
	seedUser(t, db, "user_1", nil)

	u, err := repo.GetByID("user_1")
	require.NoError(t, err)

	u.FirstName = "Ada"
	u.LastName = "Lovelace"
	u.Username = "ada"
	require.NoError(t, repo.Update(u))

	u, err = repo.GetByID("user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "Lovelace", u.LastName)
	assert.NotNil(t, u.UpdatedAt)
}

func TestUserRepoOrganization(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepo(db)

	require.NoError(t, repo.UpsertOrganization(&core.Organization{
		ID: "org_1", Name: "Acme", Slug: "acme", IsActive: true, MaxMembers: 10,
	}))

	org, err := repo.GetOrganization("org_1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "acme", org.Slug)

	orgID := "org_1"
	seedUser(t, db, "user_1", &orgID)
	seedUser(t, db, "user_2", &orgID)
	seedUser(t, db, "user_3", nil)

	members, err := repo.ListByOrganization("org_1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestConnectionRepoOwnerScoping(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepo(db)
	seedUser(t, db, "owner", nil)
	seedUser(t, db, "stranger", nil)

	conn := &core.DataConnection{
		ID:             uuid.NewString(),
		UserID:         "owner",
		Name:           "prod replica",
		ConnectionType: "postgresql",
		Host:           "db.internal",
		Port:           5432,
		Database:       "sales",
		Username:       "reader",
		PasswordEnc:    "ciphertext",
		IsActive:       true,
	}
	require.NoError(t, repo.Create(conn))

	got, err := repo.GetForUser(conn.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "prod replica", got.Name)
	assert.Equal(t, "ciphertext", got.PasswordEnc)

	_, err = repo.GetForUser(conn.ID, "stranger")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = repo.Delete(conn.ID, "stranger")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, repo.Delete(conn.ID, "owner"))
	_, err = repo.GetForUser(conn.ID, "owner")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestConnectionRepoListIncludesOrgShared(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepo(db)
	userRepo := NewUserRepo(db)

	require.NoError(t, userRepo.UpsertOrganization(&core.Organization{
		ID: "org_1", Name: "Acme", Slug: "acme", IsActive: true, MaxMembers: 10,
	}))
	orgID := "org_1"
	seedUser(t, db, "alice", &orgID)
	seedUser(t, db, "bob", &orgID)

	own := &core.DataConnection{
		ID: uuid.NewString(), UserID: "alice", Name: "mine",
		ConnectionType: "postgresql", Host: "h", Port: 5432,
		Database: "d", Username: "u", PasswordEnc: "x", IsActive: true,
	}
	shared := &core.DataConnection{
		ID: uuid.NewString(), UserID: "bob", OrganizationID: &orgID, Name: "team",
		ConnectionType: "mysql", Host: "h", Port: 3306,
		Database: "d", Username: "u", PasswordEnc: "x", IsActive: true,
	}
	require.NoError(t, repo.Create(own))
	require.NoError(t, repo.Create(shared))

	conns, err := repo.ListForUser("alice", &orgID)
	require.NoError(t, err)
	assert.Len(t, conns, 2)

	// Without an organization, only owned connections are visible
	conns, err = repo.ListForUser("alice", nil)
	require.NoError(t, err)
	assert.Len(t, conns, 1)
	assert.Equal(t, "mine", conns[0].Name)
}

func TestConnectionRepoCreatePersistsTestTimestamp(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepo(db)
	seedUser(t, db, "owner", nil)

	now := time.Now().UTC()
	conn := &core.DataConnection{
		ID: uuid.NewString(), UserID: "owner", Name: "tested at create",
		ConnectionType: "postgresql", Host: "h", Port: 5432,
		Database: "d", Username: "u", PasswordEnc: "x", IsActive: true,
		LastTestedAt: &now, LastTestStatus: "success",
	}
	require.NoError(t, repo.Create(conn))

	got, err := repo.GetForUser(conn.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "success", got.LastTestStatus)
	require.NotNil(t, got.LastTestedAt)
	assert.WithinDuration(t, now, *got.LastTestedAt, time.Second)
}

func TestConnectionRepoUpdateTestStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewConnectionRepo(db)
	seedUser(t, db, "owner", nil)

	conn := &core.DataConnection{
		ID: uuid.NewString(), UserID: "owner", Name: "c",
		ConnectionType: "postgresql", Host: "h", Port: 5432,
		Database: "d", Username: "u", PasswordEnc: "x", IsActive: true,
	}
	require.NoError(t, repo.Create(conn))

	require.NoError(t, repo.UpdateTestStatus(conn.ID, "failed", "connection refused"))

	got, err := repo.GetForUser(conn.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.LastTestStatus)
	assert.Equal(t, "connection refused", got.LastTestError)
	assert.NotNil(t, got.LastTestedAt)
}

func TestQueryRepoLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryRepo(db)
	seedUser(t, db, "owner", nil)

	q := &core.Query{
		ID:                   uuid.NewString(),
		UserID:               "owner",
		NaturalLanguageQuery: "how many accounts",
		QueryType:            core.QueryTypeDatabase,
		Status:               core.QueryStatusPending,
	}
	require.NoError(t, repo.Create(q))

	got, err := repo.GetForUser(q.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, core.QueryStatusPending, got.Status)
	assert.Empty(t, got.SQLQuery)

	rowCount := 1
	execMs := int64(42)
	q.Status = core.QueryStatusSuccess
	q.SQLQuery = "SELECT COUNT(*) FROM accounts"
	q.ResultData = `[{"count": 3}]`
	q.RowCount = &rowCount
	q.ExecutionTimeMs = &execMs
	require.NoError(t, repo.Finalize(q))

	got, err = repo.GetForUser(q.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, core.QueryStatusSuccess, got.Status)
	assert.Equal(t, "SELECT COUNT(*) FROM accounts", got.SQLQuery)
	assert.Equal(t, `[{"count": 3}]`, got.ResultData)
	require.NotNil(t, got.RowCount)
	assert.Equal(t, 1, *got.RowCount)
	require.NotNil(t, got.ExecutionTimeMs)
	assert.Equal(t, int64(42), *got.ExecutionTimeMs)
}

func TestQueryRepoSaveAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueryRepo(db)
	seedUser(t, db, "owner", nil)
	seedUser(t, db, "stranger", nil)

	var ids []string
	for i := 0; i < 3; i++ {
		q := &core.Query{
			ID:                   uuid.NewString(),
			UserID:               "owner",
			NaturalLanguageQuery: "question",
			QueryType:            core.QueryTypeDatabase,
			Status:               core.QueryStatusPending,
		}
		require.NoError(t, repo.Create(q))
		ids = append(ids, q.ID)
	}

	require.NoError(t, repo.Save(ids[0], "owner", "monthly totals"))
	assert.ErrorIs(t, repo.Save(ids[1], "stranger", "nope"), sql.ErrNoRows)

	all, total, err := repo.ListForUser("owner", false, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	saved, total, err := repo.ListForUser("owner", true, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, saved, 1)
	assert.Equal(t, "monthly totals", saved[0].Title)
	assert.True(t, saved[0].IsSaved)

	// Pagination: total reflects all matches even when the page is smaller
	page, total, err := repo.ListForUser("owner", false, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	assert.ErrorIs(t, repo.Delete(ids[2], "stranger"), sql.ErrNoRows)
	require.NoError(t, repo.Delete(ids[2], "owner"))
	_, total, err = repo.ListForUser("owner", false, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestDatasetRepoCRUD(t *testing.T) {
	db := newTestDB(t)
	repo := NewDatasetRepo(db)
	userRepo := NewUserRepo(db)

	require.NoError(t, userRepo.UpsertOrganization(&core.Organization{
		ID: "org_1", Name: "Acme", Slug: "acme", IsActive: true, MaxMembers: 10,
	}))
	require.NoError(t, userRepo.UpsertOrganization(&core.Organization{
		ID: "org_2", Name: "Other", Slug: "other", IsActive: true, MaxMembers: 10,
	}))

	d := &core.Dataset{
		ID:             uuid.NewString(),
		OrganizationID: "org_1",
		Name:           "sales 2026",
		Description:    "quarterly exports",
		CreatedBy:      "user_1",
		RowCount:       1000,
		ColumnCount:    12,
		FileSize:       2048,
		IsActive:       true,
	}
	require.NoError(t, repo.Create(d))

	got, err := repo.Get(d.ID, "org_1")
	require.NoError(t, err)
	assert.Equal(t, "sales 2026", got.Name)
	assert.Equal(t, 1000, got.RowCount)

	// Tenant isolation
	_, err = repo.Get(d.ID, "org_2")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	got.Name = "sales 2026 (revised)"
	require.NoError(t, repo.Update(got))
	got, err = repo.Get(d.ID, "org_1")
	require.NoError(t, err)
	assert.Equal(t, "sales 2026 (revised)", got.Name)

	list, err := repo.ListByOrganization("org_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.Delete(d.ID, "org_2"), sql.ErrNoRows)
	require.NoError(t, repo.Delete(d.ID, "org_1"))
}

func TestDocumentRepoGetForUser(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	seedUser(t, db, "owner", nil)

	docID := uuid.NewString()
	_, err := db.Exec(`INSERT INTO documents
		(id, user_id, name, original_filename, file_type, file_size_bytes, status)
		VALUES (?, ?, 'report', 'report.pdf', 'pdf', 1024, 'ready')`,
		docID, "owner")
	require.NoError(t, err)

	d, err := repo.GetForUser(docID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "report", d.Name)
	assert.Equal(t, "pdf", d.FileType)

	_, err = repo.GetForUser(docID, "stranger")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
