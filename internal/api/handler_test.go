package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"datapilot/internal/config"
	"datapilot/internal/core"
	"datapilot/internal/data"
	"datapilot/internal/service"
)

const apiTestSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	srv     *httptest.Server
	db      *sql.DB
	invoker *fakeInvoker
	vault   *service.Vault
}

// fakeInvoker replays a canned model completion.
type fakeInvoker struct {
	completion string
}

func (f *fakeInvoker) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	resp := map[string]any{
		"content": []map[string]string{{"text": f.completion}},
		"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
	}
	return json.Marshal(resp)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := data.InitDB(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop().Sugar()
	vault, err := service.NewVault(apiTestSecret)
	require.NoError(t, err)

	cfg := &config.Config{
		AppName:     "DataPilot",
		SecretKey:   apiTestSecret,
		CORSOrigins: []string{"http://localhost:3000"},
	}

	userRepo := data.NewUserRepo(db)
	connRepo := data.NewConnectionRepo(db)
	queryRepo := data.NewQueryRepo(db)
	datasetRepo := data.NewDatasetRepo(db)
	docRepo := data.NewDocumentRepo(db)

	invoker := &fakeInvoker{}
	executor := service.NewQueryExecutor(
		connRepo, queryRepo, docRepo,
		vault,
		service.NewIntrospector(log),
		service.NewGenerator(invoker, "test-model", 1024, 0.1, log),
		log,
	)

	handler := NewHandler(cfg, log,
		NewJWTVerifier(apiTestSecret),
		userRepo, connRepo, queryRepo, datasetRepo,
		executor,
		service.NewConnectionTester(log),
		vault, db, nil)

	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, db: db, invoker: invoker, vault: vault}
}

func signToken(t *testing.T, userID, email, orgID, orgRole string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if orgID != "" {
		claims["org_id"] = orgID
		claims["org_role"] = orgRole
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiTestSecret))
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "disabled", body["redis"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/users/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthWrongKeyRejected(t *testing.T) {
	ts := newTestServer(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user_1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUserSyncedFromClaims(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "org_1", "admin")

	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user core.User
	decodeBody(t, resp, &user)
	assert.Equal(t, "user_1", user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "admin", user.Role)
	require.NotNil(t, user.OrganizationID)
	assert.Equal(t, "org_1", *user.OrganizationID)

	// The organization was synced too
	resp = ts.do(t, http.MethodGet, "/api/v1/users/organization/info", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateProfile(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")

	resp := ts.do(t, http.MethodPatch, "/api/v1/users/me", token, map[string]string{
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user core.User
	decodeBody(t, resp, &user)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
}

// seedSQLiteConnection creates a seeded sqlite target file and registers it
// directly through the repository, bypassing the live connection test.
func (ts *testServer) seedSQLiteConnection(t *testing.T, userID string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.db")
	target, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer target.Close()
	_, err = target.Exec(`
		CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL);
		INSERT INTO orders (id, total) VALUES (1, 9.5), (2, 20.0);
	`)
	require.NoError(t, err)

	encrypted, err := ts.vault.Encrypt("")
	require.NoError(t, err)

	connID := fmt.Sprintf("conn_%d", time.Now().UnixNano())
	conn := &core.DataConnection{
		ID:             connID,
		UserID:         userID,
		Name:           "target",
		ConnectionType: "sqlite",
		Host:           "localhost",
		Database:       path,
		Username:       "n/a",
		PasswordEnc:    encrypted,
		IsActive:       true,
	}
	require.NoError(t, data.NewConnectionRepo(ts.db).Create(conn))
	return connID
}

func TestConnectionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")

	path := filepath.Join(t.TempDir(), "target.db")
	target, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = target.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)
	target.Close()

	payload := map[string]any{
		"name":            "local sqlite",
		"connection_type": "sqlite",
		"database":        path,
	}

	// Payload-only test persists nothing
	resp := ts.do(t, http.MethodPost, "/api/v1/connections/test", token, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var testResult service.TestResult
	decodeBody(t, resp, &testResult)
	assert.True(t, testResult.Success)

	resp = ts.do(t, http.MethodGet, "/api/v1/connections", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, resp, &listBody)
	assert.Zero(t, listBody.Total)

	// Create runs the live test and stores the connection
	resp = ts.do(t, http.MethodPost, "/api/v1/connections", token, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created core.DataConnection
	decodeBody(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "success", created.LastTestStatus)
	require.NotNil(t, created.LastTestedAt)

	// The create-time test timestamp is persisted, not just echoed
	resp = ts.do(t, http.MethodGet, "/api/v1/connections/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched core.DataConnection
	decodeBody(t, resp, &fetched)
	assert.NotNil(t, fetched.LastTestedAt)

	// The stored password never appears in responses
	resp = ts.do(t, http.MethodGet, "/api/v1/connections/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw map[string]any
	decodeBody(t, resp, &raw)
	assert.NotContains(t, raw, "password_enc")
	assert.NotContains(t, raw, "password")

	// Stored-connection retest refreshes the last-test fields
	resp = ts.do(t, http.MethodPost, "/api/v1/connections/"+created.ID+"/test", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/v1/connections/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/connections/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateConnectionRejectedWhenUnreachable(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")

	resp := ts.do(t, http.MethodPost, "/api/v1/connections", token, map[string]any{
		"name":            "bad",
		"connection_type": "oracle",
		"database":        "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/connections", token, nil)
	var listBody struct {
		Total int `json:"total"`
	}
	decodeBody(t, resp, &listBody)
	assert.Zero(t, listBody.Total)
}

func TestExecuteQueryOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")

	// Sync the user row first
	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	connID := ts.seedSQLiteConnection(t, "user_1")
	ts.invoker.completion = "SELECT COUNT(*) AS n FROM orders"

	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "how many orders",
		"connection_id":          connID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		QueryID  string           `json:"query_id"`
		SQLQuery string           `json:"sql_query"`
		Status   string           `json:"status"`
		Data     []map[string]any `json:"data"`
		RowCount *int             `json:"row_count"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, core.QueryStatusSuccess, body.Status)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM orders", body.SQLQuery)
	require.Len(t, body.Data, 1)
	assert.EqualValues(t, 2, body.Data[0]["n"])

	// The provenance record is retrievable
	resp = ts.do(t, http.MethodGet, "/api/v1/queries/"+body.QueryID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// And listable
	resp = ts.do(t, http.MethodGet, "/api/v1/queries?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, resp, &list)
	assert.Equal(t, 1, list.Total)
}

func TestExecuteQueryErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")
	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Neither target: 400
	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "anything",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown connection: 404
	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "anything",
		"connection_id":          "missing",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errBody map[string]string
	decodeBody(t, resp, &errBody)
	assert.Contains(t, errBody["detail"], "not found")

	// Unsafe SQL: 400 with the violated rule named
	connID := ts.seedSQLiteConnection(t, "user_1")
	ts.invoker.completion = "DELETE FROM orders"
	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "remove my orders",
		"connection_id":          connID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decodeBody(t, resp, &errBody)
	assert.Contains(t, errBody["detail"], "dangerous-keyword")

	// Failed generation: 400 with the generation detail surfaced
	ts.invoker.completion = ""
	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "how many orders",
		"connection_id":          connID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decodeBody(t, resp, &errBody)
	assert.Contains(t, errBody["detail"], "sql generation failed")
}

func TestSaveAndDeleteQueryOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")
	resp := ts.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	connID := ts.seedSQLiteConnection(t, "user_1")
	ts.invoker.completion = "SELECT id FROM orders LIMIT 10"

	resp = ts.do(t, http.MethodPost, "/api/v1/queries/execute", token, map[string]any{
		"natural_language_query": "list order ids",
		"connection_id":          connID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		QueryID string `json:"query_id"`
	}
	decodeBody(t, resp, &body)

	resp = ts.do(t, http.MethodPost, "/api/v1/queries/"+body.QueryID+"/save", token, map[string]string{
		"title": "order ids",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/queries?saved_only=true", token, nil)
	var list struct {
		Total   int          `json:"total"`
		Queries []core.Query `json:"queries"`
	}
	decodeBody(t, resp, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "order ids", list.Queries[0].Title)

	// Another user cannot see or delete it
	otherToken := signToken(t, "user_2", "bob@example.com", "", "")
	resp = ts.do(t, http.MethodGet, "/api/v1/queries/"+body.QueryID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, "/api/v1/queries/"+body.QueryID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/v1/queries/"+body.QueryID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDatasetCRUDOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "org_1", "admin")

	resp := ts.do(t, http.MethodPost, "/api/v1/datasets", token, map[string]any{
		"name":         "sales 2026",
		"description":  "quarterly exports",
		"row_count":    1000,
		"column_count": 12,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created core.Dataset
	decodeBody(t, resp, &created)
	assert.Equal(t, "org_1", created.OrganizationID)
	assert.Equal(t, "user_1", created.CreatedBy)

	resp = ts.do(t, http.MethodPatch, "/api/v1/datasets/"+created.ID, token, map[string]any{
		"description": "revised",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated core.Dataset
	decodeBody(t, resp, &updated)
	assert.Equal(t, "revised", updated.Description)
	assert.Equal(t, "sales 2026", updated.Name)

	// A member of another organization cannot see it
	otherToken := signToken(t, "user_2", "bob@example.com", "org_2", "member")
	resp = ts.do(t, http.MethodGet, "/api/v1/datasets/"+created.ID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/v1/datasets/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDatasetRequiresOrganization(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "user_1", "ada@example.com", "", "")

	resp := ts.do(t, http.MethodPost, "/api/v1/datasets", token, map[string]any{
		"name": "orphan",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
