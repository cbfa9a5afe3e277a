package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"datapilot/internal/core"
)

// TestResult reports one connectivity test. Never persisted by the tester
// itself; callers decide whether to record the outcome.
type TestResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs *int64 `json:"response_time_ms,omitempty"`
}

// ConnectionTester performs live connectivity tests against target
// databases using the plaintext credentials supplied for the test.
type ConnectionTester struct {
	log *zap.SugaredLogger
}

func NewConnectionTester(log *zap.SugaredLogger) *ConnectionTester {
	return &ConnectionTester{log: log}
}

// Test dials the target, runs a version probe and closes the connection.
func (t *ConnectionTester) Test(ctx context.Context, conn *core.DataConnection, password string) *TestResult {
	start := time.Now()

	driver, dsn, err := buildDSN(conn, password)
	if err != nil {
		return &TestResult{Success: false, Message: "Unsupported connection type", Error: err.Error()}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return &TestResult{Success: false, Message: "Failed to connect to database", Error: err.Error()}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, connectTimeoutSeconds*time.Second)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, versionProbe(driver)).Scan(&version); err != nil {
		t.log.Infow("connection test failed", "host", conn.Host, "error", err)
		return &TestResult{Success: false, Message: "Failed to connect to database", Error: err.Error()}
	}

	elapsed := time.Since(start).Milliseconds()
	t.log.Infow("connection test succeeded", "host", conn.Host, "duration_ms", elapsed)

	return &TestResult{
		Success:        true,
		Message:        fmt.Sprintf("Successfully connected to %s database", conn.ConnectionType),
		ResponseTimeMs: &elapsed,
	}
}

func versionProbe(driver string) string {
	switch driver {
	case "sqlserver":
		return "SELECT @@VERSION"
	case "sqlite":
		return "SELECT sqlite_version()"
	default:
		return "SELECT version()"
	}
}
