package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"datapilot/internal/core"
)

// queryTimeout bounds statement execution against a target database. The
// connect timeout is baked into the DSN separately.
const queryTimeout = 30 * time.Second

// ExecuteRequest is one natural-language query submission. Exactly one of
// ConnectionID / DocumentID must be set.
type ExecuteRequest struct {
	NaturalLanguageQuery string
	ConnectionID         *string
	DocumentID           *string
}

// ExecutionResult carries materialized rows from a target database.
type ExecutionResult struct {
	Columns         []string
	Rows            []map[string]any
	RowCount        int
	ExecutionTimeMs int64
}

// QueryExecutor orchestrates the NL->SQL pipeline: resolve target, create
// the provenance record, decrypt credentials, introspect, generate,
// validate, execute, and write the terminal outcome exactly once.
type QueryExecutor struct {
	connRepo     core.ConnectionRepository
	queryRepo    core.QueryRepository
	docRepo      core.DocumentRepository
	vault        *Vault
	introspector *Introspector
	generator    *Generator
	log          *zap.SugaredLogger
}

func NewQueryExecutor(
	connRepo core.ConnectionRepository,
	queryRepo core.QueryRepository,
	docRepo core.DocumentRepository,
	vault *Vault,
	introspector *Introspector,
	generator *Generator,
	log *zap.SugaredLogger,
) *QueryExecutor {
	return &QueryExecutor{
		connRepo:     connRepo,
		queryRepo:    queryRepo,
		docRepo:      docRepo,
		vault:        vault,
		introspector: introspector,
		generator:    generator,
		log:          log,
	}
}

// Execute runs one natural-language query end to end. The returned record
// always reflects the terminal state; err is non-nil on every non-success
// path and carries the pipeline taxonomy for status-code mapping.
//
// Target resolution happens before the record is created: a missing or
// foreign connection is a 404-class failure with no audit record. Once the
// record exists, every failure path finalizes it as failed.
func (e *QueryExecutor) Execute(ctx context.Context, claims *core.Claims, req ExecuteRequest) (*core.Query, *ExecutionResult, error) {
	if (req.ConnectionID == nil) == (req.DocumentID == nil) {
		return nil, nil, core.ErrTargetRequired
	}

	if req.DocumentID != nil {
		return e.executeDocument(claims, req)
	}
	return e.executeDatabase(ctx, claims, req)
}

func (e *QueryExecutor) executeDocument(claims *core.Claims, req ExecuteRequest) (*core.Query, *ExecutionResult, error) {
	if _, err := e.docRepo.GetForUser(*req.DocumentID, claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, core.ErrDocumentNotFound
		}
		return nil, nil, err
	}

	record := e.newRecord(claims, req, core.QueryTypeDocument)
	if err := e.queryRepo.Create(record); err != nil {
		return nil, nil, err
	}

	// Document querying is not implemented. The record is still finalized so
	// it never sits in pending.
	e.finalizeFailed(record, core.ErrDocumentQueriesNotImplemented.Error())
	return record, nil, core.ErrDocumentQueriesNotImplemented
}

func (e *QueryExecutor) executeDatabase(ctx context.Context, claims *core.Claims, req ExecuteRequest) (*core.Query, *ExecutionResult, error) {
	conn, err := e.connRepo.GetForUser(*req.ConnectionID, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, core.ErrConnectionNotFound
		}
		return nil, nil, err
	}
	if !conn.IsActive {
		return nil, nil, core.ErrConnectionInactive
	}

	record := e.newRecord(claims, req, core.QueryTypeDatabase)
	if err := e.queryRepo.Create(record); err != nil {
		return nil, nil, err
	}

	result, err := e.runPipeline(ctx, conn, record)
	if err != nil {
		e.finalizeFailed(record, err.Error())
		return record, nil, err
	}

	data, err := json.Marshal(result.Rows)
	if err != nil {
		execErr := &core.ExecutionError{Detail: "serializing results: " + err.Error()}
		e.finalizeFailed(record, execErr.Error())
		return record, nil, execErr
	}

	record.Status = core.QueryStatusSuccess
	record.ResultData = string(data)
	record.RowCount = &result.RowCount
	record.ExecutionTimeMs = &result.ExecutionTimeMs
	if err := e.queryRepo.Finalize(record); err != nil {
		e.log.Errorw("finalizing query record failed", "query_id", record.ID, "error", err)
	}

	return record, result, nil
}

// runPipeline performs decrypt -> introspect -> generate -> validate ->
// execute. The generated SQL is attached to the record as soon as it exists
// so failed validation and execution still leave it in the audit trail.
func (e *QueryExecutor) runPipeline(ctx context.Context, conn *core.DataConnection, record *core.Query) (*ExecutionResult, error) {
	password, err := e.vault.Decrypt(conn.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting connection credentials: %w", err)
	}

	snapshot := e.introspector.Describe(ctx, conn, password)

	candidate, err := e.generator.Generate(ctx, record.NaturalLanguageQuery, snapshot)
	if err != nil {
		return nil, err
	}
	record.SQLQuery = candidate

	validated, err := ValidateSQL(candidate)
	if err != nil {
		return nil, err
	}
	record.SQLQuery = validated

	result, err := e.runTarget(ctx, conn, password, validated)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// runTarget issues exactly the validated statement against the target
// database. No retries: execution against a foreign database must not be
// silently repeated.
func (e *QueryExecutor) runTarget(ctx context.Context, conn *core.DataConnection, password, sqlText string) (*ExecutionResult, error) {
	start := time.Now()

	driver, dsn, err := buildDSN(conn, password)
	if err != nil {
		return nil, &core.ExecutionError{Detail: err.Error()}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &core.ExecutionError{Detail: err.Error()}
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &core.ExecutionError{Detail: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &core.ExecutionError{Detail: err.Error()}
	}
	if len(columns) == 0 {
		// The validator only admits SELECT/WITH, so a statement without a
		// result descriptor means the gate was bypassed somehow.
		return nil, &core.ExecutionError{Detail: "statement returned no result descriptor; refusing to continue"}
	}

	resultRows := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, &core.ExecutionError{Detail: err.Error()}
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = val
			}
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.ExecutionError{Detail: err.Error()}
	}

	return &ExecutionResult{
		Columns:         columns,
		Rows:            resultRows,
		RowCount:        len(resultRows),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (e *QueryExecutor) newRecord(claims *core.Claims, req ExecuteRequest, queryType string) *core.Query {
	return &core.Query{
		ID:                   uuid.NewString(),
		UserID:               claims.UserID,
		OrganizationID:       claims.OrganizationID,
		ConnectionID:         req.ConnectionID,
		DocumentID:           req.DocumentID,
		NaturalLanguageQuery: req.NaturalLanguageQuery,
		QueryType:            queryType,
		Status:               core.QueryStatusPending,
		CreatedAt:            time.Now().UTC(),
	}
}

// finalizeFailed writes the failed terminal state. A record must never be
// left pending after its request completes.
func (e *QueryExecutor) finalizeFailed(record *core.Query, errMsg string) {
	record.Status = core.QueryStatusFailed
	record.ErrorMessage = errMsg
	if err := e.queryRepo.Finalize(record); err != nil {
		e.log.Errorw("finalizing failed query record", "query_id", record.ID, "error", err)
	}
}
