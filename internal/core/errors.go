package core

import (
	"errors"
	"fmt"
)

// Request-level failures surfaced before a provenance record exists, plus
// the explicit not-implemented marker for document-target queries.
var (
	ErrTargetRequired                = errors.New("either connection_id or document_id must be provided")
	ErrConnectionNotFound            = errors.New("connection not found")
	ErrConnectionInactive            = errors.New("connection is inactive")
	ErrDocumentNotFound              = errors.New("document not found")
	ErrDocumentQueriesNotImplemented = errors.New("document querying not yet implemented")
)

// The query pipeline reports failures through a small taxonomy so the API
// layer can map them to status codes and the provenance record can name the
// failing stage.

// ProviderError means the generative-model call failed or returned unusable
// output (network, auth, quota, empty response).
type ProviderError struct {
	Detail string
}

func (e *ProviderError) Error() string {
	return "sql generation failed: " + e.Detail
}

// SchemaError means the model judged the question unanswerable against the
// introspected schema. Detail carries the model's explanation.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return e.Detail
}

// SafetyError means candidate SQL violated the safety policy. Rule names the
// specific violated rule so the audit trail is actionable.
type SafetyError struct {
	Rule   string
	Detail string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("unsafe SQL rejected (%s): %s", e.Rule, e.Detail)
}

// ExecutionError means the target database rejected or failed the validated
// statement, including connectivity loss and schema drift.
type ExecutionError struct {
	Detail string
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Detail
}
