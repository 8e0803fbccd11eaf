// Package execution runs finalized SQL against the execution backend and
// normalizes the response into a three-way outcome: rows, empty, or error.
package execution

import (
	"context"
	"errors"

	"surveychat/internal/logging"
)

// ErrBackendUnconfigured is returned when no execution backend is set up.
var ErrBackendUnconfigured = errors.New("sql backend not configured")

// Row is one result record.
type Row map[string]any

// Kind discriminates the Result variants.
type Kind int

const (
	// KindRows means the query returned at least one row.
	KindRows Kind = iota
	// KindEmpty means the query ran fine but nothing matched.
	KindEmpty
	// KindError means the query could not be executed.
	KindError
)

// Result is the normalized execution outcome. Exactly one variant is
// populated; every downstream consumer relies on this.
type Result struct {
	Kind    Kind
	Rows    []Row  // set for KindRows
	Message string // set for KindError
}

// RowsResult builds a KindRows result.
func RowsResult(rows []Row) Result { return Result{Kind: KindRows, Rows: rows} }

// EmptyResult builds a KindEmpty result.
func EmptyResult() Result { return Result{Kind: KindEmpty} }

// ErrorResult builds a KindError result.
func ErrorResult(message string) Result { return Result{Kind: KindError, Message: message} }

// IsError reports whether the result is the error variant.
func (r Result) IsError() bool { return r.Kind == KindError }

// Backend is the query-execution service boundary. It enforces
// statement-level safety (read-only, single table) on its own side.
type Backend interface {
	Execute(ctx context.Context, sql string) ([]Row, error)
}

// Executor delegates to a Backend and normalizes its response.
// One attempt per call: no retries, no rewriting, no pagination.
type Executor struct {
	backend Backend
}

// NewExecutor creates an Executor. backend may be nil; execution then
// yields a descriptive error result rather than a silent empty one.
func NewExecutor(backend Backend) *Executor {
	return &Executor{backend: backend}
}

// Execute runs the SQL and returns the normalized result.
func (e *Executor) Execute(ctx context.Context, sql string) Result {
	timer := logging.StartTimer(logging.CategoryExecution, "Execute")
	defer timer.Stop()

	if e.backend == nil {
		logging.Get(logging.CategoryExecution).Error("no backend configured")
		return ErrorResult(ErrBackendUnconfigured.Error())
	}

	rows, err := e.backend.Execute(ctx, sql)
	if err != nil {
		logging.Get(logging.CategoryExecution).Error("backend error: %v", err)
		return ErrorResult(err.Error())
	}
	if len(rows) == 0 {
		logging.ExecutionDebug("query succeeded with zero rows")
		return EmptyResult()
	}

	logging.ExecutionDebug("query returned %d rows", len(rows))
	return RowsResult(rows)
}
