package domain

import "fmt"

// Error codes surfaced to callers.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeParse      = "SQL_PARSE_ERROR"
	CodeExecution  = "SQL_EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ValidationError indicates a malformed request (missing session, empty query).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ParseError indicates the input is not a recognizable single SELECT statement.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// ExecutionError indicates the parse succeeded but a stage could not be
// computed: unknown table or column, an unevaluable predicate, or a runtime
// limit (timeout, row cap). Clause carries the offending clause text.
type ExecutionError struct {
	Message string
	Clause  string
}

func (e *ExecutionError) Error() string {
	if e.Clause == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (clause: %s)", e.Message, e.Clause)
}

// NotFoundError indicates a resource (session, table) was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrParse creates a ParseError with a formatted message.
func ErrParse(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecutionClause creates an ExecutionError tied to a clause.
func ErrExecutionClause(clause, format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...), Clause: clause}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
