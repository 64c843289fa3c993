// Package errors defines the coded error taxonomy shared by the hierarchy
// engine, the migration orchestrator and the outer surfaces (MCP, CLI).
//
// Every error carries a stable code, the ids of the entities that caused it
// and optional suggestions for the caller. Codes are grouped by category so
// callers can branch on the category without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier.
type ErrorCode string

const (
	// Structural integrity errors (STRUCT-001 to STRUCT-099)
	ErrCodeCycle             ErrorCode = "STRUCT-001"
	ErrCodeDanglingRef       ErrorCode = "STRUCT-002"
	ErrCodePhaseComplete     ErrorCode = "STRUCT-003"
	ErrCodeNotFound          ErrorCode = "STRUCT-004"
	ErrCodeInvalidState      ErrorCode = "STRUCT-005"
	ErrCodeDependencyCycle   ErrorCode = "STRUCT-006"
	ErrCodeChildrenOpen      ErrorCode = "STRUCT-007"
	ErrCodeInvalidArgument   ErrorCode = "STRUCT-008"
	ErrCodeAlreadyExists     ErrorCode = "STRUCT-009"
	ErrCodeAgentsStillActive ErrorCode = "STRUCT-010"

	// Prerequisite errors (PREREQ-001 to PREREQ-099)
	ErrCodePrerequisiteNotMet ErrorCode = "PREREQ-001"
	ErrCodePhaseIncomplete    ErrorCode = "PREREQ-002"
	ErrCodeDependenciesOpen   ErrorCode = "PREREQ-003"

	// Permission errors (PERM-001 to PERM-099)
	ErrCodePermissionDenied ErrorCode = "PERM-001"

	// Migration errors (MIGRATE-001 to MIGRATE-099)
	ErrCodeTotalityViolation ErrorCode = "MIGRATE-001"
	ErrCodeBackupFailed      ErrorCode = "MIGRATE-002"
	ErrCodeMigrationCanceled ErrorCode = "MIGRATE-003"
	ErrCodeRestoreFailed     ErrorCode = "MIGRATE-004"

	// Concurrency errors (CONC-001 to CONC-099)
	ErrCodeMigrationInProgress ErrorCode = "CONC-001"
)

// Category is the coarse class of an error code, e.g. "STRUCT".
func (c ErrorCode) Category() string {
	s := string(c)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// StrataError is an error with a code, the offending entity ids and
// suggestions for recovering.
type StrataError struct {
	Code        ErrorCode
	Message     string
	Subjects    []string
	Suggestions []string
	Cause       error
}

// Error implements the error interface.
func (e *StrataError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StrataError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller should back off and try again.
func (e *StrataError) Retryable() bool {
	return e.Code == ErrCodeMigrationInProgress
}

// New creates a new StrataError.
func New(code ErrorCode, message string) *StrataError {
	return &StrataError{Code: code, Message: message}
}

// Newf creates a new StrataError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *StrataError {
	return &StrataError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new StrataError wrapping an existing error.
func Wrap(code ErrorCode, message string, cause error) *StrataError {
	return &StrataError{Code: code, Message: message, Cause: cause}
}

// WithSubjects records the ids of the entities that caused the error.
func (e *StrataError) WithSubjects(ids ...string) *StrataError {
	e.Subjects = append(e.Subjects, ids...)
	return e
}

// WithSuggestion adds a suggestion to the error.
func (e *StrataError) WithSuggestion(suggestion string) *StrataError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// As returns the first StrataError in err's chain.
func As(err error) (*StrataError, bool) {
	var se *StrataError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a StrataError with the code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := As(err)
	return ok && se.Code == code
}

// IsCategory reports whether err's chain contains a StrataError whose code
// belongs to the category ("STRUCT", "PREREQ", "PERM", "MIGRATE", "CONC").
func IsCategory(err error, category string) bool {
	se, ok := As(err)
	return ok && se.Code.Category() == category
}

// IsRetryable reports whether err is a retryable concurrency conflict.
func IsRetryable(err error) bool {
	se, ok := As(err)
	return ok && se.Retryable()
}

// ─── Common constructors ─────────────────────────────────────────────────────

// NewNotFoundError reports a missing phase, task or agent.
func NewNotFoundError(kind, id string) *StrataError {
	return Newf(ErrCodeNotFound, "%s %q not found", kind, id).WithSubjects(id)
}

// NewDanglingRefError reports a reference to an id that does not exist.
func NewDanglingRefError(taskID, field, missing string) *StrataError {
	return Newf(ErrCodeDanglingRef, "task %q references nonexistent %s %q", taskID, field, missing).
		WithSubjects(taskID, missing).
		WithSuggestion("Repair or cancel the referencing task before migrating")
}

// NewCycleError reports a parent cycle through the given ids.
func NewCycleError(ids []string) *StrataError {
	return Newf(ErrCodeCycle, "parent cycle detected: %s", strings.Join(ids, " -> ")).
		WithSubjects(ids...)
}

// NewDependencyCycleError reports a dependency cycle through the given ids.
func NewDependencyCycleError(ids []string) *StrataError {
	return Newf(ErrCodeDependencyCycle, "dependency cycle detected: %s", strings.Join(ids, " -> ")).
		WithSubjects(ids...)
}

// NewPhaseCompleteError reports an attempt to attach work to a completed phase.
func NewPhaseCompleteError(phaseID string) *StrataError {
	return Newf(ErrCodePhaseComplete, "phase %q is complete and accepts no new tasks", phaseID).
		WithSubjects(phaseID).
		WithSuggestion("Create the task in the current phase instead")
}

// NewDependenciesOpenError reports the dependencies that keep taskID from
// completing.
func NewDependenciesOpenError(taskID string, open []string) *StrataError {
	return Newf(ErrCodeDependenciesOpen, "task %q depends on %d task(s) not yet completed: %s",
		taskID, len(open), strings.Join(open, ", ")).
		WithSubjects(open...).
		WithSuggestion("Complete the dependencies first")
}

// NewPrerequisiteError reports the phases blocking creation or advancement.
func NewPrerequisiteError(phaseID string, blocking []string) *StrataError {
	return Newf(ErrCodePrerequisiteNotMet, "phase %q has incomplete prerequisites: %s",
		phaseID, strings.Join(blocking, ", ")).
		WithSubjects(blocking...).
		WithSuggestion("Complete and advance the blocking phases first")
}

// NewPermissionError reports a privileged action attempted by an ordinary agent.
func NewPermissionError(agentID, action string) *StrataError {
	return Newf(ErrCodePermissionDenied, "agent %q is not allowed to %s", agentID, action).
		WithSubjects(agentID)
}

// NewTotalityError reports tasks left without a phase ancestor after migration.
func NewTotalityError(orphans []string) *StrataError {
	return Newf(ErrCodeTotalityViolation, "%d task(s) have no phase ancestor after migration", len(orphans)).
		WithSubjects(orphans...).
		WithSuggestion("The migration was rolled back; inspect the listed tasks and retry")
}

// NewMigrationInProgressError reports the exclusive migration lock is held.
func NewMigrationInProgressError(holder string) *StrataError {
	msg := "migration in progress"
	if holder != "" {
		msg += " (held by " + holder + ")"
	}
	return New(ErrCodeMigrationInProgress, msg).
		WithSuggestion("Back off and retry once the migration finishes")
}
