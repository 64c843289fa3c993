package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrataError_Error(t *testing.T) {
	err := New(ErrCodeNotFound, "task missing")
	assert.Equal(t, "[STRUCT-004] task missing", err.Error())
}

func TestStrataError_ErrorWithCauseAndSuggestions(t *testing.T) {
	err := Wrap(ErrCodeBackupFailed, "backup failed", fmt.Errorf("disk full")).
		WithSuggestion("Free some space")

	msg := err.Error()
	assert.Contains(t, msg, "[MIGRATE-002] backup failed: disk full")
	assert.Contains(t, msg, "Suggestions:")
	assert.Contains(t, msg, "Free some space")
}

func TestStrataError_UnwrapAndAs(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := fmt.Errorf("outer: %w", Wrap(ErrCodeCycle, "cycle", cause))

	assert.True(t, stderrors.Is(err, cause))

	se, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeCycle, se.Code)
}

func TestHasCodeAndCategory(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewPrerequisiteError("phase_2_intelligence", []string{"phase_1_foundation"}))

	assert.True(t, HasCode(err, ErrCodePrerequisiteNotMet))
	assert.False(t, HasCode(err, ErrCodePermissionDenied))
	assert.True(t, IsCategory(err, "PREREQ"))
	assert.False(t, IsCategory(fmt.Errorf("plain"), "PREREQ"))

	se, _ := As(err)
	assert.Equal(t, []string{"phase_1_foundation"}, se.Subjects)
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewMigrationInProgressError("pid 42")))
	assert.False(t, IsRetryable(NewPermissionError("agent-1", "create a workstream")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorCode_Category(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeDanglingRef, "STRUCT"},
		{ErrCodePhaseIncomplete, "PREREQ"},
		{ErrCodePermissionDenied, "PERM"},
		{ErrCodeTotalityViolation, "MIGRATE"},
		{ErrCodeMigrationInProgress, "CONC"},
		{ErrorCode("PLAIN"), "PLAIN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.Category(), string(tt.code))
	}
}

func TestConstructors_CarrySubjects(t *testing.T) {
	assert.Equal(t, []string{"t1", "ghost"}, NewDanglingRefError("t1", "parent", "ghost").Subjects)
	assert.Equal(t, []string{"a", "b", "a"}, NewCycleError([]string{"a", "b", "a"}).Subjects)
	assert.Equal(t, []string{"t9"}, NewTotalityError([]string{"t9"}).Subjects)
	assert.Contains(t, NewMigrationInProgressError("").Error(), "migration in progress")
}
