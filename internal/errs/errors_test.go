package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrKind_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind ErrKind
		want string
	}{
		{ErrKindUnknown, "unknown"},
		{ErrKindNotFound, "not_found"},
		{ErrKindConnectionFailed, "connection_failed"},
		{ErrKindTimeout, "timeout"},
		{ErrKindSourceError, "source_error"},
		{ErrKindInvalidInput, "invalid_input"},
		{ErrKindPermissionDenied, "permission_denied"},
		{ErrKindNoConnection, "no_connection"},
		{ErrKindGuardRejected, "guard_rejected"},
		{ErrKindTableNotFound, "table_not_found"},
		{ErrKindIOFailure, "io_failure"},
		{ErrKindNotExportable, "not_exportable"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	plain := New(ErrKindNoConnection, "no database connected")
	assert.Equal(t, "[no_connection] no database connected", plain.Error())

	cause := errors.New("disk full")
	wrapped := Wrap(ErrKindIOFailure, "failed to write export", cause)
	assert.Equal(t, "[io_failure] failed to write export: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	t.Parallel()

	base := Newf(ErrKindTableNotFound, "table %q does not exist", "ghosts")
	err := fmt.Errorf("describing table: %w", base)

	assert.Equal(t, ErrKindTableNotFound, KindOf(err))
	assert.True(t, IsTableNotFound(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrKindUnknown, KindOf(context.Canceled))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	checks := map[ErrKind]func(error) bool{
		ErrKindNotFound:         IsNotFound,
		ErrKindTimeout:          IsTimeout,
		ErrKindConnectionFailed: IsConnectionFailed,
		ErrKindSourceError:      IsSourceError,
		ErrKindInvalidInput:     IsInvalidInput,
		ErrKindPermissionDenied: IsPermissionDenied,
		ErrKindNoConnection:     IsNoConnection,
		ErrKindGuardRejected:    IsGuardRejected,
		ErrKindTableNotFound:    IsTableNotFound,
		ErrKindIOFailure:        IsIOFailure,
		ErrKindNotExportable:    IsNotExportable,
	}

	for kind, pred := range checks {
		t.Run(kind.String(), func(t *testing.T) {
			require.True(t, pred(New(kind, "x")))
			for other, otherPred := range checks {
				if other != kind {
					require.False(t, otherPred(New(kind, "x")), "%s matched %s", kind, other)
				}
			}
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "only SELECT statements are allowed", Message(New(ErrKindGuardRejected, "only SELECT statements are allowed")))
	assert.Equal(t, "query failed: no such table: x", Message(Wrap(ErrKindSourceError, "query failed", errors.New("no such table: x"))))
}
