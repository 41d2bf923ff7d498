package errors

import (
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"testing"
)

func TestCast(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Error
		wantOK bool
	}{
		{
			name:   "rich error",
			err:    Error{Code: ErrBadRequest, Message: "missing player id"},
			want:   Error{Code: ErrBadRequest, Message: "missing player id"},
			wantOK: true,
		},
		{
			name: "wrapped rich error",
			err:  fmt.Errorf("outer: %w", Error{
				Code:    ErrNotFound,
				Kind:    KindUnknownTemplate,
				Message: "unknown template",
			}),
			want: Error{
				Code:    ErrNotFound,
				Kind:    KindUnknownTemplate,
				Message: "unknown template",
			},
			wantOK: true,
		},
		{
			name: "nil",
			err:  nil,
			want: Error{
				Code:    ErrUnexpected,
				Message: "unknown operation",
				Details: make(Details),
			},
		},
		{
			name: "plain error",
			err:  errors.New("sad life"),
			want: Error{
				Code:    ErrUnexpected,
				Err:     errors.New("sad life"),
				Message: "unknown operation",
				Details: make(Details),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cast(tt.err)
			assert.Equal(t, tt.wantOK, ok, "should report rich error correctly")
			assert.Equal(t, tt.want, got, "should cast correctly")
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "copy template", Error{Message: "copy template"}.Error(), "should use message only")
	assert.Equal(t, "copy template: disk full", Error{
		Message: "copy template",
		Err:     errors.New("disk full"),
	}.Error(), "should append original error")
}

func TestFromErr(t *testing.T) {
	orig := errors.New("broker gone")
	err := FromErr("publish", ErrCommunication, orig, Details{"topic": "minigame/leaderboard"})
	e, ok := Cast(err)
	require.True(t, ok, "should create rich error")
	assert.Equal(t, ErrCommunication, e.Code, "should set code")
	assert.Equal(t, "publish: broker gone", e.Error(), "should build message")
	assert.ErrorIs(t, err, orig, "should unwrap to original error")
}

func TestWrapRichError(t *testing.T) {
	err := Wrap(NewUnknownMatchError("arena-1"), "start match", Details{"match": "arena-2", "by": "admin"})
	e, ok := Cast(err)
	require.True(t, ok, "should keep rich error")
	assert.Equal(t, ErrNotFound, e.Code, "should keep code")
	assert.Equal(t, KindUnknownMatch, e.Kind, "should keep kind")
	assert.Equal(t, "start match: unknown match: arena-1", e.Message, "should prefix message")
	assert.Equal(t, "arena-2", e.Details["match"], "should overwrite detail")
	assert.Equal(t, "arena-1", e.Details["_match"], "should keep overwritten detail prefixed")
	assert.Equal(t, "admin", e.Details["by"], "should add new detail")
}

func TestWrapPlainError(t *testing.T) {
	err := Wrap(errors.New("sad life"), "load templates", nil)
	assert.Equal(t, "load templates: sad life", err.Error(), "should wrap message")
	assert.False(t, BlameUser(err), "should not blame user")
}

func TestBlameUser(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{code: ErrNotFound, want: true},
		{code: ErrBadRequest, want: true},
		{code: ErrCapacity, want: true},
		{code: ErrInternal, want: false},
		{code: ErrCommunication, want: false},
		{code: ErrAborted, want: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, BlameUser(Error{Code: tt.code}))
		})
	}
	assert.False(t, BlameUser(errors.New("unknown error")), "should not blame user for plain errors")
}

func TestHasKindAndCode(t *testing.T) {
	err := Wrap(NewUnknownTemplateError("arena"), "add player", nil)
	assert.True(t, HasKind(err, KindUnknownTemplate), "should detect kind through wrap")
	assert.False(t, HasKind(err, KindMatchFull), "should not match other kind")
	assert.False(t, HasKind(errors.New("plain"), KindUnknownTemplate), "should not match plain error")
	assert.True(t, HasCode(NewMatchFullError("arena-1", 4), ErrCapacity), "should detect code")
	assert.False(t, HasCode(nil, ErrCapacity), "should not match nil")
}

func TestLogLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	Log(logger, NewMatchFullError("arena-1", 4))
	Log(logger, NewInternalErrorFromErr(errors.New("disk full"), "copy template", Details{"template": "arena"}))
	entries := logs.AllUntimed()
	require.Len(t, entries, 2, "should log both")
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level, "should warn for user errors")
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level, "should error for internal errors")
	fields := entries[1].ContextMap()
	assert.Equal(t, string(ErrInternal), fields["err_code"], "should log code")
	assert.Equal(t, "arena", fields["err_details_v_template"], "should log details")
	assert.Equal(t, "disk full", fields["err_orig"], "should log original error")
}

func TestPrettify(t *testing.T) {
	pretty := Prettify(NewUnknownTemplateError("arena"))
	assert.Contains(t, pretty, "Kind: unknown-template", "should include kind")
	assert.Contains(t, pretty, `"template":"arena"`, "should include details as json")
}
