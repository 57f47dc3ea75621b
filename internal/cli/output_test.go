package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gameroom/internal/family"
	"github.com/roach88/gameroom/internal/feed"
	"github.com/roach88/gameroom/internal/projection"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"address": "f8daf5"}))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"address": "f8daf5"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("notification 3 marked read"))
	assert.Equal(t, "notification 3 marked read\n", buf.String())
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(ApplyResult{
		Family:  "message",
		EventID: "evt-000001",
		Changes: []string{"set f8daf5"},
	}))
	assert.Equal(t, "message evt-000001\n  set f8daf5\n", buf.String())
}

func TestOutputFormatter_Rejected(t *testing.T) {
	rejection := family.InvalidTransaction("message %q already exists", "chat-1")

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		err := (&OutputFormatter{Format: "json", Writer: buf}).Rejected(rejection)

		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.ErrorIs(t, err, rejection)

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeRejected, resp.Error.Code)
		assert.Equal(t, "INVALID_TRANSACTION", resp.Error.Kind)
		assert.Contains(t, resp.Error.Message, `"chat-1" already exists`)
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		err := (&OutputFormatter{Format: "text", Writer: buf}).Rejected(rejection)

		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "Error [E_REJECTED]: INVALID_TRANSACTION: message \"chat-1\" already exists\n", buf.String())
	})
}

func TestOutputFormatter_NotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	err := (&OutputFormatter{Format: "json", Writer: buf}).NotFound("message chat-9", projection.ErrNotFound)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, projection.ErrNotFound)

	resp := decodeResponse(t, buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
	assert.Equal(t, "message chat-9 not found", resp.Error.Message)
	assert.Empty(t, resp.Error.Kind)
}

func TestOutputFormatter_ProjectionFailedDetails(t *testing.T) {
	cause := errors.New("database is locked")
	stats := feed.Stats{Events: 4, Dropped: 1}

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		err := (&OutputFormatter{Format: "json", Writer: buf}).ProjectionFailed(cause, stats)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		resp := decodeResponse(t, buf)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeProjection, resp.Error.Code)
		assert.Equal(t, map[string]any{"events": float64(4), "dropped": float64(1)}, resp.Error.Details)
	})

	t.Run("text hides details unless verbose", func(t *testing.T) {
		buf := &bytes.Buffer{}
		_ = (&OutputFormatter{Format: "text", Writer: buf}).ProjectionFailed(cause, stats)
		assert.Equal(t, "Error [E_PROJECTION]: database is locked\n", buf.String())

		buf.Reset()
		_ = (&OutputFormatter{Format: "text", Writer: buf, Verbose: true}).ProjectionFailed(cause, stats)
		assert.Contains(t, buf.String(), "Details: {4 1}")
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("run: %w", WrapExitError(ExitFailure, "rejected", errors.New("INVALID_TRANSACTION")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "run: rejected: INVALID_TRANSACTION", wrapped.Error())
}
