package ipc

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_AssignsUUID(t *testing.T) {
	t.Parallel()

	a := NewRequest(CommandToggle)
	b := NewRequest(CommandToggle)

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, CommandToggle, a.Command)
}

func TestRequest_WireFormat(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Request{ID: "1", Command: CommandToggle, Window: 0x10010, Ignore: true, Forward: true})
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"1","command":"toggle","hwnd":65552,"ignore":true,"forward":true}`, string(raw))
}

func TestFrame_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, Response{ID: "7", OK: false, Error: "access denied"}))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var resp Response
	require.NoError(t, readFrame(newFrameReader(&buf), &resp))
	assert.Equal(t, Response{ID: "7", Error: "access denied"}, resp)
}

func TestReadFrame_UnterminatedFinalFrame(t *testing.T) {
	t.Parallel()

	var req Request
	require.NoError(t, readFrame(newFrameReader(strings.NewReader(`{"command":"status"}`)), &req))
	assert.Equal(t, CommandStatus, req.Command)
}

func TestReadFrame_Empty(t *testing.T) {
	t.Parallel()

	var req Request
	assert.ErrorIs(t, readFrame(newFrameReader(strings.NewReader("")), &req), io.EOF)
}

func TestReadFrame_Oversized(t *testing.T) {
	t.Parallel()

	var req Request
	err := readFrame(newFrameReader(strings.NewReader(strings.Repeat("x", maxFrameBytes+10)+"\n")), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDefaultPipeName(t *testing.T) {
	t.Setenv(PipeNameEnv, "")
	t.Setenv("USERNAME", `CORP\Jo Smith`)

	assert.Equal(t, `\\.\pipe\passthru-jo_smith`, DefaultPipeName())
}

func TestDefaultPipeName_EnvOverride(t *testing.T) {
	t.Setenv(PipeNameEnv, `\\.\pipe\passthru-ci`)
	assert.Equal(t, `\\.\pipe\passthru-ci`, DefaultPipeName())

	t.Setenv(PipeNameEnv, `\\.\pipe\someone-else`)
	t.Setenv("USERNAME", "ci")
	assert.Equal(t, `\\.\pipe\passthru-ci`, DefaultPipeName(), "names outside the passthru prefix are rejected")
}

func TestSanitizeUsername(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "default", sanitizeUsername(""))
	assert.Equal(t, "admin", sanitizeUsername("ADMIN"))
	assert.Len(t, sanitizeUsername(strings.Repeat("a", 300)), 128)
}
