package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestReadMessageSingleFrame(t *testing.T) {
	tr := NewStdioTransport(nil, 1, discardLogger())
	reader := bufio.NewReader(strings.NewReader(frame(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	body, err := tr.readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(body))
}

func TestReadMessageSkipsUnknownHeaders(t *testing.T) {
	tr := NewStdioTransport(nil, 1, discardLogger())
	raw := "Content-Type: application/json\r\nContent-Length: 2\r\nX-Custom: y\r\n\r\n{}"
	reader := bufio.NewReader(strings.NewReader(raw))

	body, err := tr.readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestReadMessageHeaderCaseInsensitive(t *testing.T) {
	tr := NewStdioTransport(nil, 1, discardLogger())
	reader := bufio.NewReader(strings.NewReader("content-length: 2\r\n\r\nok"))

	body, err := tr.readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestReadMessageSequentialFrames(t *testing.T) {
	tr := NewStdioTransport(nil, 1, discardLogger())
	reader := bufio.NewReader(strings.NewReader(frame("first") + frame("second")))

	body, err := tr.readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))

	body, err = tr.readMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))

	_, err = tr.readMessage(reader)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"invalid content-length", "Content-Length: abc\r\n\r\n{}"},
		{"negative content-length", "Content-Length: -5\r\n\r\n{}"},
		{"truncated body", "Content-Length: 100\r\n\r\nshort"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewStdioTransport(nil, 1, discardLogger())
			_, err := tr.readMessage(bufio.NewReader(strings.NewReader(tc.raw)))
			assert.Error(t, err)
		})
	}

	tr := NewStdioTransport(nil, 1, discardLogger())
	_, err := tr.readMessage(bufio.NewReader(strings.NewReader("X-Other: 1\r\n\r\n")))
	assert.ErrorIs(t, err, errNoContentLength)
}

func TestStdioSkipsUnframedInput(t *testing.T) {
	handler := func(ctx context.Context, data []byte, clientID string) []byte {
		return []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	}

	tr := NewStdioTransport(handler, 1, discardLogger())
	tr.in = strings.NewReader("stray log line\r\n\r\n" + frame(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	var out bytes.Buffer
	tr.out = &out

	require.NoError(t, tr.Start(context.Background()))
	assert.Equal(t, frame(`{"jsonrpc":"2.0","id":1,"result":{}}`), out.String())
}

func TestWriteMessageFraming(t *testing.T) {
	tr := NewStdioTransport(nil, 1, discardLogger())
	var buf bytes.Buffer
	tr.out = &buf

	require.NoError(t, tr.writeMessage([]byte(`{"ok":true}`)))
	assert.Equal(t, "Content-Length: 11\r\n\r\n"+`{"ok":true}`, buf.String())
}

func TestStdioRoundTrip(t *testing.T) {
	handler := func(ctx context.Context, data []byte, clientID string) []byte {
		assert.Equal(t, "stdio", clientID)
		return []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	}

	tr := NewStdioTransport(handler, 2, discardLogger())
	tr.in = strings.NewReader(frame(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	var out bytes.Buffer
	tr.out = &out

	done := make(chan error, 1)
	go func() { done <- tr.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not stop at EOF")
	}

	assert.Equal(t, frame(`{"jsonrpc":"2.0","id":1,"result":{}}`), out.String())
}

func TestStdioNotificationProducesNoOutput(t *testing.T) {
	handler := func(ctx context.Context, data []byte, clientID string) []byte {
		return nil
	}

	tr := NewStdioTransport(handler, 1, discardLogger())
	tr.in = strings.NewReader(frame(`{"jsonrpc":"2.0","method":"initialized"}`))
	var out bytes.Buffer
	tr.out = &out

	require.NoError(t, tr.Start(context.Background()))
	assert.Empty(t, out.String())
}
