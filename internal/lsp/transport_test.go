package lsp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/soarls"
)

func TestStreamConn_RoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewStreamConn(strings.NewReader(""), &buf)
	require.NoError(t, w.Write([]byte(`{"a":1}`)))
	require.NoError(t, w.Write([]byte(`{"b":22}`)))
	assert.Equal(t, "Content-Length: 7\r\n\r\n{\"a\":1}Content-Length: 8\r\n\r\n{\"b\":22}", buf.String())

	r := NewStreamConn(&buf, io.Discard)
	msg, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(msg))
	msg, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"b":22}`, string(msg))
	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamConn_Headers(t *testing.T) {
	t.Parallel()
	in := "content-length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}"
	msg, err := NewStreamConn(strings.NewReader(in), io.Discard).Read()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(msg))

	_, err = NewStreamConn(strings.NewReader("Content-Length: x\r\n\r\n"), io.Discard).Read()
	assert.Error(t, err)

	_, err = NewStreamConn(strings.NewReader("Content-Length: 10\r\n\r\n{}"), io.Discard).Read()
	assert.Error(t, err, "truncated body")
}

func TestWebSocketHandler(t *testing.T) {
	echo := func(_ context.Context, c Conn) error {
		for {
			msg, err := c.Read()
			if err != nil {
				return nil
			}
			if err := c.Write(msg); err != nil {
				return err
			}
		}
	}
	srv := httptest.NewServer(WebSocketHandler(echo, slog.New(slog.DiscardHandler)))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0"}`)))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"jsonrpc":"2.0"}`, string(data))
}

func TestPublisher_MergesEntryPoints(t *testing.T) {
	t.Parallel()
	var sent []PublishDiagnosticsParams
	p := newPublisher(func(d PublishDiagnosticsParams) { sent = append(sent, d) })

	shared := soarls.Diagnostic{Message: "shared"}
	primary := soarls.Diagnostic{Message: "primary only"}
	p.record("a", map[string][]soarls.Diagnostic{"file:///x": {shared, primary}})
	p.record("b", map[string][]soarls.Diagnostic{"file:///x": {shared}, "file:///y": nil})

	require.Len(t, sent, 3)
	assert.Equal(t, []soarls.Diagnostic{shared, primary}, sent[1].Diagnostics)
	assert.Equal(t, "file:///y", sent[2].URI)
	assert.NotNil(t, sent[2].Diagnostics, "an empty list clears the client's copy")

	sent = nil
	p.record("a", map[string][]soarls.Diagnostic{})
	require.Len(t, sent, 1)
	assert.Equal(t, PublishDiagnosticsParams{URI: "file:///x", Diagnostics: []soarls.Diagnostic{shared}}, sent[0])
}
