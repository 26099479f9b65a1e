package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// maxMessageSize bounds a single frame.
const maxMessageSize = 64 << 20

// Conn carries whole JSON-RPC messages.
type Conn interface {
	// Read blocks for the next message. It returns io.EOF once the peer is
	// gone.
	Read() ([]byte, error)
	Write(msg []byte) error
	Close() error
}

type streamConn struct {
	r *bufio.Reader
	w io.Writer
	// closers are the underlying reader and writer when they can be closed.
	closers []io.Closer
	once    sync.Once
}

// NewStreamConn frames messages with Content-Length headers, as used over
// stdio.
func NewStreamConn(r io.Reader, w io.Writer) Conn {
	c := &streamConn{r: bufio.NewReader(r), w: w}
	for _, v := range []any{r, w} {
		if cl, ok := v.(io.Closer); ok {
			c.closers = append(c.closers, cl)
		}
	}
	return c
}

func (c *streamConn) Read() ([]byte, error) {
	length := -1
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" && length < 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("lsp: read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length < 0 {
				// Stray blank line between frames.
				continue
			}
			break
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("lsp: invalid Content-Length %q", val)
		}
		if n > maxMessageSize {
			return nil, fmt.Errorf("lsp: message of %d bytes exceeds limit", n)
		}
		length = n
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return nil, fmt.Errorf("lsp: read body: %w", err)
	}
	return body, nil
}

func (c *streamConn) Write(msg []byte) error {
	if _, err := fmt.Fprintf(c.w, "Content-Length: %d\r\n\r\n", len(msg)); err != nil {
		return fmt.Errorf("lsp: write header: %w", err)
	}
	if _, err := c.w.Write(msg); err != nil {
		return fmt.Errorf("lsp: write body: %w", err)
	}
	return nil
}

func (c *streamConn) Close() error {
	var errs []error
	c.once.Do(func() {
		for _, cl := range c.closers {
			errs = append(errs, cl.Close())
		}
	})
	return errors.Join(errs...)
}

type wsConn struct {
	ws *websocket.Conn
}

// NewWebSocketConn carries one message per text frame.
func NewWebSocketConn(ws *websocket.Conn) Conn {
	ws.SetReadLimit(maxMessageSize)
	return &wsConn{ws: ws}
}

func (c *wsConn) Read() ([]byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("lsp: read frame: %w", err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Write(msg []byte) error {
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("lsp: write frame: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error { return c.ws.Close() }

// ServeFunc runs one session over c until it ends.
type ServeFunc func(ctx context.Context, c Conn) error

// WebSocketHandler upgrades every request and runs serve on the connection.
func WebSocketHandler(serve ServeFunc, logger *slog.Logger) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		conn := NewWebSocketConn(ws)
		defer conn.Close()
		logger.Info("client connected", slog.String("remote", r.RemoteAddr))
		if err := serve(r.Context(), conn); err != nil {
			logger.Warn("session ended", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
			return
		}
		logger.Info("client disconnected", slog.String("remote", r.RemoteAddr))
	})
}
