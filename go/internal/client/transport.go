package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// Transport is one open socket
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WSDialer dials the game socket with github.com/coder/websocket
type WSDialer struct {
	HTTPClient     *http.Client
	MaxMessageSize int64
}

func (d WSDialer) Dial(ctx context.Context, url string) (Transport, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.MaxMessageSize > 0 {
		c.SetReadLimit(d.MaxMessageSize)
	}
	return &wsTransport{conn: c}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (t *wsTransport) Close(code websocket.StatusCode, reason string) error {
	return t.conn.Close(code, reason)
}

// CloseError reports the close code a transport ended with
type CloseError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closed with status %d: %s", e.Code, e.Reason)
}

// IsDeliberateClose reports whether err ended the socket on purpose: a
// normal closure, or the server refusing the session.
func IsDeliberateClose(err error) bool {
	code := websocket.CloseStatus(err)
	var ce *CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	return code == websocket.StatusNormalClosure || code == websocket.StatusPolicyViolation
}
