package testutil

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a websocket test client speaking the JSON protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url (ws://host:port/path) and returns a test client.
//
// Precondition: url must point at a listening websocket endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	c, _ := DialWS(t, url, nil)
	if c == nil {
		t.Fatalf("dialing %s failed", url)
	}
	return c
}

// DialWS dials url with the given request headers. It returns a nil client
// and the handshake response when the server refuses the upgrade.
func DialWS(t *testing.T, url string, header http.Header) (*WSClient, *http.Response) {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		t.Logf("dialing %s: %v [%s]", url, err, time.Since(start))
		return nil, resp
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}, resp
}

// Send writes msg as a JSON text frame.
//
// Postcondition: msg is written or the test fails.
func (c *WSClient) Send(msg any) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("sending %v: %v", msg, err)
	}
}

// SendRaw writes data as a text frame without encoding it.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// Read returns the next decoded message, failing the test on timeout.
func (c *WSClient) Read(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var msg map[string]any
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("reading message: %v", err)
	}
	return msg
}

// ReadUntil skips messages until one of type typ arrives and returns it.
//
// Precondition: typ must be non-empty.
// Postcondition: Returns the matching message, or fails on timeout.
func (c *WSClient) ReadUntil(typ string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	var seen []any
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("reading until %q: saw %v, error: %v", typ, seen, err)
		}
		if msg["type"] == typ {
			return msg
		}
		seen = append(seen, msg["type"])
	}
}

// ExpectClosed fails the test unless the server closes the connection
// within timeout.
func (c *WSClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
