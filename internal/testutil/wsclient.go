package testutil

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a WebSocket test client speaking the JSON game protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url, which may use an http:// or ws:// scheme.
//
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()
	if strings.HasPrefix(url, "http") {
		url = "ws" + strings.TrimPrefix(url, "http")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("ws client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Send encodes msg as JSON and writes it as one text frame.
func (c *WSClient) Send(msg any) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("encoding %T: %v", msg, err)
	}
	c.SendRaw(data)
}

// SendRaw writes data as one text frame.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending %q: %v", data, err)
	}
}

// ReadUntil reads frames until one has the given "type", discarding the rest.
//
// Postcondition: Returns the matching frame decoded as a map, or fails on timeout.
func (c *WSClient) ReadUntil(typ string, timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	var seen []string
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until %q: saw %v, error: %v", typ, seen, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			c.t.Fatalf("decoding frame %q: %v", data, err)
		}
		if m["type"] == typ {
			return m
		}
		seen = append(seen, string(data))
	}
}

// Close sends a close frame and closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}
