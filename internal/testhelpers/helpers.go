// Package testhelpers provides common utilities for testing the streams server.
//
// It holds helpers for dialing the raw SockJS websocket endpoint, reading and
// writing text frames with deadlines, and making plain HTTP requests.
package testhelpers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// StreamURL turns an httptest server URL into the ws:// URL of the raw
// websocket endpoint below prefix.
func StreamURL(t *testing.T, serverURL, prefix string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = strings.TrimRight(prefix, "/") + "/websocket"
	return u.String()
}

// DialStream opens a websocket connection to wsURL, sending origin as the
// Origin header when it is not empty.
func DialStream(wsURL, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustDialStream is DialStream that fails the test on error and closes the
// connection during cleanup.
func MustDialStream(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()
	conn, err := DialStream(wsURL, origin)
	if err != nil {
		t.Fatalf("Failed to connect to stream: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendText writes a single text frame.
func SendText(conn *websocket.Conn, msg string) error {
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// ReceiveText reads the next frame, waiting at most timeout.
func ReceiveText(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	return string(data), err
}

// CloseWebSocket gracefully closes a websocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}
