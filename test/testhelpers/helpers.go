// Package testhelpers provides common utilities and helper functions for
// testing the Courier server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: building in-process servers with fresh state,
// calling the unary JSON endpoints, and driving WebSocket streams with
// deadlines.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-im/courier/internal/server"
	"github.com/courier-im/courier/internal/store/memory"
)

// NewTestServer builds a fully wired Courier server on an in-memory store
// and serves it from an httptest server. The returned test server is closed
// automatically when the test finishes.
func NewTestServer(t *testing.T, cfg *server.Config) (*httptest.Server, *server.Server) {
	t.Helper()

	srv := server.NewServer(cfg, memory.NewStore())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		if err := srv.Shutdown(2 * time.Second); err != nil {
			t.Logf("server shutdown: %v", err)
		}
	})
	return ts, srv
}

// PostJSON posts body as JSON to url and decodes the response into out when
// out is non-nil. It fails the test on transport errors and returns the
// response status code.
func PostJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request body: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// DialStream opens a WebSocket connection against the test server. path must
// include the query string, e.g. "/ws?username=alice". The connection is
// closed when the test finishes.
func DialStream(t *testing.T, baseURL, path string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(baseURL, "http://", "ws://", 1) + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// ReadStreamMessage reads the next message from a stream, failing the test
// if nothing arrives before the timeout.
func ReadStreamMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Message {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a stream message, got read error: %v", err)
	}

	var msg server.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to decode stream message %q: %v", data, err)
	}
	return msg
}

// ExpectNoMessage asserts that nothing arrives on the stream within the
// given window.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, received %q", data)
	}
}

// Connect calls the Connect operation for username and returns the list of
// usernames that were already online.
func Connect(t *testing.T, baseURL, username string) []string {
	t.Helper()

	var resp struct {
		Online []string `json:"online"`
	}
	status := PostJSON(t, baseURL+"/connect", map[string]string{"username": username}, &resp)
	if status != http.StatusOK {
		t.Fatalf("Connect for %s returned status %d", username, status)
	}
	return resp.Online
}

// Disconnect calls the Disconnect operation for username.
func Disconnect(t *testing.T, baseURL, username string) {
	t.Helper()

	status := PostJSON(t, baseURL+"/disconnect", map[string]string{"username": username}, nil)
	if status != http.StatusOK {
		t.Fatalf("Disconnect for %s returned status %d", username, status)
	}
}
