// Package integration verifies graceful shutdown: the core closes every
// live stream, stops the scheduler, and returns within its timeout.
package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-im/courier/internal/server"
	"github.com/courier-im/courier/internal/store/memory"
	"github.com/courier-im/courier/test/testhelpers"
)

// TestShutdownClosesStreams verifies open receive streams are torn down by
// Shutdown and their connections observe the close.
func TestShutdownClosesStreams(t *testing.T) {
	srv := server.NewServer(nil, memory.NewStore())
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	testhelpers.Connect(t, ts.URL, "alice")
	streams := []*websocket.Conn{
		testhelpers.DialStream(t, ts.URL, "/ws?username=alice"),
		testhelpers.DialStream(t, ts.URL, "/ws/channel?username=alice&channel=CHANNEL:general"),
	}

	time.Sleep(100 * time.Millisecond)

	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown returned %v, want nil", err)
	}

	for i, conn := range streams {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("Failed to set read deadline on stream %d: %v", i, err)
		}
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Errorf("Stream %d still delivering after shutdown", i)
		}
	}
}

// TestShutdownIsIdempotent verifies calling Shutdown twice does not panic or
// hang.
func TestShutdownIsIdempotent(t *testing.T) {
	srv := server.NewServer(nil, memory.NewStore())
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("First shutdown returned %v", err)
	}
	if err := srv.Shutdown(time.Second); err != nil {
		t.Fatalf("Second shutdown returned %v", err)
	}
}

// TestShutdownWithNoClients verifies an idle server shuts down immediately.
func TestShutdownWithNoClients(t *testing.T) {
	srv := server.NewServer(nil, memory.NewStore())

	start := time.Now()
	if err := srv.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown returned %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Idle shutdown took %v", elapsed)
	}
}
