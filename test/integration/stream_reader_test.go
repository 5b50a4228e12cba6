package integration

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-im/courier/internal/server"
)

// streamReader pumps a WebSocket stream into a channel so tests can read
// many streams concurrently without juggling deadlines.
type streamReader struct {
	msgs chan server.Message
}

func newStreamReader(conn *websocket.Conn) *streamReader {
	r := &streamReader{msgs: make(chan server.Message, 1024)}
	go func() {
		defer close(r.msgs)
		for {
			var msg server.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			r.msgs <- msg
		}
	}()
	return r
}

// next returns the next message, or false if none arrives in time.
func (r *streamReader) next(timeout time.Duration) (server.Message, bool) {
	select {
	case msg, ok := <-r.msgs:
		return msg, ok
	case <-time.After(timeout):
		return server.Message{}, false
	}
}

// collect reads until want messages arrived or the deadline passes, and
// returns everything received.
func (r *streamReader) collect(want int, deadline time.Duration) []server.Message {
	var got []server.Message
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for len(got) < want {
		select {
		case msg, ok := <-r.msgs:
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-timer.C:
			return got
		}
	}
	return got
}
