package unit

import (
	"testing"
	"time"

	"github.com/courier-im/courier/internal/server"
	"github.com/courier-im/courier/internal/store/memory"
)

func newSessionFixture() (*server.Registry, *server.Router, *server.SessionController) {
	registry := server.NewRegistry()
	router := server.NewRouter(registry, memory.NewStore(), &fakeScheduler{}, 10*time.Second)
	controller := server.NewSessionController(registry, router)
	return registry, router, controller
}

// TestConnectScenario walks the reference flow: alice connects to an empty
// server, bob connects and sees her, alice's stream gets the join event, and
// a direct message from bob reaches alice.
func TestConnectScenario(t *testing.T) {
	_, router, controller := newSessionFixture()

	online := controller.Connect("alice")
	if len(online) != 0 {
		t.Errorf("First user got online list %v, want empty", online)
	}

	alice := &fakeSink{}
	controller.Attach("alice", alice)

	online = controller.Connect("bob")
	if len(online) != 1 || online[0] != "alice" {
		t.Errorf("bob got online list %v, want [alice]", online)
	}

	msgs := alice.messages()
	if len(msgs) != 1 {
		t.Fatalf("alice received %d messages after bob joined, want 1", len(msgs))
	}
	join := msgs[0]
	if join.From != "bob" || join.Content != "joined" || !join.System {
		t.Errorf("Unexpected join event: %+v", join)
	}

	router.Send("bob", "alice", "hi", false)

	msgs = alice.messages()
	if len(msgs) != 2 {
		t.Fatalf("alice received %d messages after send, want 2", len(msgs))
	}
	direct := msgs[1]
	if direct.From != "bob" || direct.Content != "hi" || direct.System {
		t.Errorf("Unexpected direct message: %+v", direct)
	}
}

// TestJoinEventSkipsTheJoiner verifies a reconnecting user never receives
// their own join broadcast.
func TestJoinEventSkipsTheJoiner(t *testing.T) {
	_, _, controller := newSessionFixture()

	self := &fakeSink{}
	controller.Connect("alice")
	controller.Attach("alice", self)

	controller.Connect("alice")

	if len(self.messages()) != 0 {
		t.Errorf("Reconnecting user received %d of their own join events", len(self.messages()))
	}
}

// TestAttachDrainsStoredMessages verifies the reconnect flush happens inside
// Attach, after the sink registration.
func TestAttachDrainsStoredMessages(t *testing.T) {
	_, router, controller := newSessionFixture()

	router.Send("bob", "carol", "welcome back", false)

	carol := &fakeSink{}
	controller.Attach("carol", carol)

	msgs := carol.messages()
	if len(msgs) != 1 || msgs[0].Content != "welcome back" {
		t.Fatalf("Attach replayed %+v, want the stored message", msgs)
	}
}

// TestDisconnectLeavesChannelSubscriptions verifies presence and channel
// subscription are independent lifecycles: Disconnect removes presence but
// the channel subscriber set keeps delivering until the stream itself goes.
func TestDisconnectLeavesChannelSubscriptions(t *testing.T) {
	registry, _, controller := newSessionFixture()
	engine := server.NewChannelEngine(registry, memory.NewStore())

	controller.Connect("alice")
	stream := &fakeSink{}
	id := engine.Create("alice", "general", nil)
	engine.Subscribe(id, stream)

	controller.Disconnect("alice")

	if registry.IsOnline("alice") {
		t.Error("alice still online after Disconnect")
	}

	engine.Publish(id, "bob", "still here")
	if len(stream.messages()) != 1 {
		t.Errorf("Channel stream received %d messages after Disconnect, want 1", len(stream.messages()))
	}
}
