// Package integration load-tests channel fan-out across scheduler worker
// pool sizes, mirroring how the system is tuned in production: a handful of
// admin-owned channels, every client subscribed to all of them, and a
// counted burst of publishes.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/courier-im/courier/internal/server"
	"github.com/courier-im/courier/test/testhelpers"
)

const (
	stressClients  = 12
	stressChannels = 3
	stressMessages = 10
)

// TestFanOutAcrossWorkerPoolSizes runs the same load scenario with the
// scheduler worker pool at 1, 2, 4, and 8, asserting full delivery and
// exact counters each time.
func TestFanOutAcrossWorkerPoolSizes(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("%d_workers", workers), func(t *testing.T) {
			runStressScenario(t, workers)
		})
	}
}

func runStressScenario(t *testing.T, workers int) {
	cfg := server.NewConfig()
	cfg.WorkerPoolSize = workers
	cfg.RateLimit.Burst = stressChannels * stressMessages * 2
	ts, _ := testhelpers.NewTestServer(t, cfg)

	channelIDs := make([]string, stressChannels)
	for c := 0; c < stressChannels; c++ {
		name := fmt.Sprintf("stress_%d", c)
		status := testhelpers.PostJSON(t, ts.URL+"/channels", map[string]any{
			"creator": fmt.Sprintf("admin_%d", c), "name": name,
		}, nil)
		if status != http.StatusOK {
			t.Fatalf("CreateChannel %s returned status %d", name, status)
		}
		channelIDs[c] = "CHANNEL:" + name
	}

	// Every client subscribes to every channel.
	readers := make([]*streamReader, 0, stressClients*stressChannels)
	for i := 0; i < stressClients; i++ {
		username := fmt.Sprintf("user_%d", i)
		testhelpers.Connect(t, ts.URL, username)
		for _, channelID := range channelIDs {
			conn := testhelpers.DialStream(t, ts.URL,
				fmt.Sprintf("/ws/channel?username=%s&channel=%s", username, channelID))
			readers = append(readers, newStreamReader(conn))
		}
	}
	time.Sleep(200 * time.Millisecond)

	// Each channel's admin publishes its burst concurrently.
	var wg sync.WaitGroup
	for c, channelID := range channelIDs {
		wg.Add(1)
		go func(admin string, channelID string) {
			defer wg.Done()
			for m := 0; m < stressMessages; m++ {
				body, _ := json.Marshal(map[string]any{
					"from":      admin,
					"channelId": channelID,
					"content":   fmt.Sprintf("[%s] msg %d", admin, m),
				})
				resp, err := http.Post(ts.URL+"/channels/send", "application/json", bytes.NewReader(body))
				if err != nil {
					t.Errorf("Publish to %s failed: %v", channelID, err)
					return
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					t.Errorf("Publish to %s returned status %d", channelID, resp.StatusCode)
				}
			}
		}(fmt.Sprintf("admin_%d", c), channelID)
	}
	wg.Wait()

	// Each subscription stream must see exactly its channel's burst.
	var streamWG sync.WaitGroup
	for i, reader := range readers {
		streamWG.Add(1)
		go func(i int, reader *streamReader) {
			defer streamWG.Done()
			got := reader.collect(stressMessages, 10*time.Second)
			if len(got) != stressMessages {
				t.Errorf("Stream %d received %d messages, want %d", i, len(got), stressMessages)
			}
		}(i, reader)
	}
	streamWG.Wait()

	for _, channelID := range channelIDs {
		if got := channelStats(t, ts.URL, channelID); got != stressMessages {
			t.Errorf("Stats for %s = %d, want %d", channelID, got, stressMessages)
		}
	}
}
