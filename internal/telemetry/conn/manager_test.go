package conn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testPolicy() Policy {
	return Policy{
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          40 * time.Millisecond,
		MaxAttempts:       3,
		HeartbeatInterval: time.Hour, // out of the way unless a test wants it
		ConnectTimeout:    2 * time.Second,
	}
}

// newBridge starts a websocket test server; handler runs once per accepted
// connection.
func newBridge(t *testing.T, handler func(ws *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handler(ws)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestConnectAndReceive(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"sensor_data","r":10,"g":20,"b":30,"distance":75}`))
		<-hold
	})

	m, err := NewManager(testPolicy(), WithClientID("test-client"))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	states, cancelStates := m.States().Listen("test", 16)
	defer cancelStates()
	records, cancelRecords := m.Records().Listen("test", 16)
	defer cancelRecords()
	frames, cancelFrames := m.Frames().Listen("test", 16)
	defer cancelFrames()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := <-states; got != StateConnecting {
		t.Fatalf("first transition = %v, want connecting", got)
	}
	if got := <-states; got != StateConnected {
		t.Fatalf("second transition = %v, want connected", got)
	}

	select {
	case rec := <-records:
		if rec.Red != 10 || rec.Green != 20 || rec.Blue != 30 || rec.DistanceCm != 75 {
			t.Errorf("unexpected record: %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no record published")
	}

	select {
	case raw := <-frames:
		if !strings.Contains(string(raw.Payload), "sensor_data") {
			t.Errorf("diagnostic frame = %s", raw.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no diagnostic frame published")
	}

	snap := m.Snapshot()
	if snap.FramesReceived != 1 || snap.FramesDecoded != 1 || snap.FramesFailed != 0 {
		t.Errorf("snapshot counters: %+v", snap)
	}
	if snap.LastSampleAt.IsZero() {
		t.Error("snapshot missing last-sample time")
	}
	if snap.ServerURL != url || snap.State != StateConnected {
		t.Errorf("snapshot identity: %+v", snap)
	}
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) { <-hold })

	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "connected", func() bool { return m.CurrentState() == StateConnected })

	before := m.States().Published()
	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatalf("second Connect must be a no-op, got %v", err)
	}
	if got := m.States().Published(); got != before {
		t.Errorf("no-op Connect emitted %d transitions", got-before)
	}
}

func TestConnectEmptyURL(t *testing.T) {
	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), ""); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("Connect(\"\") = %v, want ErrMissingURL", err)
	}
	if st := m.CurrentState(); st != StateDisconnected {
		t.Errorf("state = %v, want disconnected", st)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Send(map[string]any{"type": "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) { <-hold })

	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	states, cancel := m.States().Listen("test", 16)
	defer cancel()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, "connected", func() bool { return m.CurrentState() == StateConnected })

	m.Disconnect()
	m.Disconnect() // second call must not transition again

	var disconnects int
	drained := false
	for !drained {
		select {
		case st := <-states:
			if st == StateDisconnected {
				disconnects++
			}
		default:
			drained = true
		}
	}
	if disconnects != 1 {
		t.Errorf("observed %d Disconnected transitions, want exactly 1", disconnects)
	}

	if err := m.Send(map[string]any{"type": "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestMalformedFrameDoesNotDisconnect(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"sensor_data","r":1}`))
		<-hold
	})

	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "both frames counted", func() bool {
		return m.Snapshot().FramesReceived == 2
	})

	snap := m.Snapshot()
	if snap.FramesFailed != 1 {
		t.Errorf("FramesFailed = %d, want 1", snap.FramesFailed)
	}
	if snap.FramesDecoded != 1 {
		t.Errorf("FramesDecoded = %d, want 1", snap.FramesDecoded)
	}
	if st := m.CurrentState(); st != StateConnected {
		t.Errorf("state after malformed frame = %v, want connected", st)
	}
}

func TestAutoReconnectAfterServerClose(t *testing.T) {
	accepts := make(chan struct{}, 8)
	var first atomic.Bool
	first.Store(true)
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) {
		accepts <- struct{}{}
		if first.CompareAndSwap(true, false) {
			return // close immediately, simulating a flaky link
		}
		<-hold
	})

	m, err := NewManager(testPolicy())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	<-accepts // first connection
	select {
	case <-accepts: // reconnect happened
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect after server-side close")
	}

	waitFor(t, 2*time.Second, "reconnected", func() bool { return m.CurrentState() == StateConnected })

	// A successful connection resets the attempt counter.
	if snap := m.Snapshot(); snap.ReconnectAttempts != 0 {
		t.Errorf("ReconnectAttempts = %d after success, want 0", snap.ReconnectAttempts)
	}
}

func TestReconnectCapIsTerminalUntilReset(t *testing.T) {
	srv, url := newBridge(t, func(ws *websocket.Conn) {})
	srv.Close() // nothing listening: every dial fails

	m, err := NewManager(testPolicy()) // MaxAttempts: 3
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err == nil {
		t.Fatal("Connect to a dead bridge must return the dial error")
	}

	// 3 failed reconnect cycles, then terminal Error.
	waitFor(t, 5*time.Second, "exhaustion", func() bool {
		snap := m.Snapshot()
		return snap.State == StateError && snap.ReconnectAttempts > testPolicy().MaxAttempts
	})

	// No further attempts once exhausted.
	attempts := m.Snapshot().ReconnectAttempts
	time.Sleep(100 * time.Millisecond)
	if got := m.Snapshot().ReconnectAttempts; got != attempts {
		t.Fatalf("attempts kept growing after exhaustion: %d -> %d", attempts, got)
	}
	if snap := m.Snapshot(); snap.LastError == "" {
		t.Error("exhaustion must leave a last-error string in the snapshot")
	}

	// A bare Connect keeps the exhausted counter, so the next failure
	// re-exhausts instead of granting a fresh budget.
	if err := m.Connect(context.Background(), url); err == nil {
		t.Fatal("Connect to a dead bridge must return the dial error")
	}
	waitFor(t, 2*time.Second, "re-exhaustion", func() bool {
		return m.Snapshot().State == StateError
	})
	if got := m.Snapshot().ReconnectAttempts; got <= attempts {
		t.Fatalf("ReconnectAttempts = %d after bare Connect, want counter retained above %d", got, attempts)
	}

	// Reset re-arms auto-reconnect; a live bridge then accepts the connect.
	hold := make(chan struct{})
	defer close(hold)
	_, liveURL := newBridge(t, func(ws *websocket.Conn) { <-hold })

	m.ResetReconnectAttempts()
	if err := m.Connect(context.Background(), liveURL); err != nil {
		t.Fatalf("Connect after reset: %v", err)
	}
	waitFor(t, 2*time.Second, "connected after reset", func() bool {
		return m.CurrentState() == StateConnected
	})
}

func TestHeartbeatIdentifiesClient(t *testing.T) {
	got := make(chan string, 1)
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) {
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type     string `json:"type"`
				ClientID string `json:"client_id"`
			}
			if json.Unmarshal(payload, &msg) == nil && msg.Type == "heartbeat_response" {
				select {
				case got <- msg.ClientID:
				default:
				}
			}
		}
	})

	policy := testPolicy()
	policy.HeartbeatInterval = 10 * time.Millisecond

	m, err := NewManager(policy, WithClientID("client-under-test"))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	select {
	case id := <-got:
		if id != "client-under-test" {
			t.Errorf("heartbeat client_id = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat received by bridge")
	}
}

func TestInboundHeartbeatAcknowledged(t *testing.T) {
	acks := make(chan []byte, 1)
	hold := make(chan struct{})
	defer close(hold)
	_, url := newBridge(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		for {
			_, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			select {
			case acks <- payload:
			default:
			}
		}
	})

	// The hour-long heartbeat interval keeps the periodic loop quiet; the
	// only outbound frame is the acknowledgement.
	m, err := NewManager(testPolicy(), WithClientID("ack-client"))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Connect(context.Background(), url); err != nil {
		t.Fatal(err)
	}

	select {
	case payload := <-acks:
		var msg struct {
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
			ClientID  string `json:"client_id"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("ack frame not JSON: %v", err)
		}
		if msg.Type != "heartbeat_response" {
			t.Errorf("ack type = %q, want heartbeat_response", msg.Type)
		}
		if msg.ClientID != "ack-client" {
			t.Errorf("ack client_id = %q, want ack-client", msg.ClientID)
		}
		if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
			t.Errorf("ack timestamp %q: %v", msg.Timestamp, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no acknowledgement for inbound heartbeat")
	}

	waitFor(t, 2*time.Second, "heartbeat receipt recorded", func() bool {
		return !m.Snapshot().LastHeartbeatAt.IsZero()
	})
}
