// Package conn owns the single live bridge connection: dialing, the
// reconnect/heartbeat state machine, and feeding raw frames through the
// dispatcher onto the fan-out streams. The transport handle never leaves
// this package.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"

	"github.com/wayfinder-io/wayfinder/internal/pkg/metrics"
	fsmutil "github.com/wayfinder-io/wayfinder/internal/pkg/util/fsm"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/bus"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/dispatch"
	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
	"github.com/wayfinder-io/wayfinder/pkg/log"
)

// writeWait bounds a single write to the peer.
const writeWait = 10 * time.Second

var (
	// ErrNotConnected is returned by Send while the link is down.
	ErrNotConnected = errors.New("conn: not connected")

	// ErrMissingURL is returned by Connect with an empty server URL.
	ErrMissingURL = errors.New("conn: server url is required")
)

// RawFrame is one pre-decode text frame, published on the diagnostic stream
// regardless of decode outcome.
type RawFrame struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Manager owns the websocket connection and its health. All state
// transitions are serialized under one mutex; the read pump, heartbeat loop
// and reconnect timer are tasks owned by the session and cancelled together
// on Disconnect.
type Manager struct {
	policy   Policy
	clientID string
	decoder  *dispatch.Decoder
	stats    *Stats

	states  *bus.Stream[State]
	records *bus.Stream[record.SensorRecord]
	frames  *bus.Stream[RawFrame]

	dialer *websocket.Dialer

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu             sync.Mutex
	machine        *fsm.FSM
	conn           *websocket.Conn
	url            string
	dialCtx        context.Context
	autoReconnect  bool
	attempts       int
	reconnectTimer *time.Timer
	sessionCancel  context.CancelFunc
	gen            uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientID overrides the generated client identity sent in heartbeats.
func WithClientID(id string) ManagerOption {
	return func(m *Manager) { m.clientID = id }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) ManagerOption {
	return func(m *Manager) { m.dialer = d }
}

// NewManager creates a disconnected Manager. The caller owns the instance;
// there is no process-wide singleton.
func NewManager(policy Policy, opts ...ManagerOption) (*Manager, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconnect policy: %w", err)
	}

	m := &Manager{
		policy:   policy,
		clientID: "wayfinder-" + uuid.NewString()[:8],
		stats:    &Stats{},
		states:   bus.NewStream[State](),
		records:  bus.NewStream[record.SensorRecord](),
		frames:   bus.NewStream[RawFrame](),
		dialer:   &websocket.Dialer{HandshakeTimeout: policy.ConnectTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.decoder = dispatch.NewDecoder(dispatch.WithRecorder(m.stats))
	m.machine = m.buildFSM()
	m.publishGauge(StateDisconnected)
	return m, nil
}

func (m *Manager) buildFSM() *fsm.FSM {
	events := fsm.Events{
		{Name: eventConnect, Src: []string{string(StateDisconnected), string(StateReconnecting), string(StateError)}, Dst: string(StateConnecting)},
		{Name: eventOpened, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
		{Name: eventLost, Src: []string{string(StateConnected)}, Dst: string(StateReconnecting)},
		{Name: eventFailed, Src: []string{string(StateConnecting)}, Dst: string(StateError)},
		{Name: eventRetry, Src: []string{string(StateError)}, Dst: string(StateReconnecting)},
		{Name: eventExhausted, Src: []string{string(StateReconnecting)}, Dst: string(StateError)},
		{Name: eventStop, Src: []string{string(StateConnecting), string(StateConnected), string(StateReconnecting), string(StateError)}, Dst: string(StateDisconnected)},
	}

	callbacks := fsm.Callbacks{
		// Guard: a connect without a URL never leaves Disconnected.
		"before_" + eventConnect: fsmutil.WrapEvent(func(ctx context.Context, e *fsm.Event) error {
			if m.url == "" {
				return ErrMissingURL
			}
			return nil
		}),

		// Every transition is observable: publish the new state.
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			st := State(e.Dst)
			m.states.Publish(st)
			m.publishGauge(st)
		},
	}

	return fsm.NewFSM(string(StateDisconnected), events, callbacks)
}

func (m *Manager) publishGauge(current State) {
	for _, st := range []State{StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateError} {
		v := 0.0
		if st == current {
			v = 1.0
		}
		metrics.LinkState.WithLabelValues(string(st)).Set(v)
	}
}

// States is the connection-state stream: every transition, in order.
func (m *Manager) States() *bus.Stream[State] { return m.states }

// Records is the sensor-record stream: every decoded sample, in arrival order.
func (m *Manager) Records() *bus.Stream[record.SensorRecord] { return m.records }

// Frames is the diagnostic stream of raw pre-decode frames.
func (m *Manager) Frames() *bus.Stream[RawFrame] { return m.frames }

// Stats exposes the shared counters (also the dispatcher's recorder).
func (m *Manager) Stats() *Stats { return m.stats }

// ClientID returns the identity sent in heartbeat replies.
func (m *Manager) ClientID() string { return m.clientID }

func (m *Manager) current() State {
	return State(m.machine.Current())
}

// CurrentState returns the live connection state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

// Connect dials the bridge. Calling it while already connecting or connected
// is a no-op. On failure the state passes through Error and, with
// auto-reconnect enabled, a retry is scheduled per policy; the dial error is
// still returned to the caller. Connect re-enables auto-reconnect but keeps
// the attempt counter, so after an exhaustion stop a fresh attempt budget
// requires ResetReconnectAttempts first.
func (m *Manager) Connect(ctx context.Context, url string) error {
	if url == "" {
		return ErrMissingURL
	}

	m.mu.Lock()
	switch m.current() {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	}

	// An explicit connect supersedes any backoff in flight.
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	m.url = url
	m.dialCtx = ctx
	m.autoReconnect = true

	if err := m.fire(ctx, eventConnect); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	return m.attempt(ctx)
}

// attempt performs one dial. The dial itself runs outside the mutex; the
// outcome is applied under it.
func (m *Manager) attempt(ctx context.Context) error {
	m.mu.Lock()
	url := m.url
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, m.policy.ConnectTimeout)
	ws, resp, err := m.dialer.DialContext(dctx, url, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current() != StateConnecting {
		// Disconnected (or otherwise moved on) while the dial was in flight.
		if ws != nil {
			ws.Close()
		}
		return nil
	}

	if err != nil {
		err = fmt.Errorf("dial %s: %w", url, err)
		m.stats.SetLastError(err)
		log.Warn("Bridge connection failed", "err", err, "url", url, "attempt", m.attempts)

		_ = m.fire(ctx, eventFailed)
		if m.autoReconnect {
			_ = m.fire(ctx, eventRetry)
			m.scheduleReconnectLocked(ctx)
		}
		return err
	}

	m.conn = ws
	m.attempts = 0
	_ = m.fire(ctx, eventOpened)
	m.startSessionLocked(ws)

	log.Info("Bridge connected", "url", url, "clientID", m.clientID)
	return nil
}

// scheduleReconnectLocked runs on every entry into Reconnecting: bump the
// attempt counter, stop for good once the cap is exceeded, otherwise arm a
// single-shot backoff timer.
func (m *Manager) scheduleReconnectLocked(ctx context.Context) {
	m.attempts++
	metrics.ReconnectAttemptsTotal.Inc()

	if m.policy.MaxAttempts > 0 && m.attempts > m.policy.MaxAttempts {
		// Terminal: subscribers observe the Error transition rather than a
		// silent forever-retry.
		m.autoReconnect = false
		_ = m.fire(ctx, eventExhausted)
		log.Warn("Reconnect attempts exhausted", "maxAttempts", m.policy.MaxAttempts, "url", m.url)
		return
	}

	delay := m.policy.Delay(m.attempts)
	log.Info("Scheduling reconnect", "attempt", m.attempts, "delay", delay)
	m.reconnectTimer = time.AfterFunc(delay, m.onReconnectTimer)
}

func (m *Manager) onReconnectTimer() {
	m.mu.Lock()
	if m.current() != StateReconnecting || !m.autoReconnect {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	ctx := m.dialCtx
	_ = m.fire(ctx, eventConnect)
	m.mu.Unlock()

	_ = m.attempt(ctx)
}

// startSessionLocked launches the per-connection tasks. They share one
// context so Disconnect cancels them as a unit.
func (m *Manager) startSessionLocked(ws *websocket.Conn) {
	sctx, cancel := context.WithCancel(context.Background())
	m.sessionCancel = cancel
	m.gen++

	go m.readPump(sctx, ws, m.gen)
	go m.heartbeatLoop(sctx, ws)
}

// teardownSessionLocked cancels the session tasks and closes the transport.
// Heartbeat/read cancellation happens before the close so neither task fires
// against a torn-down connection.
func (m *Manager) teardownSessionLocked() {
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
}

func (m *Manager) readPump(ctx context.Context, ws *websocket.Conn, gen uint64) {
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate teardown
			}
			m.handleLoss(gen, err)
			return
		}
		m.handleFrame(payload)
	}
}

// handleFrame processes one inbound frame: count it, surface it on the
// diagnostic stream, decode it, and publish the typed result. Decode
// failures are counted and logged, never fatal to the connection.
func (m *Manager) handleFrame(payload []byte) {
	m.stats.FrameReceived()
	m.frames.Publish(RawFrame{Payload: payload, ReceivedAt: time.Now()})

	ev, err := m.decoder.Decode(payload)
	if err != nil {
		log.Debug("Frame decode failed", "err", err)
		return
	}

	switch e := ev.(type) {
	case dispatch.Sensor:
		m.stats.SampleSeen(e.Record.Timestamp)
		metrics.SamplesTotal.WithLabelValues("websocket").Inc()
		m.records.Publish(e.Record)
	case dispatch.Heartbeat:
		m.stats.HeartbeatSeen(e.ReceivedAt)
		// Acknowledge with our identity; best effort, the periodic loop
		// keeps the socket alive either way.
		if err := m.Send(dispatch.NewHeartbeatResponse(m.clientID, time.Now())); err != nil {
			log.Debug("Heartbeat ack skipped", "err", err)
		}
	case dispatch.Status:
		log.Info("Bridge status", "status", e.Status, "message", e.Message)
	}
}

// handleLoss reacts to an unexpected close or transport error while
// connected: straight to Reconnecting, never silently swallowed.
func (m *Manager) handleLoss(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return // stale pump from a previous connection
	}
	if m.current() != StateConnected {
		return
	}

	m.stats.SetLastError(err)
	log.Warn("Bridge connection lost", "err", err, "url", m.url)

	m.teardownSessionLocked()
	_ = m.fire(m.dialCtx, eventLost)
	m.scheduleReconnectLocked(m.dialCtx)
}

func (m *Manager) heartbeatLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(m.policy.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := dispatch.NewHeartbeatResponse(m.clientID, time.Now())
			if err := m.writeJSON(ws, hb); err != nil {
				log.Warn("Heartbeat send failed", "err", err)
				// The read pump observes the broken socket and drives the
				// reconnect; nothing more to do here.
				return
			}
		}
	}
}

// Send serializes the payload as a JSON text frame. It fails without side
// effects while not connected.
func (m *Manager) Send(payload any) error {
	m.mu.Lock()
	if m.current() != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	ws := m.conn
	m.mu.Unlock()

	return m.writeJSON(ws, payload)
}

func (m *Manager) writeJSON(ws *websocket.Conn, payload any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(payload)
}

// Disconnect cancels the heartbeat and read tasks, stops any pending
// reconnect timer, closes the transport and disables auto-reconnect, in that
// order, before reporting Disconnected. A second call is a no-op and emits
// no further transition.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current() == StateDisconnected {
		return
	}

	m.teardownSessionLocked()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.autoReconnect = false

	_ = m.fire(context.Background(), eventStop)
	log.Info("Bridge disconnected", "url", m.url)
}

// ResetReconnectAttempts zeroes the attempt counter and re-enables
// auto-reconnect after an exhaustion stop.
func (m *Manager) ResetReconnectAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = 0
	m.autoReconnect = true
}

// Snapshot returns a point-in-time statistics view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	url := m.url
	state := m.current()
	attempts := m.attempts
	m.mu.Unlock()

	snap := m.stats.snapshot()
	snap.ServerURL = url
	snap.State = state
	snap.ReconnectAttempts = attempts
	return snap
}

// Close disconnects and detaches all stream subscribers.
func (m *Manager) Close() {
	m.Disconnect()
	m.states.Close()
	m.records.Close()
	m.frames.Close()
}

func (m *Manager) fire(ctx context.Context, event string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return m.machine.Event(ctx, event)
}
