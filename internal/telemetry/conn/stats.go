package conn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayfinder-io/wayfinder/internal/pkg/metrics"
)

// Stats holds the manager's counters. Frame counters are monotonic for the
// process lifetime; the reconnect-attempt counter resets only on an explicit
// ResetReconnectAttempts, not on every reconnect.
type Stats struct {
	framesReceived atomic.Uint64
	framesDecoded  atomic.Uint64
	framesFailed   atomic.Uint64

	lastSample    atomic.Int64 // unix nanos, 0 = never
	lastHeartbeat atomic.Int64

	mu        sync.Mutex
	lastError string
}

// FrameReceived counts one raw frame off the transport.
func (s *Stats) FrameReceived() {
	s.framesReceived.Add(1)
	metrics.FramesReceivedTotal.Inc()
}

// FrameDecoded counts one successful decode. Satisfies dispatch.Recorder.
func (s *Stats) FrameDecoded() {
	s.framesDecoded.Add(1)
	metrics.FramesDecodedTotal.Inc()
}

// FrameFailed counts one failed decode. Satisfies dispatch.Recorder.
func (s *Stats) FrameFailed() {
	s.framesFailed.Add(1)
	metrics.FramesFailedTotal.Inc()
}

// SampleSeen records the arrival time of a decoded sensor record. This is
// the input to data-freshness judgement downstream.
func (s *Stats) SampleSeen(t time.Time) {
	s.lastSample.Store(t.UnixNano())
}

// HeartbeatSeen records receipt of a remote heartbeat. Socket liveness only;
// it says nothing about data flowing.
func (s *Stats) HeartbeatSeen(t time.Time) {
	s.lastHeartbeat.Store(t.UnixNano())
}

// SetLastError records the most recent human-readable failure.
func (s *Stats) SetLastError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// LastSampleAt returns the arrival time of the most recent sensor record,
// and false if none has arrived yet.
func (s *Stats) LastSampleAt() (time.Time, bool) {
	n := s.lastSample.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// Snapshot is a point-in-time view of the manager's statistics.
type Snapshot struct {
	ServerURL         string    `json:"server_url"`
	State             State     `json:"state"`
	FramesReceived    uint64    `json:"frames_received"`
	FramesDecoded     uint64    `json:"frames_decoded"`
	FramesFailed      uint64    `json:"frames_failed"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	LastError         string    `json:"last_error,omitempty"`
	LastSampleAt      time.Time `json:"last_sample_at,omitzero"`
	LastHeartbeatAt   time.Time `json:"last_heartbeat_at,omitzero"`
}

func (s *Stats) snapshot() Snapshot {
	s.mu.Lock()
	lastErr := s.lastError
	s.mu.Unlock()

	snap := Snapshot{
		FramesReceived: s.framesReceived.Load(),
		FramesDecoded:  s.framesDecoded.Load(),
		FramesFailed:   s.framesFailed.Load(),
		LastError:      lastErr,
	}
	if t, ok := s.LastSampleAt(); ok {
		snap.LastSampleAt = t
	}
	if n := s.lastHeartbeat.Load(); n != 0 {
		snap.LastHeartbeatAt = time.Unix(0, n)
	}
	return snap
}
