package dispatch

import (
	"fmt"
	"time"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
)

// Type discriminators accepted on the wire. SensorData and ESP32Data are
// aliases: older firmware tags the same payload shape differently.
const (
	TypeHeartbeat  = "heartbeat"
	TypeSensorData = "sensor_data"
	TypeESP32Data  = "esp32_data"
	TypeStatus     = "status"

	// TypeHeartbeatResponse is the outbound reply identifying this client.
	TypeHeartbeatResponse = "heartbeat_response"
)

// Event is one decoded inbound frame. Exactly one concrete type is produced
// per frame; nothing past the dispatcher sees an untyped map.
type Event interface {
	isEvent()
}

// Heartbeat is a keep-alive from the remote side. Receipt proves the socket,
// not the data path; data liveness is judged from sample freshness.
type Heartbeat struct {
	ReceivedAt time.Time
}

// Status is a server-side status notification.
type Status struct {
	Status  string
	Message string
}

// Sensor carries one canonical telemetry sample.
type Sensor struct {
	Record record.SensorRecord
}

func (Heartbeat) isEvent() {}
func (Status) isEvent()    {}
func (Sensor) isEvent()    {}

// ParseError kinds.
const (
	// KindBadJSON means the frame was not valid JSON.
	KindBadJSON = "bad_json"
	// KindUnrecognized means the frame was JSON but matched neither a known
	// type tag nor the sensor shape heuristic.
	KindUnrecognized = "unrecognized"
)

// ParseError reports a frame that could not be decoded. It is counted and
// optionally surfaced on the diagnostic stream; it never closes the
// connection.
type ParseError struct {
	Kind  string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("frame decode failed (%s): %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("frame decode failed (%s)", e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// HeartbeatResponse is the outbound heartbeat reply payload.
type HeartbeatResponse struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	ClientID  string `json:"client_id"`
}

// NewHeartbeatResponse builds the reply frame for the given client identity.
func NewHeartbeatResponse(clientID string, now time.Time) HeartbeatResponse {
	return HeartbeatResponse{
		Type:      TypeHeartbeatResponse,
		Timestamp: now.UTC().Format(time.RFC3339),
		ClientID:  clientID,
	}
}
