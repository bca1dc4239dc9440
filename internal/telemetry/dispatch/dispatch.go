package dispatch

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
)

// Recorder receives decode outcome counts. The connection manager's
// statistics satisfy this.
type Recorder interface {
	FrameDecoded()
	FrameFailed()
}

type nopRecorder struct{}

func (nopRecorder) FrameDecoded() {}
func (nopRecorder) FrameFailed()  {}

// Decoder turns one raw text frame into exactly one Event. It never lets a
// malformed frame propagate as anything but a *ParseError.
type Decoder struct {
	stats Recorder
	now   func() time.Time
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithRecorder wires decode counters.
func WithRecorder(r Recorder) Option {
	return func(d *Decoder) { d.stats = r }
}

// WithClock overrides the capture-time source.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		stats: nopRecorder{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode classifies and decodes one frame. Decoding is two-tier: an explicit
// type tag wins; otherwise the frame is accepted as an untagged sensor
// payload if it has a recognizable sensor shape. Firmware versions disagree
// on payload shape, so the fallback is deliberate; it only fires on the
// shape heuristic, never on arbitrary JSON.
func (d *Decoder) Decode(raw []byte) (Event, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		d.stats.FrameFailed()
		return nil, &ParseError{Kind: KindBadJSON, Cause: err}
	}

	if tag, ok := obj["type"]; ok {
		switch cast.ToString(tag) {
		case TypeHeartbeat:
			d.stats.FrameDecoded()
			return Heartbeat{ReceivedAt: d.now()}, nil
		case TypeSensorData, TypeESP32Data:
			ev := Sensor{Record: d.decodeSensor(unwrap(obj))}
			d.stats.FrameDecoded()
			return ev, nil
		case TypeStatus:
			// A status frame without a status field is a protocol slip, not
			// a fatal condition: substitute defaults and carry on.
			d.stats.FrameDecoded()
			return Status{
				Status:  cast.ToString(obj["status"]),
				Message: cast.ToString(obj["message"]),
			}, nil
		}
	}

	if payload := unwrap(obj); hasSensorShape(payload) {
		ev := Sensor{Record: d.decodeSensor(payload)}
		d.stats.FrameDecoded()
		return ev, nil
	}

	d.stats.FrameFailed()
	return nil, &ParseError{Kind: KindUnrecognized}
}

// unwrap peels one level of "data" or "sensor_data" nesting so field
// extraction sees the flat payload regardless of envelope style.
func unwrap(obj map[string]any) map[string]any {
	for _, key := range []string{"data", "sensor_data"} {
		if nested, ok := obj[key].(map[string]any); ok {
			return nested
		}
	}
	return obj
}

// hasSensorShape reports whether an untagged object looks like a sensor
// payload: any RGB channel, a distance field, or a latitude/longitude pair.
func hasSensorShape(obj map[string]any) bool {
	if _, ok := obj["r"]; ok {
		return true
	}
	if _, ok := obj["g"]; ok {
		return true
	}
	if _, ok := obj["b"]; ok {
		return true
	}
	if _, ok := obj["distance"]; ok {
		return true
	}
	_, hasLat := obj["latitude"]
	_, hasLon := obj["longitude"]
	return hasLat && hasLon
}

// decodeSensor extracts a canonical record. Missing channels default to
// zero; a partial sample is still useful. Values may arrive as JSON numbers
// or strings depending on firmware, hence the cast coercion.
func (d *Decoder) decodeSensor(obj map[string]any) record.SensorRecord {
	rec := record.New(
		cast.ToInt(obj["r"]),
		cast.ToInt(obj["g"]),
		cast.ToInt(obj["b"]),
		d.now(),
	)

	if v, ok := obj["distance"]; ok {
		rec = rec.WithDistance(cast.ToFloat64(v))
	}

	lat, hasLat := obj["latitude"]
	lon, hasLon := obj["longitude"]
	if hasLat && hasLon {
		rec = rec.WithFix(cast.ToFloat64(lat), cast.ToFloat64(lon))
	}

	return rec
}
