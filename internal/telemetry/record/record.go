package record

import (
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DistanceZone classifies an obstacle distance into coarse proximity bands.
type DistanceZone int

const (
	// ZoneUnknown means the record carried no distance sample.
	ZoneUnknown DistanceZone = iota
	// ZoneVeryClose is below 20cm.
	ZoneVeryClose
	// ZoneClose is 20cm up to but excluding 50cm.
	ZoneClose
	// ZoneMedium is 50cm up to but excluding 100cm.
	ZoneMedium
	// ZoneFar is 100cm up to but excluding 200cm.
	ZoneFar
	// ZoneVeryFar is 200cm and beyond.
	ZoneVeryFar
)

func (z DistanceZone) String() string {
	switch z {
	case ZoneVeryClose:
		return "very_close"
	case ZoneClose:
		return "close"
	case ZoneMedium:
		return "medium"
	case ZoneFar:
		return "far"
	case ZoneVeryFar:
		return "very_far"
	default:
		return "unknown"
	}
}

// SensorRecord is one canonical telemetry sample. It is constructed once by
// the dispatcher and never mutated afterwards; whoever receives it owns it.
type SensorRecord struct {
	// Red, Green and Blue are the ambient color channels, clamped to [0,255].
	Red   int `json:"r"`
	Green int `json:"g"`
	Blue  int `json:"b"`

	// DistanceCm is the obstacle distance. Meaningful only when HasDistance
	// is set; the zero value otherwise.
	DistanceCm  float64 `json:"distance"`
	HasDistance bool    `json:"has_distance"`

	// Latitude and Longitude are meaningful only when HasFix is set. A fix at
	// exactly 0,0 is a legitimate coordinate, not an unset marker.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	HasFix    bool    `json:"has_fix"`

	// Timestamp is the client-side capture time, assigned on receipt. Wire
	// timestamps are not trusted.
	Timestamp time.Time `json:"timestamp"`
}

// New builds a record with the color channels clamped into [0,255] and the
// distance floored at zero. The timestamp is taken as the capture time.
func New(r, g, b int, ts time.Time) SensorRecord {
	return SensorRecord{
		Red:       clampChannel(r),
		Green:     clampChannel(g),
		Blue:      clampChannel(b),
		Timestamp: ts,
	}
}

// WithDistance returns a copy carrying a distance sample. Negative distances
// are clamped to zero.
func (s SensorRecord) WithDistance(cm float64) SensorRecord {
	if cm < 0 {
		cm = 0
	}
	s.DistanceCm = cm
	s.HasDistance = true
	return s
}

// WithFix returns a copy carrying a GPS fix, clamped to valid ranges.
func (s SensorRecord) WithFix(lat, lon float64) SensorRecord {
	s.Latitude = clampFloat(lat, -90, 90)
	s.Longitude = clampFloat(lon, -180, 180)
	s.HasFix = true
	return s
}

// Brightness is the perceived luminance of the ambient color in [0,1],
// using the Rec. 601 luma coefficients.
func (s SensorRecord) Brightness() float64 {
	return (0.299*float64(s.Red) + 0.587*float64(s.Green) + 0.114*float64(s.Blue)) / 255.0
}

// IsDark reports whether the ambient brightness is below the midpoint.
func (s SensorRecord) IsDark() bool {
	return s.Brightness() < 0.5
}

// Zone returns the proximity band of the distance sample, or ZoneUnknown when
// the record carries none. Bands are half-open: 20.0cm is already ZoneClose.
func (s SensorRecord) Zone() DistanceZone {
	if !s.HasDistance {
		return ZoneUnknown
	}
	switch d := s.DistanceCm; {
	case d < 20:
		return ZoneVeryClose
	case d < 50:
		return ZoneClose
	case d < 100:
		return ZoneMedium
	case d < 200:
		return ZoneFar
	default:
		return ZoneVeryFar
	}
}

// IsObstacle reports whether the distance sample is close enough to warrant
// an obstacle warning.
func (s SensorRecord) IsObstacle() bool {
	z := s.Zone()
	return z == ZoneVeryClose || z == ZoneClose
}

// Color returns the ambient color in colorful's [0,1] space, for hue and
// saturation derivations downstream (e.g. spoken color descriptions).
func (s SensorRecord) Color() colorful.Color {
	return colorful.Color{
		R: float64(s.Red) / 255.0,
		G: float64(s.Green) / 255.0,
		B: float64(s.Blue) / 255.0,
	}
}

// Hex returns the ambient color as an #rrggbb string.
func (s SensorRecord) Hex() string {
	return s.Color().Hex()
}

// Equal reports structural equality: identical field values regardless of
// identity. Timestamps compare with time.Time.Equal.
func (s SensorRecord) Equal(o SensorRecord) bool {
	return s.Red == o.Red &&
		s.Green == o.Green &&
		s.Blue == o.Blue &&
		s.DistanceCm == o.DistanceCm &&
		s.HasDistance == o.HasDistance &&
		s.Latitude == o.Latitude &&
		s.Longitude == o.Longitude &&
		s.HasFix == o.HasFix &&
		s.Timestamp.Equal(o.Timestamp)
}

func clampChannel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
