package models

import (
	"time"
)

// HealthDocument telemetry document as stored at the telemetry path
type HealthDocument struct {
	Pulse     float64 `json:"pulse"`
	Temp      float64 `json:"temp"`
	Hum       float64 `json:"hum"`
	Fan       bool    `json:"fan"`
	Buzzer    bool    `json:"buzzer"`
	Timestamp string  `json:"timestamp"` // ISO-8601
}

// Reading one telemetry snapshot. Built only from a HealthDocument.
type Reading struct {
	PulseBPM     float64   `json:"pulse"`
	TempC        float64   `json:"temp"`
	HumidityPct  float64   `json:"humidity"`
	FanOn        bool      `json:"fan"`
	BuzzerActive bool      `json:"buzzer"`
	ObservedAt   time.Time `json:"observed_at"`
	RawTimestamp string    `json:"timestamp"`
}

// MissingTimeLabel is shown for readings whose timestamp cannot be parsed.
const MissingTimeLabel = "--:--:--"

// timestamp layouts accepted besides RFC 3339; zone-less forms are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NewReading converts a telemetry document. An unparseable timestamp leaves
// ObservedAt zero; the vital values are still usable.
func NewReading(doc HealthDocument) Reading {
	return Reading{
		PulseBPM:     doc.Pulse,
		TempC:        doc.Temp,
		HumidityPct:  doc.Hum,
		FanOn:        doc.Fan,
		BuzzerActive: doc.Buzzer,
		ObservedAt:   ParseTimestamp(doc.Timestamp),
		RawTimestamp: doc.Timestamp,
	}
}

// ParseTimestamp returns the zero time when s matches no accepted layout.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// HasTime reports whether the timestamp parsed.
func (r Reading) HasTime() bool {
	return !r.ObservedAt.IsZero()
}

// TimeLabel formats ObservedAt as a wall-clock label in loc.
func (r Reading) TimeLabel(loc *time.Location) string {
	if !r.HasTime() {
		return MissingTimeLabel
	}
	if loc == nil {
		loc = time.Local
	}
	return r.ObservedAt.In(loc).Format("15:04:05")
}

// TrendPoint one entry of the trend window
type TrendPoint struct {
	Time     string  `json:"time"`
	Pulse    float64 `json:"pulse"`
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}
