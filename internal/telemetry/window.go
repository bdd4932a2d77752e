package telemetry

import (
	"time"

	"greenlife-monitor/internal/models"
)

// DefaultWindowSize number of readings kept for the trend
const DefaultWindowSize = 20

// Window bounded, insertion-ordered history of readings. Not safe for
// concurrent use; the dashboard controller owns one per session.
type Window struct {
	buf   []models.Reading
	start int
	count int
	loc   *time.Location
}

// NewWindow creates an empty window holding at most size readings, labelled in loc.
func NewWindow(size int, loc *time.Location) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if loc == nil {
		loc = time.Local
	}
	return &Window{
		buf: make([]models.Reading, size),
		loc: loc,
	}
}

// Append adds r as the newest entry, evicting the oldest when full.
func (w *Window) Append(r models.Reading) {
	size := len(w.buf)
	if w.count < size {
		w.buf[(w.start+w.count)%size] = r
		w.count++
		return
	}
	w.buf[w.start] = r
	w.start = (w.start + 1) % size
}

// Len number of readings held
func (w *Window) Len() int {
	return w.count
}

// Cap maximum number of readings held
func (w *Window) Cap() int {
	return len(w.buf)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.start = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = models.Reading{}
	}
}

// Readings oldest first
func (w *Window) Readings() []models.Reading {
	out := make([]models.Reading, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Snapshot trend points oldest first
func (w *Window) Snapshot() []models.TrendPoint {
	readings := w.Readings()
	points := make([]models.TrendPoint, len(readings))
	for i, r := range readings {
		points[i] = models.TrendPoint{
			Time:     r.TimeLabel(w.loc),
			Pulse:    r.PulseBPM,
			Temp:     r.TempC,
			Humidity: r.HumidityPct,
		}
	}
	return points
}
