package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenlife-monitor/internal/models"
)

func reading(i int) models.Reading {
	return models.NewReading(models.HealthDocument{
		Pulse:     float64(i),
		Temp:      36.5,
		Hum:       40,
		Timestamp: fmt.Sprintf("2024-03-01T10:00:%02dZ", i%60),
	})
}

func TestWindow_AppendBelowCapacity(t *testing.T) {
	w := NewWindow(20, time.UTC)
	for i := 1; i <= 3; i++ {
		w.Append(reading(i))
	}

	points := w.Snapshot()
	require.Len(t, points, 3)
	assert.Equal(t, 1.0, points[0].Pulse)
	assert.Equal(t, 3.0, points[2].Pulse)
	assert.Equal(t, "10:00:01", points[0].Time)
	assert.Equal(t, 36.5, points[0].Temp)
	assert.Equal(t, 40.0, points[0].Humidity)
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(20, time.UTC)
	for i := 1; i <= 25; i++ {
		w.Append(reading(i))
	}

	points := w.Snapshot()
	require.Len(t, points, 20)
	for i, p := range points {
		assert.Equal(t, float64(i+6), p.Pulse)
	}
	assert.Equal(t, 20, w.Len())
	assert.Equal(t, 20, w.Cap())
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(3, time.UTC)
	for i := 1; i <= 5; i++ {
		w.Append(reading(i))
	}
	w.Reset()
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Snapshot())

	w.Append(reading(9))
	require.Len(t, w.Readings(), 1)
	assert.Equal(t, 9.0, w.Readings()[0].PulseBPM)
}

func TestWindow_LabelsUseLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	w := NewWindow(0, loc)
	assert.Equal(t, DefaultWindowSize, w.Cap())

	w.Append(reading(5))
	w.Append(models.NewReading(models.HealthDocument{Pulse: 70, Timestamp: "garbage"}))

	points := w.Snapshot()
	require.Len(t, points, 2)
	assert.Equal(t, "12:00:05", points[0].Time)
	assert.Equal(t, models.MissingTimeLabel, points[1].Time)
	assert.Equal(t, 70.0, points[1].Pulse)
}
