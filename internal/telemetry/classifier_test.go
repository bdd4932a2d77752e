package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"greenlife-monitor/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		param Parameter
		value float64
		want  models.Severity
	}{
		{"pulse low", ParamPulse, 59, models.SeverityCritical},
		{"pulse lower bound", ParamPulse, 60, models.SeverityNormal},
		{"pulse upper bound", ParamPulse, 100, models.SeverityNormal},
		{"pulse high", ParamPulse, 100.5, models.SeverityCritical},
		{"temp low", ParamTemp, 35.9, models.SeverityCritical},
		{"temp lower bound", ParamTemp, 36.0, models.SeverityNormal},
		{"temp upper bound", ParamTemp, 37.5, models.SeverityNormal},
		{"temp high", ParamTemp, 37.6, models.SeverityCritical},
		{"humidity low", ParamHumidity, 29.9, models.SeverityWarning},
		{"humidity lower bound", ParamHumidity, 30, models.SeverityNormal},
		{"humidity upper bound", ParamHumidity, 60, models.SeverityNormal},
		{"humidity high", ParamHumidity, 75, models.SeverityWarning},
		{"unknown parameter", Parameter("co2"), 5000, models.SeverityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.param, tt.value))
		})
	}
}

func TestClassifyReading(t *testing.T) {
	status := ClassifyReading(models.Reading{PulseBPM: 110, TempC: 36.8, HumidityPct: 20})

	assert.Equal(t, models.SeverityCritical, status.Pulse)
	assert.Equal(t, models.SeverityNormal, status.Temp)
	assert.Equal(t, models.SeverityWarning, status.Humidity)
}
