package telemetry

import (
	"greenlife-monitor/internal/models"
)

// Parameter a classified vital
type Parameter string

const (
	ParamPulse    Parameter = "pulse"
	ParamTemp     Parameter = "temp"
	ParamHumidity Parameter = "humidity"
)

// normal ranges, inclusive
const (
	PulseMinBPM    = 60.0
	PulseMaxBPM    = 100.0
	TempMinC       = 36.0
	TempMaxC       = 37.5
	HumidityMinPct = 30.0
	HumidityMaxPct = 60.0
)

// Classify maps a parameter value to a severity. Out-of-range pulse and
// temperature are critical, out-of-range humidity is a warning. Unknown
// parameters are normal.
func Classify(param Parameter, value float64) models.Severity {
	switch param {
	case ParamPulse:
		if value < PulseMinBPM || value > PulseMaxBPM {
			return models.SeverityCritical
		}
	case ParamTemp:
		if value < TempMinC || value > TempMaxC {
			return models.SeverityCritical
		}
	case ParamHumidity:
		if value < HumidityMinPct || value > HumidityMaxPct {
			return models.SeverityWarning
		}
	}
	return models.SeverityNormal
}

// ClassifyReading classifies every vital of r.
func ClassifyReading(r models.Reading) models.VitalStatus {
	return models.VitalStatus{
		Pulse:    Classify(ParamPulse, r.PulseBPM),
		Temp:     Classify(ParamTemp, r.TempC),
		Humidity: Classify(ParamHumidity, r.HumidityPct),
	}
}
