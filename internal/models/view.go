package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity per-parameter classification
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// VitalStatus severities of the latest reading. Fan and buzzer are not classified.
type VitalStatus struct {
	Pulse    Severity `json:"pulse"`
	Temp     Severity `json:"temp"`
	Humidity Severity `json:"humidity"`
}

// AlertState mirrored from the remote buzzer
type AlertState struct {
	Active bool `json:"active"`
}

// DashboardState controller lifecycle state
type DashboardState string

const (
	StateUnauthenticated DashboardState = "unauthenticated"
	StateLoading         DashboardState = "loading"
	StateLive            DashboardState = "live"
	StateTornDown        DashboardState = "torn_down"
)

// View read model published to the presentation layer.
// Patient, Latest, Status and Trend are only populated in StateLive.
type View struct {
	State       DashboardState            `json:"state"`
	Identity    string                    `json:"identity,omitempty"`
	Patient     Loadable[PatientProfile] `json:"patient"`
	Latest      Loadable[Reading]        `json:"latest"`
	Status      *VitalStatus              `json:"status,omitempty"`
	Alert       AlertState                `json:"alert"`
	Trend       []TrendPoint              `json:"trend"`
	Unavailable map[string]string         `json:"unavailable,omitempty"` // path -> error, until the next good snapshot
	LastUpdated string                    `json:"last_updated,omitempty"`
}

// FanCommand audit record of one fan toggle
type FanCommand struct {
	CommandID uuid.UUID
	Identity  string
	Desired   bool
	Succeeded bool
	Error     string
	IssuedAt  time.Time
}
