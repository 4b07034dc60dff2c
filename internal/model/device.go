package model

import (
	"time"
)

// MaxBrightness is the upper bound of the brightness scale. The wire
// protocol uses a 0..1 float; the model keeps an integer percent.
const MaxBrightness = 100

// Health is the reachability of a device as last observed.
type Health string

const (
	HealthUnknown     Health = "unknown"
	HealthReachable   Health = "reachable"
	HealthUnreachable Health = "unreachable"
)

// DeviceState is the last-observed bulb state. It is only ever set from
// a successful command result or status query.
type DeviceState struct {
	Power      bool      `json:"power"`
	Brightness int       `json:"brightness"` // 0..MaxBrightness
	Color      RGB       `json:"color"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Device pairs an address with its last-known state and health. The
// registry owns Device records; everything outside it works on copies.
type Device struct {
	Address  Address     `json:"address"`
	Name     string      `json:"name,omitempty"`
	State    DeviceState `json:"state"`
	Health   Health      `json:"health"`
	LastSeen time.Time   `json:"last_seen,omitempty"`
}
