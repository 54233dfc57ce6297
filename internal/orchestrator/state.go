package orchestrator

import "time"

// State is the per-service lifecycle state.
//
//	stopped --start--> starting --probe ok--> running
//	starting --probe timeout--> failed
//	running --stop--> stopping --confirmed dead--> stopped
//	failed --start (retry)--> starting
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

// ServiceStatus is the externally visible view of one service. It is only
// mutated through orchestrator entry points.
type ServiceStatus struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Healthy   bool      `json:"healthy"`
	Adopted   bool      `json:"adopted,omitempty"`
	Singleton bool      `json:"singleton,omitempty"`
	LastProbe time.Time `json:"last_probe,omitzero"`
	LastStart time.Time `json:"last_start,omitzero"`
	Detail    string    `json:"detail,omitempty"`
}

// serviceState is the orchestrator's internal mutable record.
type serviceState struct {
	state       State
	lastHealthy bool
	lastProbe   time.Time
	lastStart   time.Time
	detail      string
}
