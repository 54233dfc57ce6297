package journal

import (
	"context"
	"time"
)

// Event is one recorded lifecycle transition of a supervised service.
type Event struct {
	Service string    `json:"service"`
	PID     int       `json:"pid"`
	State   string    `json:"state"` // stopped, starting, running, stopping, failed
	Forced  bool      `json:"forced"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Store persists lifecycle events so operators can reconstruct what the
// orchestrator did to each service and when.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, ev Event) error
	// Recent returns the newest events for a service, newest first.
	// An empty service returns events across all services.
	Recent(ctx context.Context, service string, limit int) ([]Event, error)
	// Last returns the newest event for a service; ok is false when the
	// journal has never seen the service.
	Last(ctx context.Context, service string) (Event, bool, error)
	Close() error
}

// Nop is the no-journal backend.
type Nop struct{}

func (Nop) EnsureSchema(context.Context) error    { return nil }
func (Nop) Append(context.Context, Event) error   { return nil }
func (Nop) Recent(context.Context, string, int) ([]Event, error) { return nil, nil }
func (Nop) Last(context.Context, string) (Event, bool, error)    { return Event{}, false, nil }
func (Nop) Close() error                          { return nil }
