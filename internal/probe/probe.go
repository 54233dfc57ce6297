package probe

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mod-net/stack/internal/metrics"
	"github.com/mod-net/stack/internal/retry"
)

// Kind selects the readiness check mechanism.
type Kind string

const (
	KindTCP  Kind = "tcp"
	KindHTTP Kind = "http"
)

// Spec describes one service's readiness check.
type Spec struct {
	Kind Kind   `json:"kind" mapstructure:"kind"`
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
	Path string `json:"path" mapstructure:"path"` // http only

	// Accepted HTTP status range, inclusive low / exclusive high.
	// Zero values mean the 2xx range.
	StatusLow  int `json:"status_low" mapstructure:"status_low"`
	StatusHigh int `json:"status_high" mapstructure:"status_high"`

	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

const (
	defaultInterval       = 500 * time.Millisecond
	defaultTimeout        = 10 * time.Second
	perAttemptHTTPTimeout = 2 * time.Second
	perAttemptDialTimeout = 1 * time.Second
)

// Target returns host:port for dialing.
func (s Spec) Target() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", s.Port))
}

// URL returns the full HTTP probe URL.
func (s Spec) URL() string {
	path := s.Path
	if path == "" {
		path = "/"
	}
	return "http://" + s.Target() + path
}

func (s Spec) statusRange() (int, int) {
	if s.StatusLow == 0 && s.StatusHigh == 0 {
		return http.StatusOK, http.StatusMultipleChoices
	}
	return s.StatusLow, s.StatusHigh
}

// Poll repeatedly runs the check at the spec's interval until it succeeds
// or the spec's timeout elapses. It never blocks past the timeout and
// never returns an error; an exhausted bound is simply unhealthy.
func Poll(s Spec) bool {
	return PollFor(s, s.Timeout)
}

// PollFor is Poll with the outer bound overridden, for callers that want
// a quicker confirmation than a fresh start allows.
func PollFor(s Spec, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	start := time.Now()
	healthy := retry.Until(timeout, interval, func() bool {
		return Check(s) == nil
	})
	metrics.ObserveProbe(string(s.Kind), s.Target(), time.Since(start), healthy)
	return healthy
}

// Check runs a single probe attempt with a short per-attempt timeout.
func Check(s Spec) error {
	switch s.Kind {
	case KindHTTP:
		return checkHTTP(s)
	case KindTCP, "":
		return checkTCP(s)
	default:
		return fmt.Errorf("unknown probe kind %q", s.Kind)
	}
}

func checkTCP(s Spec) error {
	conn, err := net.DialTimeout("tcp", s.Target(), perAttemptDialTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkHTTP(s Spec) error {
	client := &http.Client{Timeout: perAttemptHTTPTimeout}
	resp, err := client.Get(s.URL())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	low, high := s.statusRange()
	if resp.StatusCode < low || resp.StatusCode >= high {
		return fmt.Errorf("%s: unexpected status %d", s.URL(), resp.StatusCode)
	}
	return nil
}
