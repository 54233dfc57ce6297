package stack

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/mod-net/stack/internal/config"
	"github.com/mod-net/stack/internal/journal"
	"github.com/mod-net/stack/internal/journal/factory"
	"github.com/mod-net/stack/internal/metrics"
	"github.com/mod-net/stack/internal/orchestrator"
	iapi "github.com/mod-net/stack/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type ServiceConfig = cfg.ServiceConfig

type Status = orchestrator.ServiceStatus

type State = orchestrator.State

type BulkResult = orchestrator.BulkResult

type CheckResult = orchestrator.CheckResult

type Event = journal.Event

// Error taxonomy, checkable with errors.Is.
var (
	ErrUnknownService      = orchestrator.ErrUnknownService
	ErrLockTimeout         = orchestrator.ErrLockTimeout
	ErrHealthTimeout       = orchestrator.ErrHealthTimeout
	ErrProcessStartFailure = orchestrator.ErrProcessStartFailure
)

// Service names of the managed stack.
const (
	ChainNode     = cfg.ChainNode
	StorageDaemon = cfg.StorageDaemon
	BridgeWorker  = cfg.BridgeWorker
	Dashboard     = cfg.Dashboard
)

// Stack is a thin facade over internal/orchestrator.Orchestrator.
// It provides a stable public API for embedding.
type Stack struct {
	inner *orchestrator.Orchestrator
	jour  journal.Store
}

// New builds a Stack from configuration: journal backend, orchestrator,
// lifecycle metrics. log may be nil for slog.Default.
func New(c Config, log *slog.Logger) (*Stack, error) {
	jour, err := factory.Open(c.Journal.Backend, c.JournalDSN())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := jour.EnsureSchema(ctx); err != nil {
		_ = jour.Close()
		return nil, err
	}
	orc, err := orchestrator.New(c, jour, log)
	if err != nil {
		_ = jour.Close()
		return nil, err
	}
	return &Stack{inner: orc, jour: jour}, nil
}

// Close releases the journal connection. Managed processes keep running.
func (s *Stack) Close() error { return s.jour.Close() }

func (s *Stack) Start(name string) error   { return s.inner.StartOne(name) }
func (s *Stack) Stop(name string) error    { return s.inner.StopOne(name) }
func (s *Stack) Restart(name string) error { return s.inner.RestartOne(name) }
func (s *Stack) StartAll() *BulkResult     { return s.inner.StartAll() }
func (s *Stack) StopAll() *BulkResult      { return s.inner.StopAll() }
func (s *Stack) StatusAll() []Status       { return s.inner.StatusAll() }
func (s *Stack) CheckAll() []CheckResult   { return s.inner.CheckAll() }

func (s *Stack) Check(name string) (CheckResult, error) { return s.inner.Check(name) }

func (s *Stack) Status(name string) (Status, error) { return s.inner.Status(name) }

// Services returns the registry's service names in dependency order.
func (s *Stack) Services() []string { return s.inner.Registry().DependencyOrder() }

// Logs copies a service's captured output to w; with follow it keeps
// tailing until ctx is cancelled.
func (s *Stack) Logs(ctx context.Context, name string, w io.Writer, follow bool) error {
	return s.inner.Supervisor().Logs(ctx, name, w, follow)
}

// Recent returns the newest journal entries for a service; empty name
// means all services.
func (s *Stack) Recent(ctx context.Context, name string, limit int) ([]journal.Event, error) {
	return s.jour.Recent(ctx, name, limit)
}

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

func DefaultConfig() Config { return cfg.Default() }

// NewHTTPServer starts the admin API server for this stack.
func NewHTTPServer(addr, basePath string, s *Stack) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
