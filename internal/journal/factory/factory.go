package factory

import (
	"fmt"

	"github.com/mod-net/stack/internal/journal"
	"github.com/mod-net/stack/internal/journal/postgres"
	"github.com/mod-net/stack/internal/journal/sqlite"
)

// Open builds a journal store for the configured backend.
// Supported backends: "sqlite" (dsn is a file path), "postgres"/"postgresql"
// (dsn is a connection string) and "none".
func Open(backend, dsn string) (journal.Store, error) {
	switch backend {
	case "", "none":
		return journal.Nop{}, nil
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres", "postgresql":
		return postgres.New(dsn)
	default:
		return nil, fmt.Errorf("unknown journal backend %q", backend)
	}
}
