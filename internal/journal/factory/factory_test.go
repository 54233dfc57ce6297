package factory

import (
	"path/filepath"
	"testing"

	"github.com/mod-net/stack/internal/journal"
)

func TestOpenSqlite(t *testing.T) {
	st, err := Open("sqlite", filepath.Join(t.TempDir(), "j.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, ok := st.(journal.Nop); ok {
		t.Fatalf("sqlite backend returned the nop store")
	}
}

func TestOpenPostgresLazy(t *testing.T) {
	// sql.Open does not dial; construction must succeed without a server.
	st, err := Open("postgres", "postgres://stack@localhost:5432/stack")
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	_ = st.Close()
}

func TestOpenNone(t *testing.T) {
	for _, backend := range []string{"", "none"} {
		st, err := Open(backend, "")
		if err != nil {
			t.Fatalf("open %q: %v", backend, err)
		}
		if _, ok := st.(journal.Nop); !ok {
			t.Fatalf("backend %q should be the nop store", backend)
		}
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("opensearch", ""); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
