package factory

import (
	"path/filepath"
	"testing"

	"github.com/loykin/trackwire/internal/storage"
	sq "github.com/loykin/trackwire/internal/storage/sqlite"
)

func TestEmptyDSNRejected(t *testing.T) {
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestMemoryDSN(t *testing.T) {
	st, err := NewFromDSN("memory://")
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if _, ok := st.(*storage.Memory); !ok {
		t.Fatalf("expected memory store, got %T", st)
	}
}

func TestSQLiteDSNForms(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		filepath.Join(dir, "b.db"),
		":memory:",
	} {
		st, err := NewFromDSN(dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", dsn, err)
		}
		if _, ok := st.(*sq.DB); !ok {
			t.Fatalf("dsn %q: expected sqlite store, got %T", dsn, st)
		}
		if err := st.Set("k", "v"); err != nil {
			t.Fatalf("dsn %q set: %v", dsn, err)
		}
		_ = st.Close()
	}
}
