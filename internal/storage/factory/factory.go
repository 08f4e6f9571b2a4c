package factory

import (
	"errors"
	"strings"

	"github.com/loykin/trackwire/internal/storage"
	sq "github.com/loykin/trackwire/internal/storage/sqlite"
)

// NewFromDSN selects a state store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - memory:  "memory://" or ":memory:" kept fully in-process
func NewFromDSN(dsn string) (storage.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if ld == "memory://" {
		return storage.NewMemory(), nil
	}
	if strings.HasPrefix(ld, "sqlite://") {
		path := strings.TrimPrefix(d, "sqlite://")
		return sq.New(path)
	}
	// default to sqlite path (":memory:" included)
	return sq.New(d)
}
