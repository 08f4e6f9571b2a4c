package identity

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/loykin/trackwire/internal/storage"
)

const (
	userPrefix    = "user"
	sessionPrefix = "session"
	randomBytes   = 8
)

// Manager assigns and persists the long-lived user identifier and the
// session-scoped identifier. The user id lives in the durable store and
// survives restarts; the session id lives in a session-scoped store, so
// a fresh session store means a fresh session id.
//
// Identifiers are opaque tokens of the form <prefix>_<millis>_<hex>.
// Uniqueness is probabilistic and advisory, not security-critical.
type Manager struct {
	mu      sync.Mutex
	durable storage.Store
	session storage.Store
	logger  *slog.Logger

	// cached after first resolution so a broken store still yields
	// stable identifiers for the rest of the process lifetime
	userID    string
	sessionID string
}

func NewManager(durable, session storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{durable: durable, session: session, logger: logger}
}

// EnsureUserID returns the persisted user identifier, generating and
// persisting one on first use.
func (m *Manager) EnsureUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userID == "" {
		m.userID = m.ensure(m.durable, storage.KeyUserID, userPrefix)
	}
	return m.userID
}

// EnsureSessionID returns the session identifier for the current session
// scope, generating one when the scope has none yet.
func (m *Manager) EnsureSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID == "" {
		m.sessionID = m.ensure(m.session, storage.KeySessionID, sessionPrefix)
	}
	return m.sessionID
}

func (m *Manager) ensure(st storage.Store, key, prefix string) string {
	if v, ok, err := st.Get(key); err == nil && ok && v != "" {
		return v
	} else if err != nil {
		m.logger.Debug("identity store read failed", "key", key, "error", err)
	}
	tok := NewToken(prefix)
	if err := st.Set(key, tok); err != nil {
		// storage failure is swallowed; the token stays valid in-memory
		m.logger.Warn("identity store write failed", "key", key, "error", err)
	}
	return tok
}

// NewToken builds an identifier of the form <prefix>_<millis>_<hex>.
// It prefers the cryptographically strong random source and falls back
// to math/rand when that fails.
func NewToken(prefix string) string {
	buf := make([]byte, randomBytes)
	if _, err := crand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = byte(mrand.Intn(256))
		}
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}
