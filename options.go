package trackwire

import (
	"log/slog"

	"github.com/loykin/trackwire/internal/journal"
	"github.com/loykin/trackwire/internal/storage"
	"github.com/loykin/trackwire/internal/transport"
)

type options struct {
	logger   *slog.Logger
	durable  storage.Store
	session  storage.Store
	sender   transport.Sender
	beacon   transport.OneWay
	resolver transport.Resolver
	journal  journal.Sink
}

// Option customizes engine construction beyond the Config fields,
// mostly for embedding and tests.
type Option func(*options)

// WithLogger replaces the logger built from Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDurableStore replaces the store opened from Config.StateDSN.
func WithDurableStore(s storage.Store) Option {
	return func(o *options) { o.durable = s }
}

// WithSessionStore replaces the default in-memory session scope. A
// store shared across engine instances extends one session across them.
func WithSessionStore(s storage.Store) Option {
	return func(o *options) { o.session = s }
}

// WithSender replaces the awaitable request transport.
func WithSender(s transport.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithBeacon replaces the one-way teardown transport.
func WithBeacon(b transport.OneWay) Option {
	return func(o *options) { o.beacon = b }
}

// WithResolver replaces endpoint resolution entirely, ignoring the
// base-URL fields of Config.
func WithResolver(r transport.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithJournal replaces the sink opened from Config.JournalDSN.
func WithJournal(s journal.Sink) Option {
	return func(o *options) { o.journal = s }
}
