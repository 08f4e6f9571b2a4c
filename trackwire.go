// Package trackwire is a client-side telemetry delivery agent. It
// captures behavioral events and quiz results, buffers them durably
// across restarts and network outages, and delivers them to a remote
// collector with batched sends, a per-record legacy fallback, bounded
// exponential retry, and a fire-and-forget path for teardown.
//
// The tracking surface is fire-and-forget: Track and SaveResult always
// succeed from the caller's perspective; every failure is handled
// locally by requeueing and retry.
package trackwire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/trackwire/internal/config"
	"github.com/loykin/trackwire/internal/delivery"
	"github.com/loykin/trackwire/internal/event"
	"github.com/loykin/trackwire/internal/identity"
	"github.com/loykin/trackwire/internal/journal"
	jfactory "github.com/loykin/trackwire/internal/journal/factory"
	"github.com/loykin/trackwire/internal/logger"
	"github.com/loykin/trackwire/internal/metrics"
	"github.com/loykin/trackwire/internal/queue"
	"github.com/loykin/trackwire/internal/storage"
	sfactory "github.com/loykin/trackwire/internal/storage/factory"
	"github.com/loykin/trackwire/internal/transport"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type AppContext = cfg.AppContext

type EndpointPaths = cfg.EndpointPaths

type Properties = event.Properties

type Record = event.Record

type JournalSink = journal.Sink

type LogConfig = logger.Config

// FlushOptions controls a forced flush. Teardown flushes use the
// one-way transport and never wait for a response.
type FlushOptions struct {
	Teardown bool
}

// DefaultConfig returns the baseline agent configuration.
func DefaultConfig() Config { return cfg.Default() }

// LoadConfig parses a TOML config file merged over the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// Engine is one delivery agent instance. Construct exactly one per
// process context and pass it to instrumentation call sites; there is
// deliberately no package-level singleton.
type Engine struct {
	mu       sync.Mutex
	conf     Config
	logger   *slog.Logger
	durable  storage.Store
	session  storage.Store
	ids      *identity.Manager
	q        *queue.Queue
	core     *delivery.Engine
	res      *switchableResolver
	fixedRes bool
	attrs    event.Properties
	baseCtx  event.Context
}

// New builds and starts an agent for the given configuration, merged
// over the defaults with new-overrides-old precedence.
func New(conf Config, opts ...Option) (*Engine, error) {
	e := &Engine{conf: cfg.Default().Merge(conf)}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e.logger = o.logger
	if e.logger == nil {
		e.logger = logger.New(e.conf.Log)
	}

	var err error
	e.durable = o.durable
	if e.durable == nil {
		if e.durable, err = sfactory.NewFromDSN(e.conf.StateDSN); err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
	}
	e.session = o.session
	if e.session == nil {
		e.session = storage.NewMemory()
	}

	e.ids = identity.NewManager(e.durable, e.session, e.logger)
	e.q = queue.New(e.durable, e.logger)
	e.baseCtx = e.conf.App.Context()
	e.attrs = e.loadAttributes()

	e.res = &switchableResolver{}
	if o.resolver != nil {
		e.res.store(o.resolver)
		e.fixedRes = true
	} else {
		e.res.store(buildResolver(e.conf))
	}

	sender := o.sender
	if sender == nil {
		sender = transport.NewHTTPTransport(transport.Config{Timeout: e.conf.RequestTimeout}, e.logger)
	}
	beacon := o.beacon
	if beacon == nil {
		beacon = transport.NewBeacon(transport.Config{Timeout: e.conf.RequestTimeout}, e.logger)
	}

	sink := o.journal
	if sink == nil && e.conf.JournalDSN != "" {
		if sink, err = jfactory.NewSinkFromDSN(e.conf.JournalDSN); err != nil {
			return nil, fmt.Errorf("open journal sink: %w", err)
		}
	}

	e.core = delivery.New(e.conf.Delivery(), e.q, sender, beacon, e.res, sink, e.logger)
	return e, nil
}

func buildResolver(c Config) transport.Resolver {
	r := transport.NewBaseResolver(c.BaseURL())
	if c.Endpoints.Events != "" {
		r.Override(transport.EndpointEvents, c.Endpoints.Events)
	}
	if c.Endpoints.Legacy != "" {
		r.Override(transport.EndpointLegacy, c.Endpoints.Legacy)
	}
	if c.Endpoints.Results != "" {
		r.Override(transport.EndpointResults, c.Endpoints.Results)
	}
	return r
}

// Configure merges override into the running configuration. Endpoint
// selection and the capture-time app context apply immediately; the
// delivery cadence fields (interval, batch size, retry budget) are fixed
// at construction.
func (e *Engine) Configure(override Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conf = e.conf.Merge(override)
	e.baseCtx = e.conf.App.Context()
	if !e.fixedRes {
		e.res.store(buildResolver(e.conf))
	}
}

// Track captures one event. It never fails from the caller's view.
func (e *Engine) Track(name string, props Properties) {
	e.track(name, props, nil)
}

// TrackPageView records a page_view with the page and url stamped into
// the context snapshot for this record.
func (e *Engine) TrackPageView(page, url string) {
	e.track(event.NamePageView, nil, func(c *event.Context) {
		c.Page = page
		c.URL = url
	})
}

// TrackButtonClick records a button_click for the labeled control.
func (e *Engine) TrackButtonClick(label string, props Properties) {
	e.track(event.NameButtonClick, event.Merge(props, Properties{"label": label}), nil)
}

// TrackFormSubmit records a form_submit for the named form.
func (e *Engine) TrackFormSubmit(form string, props Properties) {
	e.track(event.NameFormSubmit, event.Merge(props, Properties{"form": form}), nil)
}

// TrackError records an error event with the given message.
func (e *Engine) TrackError(message string, props Properties) {
	e.track(event.NameError, event.Merge(props, Properties{"message": message}), nil)
}

// TrackCustomEvent is Track under the instrumentation naming.
func (e *Engine) TrackCustomEvent(name string, props Properties) {
	e.Track(name, props)
}

func (e *Engine) track(name string, props Properties, ctxFn func(*event.Context)) {
	userID := e.ids.EnsureUserID()
	sessionID := e.ids.EnsureSessionID()

	e.mu.Lock()
	ctx := e.baseCtx
	attrs := e.attrs
	e.mu.Unlock()
	if ctxFn != nil {
		ctxFn(&ctx)
	}

	rec := event.New(name, userID, sessionID, ctx, attrs, props)
	metrics.IncTracked(name)
	e.core.Enqueue(rec)
}

// SetUserAttributes merges attrs into the persisted user-attribute set
// (shallow, last-write-wins per key). The merged set is snapshotted
// into every record created afterwards, not at send time.
func (e *Engine) SetUserAttributes(attrs Properties) {
	e.mu.Lock()
	e.attrs = event.Merge(e.attrs, event.Sanitize(attrs))
	merged := e.attrs
	e.mu.Unlock()

	data, err := json.Marshal(merged)
	if err != nil {
		e.logger.Warn("user attributes encode failed", "error", err)
		return
	}
	if err := e.durable.Set(storage.KeyUserAttributes, string(data)); err != nil {
		metrics.IncPersistFailure()
		e.logger.Warn("user attributes write failed", "error", err)
	}
}

func (e *Engine) loadAttributes() event.Properties {
	raw, ok, err := e.durable.Get(storage.KeyUserAttributes)
	if err != nil || !ok || raw == "" {
		return nil
	}
	var attrs event.Properties
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		e.logger.Warn("discarding malformed user attributes", "error", err)
		return nil
	}
	return attrs
}

// SaveResult posts a quiz result to the dedicated results endpoint. If
// that endpoint rejects it, the result degrades to an ordinary
// quiz_result event through the standard delivery path.
func (e *Engine) SaveResult(name string, scores map[string]float64) {
	payload, err := event.MarshalResult(name, scores)
	if err != nil {
		e.logger.Warn("result encode failed", "result", name, "error", err)
		return
	}
	scoreProps := make(Properties, len(scores))
	for k, v := range scores {
		scoreProps[k] = v
	}
	fallbackProps := Properties{"result": name, "scores": scoreProps}

	userID := e.ids.EnsureUserID()
	sessionID := e.ids.EnsureSessionID()
	e.mu.Lock()
	ctx := e.baseCtx
	attrs := e.attrs
	e.mu.Unlock()

	fallback := event.New(event.NameQuizResult, userID, sessionID, ctx, attrs, fallbackProps)
	e.core.SubmitResult(payload, fallback)
}

// UserID returns the stable pseudonymous identifier, creating it on
// first use.
func (e *Engine) UserID() string { return e.ids.EnsureUserID() }

// SessionID returns the identifier for the current session scope.
func (e *Engine) SessionID() string { return e.ids.EnsureSessionID() }

// Flush forces a flush cycle outside the periodic schedule.
func (e *Engine) Flush(opts FlushOptions) { e.core.Flush(opts.Teardown) }

// NotifyOnline signals restored connectivity; pending records flush
// immediately.
func (e *Engine) NotifyOnline() { e.core.NotifyOnline() }

// QueueLen reports the number of pending records.
func (e *Engine) QueueLen() int { return e.core.QueueLen() }

// Close performs the teardown flush, stops the engine and releases the
// state store. Records the beacon could not take stay in the persisted
// queue for the next run.
func (e *Engine) Close(ctx context.Context) error {
	err := e.core.Close(ctx)
	if cerr := e.durable.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = e.session.Close()
	return err
}

// switchableResolver lets Configure swap endpoint resolution under a
// running delivery core.
type switchableResolver struct {
	mu sync.RWMutex
	r  transport.Resolver
}

func (s *switchableResolver) store(r transport.Resolver) {
	s.mu.Lock()
	s.r = r
	s.mu.Unlock()
}

func (s *switchableResolver) URL(ep transport.Endpoint) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r.URL(ep)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
