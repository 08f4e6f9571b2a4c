package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/trackwire/internal/event"
	"github.com/loykin/trackwire/internal/journal"
	"github.com/loykin/trackwire/internal/metrics"
	"github.com/loykin/trackwire/internal/queue"
	"github.com/loykin/trackwire/internal/transport"
)

// Engine is the durable delivery core. All queue mutations happen on a
// single owner goroutine; network sends are dispatched asynchronously
// only after their batch has been removed from the queue, so concurrent
// flush cycles always operate on disjoint queue contents.
type Engine struct {
	cfg      Config
	q        *queue.Queue
	sender   transport.Sender
	beacon   transport.OneWay
	resolver transport.Resolver
	journal  journal.Sink
	logger   *slog.Logger

	calls    chan func()
	closed   chan struct{}
	ticker   *time.Ticker
	inflight int
	closing  bool

	// retry scheduler state: a single timer at most
	armed      bool
	attempt    int
	retryTimer *time.Timer
	retryC     <-chan time.Time
}

// New builds the engine and starts its run loop.
func New(cfg Config, q *queue.Queue, sender transport.Sender, beacon transport.OneWay, resolver transport.Resolver, sink journal.Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:      cfg.Normalize(),
		q:        q,
		sender:   sender,
		beacon:   beacon,
		resolver: resolver,
		journal:  sink,
		logger:   logger,
		calls:    make(chan func(), 64),
		closed:   make(chan struct{}),
	}
	e.ticker = time.NewTicker(e.cfg.FlushInterval)
	go e.run()
	return e
}

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.calls:
			fn()
		case <-e.ticker.C:
			e.startFlush(TriggerInterval)
		case <-e.retryC:
			e.onRetryTick()
		}
		if e.closing && e.inflight == 0 {
			close(e.closed)
			return
		}
	}
}

// post hands fn to the run loop. After shutdown it is a no-op.
func (e *Engine) post(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.closed:
	}
}

// Enqueue appends a record and flushes immediately once the queue
// reaches the batch threshold. Fire-and-forget from the caller's view.
func (e *Engine) Enqueue(r event.Record) {
	e.post(func() { e.handleEnqueue(r) })
}

// Flush forces a flush cycle outside the periodic schedule.
func (e *Engine) Flush(teardown bool) {
	if teardown {
		e.post(func() { e.teardownFlush() })
		return
	}
	e.post(func() { e.startFlush(TriggerManual) })
}

// NotifyOnline signals that network connectivity was restored; queued
// records are flushed immediately.
func (e *Engine) NotifyOnline() {
	e.post(func() { e.startFlush(TriggerOnline) })
}

// SubmitResult posts a result payload to the dedicated results endpoint.
// On any failure the prepared fallback record enters the ordinary event
// path instead; the caller never observes the degradation.
func (e *Engine) SubmitResult(payload []byte, fallback event.Record) {
	e.post(func() {
		e.inflight++
		go func() {
			url := e.resolver.URL(transport.EndpointResults)
			err := e.sender.Send(context.Background(), url, payload, transport.SendOptions{Keepalive: true})
			e.journalAttempt(fallback, string(transport.EndpointResults), err)
			e.post(func() {
				e.inflight--
				if err != nil {
					metrics.IncDeliveryFailure(string(transport.EndpointResults))
					e.logger.Debug("result save failed, degrading to event path", "error", err)
					e.handleEnqueue(fallback)
					return
				}
				metrics.AddDelivered(string(transport.EndpointResults), 1)
			})
		}()
	})
}

// QueueLen reports the number of pending records.
func (e *Engine) QueueLen() int { return e.q.Len() }

// Close performs the teardown flush and stops the run loop. It returns
// once in-flight sends have completed or ctx expires; a late completion
// still requeues its failures to the persisted snapshot in background.
func (e *Engine) Close(ctx context.Context) error {
	e.post(func() {
		if e.closing {
			return
		}
		e.closing = true
		e.ticker.Stop()
		e.disarm()
		e.teardownFlush()
	})
	select {
	case <-e.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- run loop internals; every method below executes on the loop ---

func (e *Engine) handleEnqueue(r event.Record) {
	if e.closing {
		// too late for the async path; persist for the next run
		e.q.Enqueue(r)
		return
	}
	e.q.Enqueue(r)
	if e.q.Len() >= e.cfg.MaxBatchSize {
		e.startFlush(TriggerBatchSize)
	}
}

// startFlush removes one batch from the queue and dispatches delivery.
func (e *Engine) startFlush(tr Trigger) {
	if e.closing {
		return
	}
	batch := e.q.TakeBatch(e.cfg.MaxBatchSize)
	if len(batch) == 0 {
		if tr == TriggerRetry && e.armed {
			e.disarm()
		}
		return
	}
	metrics.IncFlush(string(tr))
	e.inflight++
	go func() {
		failed := e.deliver(batch)
		e.post(func() { e.complete(failed, tr) })
	}()
}

// deliver runs the transmission strategy off-loop: one batched attempt
// against the primary endpoint, then per-record legacy fallback.
// It returns the records that failed both.
func (e *Engine) deliver(batch []event.Record) []event.Record {
	ctx := context.Background()
	opts := transport.SendOptions{Keepalive: true}

	body, err := event.MarshalBatch(batch)
	if err == nil {
		url := e.resolver.URL(transport.EndpointEvents)
		if sendErr := e.sender.Send(ctx, url, body, opts); sendErr == nil {
			metrics.AddDelivered(string(transport.EndpointEvents), len(batch))
			for _, r := range batch {
				e.journalAttempt(r, string(transport.EndpointEvents), nil)
			}
			return nil
		} else {
			err = sendErr
		}
	}
	metrics.IncDeliveryFailure(string(transport.EndpointEvents))
	e.logger.Debug("batched send failed, falling back per record", "count", len(batch), "error", err)

	var failed []event.Record
	legacyURL := e.resolver.URL(transport.EndpointLegacy)
	for _, r := range batch {
		b, mErr := event.MarshalLegacy(r)
		if mErr != nil {
			// serialization rejection counts as an ordinary transport
			// failure for this record
			e.journalAttempt(r, string(transport.EndpointLegacy), mErr)
			metrics.IncDeliveryFailure(string(transport.EndpointLegacy))
			failed = append(failed, r)
			continue
		}
		if sendErr := e.sender.Send(ctx, legacyURL, b, opts); sendErr != nil {
			e.journalAttempt(r, string(transport.EndpointLegacy), sendErr)
			metrics.IncDeliveryFailure(string(transport.EndpointLegacy))
			failed = append(failed, r)
			continue
		}
		e.journalAttempt(r, string(transport.EndpointLegacy), nil)
		metrics.AddDelivered(string(transport.EndpointLegacy), 1)
	}
	return failed
}

// complete folds an async delivery result back into the loop state.
func (e *Engine) complete(failed []event.Record, tr Trigger) {
	e.inflight--
	if len(failed) > 0 {
		e.q.Requeue(failed)
		if e.closing {
			return
		}
		switch {
		case tr == TriggerRetry:
			if e.attempt < e.cfg.MaxRetries {
				e.armed = true
				e.schedule(e.backoff(e.attempt))
			} else {
				e.logger.Info("retry budget exhausted, leaving records queued", "pending", e.q.Len())
				e.disarm()
			}
		case !e.armed:
			e.arm()
		}
		return
	}
	if e.closing {
		return
	}
	if tr == TriggerRetry && e.armed && e.q.Len() > 0 && e.attempt < e.cfg.MaxRetries {
		// the tick cleared its batch but older failures are still
		// queued; keep the cycle going instead of stranding them
		e.schedule(e.backoff(e.attempt))
		return
	}
	if e.armed && e.q.Len() == 0 {
		e.disarm()
	}
}

// onRetryTick advances the Armed state machine: bump the attempt counter
// and re-run a flush over the current queue.
func (e *Engine) onRetryTick() {
	if !e.armed {
		return
	}
	metrics.IncRetryTick()
	e.attempt++
	e.retryC = nil
	e.startFlush(TriggerRetry)
}

// arm transitions Idle -> Armed with attempt 0 and a tick after the base
// backoff. A failure while already Armed relies on the existing timer.
func (e *Engine) arm() {
	e.armed = true
	e.attempt = 0
	e.schedule(e.cfg.BackoffBase)
}

func (e *Engine) schedule(d time.Duration) {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}
	e.retryTimer = time.NewTimer(d)
	e.retryC = e.retryTimer.C
	e.logger.Debug("retry scheduled", "attempt", e.attempt, "delay", d)
}

func (e *Engine) disarm() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.retryC = nil
	e.armed = false
	e.attempt = 0
}

func (e *Engine) backoff(attempt int) time.Duration {
	return e.cfg.BackoffBase * (1 << uint(attempt))
}

// teardownFlush drains the queue through the one-way transport. It never
// waits for a response: a batch the beacon accepts is counted as issued,
// a batch it cannot even issue goes straight back to the persisted queue
// for the next run's rehydration.
func (e *Engine) teardownFlush() {
	metrics.IncFlush(string(TriggerTeardown))
	url := e.resolver.URL(transport.EndpointEvents)
	for {
		batch := e.q.TakeBatch(e.cfg.MaxBatchSize)
		if len(batch) == 0 {
			return
		}
		body, err := event.MarshalBatch(batch)
		if err != nil {
			e.q.Requeue(batch)
			return
		}
		if err := e.beacon.Push(url, body); err != nil {
			e.logger.Debug("beacon unavailable, abandoning teardown send", "error", err)
			e.q.Requeue(batch)
			return
		}
		metrics.AddDelivered("beacon", len(batch))
		// journal off the loop so teardown never waits on a sink
		go func(batch []event.Record) {
			for _, r := range batch {
				e.journalAttempt(r, "beacon", nil)
			}
		}(batch)
	}
}

// journalAttempt exports one attempt outcome, best-effort.
func (e *Engine) journalAttempt(r event.Record, endpoint string, attemptErr error) {
	if e.journal == nil {
		return
	}
	entry := journal.Entry{
		OccurredAt: time.Now().UTC(),
		EventID:    r.ID,
		EventName:  r.Name,
		Endpoint:   endpoint,
		Outcome:    journal.OutcomeDelivered,
	}
	switch {
	case endpoint == "beacon":
		entry.Outcome = journal.OutcomeIssued
	case attemptErr != nil:
		entry.Outcome = journal.OutcomeFailed
		entry.Error = attemptErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.journal.Send(ctx, entry); err != nil {
		e.logger.Debug("journal write failed", "error", err)
	}
}
