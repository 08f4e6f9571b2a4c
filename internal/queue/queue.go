package queue

import (
	"log/slog"
	"sync"

	"github.com/loykin/trackwire/internal/event"
	"github.com/loykin/trackwire/internal/metrics"
	"github.com/loykin/trackwire/internal/storage"
)

// Queue is the ordered buffer of pending records. Insertion order is
// send priority (FIFO). Every mutation re-persists the full snapshot so
// a crash or restart recovers exactly the unsent tail.
//
// Persistence is best-effort: a failed write keeps the in-memory queue
// authoritative for the rest of the session and is never surfaced to
// Track callers.
type Queue struct {
	mu      sync.Mutex
	records []event.Record
	store   storage.Store
	logger  *slog.Logger
}

// New builds a queue rehydrated from the persisted snapshot. A missing
// or malformed snapshot yields an empty queue, never a startup error.
func New(store storage.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{store: store, logger: logger}
	q.rehydrate()
	return q
}

func (q *Queue) rehydrate() {
	raw, ok, err := q.store.Get(storage.KeyQueueSnapshot)
	if err != nil {
		q.logger.Warn("queue snapshot read failed", "error", err)
		return
	}
	if !ok || raw == "" {
		return
	}
	records, err := event.DecodeSnapshot([]byte(raw))
	if err != nil {
		q.logger.Warn("discarding malformed queue snapshot", "error", err)
		_ = q.store.Delete(storage.KeyQueueSnapshot)
		return
	}
	q.records = records
	metrics.SetQueueDepth(len(q.records))
	q.logger.Info("queue rehydrated", "pending", len(q.records))
}

// Enqueue appends a record to the tail and persists the snapshot.
func (q *Queue) Enqueue(r event.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, r)
	q.persistLocked()
}

// TakeBatch removes and returns up to max records from the head. The
// shortened queue is persisted before the batch is handed out, so a
// concurrently triggered flush only sees the remaining disjoint tail.
func (q *Queue) TakeBatch(max int) []event.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 || max <= 0 {
		return nil
	}
	n := max
	if n > len(q.records) {
		n = len(q.records)
	}
	batch := make([]event.Record, n)
	copy(batch, q.records[:n])
	q.records = append(q.records[:0:0], q.records[n:]...)
	q.persistLocked()
	return batch
}

// Requeue appends failed records back to the tail. Tail, not head: a
// poison record must not block the line, and strict global FIFO after a
// failure cycle is explicitly not guaranteed.
func (q *Queue) Requeue(records []event.Record) {
	if len(records) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, records...)
	metrics.AddRequeued(len(records))
	q.persistLocked()
}

// Len reports the number of pending records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

func (q *Queue) persistLocked() {
	metrics.SetQueueDepth(len(q.records))
	data, err := event.EncodeSnapshot(q.records)
	if err != nil {
		metrics.IncPersistFailure()
		q.logger.Warn("queue snapshot encode failed", "error", err)
		return
	}
	if err := q.store.Set(storage.KeyQueueSnapshot, string(data)); err != nil {
		metrics.IncPersistFailure()
		q.logger.Warn("queue snapshot write failed", "error", err)
	}
}
