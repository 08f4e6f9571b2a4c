package transport

import (
	"context"
	"time"
)

// Endpoint identifies a logical collector route.
type Endpoint string

const (
	// EndpointEvents is the primary batched events route.
	EndpointEvents Endpoint = "events"
	// EndpointLegacy is the per-record compat route used when the
	// primary rejects a batch.
	EndpointLegacy Endpoint = "legacy"
	// EndpointResults is the dedicated quiz result route.
	EndpointResults Endpoint = "results"
)

// SendOptions tunes a single awaitable send.
type SendOptions struct {
	// Keepalive requests that the send outlive the caller's normal
	// lifecycle: the request is issued on a detached context so engine
	// teardown does not abort it mid-flight.
	Keepalive bool
}

// Sender is the awaitable request transport: it reports whether the
// collector accepted the payload.
type Sender interface {
	Send(ctx context.Context, url string, body []byte, opts SendOptions) error
}

// OneWay is the fire-and-forget transport used for teardown flushes.
// Push returns once the send has been issued; no response is ever
// observed. An error means the send could not even be issued.
type OneWay interface {
	Push(url string, body []byte) error
}

// Config holds transport configuration.
type Config struct {
	Timeout time.Duration
}

// DefaultConfig returns default transport configuration.
func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second}
}
