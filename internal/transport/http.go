package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPTransport is the awaitable request transport. A send succeeds when
// the collector answers with a 2xx status; everything else, including a
// transport-level error, counts as one failed attempt for the batch.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport builds the request transport.
func NewHTTPTransport(cfg Config, logger *slog.Logger) *HTTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte, opts SendOptions) error {
	if opts.Keepalive {
		// Teardown-adjacent sends must not be aborted when the engine
		// context is cancelled; only the client timeout bounds them.
		ctx = context.WithoutCancel(ctx)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("send failed", "url", url, "error", err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector status %d", resp.StatusCode)
	}
	return nil
}

// Beacon is the one-way transport. Push validates the request, issues it
// on a detached goroutine and returns immediately; the response, if the
// collector ever produces one, is discarded. It is the only transport a
// teardown flush may use, because teardown cannot wait.
type Beacon struct {
	client *http.Client
	logger *slog.Logger
}

// NewBeacon builds the one-way transport. The internal timeout only
// bounds the detached goroutine, never the caller.
func NewBeacon(cfg Config, logger *slog.Logger) *Beacon {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Beacon{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (b *Beacon) Push(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build beacon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	go func() {
		start := time.Now()
		resp, err := b.client.Do(req)
		if err != nil {
			b.logger.Debug("beacon send failed", "url", url, "error", err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		b.logger.Debug("beacon sent", "url", url, "status", resp.StatusCode, "took", time.Since(start))
	}()
	return nil
}
