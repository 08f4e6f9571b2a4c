package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportSuccessAndFailure(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(Config{Timeout: 2 * time.Second}, nil)
	if err := tr.Send(context.Background(), srv.URL, []byte(`{"batch":[]}`), SendOptions{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody != `{"batch":[]}` {
		t.Fatalf("body not delivered: %q", gotBody)
	}
}

func TestHTTPTransportNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(Config{}, nil)
	if err := tr.Send(context.Background(), srv.URL, []byte(`{}`), SendOptions{}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestHTTPTransportKeepaliveSurvivesCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already dead

	tr := NewHTTPTransport(Config{}, nil)
	if err := tr.Send(ctx, srv.URL, []byte(`{}`), SendOptions{Keepalive: true}); err != nil {
		t.Fatalf("keepalive send should detach from caller context: %v", err)
	}
	if err := tr.Send(ctx, srv.URL, []byte(`{}`), SendOptions{}); err == nil {
		t.Fatalf("non-keepalive send should honor cancelled context")
	}
}

func TestBeaconPushReturnsBeforeResponse(t *testing.T) {
	received := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(received)
		<-release // hold the response open
	}))
	defer srv.Close()
	defer close(release)

	b := NewBeacon(Config{Timeout: 5 * time.Second}, nil)
	start := time.Now()
	if err := b.Push(srv.URL, []byte(`{"batch":[]}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("push blocked for %v", took)
	}
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("beacon request never issued")
	}
}

func TestBeaconPushRejectsUnusableURL(t *testing.T) {
	b := NewBeacon(Config{}, nil)
	if err := b.Push("http://exa mple.com/\x00", nil); err == nil {
		t.Fatalf("expected error for unusable URL")
	}
}

func TestResolverURLs(t *testing.T) {
	r := NewBaseResolver("http://collector:4000/")
	if got := r.URL(EndpointEvents); got != "http://collector:4000/api/events" {
		t.Fatalf("events url: %q", got)
	}
	if got := r.URL(EndpointLegacy); got != "http://collector:4000/api/track" {
		t.Fatalf("legacy url: %q", got)
	}
	if got := r.URL(EndpointResults); got != "http://collector:4000/api/results" {
		t.Fatalf("results url: %q", got)
	}
	r.Override(EndpointEvents, "/v2/batch")
	if got := r.URL(EndpointEvents); got != "http://collector:4000/v2/batch" {
		t.Fatalf("override url: %q", got)
	}
}

func TestSelectBase(t *testing.T) {
	dev, prod := "http://localhost:4000", "https://collector.example.com"
	cases := map[string]string{
		"localhost":      dev,
		"localhost:3000": dev,
		"127.0.0.1":      dev,
		"":               dev,
		"example.com":    prod,
		"app.host:443":   prod,
	}
	for host, want := range cases {
		if got := SelectBase(host, dev, prod); got != want {
			t.Fatalf("host %q: got %q want %q", host, got, want)
		}
	}
}
