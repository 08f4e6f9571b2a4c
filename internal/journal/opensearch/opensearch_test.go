package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/trackwire/internal/journal"
)

func TestSendPostsDocToIndex(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "delivery-journal")
	e := journal.Entry{
		OccurredAt: time.Now().UTC(),
		EventID:    "01HXA",
		EventName:  "quiz_result",
		Endpoint:   "results",
		Outcome:    journal.OutcomeFailed,
		Error:      "status 503",
	}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/delivery-journal/_doc" {
		t.Fatalf("path = %q", gotPath)
	}
	var decoded journal.Entry
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != "01HXA" || decoded.Outcome != journal.OutcomeFailed || decoded.Error != "status 503" {
		t.Fatalf("body mismatch: %+v", decoded)
	}
}

func TestSendRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(srv.URL, "delivery-journal")
	if err := s.Send(context.Background(), journal.Entry{EventID: "x"}); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}
