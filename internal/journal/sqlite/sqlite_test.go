package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/trackwire/internal/journal"
)

func TestEmptyPathRejected(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSendAndQueryBack(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	entries := []journal.Entry{
		{OccurredAt: time.Now().UTC(), EventID: "01HX1", EventName: "page_view", Endpoint: "events", Outcome: journal.OutcomeDelivered},
		{OccurredAt: time.Now().UTC(), EventID: "01HX2", EventName: "button_click", Endpoint: "legacy", Outcome: journal.OutcomeFailed, Error: "status 500"},
		{OccurredAt: time.Now().UTC(), EventID: "01HX3", EventName: "page_view", Endpoint: "beacon", Outcome: journal.OutcomeIssued},
	}
	for _, e := range entries {
		if err := s.Send(context.Background(), e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM delivery_journal`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}

	var outcome, errStr string
	row := s.db.QueryRow(`SELECT outcome, COALESCE(error, '') FROM delivery_journal WHERE event_id = ?`, "01HX2")
	if err := row.Scan(&outcome, &errStr); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if outcome != string(journal.OutcomeFailed) || errStr != "status 500" {
		t.Fatalf("row mismatch: outcome=%q error=%q", outcome, errStr)
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := journal.Entry{OccurredAt: time.Now().UTC(), EventID: "01HX9", EventName: "error", Endpoint: "events", Outcome: journal.OutcomeDelivered}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	var n int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM delivery_journal WHERE event_id = ?`, "01HX9").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("entry lost across reopen")
	}
}
