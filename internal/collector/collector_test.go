package collector

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestCollector(t *testing.T) (*Database, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := NewDatabase(filepath.Join(t.TempDir(), "collector.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	srv := httptest.NewServer(NewRouter(db, nil).Handler())
	t.Cleanup(srv.Close)
	return db, srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	_ = resp.Body.Close()
	return resp
}

func TestHealthz(t *testing.T) {
	_, srv := newTestCollector(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestEventsBatchStoredInOneUnit(t *testing.T) {
	db, srv := newTestCollector(t)
	body := `{"batch":[
		{"event":"page_view","ts":"2026-08-26T10:00:00.000Z","userId":"u1","sessionId":"s1","page":"Home","url":"https://x/","properties":{}},
		{"event":"button_click","ts":"2026-08-26T10:00:01.000Z","userId":"u1","sessionId":"s1","page":"Home","url":"https://x/","properties":{"label":"go"}}
	]}`
	resp := post(t, srv.URL+"/api/events", body)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if n, _ := db.CountEvents(""); n != 2 {
		t.Fatalf("stored %d events", n)
	}
	if n, _ := db.CountEvents("button_click"); n != 1 {
		t.Fatalf("stored %d button_click events", n)
	}
}

func TestEventsRejectsMalformedBatch(t *testing.T) {
	db, srv := newTestCollector(t)
	if resp := post(t, srv.URL+"/api/events", `{"batch": "nope"`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("truncated JSON: status = %d", resp.StatusCode)
	}
	// empty event name poisons the whole batch: nothing is stored
	body := `{"batch":[
		{"event":"page_view","ts":"t","userId":"u","sessionId":"s"},
		{"event":"","ts":"t","userId":"u","sessionId":"s"}
	]}`
	if resp := post(t, srv.URL+"/api/events", body); resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("invalid record: status = %d", resp.StatusCode)
	}
	if n, _ := db.CountEvents(""); n != 0 {
		t.Fatalf("partial batch stored: %d", n)
	}
}

func TestEmptyBatchAccepted(t *testing.T) {
	db, srv := newTestCollector(t)
	if resp := post(t, srv.URL+"/api/events", `{"batch":[]}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if n, _ := db.CountEvents(""); n != 0 {
		t.Fatalf("stored %d events", n)
	}
}

func TestTrackStoresFlattenedRecord(t *testing.T) {
	db, srv := newTestCollector(t)
	body := `{"event":"form_submit","properties":{"timestamp":"2026-08-26T10:00:00.000Z","userId":"u2","sessionId":"s2","page":"Signup","url":"https://x/signup","form":"newsletter"}}`
	resp := post(t, srv.URL+"/api/track", body)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if n, _ := db.CountEvents("form_submit"); n != 1 {
		t.Fatalf("stored %d form_submit events", n)
	}
}

func TestTrackRejectsInvalidJSON(t *testing.T) {
	_, srv := newTestCollector(t)
	if resp := post(t, srv.URL+"/api/track", `not json`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestResultsStored(t *testing.T) {
	_, srv := newTestCollector(t)
	if resp := post(t, srv.URL+"/api/results", `{"result_name":"quiz","scores":{"analytical":7,"creative":5}}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/api/results", `{"scores":{}}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing result_name: status = %d", resp.StatusCode)
	}
}
