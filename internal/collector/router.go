package collector

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Router provides the local development collector endpoints:
//
//	POST /api/events   body: {"batch": [record, ...]}
//	POST /api/track    body: {"event": ..., "properties": {...}}
//	POST /api/results  body: {"result_name": ..., "scores": {...}}
//	GET  /healthz
//
// It mirrors the contract the delivery engine speaks so an agent can be
// pointed at it with dev_base_url during development.
type Router struct {
	db     *Database
	logger *slog.Logger
}

func NewRouter(db *Database, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{db: db, logger: logger}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.POST("/api/events", r.handleEvents)
	g.POST("/api/track", r.handleTrack)
	g.POST("/api/results", r.handleResults)
	return g
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type wireRecord struct {
	Event     string `json:"event"`
	TS        string `json:"ts"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Page      string `json:"page"`
	URL       string `json:"url"`
}

type batchPayload struct {
	Batch []json.RawMessage `json:"batch"`
}

func (r *Router) handleEvents(c *gin.Context) {
	var payload batchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON format"})
		return
	}
	if len(payload.Batch) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	events := make([]StoredEvent, 0, len(payload.Batch))
	for _, raw := range payload.Batch {
		var rec wireRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record"})
			return
		}
		events = append(events, StoredEvent{
			TS:        rec.TS,
			Event:     rec.Event,
			UserID:    rec.UserID,
			SessionID: rec.SessionID,
			Page:      rec.Page,
			URL:       rec.URL,
			Payload:   raw,
		})
	}
	if err := r.db.InsertEvents(events); err != nil {
		r.logger.Error("failed to store events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store events"})
		return
	}
	c.Status(http.StatusNoContent)
}

type legacyPayload struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

func (r *Router) handleTrack(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	var payload legacyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON format"})
		return
	}
	str := func(key string) string {
		if s, ok := payload.Properties[key].(string); ok {
			return s
		}
		return ""
	}
	ev := StoredEvent{
		TS:        str("timestamp"),
		Event:     payload.Event,
		UserID:    str("userId"),
		SessionID: str("sessionId"),
		Page:      str("page"),
		URL:       str("url"),
		Payload:   raw,
	}
	if err := r.db.InsertEvents([]StoredEvent{ev}); err != nil {
		r.logger.Error("failed to store event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store event"})
		return
	}
	c.Status(http.StatusNoContent)
}

type resultPayload struct {
	ResultName string          `json:"result_name"`
	Scores     json.RawMessage `json:"scores"`
}

func (r *Router) handleResults(c *gin.Context) {
	var payload resultPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON format"})
		return
	}
	if payload.ResultName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result_name required"})
		return
	}
	if err := r.db.InsertResult(payload.ResultName, payload.Scores); err != nil {
		r.logger.Error("failed to store result", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store result"})
		return
	}
	c.Status(http.StatusNoContent)
}

// NewServer starts a standalone collector HTTP server on addr.
func NewServer(addr string, db *Database, logger *slog.Logger) *http.Server {
	r := NewRouter(db, logger)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}
