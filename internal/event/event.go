package event

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Well-known event names produced by the tracking sugar helpers.
const (
	NamePageView    = "page_view"
	NameButtonClick = "button_click"
	NameFormSubmit  = "form_submit"
	NameError       = "error"
	NameQuizResult  = "quiz_result"
)

// Screen describes display geometry at capture time.
type Screen struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PixelRatio float64 `json:"pixelRatio"`
}

// Viewport describes the visible area at capture time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Context is the environment snapshot attached to a record at capture
// time. It is copied into the record once and never recomputed; retries
// resend the identical snapshot.
type Context struct {
	Page      string            `json:"page"`
	URL       string            `json:"url"`
	Referrer  string            `json:"referrer"`
	UserAgent string            `json:"userAgent"`
	Screen    Screen            `json:"screen"`
	Viewport  Viewport          `json:"viewport"`
	UTM       map[string]string `json:"utm,omitempty"`
}

// Properties is the caller-supplied payload bag. Values are normalized
// to a restricted union (string, bool, float64, nested map, list) when
// a record is built so serialization stays deterministic.
type Properties map[string]any

// Record is one captured occurrence. Once constructed it is immutable:
// the delivery engine requeues and resends the same record, it never
// rebuilds one.
type Record struct {
	ID             string     `json:"id"`
	Name           string     `json:"event"`
	Timestamp      string     `json:"ts"`
	UserID         string     `json:"userId"`
	SessionID      string     `json:"sessionId"`
	Context        Context    `json:"context"`
	UserAttributes Properties `json:"userAttributes,omitempty"`
	Properties     Properties `json:"properties,omitempty"`
}

// New builds an immutable record stamped with the current client clock.
// Attribute and property maps are copied so later caller mutation cannot
// leak into an already-captured record. The ID is internal bookkeeping
// (journal correlation, logs); it is not part of any wire payload.
func New(name, userID, sessionID string, ctx Context, attrs, props Properties) Record {
	return Record{
		ID:             ulid.Make().String(),
		Name:           name,
		Timestamp:      time.Now().UTC().Format(timestampLayout),
		UserID:         userID,
		SessionID:      sessionID,
		Context:        copyContext(ctx),
		UserAttributes: Sanitize(attrs),
		Properties:     Sanitize(props),
	}
}

// timestampLayout is ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func copyContext(c Context) Context {
	if c.UTM != nil {
		utm := make(map[string]string, len(c.UTM))
		for k, v := range c.UTM {
			utm[k] = v
		}
		c.UTM = utm
	}
	return c
}

// Sanitize returns a deep copy of props with every value normalized to
// the restricted union: string, bool, float64, nested Properties, or a
// list of those. Unsupported types are stringified rather than rejected;
// a bad property value must never make Track fail.
func Sanitize(props Properties) Properties {
	if props == nil {
		return nil
	}
	out := make(Properties, len(props))
	for k, v := range props {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case Properties:
		return Sanitize(x)
	case map[string]any:
		return Sanitize(Properties(x))
	case map[string]string:
		m := make(Properties, len(x))
		for k, s := range x {
			m[k] = s
		}
		return m
	case []any:
		lst := make([]any, len(x))
		for i, e := range x {
			lst[i] = sanitizeValue(e)
		}
		return lst
	case []string:
		lst := make([]any, len(x))
		for i, s := range x {
			lst[i] = s
		}
		return lst
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Merge returns a shallow last-write-wins merge of base and override.
// Both inputs are left untouched.
func Merge(base, override Properties) Properties {
	if base == nil && override == nil {
		return nil
	}
	out := make(Properties, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
