package event

import (
	"strings"
	"testing"
	"time"
)

func TestNewStampsIdentityAndTimestamp(t *testing.T) {
	r := New("page_view", "user_1", "session_1", Context{Page: "/home"}, nil, Properties{"a": 1})
	if r.Name != "page_view" || r.UserID != "user_1" || r.SessionID != "session_1" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.ID == "" {
		t.Fatalf("expected non-empty record id")
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z07:00", r.Timestamp); err != nil {
		t.Fatalf("timestamp not ISO-8601: %q (%v)", r.Timestamp, err)
	}
	if !strings.HasSuffix(r.Timestamp, "Z") {
		t.Fatalf("timestamp should be UTC: %q", r.Timestamp)
	}
}

func TestNewCopiesCallerMaps(t *testing.T) {
	props := Properties{"k": "v"}
	attrs := Properties{"plan": "free"}
	utm := map[string]string{"source": "mail"}
	r := New("e", "u", "s", Context{UTM: utm}, attrs, props)

	props["k"] = "mutated"
	attrs["plan"] = "pro"
	utm["source"] = "mutated"

	if r.Properties["k"] != "v" {
		t.Fatalf("property leaked caller mutation: %v", r.Properties["k"])
	}
	if r.UserAttributes["plan"] != "free" {
		t.Fatalf("attribute leaked caller mutation: %v", r.UserAttributes["plan"])
	}
	if r.Context.UTM["source"] != "mail" {
		t.Fatalf("utm leaked caller mutation: %v", r.Context.UTM["source"])
	}
}

func TestSanitizeNormalizesValues(t *testing.T) {
	in := Properties{
		"str":    "x",
		"bool":   true,
		"int":    42,
		"float":  1.5,
		"nested": map[string]any{"n": int64(7)},
		"list":   []any{1, "two"},
		"weird":  struct{ A int }{A: 1},
	}
	out := Sanitize(in)
	if out["int"] != float64(42) {
		t.Fatalf("int not normalized: %T %v", out["int"], out["int"])
	}
	nested, ok := out["nested"].(Properties)
	if !ok || nested["n"] != float64(7) {
		t.Fatalf("nested not normalized: %#v", out["nested"])
	}
	lst, ok := out["list"].([]any)
	if !ok || lst[0] != float64(1) || lst[1] != "two" {
		t.Fatalf("list not normalized: %#v", out["list"])
	}
	if _, ok := out["weird"].(string); !ok {
		t.Fatalf("unsupported value should be stringified, got %T", out["weird"])
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	base := Properties{"a": 1, "b": 2}
	out := Merge(base, Properties{"b": 3, "c": 4})
	if out["a"] != 1 || out["b"] != 3 || out["c"] != 4 {
		t.Fatalf("bad merge: %#v", out)
	}
	if base["b"] != 2 {
		t.Fatalf("merge mutated base: %#v", base)
	}
	if Merge(nil, nil) != nil {
		t.Fatalf("nil+nil should stay nil")
	}
}
