package event

import "encoding/json"

// Wire payload builders for the two collector endpoints plus the result
// save endpoint. The batch-wrapped form is canonical for the primary
// endpoint; a bare array is never emitted.

type batchItem struct {
	Event          string            `json:"event"`
	TS             string            `json:"ts"`
	UserID         string            `json:"userId"`
	SessionID      string            `json:"sessionId"`
	Page           string            `json:"page"`
	URL            string            `json:"url"`
	Referrer       string            `json:"referrer"`
	UserAgent      string            `json:"userAgent"`
	Screen         Screen            `json:"screen"`
	Viewport       Viewport          `json:"viewport"`
	UTM            map[string]string `json:"utm,omitempty"`
	UserAttributes Properties        `json:"userAttributes,omitempty"`
	Properties     Properties        `json:"properties,omitempty"`
}

type batchEnvelope struct {
	Batch []batchItem `json:"batch"`
}

func toBatchItem(r Record) batchItem {
	return batchItem{
		Event:          r.Name,
		TS:             r.Timestamp,
		UserID:         r.UserID,
		SessionID:      r.SessionID,
		Page:           r.Context.Page,
		URL:            r.Context.URL,
		Referrer:       r.Context.Referrer,
		UserAgent:      r.Context.UserAgent,
		Screen:         r.Context.Screen,
		Viewport:       r.Context.Viewport,
		UTM:            r.Context.UTM,
		UserAttributes: r.UserAttributes,
		Properties:     r.Properties,
	}
}

// MarshalBatch serializes records for the primary events endpoint:
// {"batch": [ ... ]}.
func MarshalBatch(records []Record) ([]byte, error) {
	env := batchEnvelope{Batch: make([]batchItem, len(records))}
	for i, r := range records {
		env.Batch[i] = toBatchItem(r)
	}
	return json.Marshal(env)
}

type legacyEnvelope struct {
	Event      string     `json:"event"`
	Properties Properties `json:"properties"`
}

// MarshalLegacy serializes one record for the per-record compat
// endpoint. The context fields are flattened into properties instead of
// sitting next to the event name.
func MarshalLegacy(r Record) ([]byte, error) {
	props := make(Properties, len(r.Properties)+11)
	for k, v := range r.Properties {
		props[k] = v
	}
	props["timestamp"] = r.Timestamp
	props["userId"] = r.UserID
	props["sessionId"] = r.SessionID
	props["page"] = r.Context.Page
	props["referrer"] = r.Context.Referrer
	props["userAgent"] = r.Context.UserAgent
	props["screen"] = r.Context.Screen
	props["viewport"] = r.Context.Viewport
	props["url"] = r.Context.URL
	if r.Context.UTM != nil {
		props["utm"] = r.Context.UTM
	}
	if r.UserAttributes != nil {
		props["userAttributes"] = r.UserAttributes
	}
	return json.Marshal(legacyEnvelope{Event: r.Name, Properties: props})
}

type resultEnvelope struct {
	ResultName string             `json:"result_name"`
	Scores     map[string]float64 `json:"scores"`
}

// MarshalResult serializes a quiz result for the dedicated results
// endpoint.
func MarshalResult(name string, scores map[string]float64) ([]byte, error) {
	return json.Marshal(resultEnvelope{ResultName: name, Scores: scores})
}

// EncodeSnapshot serializes the pending queue for the persisted
// snapshot. The snapshot format keeps the full record, including the
// internal ID, so rehydrated records stay correlated in the journal.
func EncodeSnapshot(records []Record) ([]byte, error) {
	return json.Marshal(records)
}

// DecodeSnapshot parses a persisted queue snapshot. Malformed data is
// the caller's problem to discard; this reports it as an ordinary error.
func DecodeSnapshot(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
