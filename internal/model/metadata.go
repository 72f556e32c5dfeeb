// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMetadata is an opaque JSON blob column. Per spec §9 ("Reflection
// over arbitrary metadata blobs"), callers never get a strongly typed
// struct for this — only the events[] field within it is structurally
// accessed by the core, via Events()/AppendEvent(). The examples pack
// does not carry gorm.io/datatypes, so this is a small hand-rolled
// sql.Scanner/driver.Valuer pair (stdlib encoding/json + database/sql/driver);
// see DESIGN.md for why no third-party JSON-column type was available to wire.
type JSONMetadata map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMetadata) Scan(src interface{}) error {
	if src == nil {
		*m = JSONMetadata{}
		return nil
	}
	var bytes []byte
	switch v := src.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into JSONMetadata", src)
	}
	if len(bytes) == 0 {
		*m = JSONMetadata{}
		return nil
	}
	out := JSONMetadata{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return fmt.Errorf("model: unmarshal JSONMetadata: %w", err)
	}
	*m = out
	return nil
}

// Events returns the append-only events[] log embedded in the metadata,
// the one field the core accesses structurally (spec §3 CallRow).
func (m JSONMetadata) Events() []map[string]interface{} {
	raw, ok := m["events"]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if ev, ok := item.(map[string]interface{}); ok {
			out = append(out, ev)
		}
	}
	return out
}

// AppendEvent appends {type, timestamp, ...details} to the events[] log
// and returns the updated metadata (the receiver may be nil).
func AppendEvent(m JSONMetadata, eventType string, timestampRFC3339 string, details map[string]interface{}) JSONMetadata {
	if m == nil {
		m = JSONMetadata{}
	}
	ev := map[string]interface{}{
		"type":      eventType,
		"timestamp": timestampRFC3339,
	}
	for k, v := range details {
		ev[k] = v
	}
	events := m.Events()
	asInterfaces := make([]interface{}, 0, len(events)+1)
	for _, e := range events {
		asInterfaces = append(asInterfaces, e)
	}
	asInterfaces = append(asInterfaces, ev)
	m["events"] = asInterfaces
	return m
}
