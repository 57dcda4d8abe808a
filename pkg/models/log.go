// Package models holds the data types shared across LogLens components.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// LogContent is the payload of a LogRecord. Text always carries the raw
// file content; Structured is set only when the content decoded as JSON.
type LogContent struct {
	Text       string `json:"text"`
	Structured any    `json:"structured,omitempty"`
}

// IsStructured reports whether the content was decoded as JSON.
func (c LogContent) IsStructured() bool {
	return c.Structured != nil
}

// Rendering returns the textual form used by the line heuristics.
// Structured content is rendered as compact JSON.
func (c LogContent) Rendering() string {
	if c.Structured == nil {
		return c.Text
	}
	b, err := json.Marshal(c.Structured)
	if err != nil {
		return c.Text
	}
	return string(b)
}

// DecodeJSON decodes a single JSON value. Numbers are kept as
// json.Number so re-rendering reproduces the source digits.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return v, nil
}

// LogRecord is one normalized unit of watched file content.
type LogRecord struct {
	ID         string     `json:"id"`
	FilePath   string     `json:"file_path"`
	Content    LogContent `json:"content"`
	ObservedAt time.Time  `json:"observed_at"`
}

// Summary is the structured digest of a single LogRecord.
type Summary struct {
	ErrorCount   int      `json:"error_count" yaml:"error_count"`
	WarningCount int      `json:"warning_count" yaml:"warning_count"`
	KeyEvents    []string `json:"key_events" yaml:"key_events"`
	Narrative    string   `json:"narrative,omitempty" yaml:"narrative,omitempty"`
}

// SummaryEvent is the envelope forwarded to summary sinks.
type SummaryEvent struct {
	ID             string    `json:"id"`
	FilePath       string    `json:"file_path"`
	ObservedAt     time.Time `json:"observed_at"`
	SummarizedAt   time.Time `json:"summarized_at"`
	Summary        Summary   `json:"summary"`
	NarrativeError string    `json:"narrative_error,omitempty"`
}
