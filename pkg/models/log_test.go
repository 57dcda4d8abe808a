package models_test

import (
	"testing"

	"github.com/loglens/loglens/pkg/models"
)

func TestDecodeJSON_KeepsNumberDigits(t *testing.T) {
	v, err := models.DecodeJSON([]byte(`{"n":12345678901234567890,"f":1.50}`))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	c := models.LogContent{Structured: v}
	if !c.IsStructured() {
		t.Fatal("IsStructured() = false, want true")
	}
	if got, want := c.Rendering(), `{"f":1.50,"n":12345678901234567890}`; got != want {
		t.Errorf("Rendering() = %s, want %s", got, want)
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	for _, in := range []string{`{"a":1} {"b":2}`, `{"a":`, ``} {
		if _, err := models.DecodeJSON([]byte(in)); err == nil {
			t.Errorf("DecodeJSON(%q) error = nil, want error", in)
		}
	}
}

func TestRendering_TextPassesThrough(t *testing.T) {
	c := models.LogContent{Text: "line one\nline two"}
	if c.IsStructured() {
		t.Error("IsStructured() = true, want false")
	}
	if got := c.Rendering(); got != c.Text {
		t.Errorf("Rendering() = %q, want %q", got, c.Text)
	}
}
