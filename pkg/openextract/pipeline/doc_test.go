package pipeline

import (
	"testing"
)

func TestDocumentValidate(t *testing.T) {
	doc := Document{ID: "42", Title: "Test", Payload: "body"}
	if err := doc.Validate(); err != nil {
		t.Errorf("valid document should pass validation, got %v", err)
	}
}

func TestDocumentValidateMissingID(t *testing.T) {
	doc := Document{ID: "  ", Title: "Test"}
	if err := doc.Validate(); err == nil {
		t.Error("document without id should fail validation")
	}
}

func TestNewRunIDMonotonic(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 26 {
		t.Errorf("expected 26-char ULID, got %q", a)
	}
	if a >= b {
		t.Errorf("run ids should increase: %s >= %s", a, b)
	}
}
