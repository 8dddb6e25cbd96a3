package pipeline

import (
	"errors"
	"strings"
)

// Document is one row of input text after it has been read from a source.
type Document struct {
	ID      string
	Title   string
	Payload string
	Meta    map[string]any // remaining source columns
}

// Validate checks if the document has required fields
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("document id is required")
	}
	return nil
}
