package pipeline

import "encoding/json"

// Context holds the parsed results of the steps that have already succeeded
// for the document being processed, keyed by section.
type Context map[string]any

// StepError records a single failed prompt step.
type StepError struct {
	Prompt string `json:"prompt"`
	Error  string `json:"error"`
}

// Result is the final output for one document.
type Result struct {
	DocID          string         `json:"doc_id"`
	Title          string         `json:"title"`
	StructuredTags map[string]any `json:"structured_tags"`
	Errors         []StepError    `json:"errors"`
}

// MarshalJSON keeps empty tags and errors as {} and [] rather than null.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := plain(r)
	if out.StructuredTags == nil {
		out.StructuredTags = map[string]any{}
	}
	if out.Errors == nil {
		out.Errors = []StepError{}
	}
	return json.Marshal(out)
}

// OK reports whether every step succeeded.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Summary aggregates a run's results.
type Summary struct {
	Documents   int
	Clean       int
	FailedSteps int
}

// Stats summarizes results.
func Stats(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Add(r)
	}
	return s
}

// Add folds one result into the summary.
func (s *Summary) Add(r Result) {
	s.Documents++
	if r.OK() {
		s.Clean++
	}
	s.FailedSteps += len(r.Errors)
}
