package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
	"github.com/cognicore/openextract/pkg/openextract/prompts"
	"github.com/cognicore/openextract/pkg/openextract/provider/echo"
)

func mustPrompt(t *testing.T, name, src string) *prompts.TemplatePrompt {
	t.Helper()
	p, err := prompts.NewTemplatePrompt(name, name, src)
	if err != nil {
		t.Fatalf("NewTemplatePrompt(%s): %v", name, err)
	}
	return p
}

func testDocs() []pipeline.Document {
	return []pipeline.Document{
		{ID: "1", Title: "Network security notice", Payload: "Build a security management system."},
		{ID: "2", Title: "Green energy plan", Payload: "Renewables reach 30% by 2025."},
		{ID: "3", Title: "Business environment", Payload: "One-stop online services."},
	}
}

func summaryAndTags(t *testing.T) []pipeline.PromptUnit {
	return []pipeline.PromptUnit{
		mustPrompt(t, "summary", "Summarize {title}: {content}"),
		mustPrompt(t, "tags", "Tag this summary: {summary.content}"),
	}
}

func TestRunAllStepsSucceed(t *testing.T) {
	engine := pipeline.New(summaryAndTags(t), echo.New())

	results, err := engine.Run(context.Background(), pipeline.Documents(testDocs()...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, doc := range testDocs() {
		r := results[i]
		if r.DocID != doc.ID || r.Title != doc.Title {
			t.Errorf("result %d: got %s/%s, want %s/%s", i, r.DocID, r.Title, doc.ID, doc.Title)
		}
		summary := "Summarize " + doc.Title + ": " + doc.Payload
		want := map[string]any{
			"summary": map[string]any{"content": summary},
			"tags":    map[string]any{"content": "Tag this summary: " + summary},
		}
		if diff := cmp.Diff(want, r.StructuredTags); diff != "" {
			t.Errorf("doc %s tags mismatch (-want +got):\n%s", doc.ID, diff)
		}
		if len(r.Errors) != 0 {
			t.Errorf("doc %s: unexpected errors %v", doc.ID, r.Errors)
		}
	}
}

func TestRunIsolatesStepFailure(t *testing.T) {
	prov := echo.New()
	prov.Fail = func(doc pipeline.Document, prompt string) error {
		if doc.ID == "2" && prompt == "tags" {
			return errors.New("upstream 503")
		}
		return nil
	}
	engine := pipeline.New(summaryAndTags(t), prov)

	results, err := engine.Run(context.Background(), pipeline.Documents(testDocs()...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	failed := results[1]
	if _, ok := failed.StructuredTags["tags"]; ok {
		t.Error("failed step must not populate structured_tags")
	}
	if _, ok := failed.StructuredTags["summary"]; !ok {
		t.Error("summary should still be present for doc 2")
	}
	want := []pipeline.StepError{{Prompt: "tags", Error: "provider call failed: upstream 503"}}
	if diff := cmp.Diff(want, failed.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}

	for _, i := range []int{0, 2} {
		if len(results[i].Errors) != 0 || len(results[i].StructuredTags) != 2 {
			t.Errorf("doc %s should be unaffected: %+v", results[i].DocID, results[i])
		}
	}
}

func TestMissingContextKeySkipsCall(t *testing.T) {
	prov := echo.New()
	prov.Fail = func(doc pipeline.Document, prompt string) error {
		if prompt == "a" {
			return errors.New("down")
		}
		return nil
	}
	steps := []pipeline.PromptUnit{
		mustPrompt(t, "a", "first {title}"),
		mustPrompt(t, "b", "uses {a}"),
		mustPrompt(t, "c", "independent {content}"),
	}
	engine := pipeline.New(steps, prov)

	r := engine.Process(context.Background(), testDocs()[0])

	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", r.Errors)
	}
	if r.Errors[0].Prompt != "a" || r.Errors[1].Prompt != "b" {
		t.Errorf("errors out of order: %v", r.Errors)
	}
	if !strings.Contains(r.Errors[1].Error, "missing context key") || !strings.Contains(r.Errors[1].Error, "{a}") {
		t.Errorf("unexpected error for b: %q", r.Errors[1].Error)
	}
	if _, ok := r.StructuredTags["c"]; !ok || len(r.StructuredTags) != 1 {
		t.Errorf("expected only section c, got %v", r.StructuredTags)
	}
	// a fails inside the provider, b never reaches it, c succeeds.
	if prov.Calls() != 1 {
		t.Errorf("expected 1 successful dispatch, got %d", prov.Calls())
	}
}

func TestForwardReferenceFails(t *testing.T) {
	steps := []pipeline.PromptUnit{
		mustPrompt(t, "early", "needs {late}"),
		mustPrompt(t, "late", "{title}"),
	}
	r := pipeline.New(steps, echo.New()).Process(context.Background(), testDocs()[0])

	if len(r.Errors) != 1 || r.Errors[0].Prompt != "early" {
		t.Fatalf("expected early to fail, got %v", r.Errors)
	}
	if _, ok := r.StructuredTags["late"]; !ok {
		t.Error("late should succeed")
	}
}

// contextProbe records the context keys visible to it.
type contextProbe struct {
	name string
	seen [][]string
}

func (p *contextProbe) Name() string    { return p.name }
func (p *contextProbe) Section() string { return p.name }

func (p *contextProbe) RenderInput(doc pipeline.Document, ctx pipeline.Context) (pipeline.Payload, error) {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p.seen = append(p.seen, keys)
	return pipeline.Payload{Messages: []pipeline.Message{{Role: "user", Content: doc.ID}}}, nil
}

func TestContextIsFreshPerDocument(t *testing.T) {
	first := &contextProbe{name: "first"}
	second := &contextProbe{name: "second"}
	engine := pipeline.New([]pipeline.PromptUnit{first, second}, echo.New())

	if _, err := engine.Run(context.Background(), pipeline.Documents(testDocs()...)); err != nil {
		t.Fatal(err)
	}

	want := [][]string{{}, {}, {}}
	if diff := cmp.Diff(want, first.seen); diff != "" {
		t.Errorf("first prompt context (-want +got):\n%s", diff)
	}
	want = [][]string{{"first"}, {"first"}, {"first"}}
	if diff := cmp.Diff(want, second.seen); diff != "" {
		t.Errorf("second prompt context (-want +got):\n%s", diff)
	}
}

func TestDocumentIndependence(t *testing.T) {
	newEngine := func() *pipeline.Engine {
		prov := echo.New()
		prov.Fail = func(doc pipeline.Document, prompt string) error {
			if doc.ID == "1" && prompt == "summary" {
				return errors.New("fail")
			}
			return nil
		}
		return pipeline.New(summaryAndTags(t), prov)
	}
	docs := testDocs()[:2]

	together, err := newEngine().Run(context.Background(), pipeline.Documents(docs...))
	if err != nil {
		t.Fatal(err)
	}

	var separate []pipeline.Result
	for _, d := range docs {
		rs, err := newEngine().Run(context.Background(), pipeline.Documents(d))
		if err != nil {
			t.Fatal(err)
		}
		separate = append(separate, rs...)
	}

	if diff := cmp.Diff(separate, together); diff != "" {
		t.Errorf("results differ between joint and separate runs (-separate +together):\n%s", diff)
	}
}

func TestRunEveryStepFails(t *testing.T) {
	prov := echo.New()
	prov.Fail = func(pipeline.Document, string) error { return errors.New("offline") }
	results, err := pipeline.New(summaryAndTags(t), prov).Run(context.Background(), pipeline.Documents(testDocs()...))
	if err != nil {
		t.Fatalf("step failures must not fail the run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if len(r.StructuredTags) != 0 {
			t.Errorf("doc %s: expected no tags, got %v", r.DocID, r.StructuredTags)
		}
		if len(r.Errors) != 2 || r.Errors[0].Prompt != "summary" || r.Errors[1].Prompt != "tags" {
			t.Errorf("doc %s: unexpected errors %v", r.DocID, r.Errors)
		}
	}
}

func TestSectionCollisionOverwrites(t *testing.T) {
	a, err := prompts.NewTemplatePrompt("a", "shared", "one")
	if err != nil {
		t.Fatal(err)
	}
	b, err := prompts.NewTemplatePrompt("b", "shared", "two {shared.content}")
	if err != nil {
		t.Fatal(err)
	}
	r := pipeline.New([]pipeline.PromptUnit{a, b}, echo.New()).Process(context.Background(), testDocs()[0])

	want := map[string]any{"shared": map[string]any{"content": "two one"}}
	if diff := cmp.Diff(want, r.StructuredTags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestEachStopsOnSourceError(t *testing.T) {
	srcErr := errors.New("corrupt row")
	docs := iter.Seq2[pipeline.Document, error](func(yield func(pipeline.Document, error) bool) {
		if !yield(testDocs()[0], nil) {
			return
		}
		yield(pipeline.Document{}, srcErr)
	})

	results, err := pipeline.New(summaryAndTags(t), echo.New()).Run(context.Background(), docs)
	if !errors.Is(err, srcErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected results gathered before the error, got %d", len(results))
	}
}

func TestEachStopsOnEmitError(t *testing.T) {
	emitErr := errors.New("disk full")
	calls := 0
	err := pipeline.New(summaryAndTags(t), echo.New()).Each(context.Background(), pipeline.Documents(testDocs()...), func(pipeline.Result) error {
		calls++
		return emitErr
	})
	if !errors.Is(err, emitErr) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected emit to be called once, got %d", calls)
	}
}

func TestEachRejectsDocumentWithoutID(t *testing.T) {
	provider := echo.New()
	docs := pipeline.Documents(testDocs()[0], pipeline.Document{Title: "no id"})
	results, err := pipeline.New(summaryAndTags(t), provider).Run(context.Background(), docs)
	if err == nil || !strings.Contains(err.Error(), "document 2") {
		t.Fatalf("expected error naming document 2, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result before the error, got %d", len(results))
	}
}

func TestResultJSONShape(t *testing.T) {
	data, err := json.Marshal(pipeline.Result{DocID: "7", Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"doc_id":"7","title":"t","structured_tags":{},"errors":[]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestStats(t *testing.T) {
	sum := pipeline.Stats([]pipeline.Result{
		{DocID: "1"},
		{DocID: "2", Errors: []pipeline.StepError{{Prompt: "a"}, {Prompt: "b"}}},
	})
	want := pipeline.Summary{Documents: 2, Clean: 1, FailedSteps: 2}
	if sum != want {
		t.Errorf("got %+v, want %+v", sum, want)
	}
}
