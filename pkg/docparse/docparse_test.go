package docparse

import (
	"context"
	"testing"

	"github.com/voxhire/voxhire/pkg/core"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (g *fakeGenerator) generateJSON(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.response, g.err
}

func TestParseResume(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `{
		"legal_name": "Ada Lovelace",
		"nicknames": ["Ada"],
		"links": ["https://github.com/adal"],
		"usernames": ["adal"]
	}`}
	p := &Parser{gen: gen}

	facts, err := p.ParseResume(context.Background(), "Ada Lovelace, engineer, github.com/adal")
	if err != nil {
		t.Fatalf("ParseResume: %v", err)
	}
	if facts.LegalName != "Ada Lovelace" {
		t.Errorf("LegalName = %q, want Ada Lovelace", facts.LegalName)
	}
	if len(facts.Links) != 1 || facts.Links[0] != "https://github.com/adal" {
		t.Errorf("Links = %v", facts.Links)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("model called %d times, want 1", len(gen.prompts))
	}
}

func TestParseJob(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `{
		"title": "Backend Engineer",
		"seniority": "senior",
		"skills": ["Go", "PostgreSQL"],
		"summary": "Builds services. Owns reliability."
	}`}
	p := &Parser{gen: gen}

	facts, err := p.ParseJob(context.Background(), "We need a senior Go engineer...")
	if err != nil {
		t.Fatalf("ParseJob: %v", err)
	}
	if facts.Title != "Backend Engineer" || facts.Seniority != "senior" {
		t.Errorf("facts = %+v", facts)
	}
	if len(facts.Skills) != 2 {
		t.Errorf("Skills = %v, want 2 entries", facts.Skills)
	}
}

func TestParseRejectsUnparsableModelOutput(t *testing.T) {
	t.Parallel()

	p := &Parser{gen: &fakeGenerator{response: "I could not find anything."}}
	_, err := p.ParseResume(context.Background(), "text")
	if err == nil {
		t.Fatal("ParseResume accepted prose output")
	}
	if !core.IsType(err, core.ErrAPI) {
		t.Errorf("error = %v, want api error", err)
	}
}

func TestSearchQueries(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: `["Ada Lovelace hobbies", "Ada Lovelace volunteer", "adal twitter"]`}
	p := &Parser{gen: gen}

	queries := p.SearchQueries(context.Background(), "Ada Lovelace", "Engineer", "London", []string{"adal"})
	if len(queries) != 3 {
		t.Fatalf("queries = %v, want 3", queries)
	}
	if queries[0] != "Ada Lovelace hobbies" {
		t.Errorf("queries[0] = %q", queries[0])
	}
}

func TestSearchQueriesFallBackToBasics(t *testing.T) {
	t.Parallel()

	p := &Parser{gen: &fakeGenerator{response: "no json here"}}

	queries := p.SearchQueries(context.Background(), "Ada Lovelace", "Engineer", "", []string{"adal", "ada_l", "third"})
	want := []string{"adal", "ada_l", "Ada Lovelace Engineer"}
	if len(queries) != len(want) {
		t.Fatalf("queries = %v, want %v", queries, want)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("queries[%d] = %q, want %q", i, queries[i], want[i])
		}
	}
}

func TestCacheKeyStableAcrossWhitespaceAndCase(t *testing.T) {
	t.Parallel()

	a := CacheKey("resume", "Ada Lovelace\nEngineer")
	b := CacheKey("resume", "  ada lovelace\nengineer  ")
	if a != b {
		t.Errorf("keys differ for equivalent text: %q vs %q", a, b)
	}
	if a == CacheKey("job", "Ada Lovelace\nEngineer") {
		t.Error("resume and job keys collide")
	}
	if a == CacheKey("resume", "different text") {
		t.Error("different documents share a key")
	}
}
