package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		QueryID:   "q-1",
		Query:     "test query",
		QueryTime: 42,
		Total:     3,
		Results: []*models.FusedResult{
			{
				Hash: "h1", Title: "Both Doc", Path: "/docs/both.md", Score: 100, Rank: 1,
				LexicalRank: ptr(1), LexicalScore: ptr(100.0),
				VectorRank: ptr(2), VectorScore: ptr(81.5),
				Snippet: "first line\nsecond   line",
				Sources: []models.Source{models.SourceLexical, models.SourceVector},
			},
			{
				Hash: "h2", Title: "Vector Doc", Path: "/docs/vec.txt", Score: 0, Rank: 2,
				VectorRank: ptr(1), VectorScore: ptr(90.0),
				Sources: []models.Source{models.SourceVector},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]SearchOutputFormat{"": OutputText, "JSON": OutputJSON, "compact": OutputCompact} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "test query" || decoded.QueryTime != 42 || decoded.QueryID != "q-1" {
		t.Errorf("unexpected header fields: %+v", decoded)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].Hash != "h1" || *decoded.Results[0].VectorRank != 2 {
		t.Errorf("unexpected results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 3 results in 42ms (showing 2)",
		"#1  100.0  [lexical+vector]",
		"Title: Both Doc",
		"lexical #1 (100.0) | vector #2 (81.5)",
		"first line second line",
		"#2  0.0  [vector]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != "1\t100.0\t/docs/both.md\tBoth Doc" {
		t.Errorf("unexpected compact output: %q", lines)
	}
}

func TestWriteSearchResults_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, &models.SearchResponse{Query: "none"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("got %q", buf.String())
	}
}
