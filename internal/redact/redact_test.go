package redact

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func samplePayload() map[string]any {
	return map[string]any{
		"answer": "Thermal drift correlates with calibration loss.",
		"context": []any{
			map[string]any{
				"id":              "m-public",
				"text":            "public memory",
				"role_view_level": float64(0),
				"provenance":      map[string]any{"origin": "upload:report.pdf"},
				"metadata":        map[string]any{"internal_id": "row-17", "topic": "drift"},
			},
			map[string]any{
				"id":              "m-ledger",
				"text":            "member-only memory",
				"role_view_level": float64(1),
			},
		},
		"process_trace_summary": []any{
			"step retrieval 12ms",
			"step graph id:abc123 4ms",
			"step packing 2ms",
			"step reviewer 30ms",
			"step answer 5ms",
			"step redact 1ms",
		},
		"provenance": map[string]any{"origin": "upload:report.pdf", "chunk": float64(3)},
	}
}

func TestResponseLevelZero(t *testing.T) {
	out := Response(samplePayload(), []string{"general"})

	if out["role_applied"] != "general" {
		t.Fatalf("role_applied: %v", out["role_applied"])
	}

	ctx := out["context"].([]any)
	if len(ctx) != 1 {
		t.Fatalf("level-1 memory must be dropped for level-0 caller, got %d items", len(ctx))
	}
	item := ctx[0].(map[string]any)
	if item["id"] != "m-public" {
		t.Fatalf("wrong survivor: %v", item["id"])
	}

	prov := item["provenance"].(map[string]any)
	if prov["redacted"] != true {
		t.Fatalf("item provenance not redacted: %v", prov)
	}
	meta := item["metadata"].(map[string]any)
	if _, ok := meta["internal_id"]; ok {
		t.Fatal("internal metadata key leaked")
	}
	if meta["topic"] != "drift" {
		t.Fatal("benign metadata key lost")
	}

	trace := out["process_trace_summary"].([]any)
	if len(trace) != 5 {
		t.Fatalf("expected 4 lines + overflow marker, got %d", len(trace))
	}
	if trace[4] != "... (2 more lines)" {
		t.Fatalf("overflow marker: %v", trace[4])
	}
	for _, line := range trace[:4] {
		if strings.Contains(line.(string), "id:abc123") {
			t.Fatalf("sensitive token survived scrub: %v", line)
		}
	}

	top := out["provenance"].(map[string]any)
	if top["redacted"] != true || top["message"] == "" {
		t.Fatalf("top-level provenance: %v", top)
	}
}

func TestResponseLevelOneSeesEverything(t *testing.T) {
	out := Response(samplePayload(), []string{"pro"})

	if out["role_applied"] != "pro" {
		t.Fatalf("role_applied: %v", out["role_applied"])
	}
	if len(out["context"].([]any)) != 2 {
		t.Fatal("level-1 caller must see the ledger memory")
	}
	if len(out["process_trace_summary"].([]any)) != 6 {
		t.Fatal("trace must be uncapped for level-1")
	}
	prov := out["provenance"].(map[string]any)
	if prov["origin"] != "upload:report.pdf" {
		t.Fatalf("provenance must pass through: %v", prov)
	}
}

func TestResponseIdempotent(t *testing.T) {
	once := Response(samplePayload(), []string{"general"})
	twice := Response(once, []string{"general"})
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("redaction must be idempotent (-once +twice):\n%s", diff)
	}
}

func TestResponseDoesNotMutateInput(t *testing.T) {
	payload := samplePayload()
	Response(payload, []string{"general"})

	ctx := payload["context"].([]any)
	if len(ctx) != 2 {
		t.Fatal("input context was mutated")
	}
	prov := payload["provenance"].(map[string]any)
	if prov["origin"] != "upload:report.pdf" {
		t.Fatal("input provenance was mutated")
	}
}

func TestResponseMalformedPayload(t *testing.T) {
	// Context of the wrong shape degrades to empty rather than leaking.
	out := Response(map[string]any{"context": "not-a-list"}, []string{"ops"})
	if items, ok := out["context"].([]any); !ok || len(items) != 0 {
		t.Fatalf("malformed context: %v", out["context"])
	}
}

func TestMemoryWithoutLevelIsHidden(t *testing.T) {
	payload := map[string]any{
		"context": []any{
			map[string]any{"id": "m-unknown", "text": "no level field"},
		},
	}
	out := Response(payload, []string{"general"})
	if len(out["context"].([]any)) != 0 {
		t.Fatal("memory with unreadable level must be hidden")
	}
}

func TestScrubString(t *testing.T) {
	cases := map[string]string{
		"saw 550e8400-e29b-41d4-a716-446655440000 here": "saw [REDACTED] here",
		"touched db.memories.rowid":                     "touched [REDACTED]",
		"marker __shadow_table__ used":                  "marker [REDACTED] used",
		"plain text stays":                              "plain text stays",
	}
	for in, want := range cases {
		if got := scrubString(in); got != want {
			t.Errorf("scrubString(%q) = %q, want %q", in, got, want)
		}
	}
}
