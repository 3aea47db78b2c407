// Package redact shapes outgoing response payloads according to the
// caller's roles. It operates on a generic JSON-like tree (maps, slices,
// scalars) at the response boundary, always on a deep copy: objects
// reachable by other code paths are never mutated. Redaction never fails; a
// structurally unexpected payload gets the most restrictive treatment.
package redact

import (
	"fmt"
	"regexp"

	"holograph/internal/rbac"
)

// traceCapLines is how many trace-summary lines a level-0 caller may see.
const traceCapLines = 4

// upgradeHint is shown in place of provenance for level-0 callers.
const upgradeHint = "provenance is available to pro and scholars members"

// sensitivePatterns are the substrings scrubbed from level-0 trace output.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
	regexp.MustCompile(`id:[A-Za-z0-9_-]+`),
	regexp.MustCompile(`uuid:[A-Za-z0-9_-]+`),
	regexp.MustCompile(`db\.[A-Za-z0-9_.-]+`),
	regexp.MustCompile(`internal:[A-Za-z0-9_-]+`),
	regexp.MustCompile(`__[A-Za-z0-9_-]+__`),
	regexp.MustCompile(`ref:[A-Za-z0-9_-]+`),
}

// overflowMarker recognizes a trace summary that was already capped.
var overflowMarker = regexp.MustCompile(`^\.\.\. \(\d+ more lines\)$`)

// internalMetadataKey matches metadata keys stripped for level-0 callers.
var internalMetadataKey = regexp.MustCompile(`(?i)^(internal_id|db_ref|internal_ref|storage_key|index_name)$`)

// Response redacts a response payload for the given caller roles and returns
// a new tree. The input is never modified.
func Response(payload map[string]any, roles []string) map[string]any {
	role := rbac.EffectiveRole(roles)
	level := rbac.MaxLevel(roles)

	out, ok := func() (m map[string]any, ok bool) {
		// A malformed payload must not crash the response path; recover
		// into the most restrictive view.
		defer func() {
			if r := recover(); r != nil {
				m, ok = nil, false
			}
		}()
		return redactTree(payload, role, level), true
	}()
	if !ok {
		out = redactTree(map[string]any{}, rbac.RoleGeneral, 0)
	}
	return out
}

func redactTree(payload map[string]any, role string, level int) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		switch k {
		case "context":
			out[k] = redactContext(v, level)
		case "process_trace_summary":
			out[k] = redactTrace(v, level)
		case "provenance":
			out[k] = redactProvenance(v, level)
		case "metadata":
			out[k] = redactMetadata(v, level)
		case "messages":
			out[k] = redactMessages(v, role, level)
		default:
			out[k] = deepCopy(v)
		}
	}
	out["role_applied"] = role
	return out
}

// redactContext drops memories above the caller's level and redacts each
// surviving item.
func redactContext(v any, level int) any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if memoryLevel(m) > level {
			continue
		}
		c := make(map[string]any, len(m))
		for k, val := range m {
			switch k {
			case "provenance":
				c[k] = redactProvenance(val, level)
			case "metadata":
				c[k] = redactMetadata(val, level)
			default:
				c[k] = deepCopy(val)
			}
		}
		out = append(out, c)
	}
	return out
}

func memoryLevel(m map[string]any) int {
	switch v := m["role_view_level"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		// Unreadable level: treat as most restricted so it is never leaked.
		return 1 << 30
	}
}

// redactTrace caps and scrubs the trace summary for level-0 callers.
func redactTrace(v any, level int) any {
	items, ok := v.([]any)
	if !ok {
		return []any{}
	}
	if level >= 1 {
		return deepCopy(items)
	}

	// An already-capped trace (overflow marker last) passes through
	// unchanged, which keeps redaction idempotent.
	if n := len(items); n > 0 {
		if s, ok := items[n-1].(string); ok && overflowMarker.MatchString(s) {
			out := make([]any, 0, n)
			for _, line := range items {
				out = append(out, scrubValue(deepCopy(line)))
			}
			return out
		}
	}

	capped := items
	overflow := 0
	if len(items) > traceCapLines {
		overflow = len(items) - traceCapLines
		capped = items[:traceCapLines]
	}

	out := make([]any, 0, len(capped)+1)
	for _, line := range capped {
		out = append(out, scrubValue(deepCopy(line)))
	}
	if overflow > 0 {
		out = append(out, fmt.Sprintf("... (%d more lines)", overflow))
	}
	return out
}

// scrubValue replaces sensitive substrings in strings anywhere in the tree.
func scrubValue(v any) any {
	switch t := v.(type) {
	case string:
		return scrubString(t)
	case map[string]any:
		for k, val := range t {
			t[k] = scrubValue(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = scrubValue(val)
		}
		return t
	default:
		return v
	}
}

func scrubString(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func redactProvenance(v any, level int) any {
	if level >= 1 {
		return deepCopy(v)
	}
	// Already-redacted provenance stays as is, which keeps redaction
	// idempotent.
	if m, ok := v.(map[string]any); ok {
		if r, ok := m["redacted"].(bool); ok && r {
			return deepCopy(v)
		}
	}
	return map[string]any{
		"redacted": true,
		"message":  upgradeHint,
	}
}

func redactMetadata(v any, level int) any {
	m, ok := v.(map[string]any)
	if !ok {
		return deepCopy(v)
	}
	if level >= 1 {
		return deepCopy(m)
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if internalMetadataKey.MatchString(k) {
			continue
		}
		out[k] = deepCopy(val)
	}
	return out
}

func redactMessages(v any, role string, level int) any {
	items, ok := v.([]any)
	if !ok {
		return deepCopy(v)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, redactTree(m, role, level))
		} else {
			out = append(out, deepCopy(item))
		}
	}
	return out
}

// deepCopy clones a JSON-like tree.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
