package server

import (
	"context"
	"strings"

	"holograph/internal/retrieval"
)

// ExtractiveAnswer is the default answer generator: it stitches the top
// packed evidence into a short extractive summary. Model-backed generators
// replace it through Options.Answer.
func ExtractiveAnswer(ctx context.Context, query string, packed retrieval.PackedContext) (string, error) {
	if len(packed.Items) == 0 {
		return "No relevant material was found for this question.", nil
	}

	var b strings.Builder
	limit := 3
	if len(packed.Items) < limit {
		limit = len(packed.Items)
	}
	for i := 0; i < limit; i++ {
		text := strings.TrimSpace(packed.Items[i].Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(firstSentence(text))
	}
	if b.Len() == 0 {
		return "No relevant material was found for this question.", nil
	}
	return b.String(), nil
}

func firstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
	}
	return text
}
