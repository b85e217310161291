package butler

import (
	"regexp"
	"strings"
)

// Some models leak reasoning tags or wrap the whole draft in a markdown
// fence despite the prompt asking for plain text. Everything generated
// here goes straight out as an iMessage, so drafts are scrubbed before
// dispatch.

var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

// sanitizeDraft cleans one generated draft: reasoning tags removed,
// a fence around the entire text unwrapped, consecutive duplicate
// paragraphs collapsed.
func sanitizeDraft(text string) string {
	text = stripThinkingTags(text)
	text = unwrapFence(text)
	text = collapseDuplicateParagraphs(text)
	return strings.TrimSpace(text)
}

func stripThinkingTags(text string) string {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return text
	}
	for _, pat := range thinkingTagPatterns {
		text = pat.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// unwrapFence removes a markdown fence only when it wraps the whole
// draft. Fences inside a longer message are left alone; the owner may
// legitimately be sending code.
func unwrapFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return text
	}
	inner := strings.TrimSuffix(trimmed, "```")
	inner = strings.TrimPrefix(inner, "```")
	// Drop a language hint on the opening fence.
	if i := strings.Index(inner, "\n"); i >= 0 && !strings.ContainsAny(inner[:i], " \t") {
		inner = inner[i+1:]
	}
	if strings.Contains(inner, "```") {
		return text
	}
	return strings.TrimSpace(inner)
}

func collapseDuplicateParagraphs(text string) string {
	blocks := strings.Split(text, "\n\n")
	if len(blocks) <= 1 {
		return text
	}
	var out []string
	var prev string
	for _, b := range blocks {
		t := strings.TrimSpace(b)
		if t != "" && t == prev {
			continue
		}
		out = append(out, b)
		prev = t
	}
	return strings.Join(out, "\n\n")
}
