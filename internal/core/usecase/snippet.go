package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const snippetRunes = 160

// estimateTokens approximates LLM token cost from character count. The 4:1
// ratio matches what subword tokenizers do to contract prose closely enough
// for budgeting.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// snippetOf shortens chunk text for display, cutting on a word boundary.
func snippetOf(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}

	cut := snippetRunes
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = snippetRunes
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
