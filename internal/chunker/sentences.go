package chunker

import (
	"strings"
	"unicode"
)

// sentenceTerminators end a sentence when followed by whitespace.
const sentenceTerminators = ".!?"

// splitSentences splits text into trimmed, non-empty sentences. A sentence
// ends at a terminator followed by whitespace, or at a blank line. The
// terminator stays attached to its sentence. This is a heuristic splitter;
// the chunking contract is on emitted chunks, not on segmentation quality.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, collapseSpace(s))
		}
		b.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)

		if strings.ContainsRune(sentenceTerminators, r) {
			// Consume trailing closers like quotes or parens before the boundary check.
			for i+1 < len(runes) && strings.ContainsRune(`"')]`, runes[i+1]) {
				i++
				b.WriteRune(runes[i])
			}
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
			continue
		}

		// A blank line always ends the sentence, terminator or not.
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush()
		}
	}
	flush()
	return sentences
}

// collapseSpace replaces runs of whitespace with single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// wordCount returns the number of whitespace-separated words in s.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
