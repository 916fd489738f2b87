// Package chunker splits document text into overlapping, sentence-aligned passages.
package chunker

import (
	"errors"
	"strings"
)

// ErrInvalidParams is returned for non-positive sizes or overlap >= max words.
var ErrInvalidParams = errors.New("chunker: max_words and overlap_words must be positive with overlap_words < max_words")

// Chunker splits text into sentence-aligned chunks with word-count budgets.
type Chunker struct {
	maxWords     int
	overlapWords int
}

// New creates a chunker. maxWords and overlapWords are word budgets;
// overlapWords must be smaller than maxWords.
func New(maxWords, overlapWords int) (*Chunker, error) {
	if maxWords <= 0 || overlapWords <= 0 || overlapWords >= maxWords {
		return nil, ErrInvalidParams
	}
	return &Chunker{maxWords: maxWords, overlapWords: overlapWords}, nil
}

// Split segments text into chunks. Whole sentences are accumulated greedily
// while the cumulative word count stays within the max budget; when a sentence
// would overflow, the current chunk is emitted and the next chunk is seeded
// with a trailing suffix of its sentences whose word count fits the overlap
// budget. A single sentence longer than the max budget is emitted as its own
// oversized chunk rather than split mid-sentence. Empty input yields no chunks.
func (c *Chunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur []string
	curWords := 0
	fresh := 0 // sentences in cur that are not carried-over overlap

	emit := func() {
		chunks = append(chunks, strings.Join(cur, " "))
	}

	for i := 0; i < len(sentences); {
		s := sentences[i]
		w := wordCount(s)

		// A sentence that alone exceeds the budget becomes its own chunk.
		if w > c.maxWords {
			if fresh > 0 {
				emit()
			}
			cur = []string{s}
			curWords = w
			fresh = 1
			emit()
			cur, curWords = overlapSuffix(cur, c.overlapWords)
			fresh = 0
			i++
			continue
		}

		if curWords+w <= c.maxWords {
			cur = append(cur, s)
			curWords += w
			fresh++
			i++
			continue
		}

		if fresh == 0 {
			// Only overlap so far; shed leading overlap sentences until the
			// sentence fits, so every chunk gains new content and the loop
			// always advances.
			for len(cur) > 0 && curWords+w > c.maxWords {
				curWords -= wordCount(cur[0])
				cur = cur[1:]
			}
			cur = append(cur, s)
			curWords += w
			fresh++
			i++
			continue
		}

		emit()
		cur, curWords = overlapSuffix(cur, c.overlapWords)
		fresh = 0
	}

	if fresh > 0 {
		emit()
	}
	return chunks
}

// overlapSuffix returns the longest trailing run of sentences whose cumulative
// word count fits the overlap budget, chosen greedily from the end backward.
func overlapSuffix(sentences []string, budget int) ([]string, int) {
	var suffix []string
	words := 0
	for j := len(sentences) - 1; j >= 0; j-- {
		w := wordCount(sentences[j])
		if words+w > budget {
			break
		}
		suffix = append([]string{sentences[j]}, suffix...)
		words += w
	}
	return suffix, words
}
