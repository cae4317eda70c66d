// Package splitter partitions oversized chapter text into bounded chunks for
// translation. Splitting is deterministic and degrades gracefully: paragraph
// boundaries first, then sentence boundaries inside an oversized paragraph,
// then fixed word windows inside an oversized sentence.
package splitter

import (
	"strings"
	"unicode"
)

// sentence terminators: Latin plus CJK full-width punctuation.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '…': true,
}

// Split partitions text into chunks of at most maxWords words each.
// Concatenating the chunks (joined with blank lines, whitespace normalized)
// reproduces the input's word sequence with nothing dropped or duplicated.
//
// Empty input returns nil; input at or under the limit returns one chunk.
func Split(text string, maxWords int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxWords <= 0 || WordCount(text) <= maxWords {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			currentWords = 0
		}
	}

	for _, para := range Paragraphs(text) {
		paraWords := WordCount(para)

		if paraWords > maxWords {
			// An oversized paragraph gets its own sentence-level split;
			// whatever was packed so far is emitted first to keep order.
			flush()
			chunks = append(chunks, splitParagraph(para, maxWords)...)
			continue
		}

		if currentWords+paraWords > maxWords && len(current) > 0 {
			flush()
		}
		current = append(current, para)
		currentWords += paraWords
	}
	flush()

	return chunks
}

// splitParagraph greedily packs sentences, falling back to fixed word
// windows for a sentence that alone exceeds the limit.
func splitParagraph(para string, maxWords int) []string {
	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentWords = 0
		}
	}

	for _, sent := range Sentences(para) {
		sentWords := WordCount(sent)

		if sentWords > maxWords {
			flush()
			chunks = append(chunks, splitByWords(sent, maxWords)...)
			continue
		}

		if currentWords+sentWords > maxWords && len(current) > 0 {
			flush()
		}
		current = append(current, sent)
		currentWords += sentWords
	}
	flush()

	return chunks
}

// splitByWords is the last resort: fixed-size word windows.
func splitByWords(text string, maxWords int) []string {
	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// Paragraphs splits text on blank lines, dropping empty entries.
func Paragraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// Sentences splits a paragraph at sentence-final punctuation, recognizing
// both Latin terminators and CJK full-width forms. The terminator stays
// attached to its sentence.
func Sentences(text string) []string {
	var sentences []string
	var sb strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		sb.WriteRune(r)
		if !sentenceEnders[r] {
			continue
		}
		// Runs of terminators ("?!", "……") stay together.
		if i+1 < len(runes) && sentenceEnders[runes[i+1]] {
			continue
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			sentences = append(sentences, s)
		}
		sb.Reset()
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// WordCount counts whitespace-delimited words, with runs of CJK characters
// counted one word per rune since CJK text does not use spaces.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			count++
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
