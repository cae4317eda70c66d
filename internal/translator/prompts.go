package translator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"novel-translator/internal/config"
	"novel-translator/internal/types"
)

// Prompt builders. The system prompt carries the stable instructions; the
// per-call user prompt carries the accumulated context and the chapter text.

func translationSystemPrompt(lang string) string {
	return fmt.Sprintf(`You are a professional literary translator of serialized web novels into %s.

Rules:
- Translate the full text, preserving every paragraph break exactly.
- Keep established names and terms from the glossary verbatim.
- Preserve all numbers as digits.
- The first line of your output must be the translated chapter title if the input begins with one; otherwise start directly with the body.
- Output only the translation, no commentary.`, lang)
}

func buildTranslationPrompt(tc *types.TranslationContext, chunk string) string {
	var sb strings.Builder

	if tc != nil && tc.Glossary != nil && tc.Glossary.Size() > 0 {
		sb.WriteString("ESTABLISHED GLOSSARY (use these translations verbatim):\n")
		writeGlossarySection(&sb, "Characters", tc.Glossary.Characters)
		writeGlossarySection(&sb, "Locations", tc.Glossary.Locations)
		writeGlossarySection(&sb, "Terms", tc.Glossary.Terms)
		writeGlossarySection(&sb, "Techniques", tc.Glossary.Techniques)
		writeGlossarySection(&sb, "Artifacts", tc.Glossary.Artifacts)
		sb.WriteString("\n")
	}

	if tc != nil && len(tc.PreviousSummaries) > 0 {
		sb.WriteString("PREVIOUS CHAPTERS:\n")
		// Summaries arrive newest first; present them in reading order.
		for i := len(tc.PreviousSummaries) - 1; i >= 0; i-- {
			s := tc.PreviousSummaries[i]
			fmt.Fprintf(&sb, "Chapter %d: %s\n", s.Chapter, s.Summary)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("TEXT TO TRANSLATE:\n\n")
	sb.WriteString(chunk)
	return sb.String()
}

func writeGlossarySection(sb *strings.Builder, label string, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(sb, "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s = %s\n", k, entries[k])
	}
}

func summaryPrompt(lang, text string) string {
	return fmt.Sprintf(`Summarize the following chapter in %s, in no more than 150 words. Cover the key events, characters involved, and any new names or items introduced. Output only the summary.

%s`, lang, text)
}

func termExtractionPrompt(original, translated string) string {
	return fmt.Sprintf(`Compare the original chapter and its translation below. List recurring proper nouns and setting-specific terms with the translation used, grouped under these exact headings: CHARACTERS, LOCATIONS, TERMS, TECHNIQUES, ARTIFACTS. Use one line per entry in the form:
- original = translation
Skip common words. Output nothing but the headed lists.

ORIGINAL:
%s

TRANSLATION:
%s`, original, translated)
}

// parseTermSections parses the headed "- source = target" lists the term
// extraction prompt asks for. Unparseable lines are skipped.
func parseTermSections(output string, chapter int) []types.GlossaryItem {
	headings := map[string]types.TermCategory{
		"CHARACTERS": types.CategoryCharacter,
		"LOCATIONS":  types.CategoryLocation,
		"TERMS":      types.CategoryTerm,
		"TECHNIQUES": types.CategoryTechnique,
		"ARTIFACTS":  types.CategoryArtifact,
	}

	var items []types.GlossaryItem
	category := types.CategoryTerm

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		heading := strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(line, ":"), "："))
		if cat, ok := headings[heading]; ok {
			category = cat
			continue
		}

		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			continue
		}
		entry := strings.TrimSpace(strings.TrimLeft(line, "-* "))
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		src := strings.TrimSpace(parts[0])
		dst := strings.TrimSpace(parts[1])
		if src == "" || dst == "" {
			continue
		}
		items = append(items, types.GlossaryItem{
			SourceTerm:   src,
			TargetTerm:   dst,
			Category:     category,
			FirstChapter: chapter,
			Active:       true,
		})
	}
	return items
}

// extractTitle decides whether the first line of model output is a chapter
// title. The heuristic: short enough, carries a chapter keyword or digits,
// and does not end in sentence punctuation. When ambiguous the whole output
// is treated as body; a misclassified title is recoverable by hand, a
// swallowed first paragraph is not.
func extractTitle(output string, h config.TitleHeuristics) (title, body string) {
	output = strings.TrimSpace(output)
	first, rest, found := strings.Cut(output, "\n")
	if !found {
		return "", output
	}
	first = strings.TrimSpace(first)

	if first == "" || len([]rune(first)) > h.MaxLength {
		return "", output
	}
	if r := lastRune(first); r == '.' || r == '!' || r == '?' || r == '…' || r == '。' {
		return "", output
	}

	lower := strings.ToLower(first)
	matched := false
	for _, kw := range h.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = true
			break
		}
	}
	if !matched {
		for _, r := range first {
			if unicode.IsDigit(r) {
				matched = true
				break
			}
		}
	}
	if !matched {
		return "", output
	}
	return first, strings.TrimSpace(rest)
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
