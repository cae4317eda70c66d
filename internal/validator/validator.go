// Package validator performs quantitative plausibility checks on a translated
// chapter against its source. The checks are language-independent: length
// ratio, paragraph structure, and numeric token fidelity. They cannot judge
// translation quality, only catch gross truncation, runaway generation, or
// structural collapse.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"novel-translator/internal/config"
	"novel-translator/internal/splitter"
)

// Result is the outcome of validating one translated chapter.
type Result struct {
	Valid    bool     // no critical problems
	Critical bool     // at least one critical problem
	Issues   []string // critical problems
	Warnings []string // suspicious but acceptable
	Stats    Stats
}

// Stats carries the measured quantities for logging and reports.
type Stats struct {
	OriginalChars        int
	TranslatedChars      int
	LengthRatio          float64
	OriginalParagraphs   int
	TranslatedParagraphs int
	ParagraphRatio       float64
	OriginalNumbers      int
	TranslatedNumbers    int
}

// Validator checks translations against configurable thresholds.
type Validator struct {
	thresholds config.ValidationThresholds
}

// New creates a Validator with the given thresholds.
func New(t config.ValidationThresholds) *Validator {
	return &Validator{thresholds: t}
}

var numberPattern = regexp.MustCompile(`\d+`)

// Validate compares translated text against the original and classifies
// every deviation as critical (translation unusable) or warning (worth a
// look). Both inputs empty is critical; empty translation of non-empty
// source is critical.
func (v *Validator) Validate(original, translated string) Result {
	res := Result{Valid: true}

	original = strings.TrimSpace(original)
	translated = strings.TrimSpace(translated)

	if translated == "" {
		res.Valid = false
		res.Critical = true
		res.Issues = append(res.Issues, "translation is empty")
		return res
	}
	if original == "" {
		res.Valid = false
		res.Critical = true
		res.Issues = append(res.Issues, "original text is empty")
		return res
	}

	res.Stats.OriginalChars = len([]rune(original))
	res.Stats.TranslatedChars = len([]rune(translated))
	res.Stats.LengthRatio = float64(res.Stats.TranslatedChars) / float64(res.Stats.OriginalChars)

	v.checkLength(&res)
	v.checkParagraphs(original, translated, &res)
	v.checkNumbers(original, translated, &res)

	res.Valid = !res.Critical
	return res
}

func (v *Validator) checkLength(res *Result) {
	ratio := res.Stats.LengthRatio
	switch {
	case ratio < v.thresholds.MinLengthRatio:
		res.Critical = true
		res.Issues = append(res.Issues,
			fmt.Sprintf("translation too short: length ratio %.2f below %.2f", ratio, v.thresholds.MinLengthRatio))
	case ratio < v.thresholds.WarnLengthRatio:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("translation short: length ratio %.2f", ratio))
	case ratio > v.thresholds.MaxLengthRatio:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("translation long: length ratio %.2f above %.2f", ratio, v.thresholds.MaxLengthRatio))
	}
}

func (v *Validator) checkParagraphs(original, translated string, res *Result) {
	origParas := len(splitter.Paragraphs(original))
	transParas := len(splitter.Paragraphs(translated))

	// Dialogue- or verse-heavy chapters often use single newlines instead of
	// blank lines. When blank-line paragraphs are scarce but short lines are
	// plentiful, recount both sides by line so the ratio compares like with
	// like.
	if origParas < 2 && countLines(original) > 4 {
		origParas = countLines(original)
		transParas = countLines(translated)
	}

	res.Stats.OriginalParagraphs = origParas
	res.Stats.TranslatedParagraphs = transParas
	if origParas == 0 {
		return
	}
	ratio := float64(transParas) / float64(origParas)
	res.Stats.ParagraphRatio = ratio

	diff := origParas - transParas
	if diff < 0 {
		diff = -diff
	}

	switch {
	case ratio < v.thresholds.MinParagraphRatio:
		res.Critical = true
		res.Issues = append(res.Issues,
			fmt.Sprintf("paragraph structure lost: %d paragraphs became %d (ratio %.2f)", origParas, transParas, ratio))
	case diff > v.thresholds.MaxParagraphDiff:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("paragraph count differs significantly: %d vs %d", origParas, transParas))
	case diff > 0:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("paragraph count differs: %d vs %d", origParas, transParas))
	}
}

// checkNumbers compares counts of numeric tokens. Numbers frequently
// survive translation verbatim, so a mismatch suggests dropped or invented
// content, but legitimate rewording (digits spelled out) makes this a soft
// signal only.
func (v *Validator) checkNumbers(original, translated string, res *Result) {
	origNums := numberPattern.FindAllString(original, -1)
	transNums := numberPattern.FindAllString(translated, -1)
	res.Stats.OriginalNumbers = len(origNums)
	res.Stats.TranslatedNumbers = len(transNums)

	if len(origNums) != len(transNums) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("numeric token count differs: %d in original, %d in translation", len(origNums), len(transNums)))
	}
}

func countLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
