package editor

import "fmt"

func analysisPrompt(lang, text string) string {
	return fmt.Sprintf(`You are a literary editor reviewing a %s translation of a web-novel chapter. Rate its quality and choose which editing passes it needs. Respond with JSON only, exactly this shape:
{"quality_score": <1-10>, "run_style": <bool>, "run_dialogue": <bool>, "run_polish": <bool>}

TEXT:
%s`, lang, text)
}

func stylePrompt(lang, text string) string {
	return fmt.Sprintf(`Improve the literary style of this %s text: fix awkward calques, repetitive wording, and unnatural phrasing. Keep the meaning, paragraph breaks, names, and all numbers exactly as they are. Output only the edited text.

%s`, lang, text)
}

func dialoguePrompt(lang, text string) string {
	return fmt.Sprintf(`Edit only the dialogue in this %s text: make speech sound natural and correctly punctuated for %s prose. Leave narration untouched. Keep paragraph breaks, names, and numbers exactly as they are. Output only the edited text.

%s`, lang, lang, text)
}

func polishPrompt(lang, text string) string {
	return fmt.Sprintf(`Do a final proofreading pass on this %s text: typos, punctuation, agreement errors. Change nothing else. Output only the corrected text.

%s`, lang, text)
}
