package ai

import (
	"fmt"
	"strings"

	"quizhub/internal/domain"
)

// BloomLevel is the requested cognitive level for generated questions.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
	BloomMixed      BloomLevel = "mixed"
)

var bloomGuidance = map[BloomLevel]string{
	BloomRemember:   "Target recall: definitions, facts, and terminology straight from the content.",
	BloomUnderstand: "Target comprehension: paraphrasing, classification, and explaining ideas in new words.",
	BloomApply:      "Target application: using the material to solve new, concrete problems.",
	BloomAnalyze:    "Target analysis: comparing, contrasting, and breaking concepts into parts.",
	BloomEvaluate:   "Target evaluation: judging approaches, spotting flaws, and justifying choices.",
	BloomCreate:     "Target synthesis: combining ideas to form predictions or new constructions.",
	BloomMixed:      "Mix cognitive levels: some recall, some application, some analysis.",
}

// languageNames maps display-language ISO codes to names used in prompts.
var languageNames = map[string]string{
	"en": "English", "de": "German", "fr": "French", "es": "Spanish",
	"it": "Italian", "pt": "Portuguese", "nl": "Dutch", "pl": "Polish",
	"tr": "Turkish", "ru": "Russian", "uk": "Ukrainian", "ar": "Arabic",
	"ja": "Japanese", "ko": "Korean", "zh": "Chinese", "vi": "Vietnamese",
	"id": "Indonesian", "sv": "Swedish", "da": "Danish", "no": "Norwegian",
}

// kindExamples holds one canonical JSON example per requested kind, shown to
// the model in the structured-output section.
var kindExamples = map[domain.QuestionKind]string{
	domain.KindMultipleChoice:  `{"question": "What is the capital of France?", "type": "multiple-choice", "options": ["Berlin", "Paris", "Madrid", "Rome"], "correctAnswer": 1, "difficulty": "easy", "explanation": "Paris has been the French capital since 987."}`,
	domain.KindMultipleCorrect: `{"question": "Which of these are prime numbers?", "type": "multiple-correct", "options": ["2", "4", "5", "9"], "correctAnswers": [0, 2], "difficulty": "medium", "explanation": "2 and 5 have no divisors besides 1 and themselves."}`,
	domain.KindTrueFalse:       `{"question": "Water boils at 100 degrees Celsius at sea level.", "type": "true-false", "correctAnswer": "true", "difficulty": "easy", "explanation": "At standard atmospheric pressure the boiling point is 100 C."}`,
	domain.KindNumeric:         `{"question": "How many bits are in a byte?", "type": "numeric", "correctAnswer": 8, "tolerance": 0, "difficulty": "easy", "explanation": "A byte is 8 bits by definition."}`,
	domain.KindOrdering:        `{"question": "Order these events chronologically.", "type": "ordering", "options": ["Moon landing", "Printing press", "Internet", "Wheel"], "correctOrder": [3, 1, 0, 2], "difficulty": "medium", "explanation": "Wheel, printing press, moon landing, internet."}`,
}

// Request bundles everything prompt construction needs.
type Request struct {
	Content     string
	Count       int
	Kinds       []domain.QuestionKind
	LanguageISO string
	Bloom       BloomLevel
	Analysis    Analysis
}

// PromptBuilder assembles provider-agnostic prompts.
type PromptBuilder struct {
	// MaxContentChars bounds how much source content goes into a prompt.
	MaxContentChars int
	// RetryContentChars is the reduced window used after parser failures.
	RetryContentChars int
}

// NewPromptBuilder returns a builder with production limits.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{MaxContentChars: 12000, RetryContentChars: 4000}
}

// Primary builds the main generation prompt.
func (b *PromptBuilder) Primary(req Request) string {
	var sb strings.Builder

	if req.Analysis.HasExistingQuestions {
		sb.WriteString("The content below already contains quiz questions. Reformat them into the JSON structure described later, preserving their meaning. Do not invent unrelated questions.\n\n")
	} else {
		fmt.Fprintf(&sb, "Create exactly %d quiz questions from the content below. Every question must be answerable from the content alone.\n\n", req.Count)
	}

	fmt.Fprintf(&sb, "Write all question text, options, and explanations in %s.\n", languageName(req.LanguageISO))

	if guidance, ok := bloomGuidance[req.Bloom]; ok {
		sb.WriteString(guidance)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	b.writeStructuredOutput(&sb, req.Kinds)
	b.writeFormattingRules(&sb, req.Analysis)

	sb.WriteString("\nCONTENT:\n")
	sb.WriteString(truncate(req.Content, b.MaxContentChars))

	sb.WriteString("\n\nRespond with the JSON array only. No introduction, no markdown, no commentary before or after the array.")
	return sb.String()
}

// Retry builds the reduced prompt used after a parse failure: shorter content
// window, fewer questions on later attempts, minimal examples.
func (b *PromptBuilder) Retry(req Request, attempt int) string {
	count := req.Count - attempt
	if count < 1 {
		count = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %d quiz questions in %s from this content. ", count, languageName(req.LanguageISO))
	sb.WriteString("Output a raw JSON array of question objects and nothing else.\n\nExample element:\n")
	kind := domain.KindMultipleChoice
	if len(req.Kinds) > 0 {
		kind = req.Kinds[0]
	}
	sb.WriteString(kindExamples[kind])
	sb.WriteString("\n\nCONTENT:\n")
	sb.WriteString(truncate(req.Content, b.RetryContentChars))
	sb.WriteString("\n\nJSON array only.")
	return sb.String()
}

// SingleQuestion builds the per-question regeneration prompt for one kind.
func (b *PromptBuilder) SingleQuestion(req Request, kind domain.QuestionKind, avoid []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create exactly one %s quiz question in %s from the content below.\n", kind, languageName(req.LanguageISO))

	if len(avoid) > 0 {
		sb.WriteString("Do not repeat any of these existing questions:\n")
		for _, q := range avoid {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}

	sb.WriteString("\nThe question object must follow this structure:\n")
	sb.WriteString(kindExamples[kind])
	b.writeFormattingRules(&sb, req.Analysis)

	sb.WriteString("\nCONTENT:\n")
	sb.WriteString(truncate(req.Content, b.RetryContentChars))
	sb.WriteString("\n\nRespond with a JSON array containing exactly one question object, nothing else.")
	return sb.String()
}

// ExcelImport builds the spreadsheet-import prompt. Rows arrive pre-labeled
// with their correct-answer index; the model must keep all text verbatim.
func (b *PromptBuilder) ExcelImport(rows string, languageISO string) string {
	var sb strings.Builder
	sb.WriteString("Convert the spreadsheet rows below into quiz question JSON objects.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Preserve every question and option text VERBATIM. Do not rephrase, translate, or correct anything.\n")
	sb.WriteString("- Each row is labeled with its correct answer index; use exactly that index as correctAnswer.\n")
	sb.WriteString("- Use type \"multiple-choice\" unless a row clearly marks several correct answers.\n")
	fmt.Fprintf(&sb, "- Keep the original language of the rows (display language is %s).\n", languageName(languageISO))
	sb.WriteString("\nExample output element:\n")
	sb.WriteString(kindExamples[domain.KindMultipleChoice])
	sb.WriteString("\n\nROWS:\n")
	sb.WriteString(rows)
	sb.WriteString("\n\nRespond with the JSON array only.")
	return sb.String()
}

func (b *PromptBuilder) writeStructuredOutput(sb *strings.Builder, kinds []domain.QuestionKind) {
	if len(kinds) == 0 {
		kinds = []domain.QuestionKind{domain.KindMultipleChoice}
	}
	sb.WriteString("Produce a JSON array of question objects. Use only these question types, with these exact structures:\n\n")
	for _, kind := range kinds {
		if example, ok := kindExamples[kind]; ok {
			fmt.Fprintf(sb, "%s:\n%s\n\n", kind, example)
		}
	}
}

func (b *PromptBuilder) writeFormattingRules(sb *strings.Builder, a Analysis) {
	sb.WriteString("Formatting rules:\n")
	if a.NeedsMath {
		sb.WriteString("- Write mathematical expressions with $...$ for inline math and $$...$$ for display math.\n")
	}
	if a.NeedsCode {
		lang := a.CodeLanguage
		if lang == "" {
			lang = "text"
		}
		fmt.Fprintf(sb, "- Put code snippets in fenced code blocks tagged ```%s.\n", lang)
	}
	sb.WriteString("- difficulty is one of \"easy\", \"medium\", \"hard\".\n")
	sb.WriteString("- correctAnswer for multiple-choice is the 0-based option index, not a letter.\n")
}

func languageName(iso string) string {
	if name, ok := languageNames[strings.ToLower(iso)]; ok {
		return name
	}
	return "English"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
