// Package ai is the question generation pipeline: content analysis, prompt
// construction, provider dispatch, tolerant response repair, normalization
// and preview.
package ai

import (
	"regexp"
	"strings"
)

// Topic classifies source content for prompt tuning.
type Topic string

const (
	TopicMathematics Topic = "mathematics"
	TopicProgramming Topic = "programming"
	TopicPhysics     Topic = "physics"
	TopicChemistry   Topic = "chemistry"
	TopicBiology     Topic = "biology"
	TopicHistory     Topic = "history"
	TopicEconomics   Topic = "economics"
	TopicGeneral     Topic = "general"
)

// Analysis is the result of classifying source content.
type Analysis struct {
	Topic Topic
	// HasExistingQuestions flags content that already looks like a question
	// list, which switches the prompt into reformat mode.
	HasExistingQuestions bool
	// CodeLanguage is the inferred language for fenced code in output.
	CodeLanguage string
	NeedsMath    bool
	NeedsCode    bool
}

var topicPatterns = []struct {
	topic Topic
	re    *regexp.Regexp
}{
	{TopicMathematics, regexp.MustCompile(`(?i)\b(equation|integral|derivative|theorem|algebra|geometry|matrix|polynomial|calculus|logarithm)\b|\\frac|\\sum|\\int|[∑∫√π≈≠≤≥]`)},
	{TopicProgramming, regexp.MustCompile(`(?i)\b(function|variable|compile|algorithm|array|loop|runtime|syntax|debugging|recursion|pointer|stack trace)\b|\bdef \w+\(|\bfunc \w+\(|=>|::`)},
	{TopicPhysics, regexp.MustCompile(`(?i)\b(velocity|acceleration|momentum|quantum|newton|joule|thermodynamic|electromagneti|kinetic|relativity)\b`)},
	{TopicChemistry, regexp.MustCompile(`(?i)\b(molecule|electron shell|covalent|ionic bond|periodic table|reaction|acid|base|mole|stoichiometr|oxidation)\b|H2O|CO2|NaCl`)},
	{TopicBiology, regexp.MustCompile(`(?i)\b(cell|dna|rna|protein|enzyme|photosynthesis|mitochondri|organism|evolution|chromosome|bacteria)\b`)},
	{TopicHistory, regexp.MustCompile(`(?i)\b(empire|revolution|dynasty|treaty|medieval|century|ancient|world war|civilization|monarchy)\b|\b1[0-9]{3}\s*(AD|BC|CE|BCE)?\b`)},
	{TopicEconomics, regexp.MustCompile(`(?i)\b(inflation|gdp|supply and demand|market|fiscal|monetary|interest rate|recession|tariff|macroeconomic)\b`)},
}

var questionStructureRe = regexp.MustCompile(`(?m)^\s*(\d+[\.\)]|Q\d+[:\.]?|Question\s+\d+)\s+.+\?|^\s*[A-Da-d][\.\)]\s+\S`)

var codeFenceRe = regexp.MustCompile("```([a-zA-Z0-9+#-]*)")

var codeLanguageHints = []struct {
	lang string
	re   *regexp.Regexp
}{
	{"python", regexp.MustCompile(`(?m)\bdef \w+\(|\bimport \w+$|print\(|self\.`)},
	{"go", regexp.MustCompile(`\bfunc \w+\(|\bpackage \w+|:=|\bgoroutine\b`)},
	{"javascript", regexp.MustCompile(`\bconst \w+ =|=>|\bconsole\.log\(|\blet \w+`)},
	{"java", regexp.MustCompile(`\bpublic (static )?(void|class)\b|System\.out\.print`)},
	{"c", regexp.MustCompile(`#include\s*<|\bprintf\(|\bint main\(`)},
	{"sql", regexp.MustCompile(`(?i)\bSELECT\b.+\bFROM\b|\bINSERT INTO\b|\bCREATE TABLE\b`)},
}

var mathMarkupRe = regexp.MustCompile(`\$[^$]+\$|\\\(|\\\[|\\frac|\\sqrt|[∑∫√^]|\b\d+\s*[+\-*/^]\s*\d+\s*=`)

// AnalyzeContent classifies content with regex heuristics. It is a pure
// function; identical content always yields an identical analysis.
func AnalyzeContent(content string) Analysis {
	a := Analysis{Topic: TopicGeneral}

	bestScore := 0
	for _, p := range topicPatterns {
		matches := p.re.FindAllStringIndex(content, -1)
		if len(matches) > bestScore {
			bestScore = len(matches)
			a.Topic = p.topic
		}
	}

	a.HasExistingQuestions = len(questionStructureRe.FindAllString(content, 3)) >= 2

	if fence := codeFenceRe.FindStringSubmatch(content); fence != nil {
		a.NeedsCode = true
		a.CodeLanguage = strings.ToLower(fence[1])
	}
	if a.Topic == TopicProgramming {
		a.NeedsCode = true
	}
	if a.NeedsCode && a.CodeLanguage == "" {
		for _, hint := range codeLanguageHints {
			if hint.re.MatchString(content) {
				a.CodeLanguage = hint.lang
				break
			}
		}
	}

	if a.Topic == TopicMathematics || mathMarkupRe.MatchString(content) {
		a.NeedsMath = true
	}

	return a
}
