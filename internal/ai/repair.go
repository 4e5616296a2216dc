package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnrepairable means no question data could be recovered from a response.
var ErrUnrepairable = errors.New("response could not be repaired into JSON")

// preambleRes is the fixed set of natural-language lead-ins models prepend
// despite being told not to. Applied to the text before the first bracket.
var preambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)^\s*(sure|certainly|of course|here)\b[^\[{]*`),
	regexp.MustCompile(`(?is)^\s*(i('ve| have)?|below|the following)\b[^\[{]*`),
	regexp.MustCompile(`(?is)^\s*(these|this) (are|is)\b[^\[{]*`),
	regexp.MustCompile(`(?is)^\s*based on[^\[{]*`),
	regexp.MustCompile(`(?is)^\s*\**(json|output|questions?)\**\s*:?\s*`),
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")

// RepairJSON turns a model response into a slice of question objects. The
// rules run in a fixed order and the whole function is deterministic:
// repairing already-valid JSON is a no-op on the parse result.
func RepairJSON(raw string) ([]json.RawMessage, error) {
	text := raw

	// 1. prefer the content of a fenced block when present
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.ReplaceAll(text, "```", "")

	// 2. drop natural-language preambles before the payload
	for _, re := range preambleRes {
		text = re.ReplaceAllString(text, "")
	}

	// 3. strip comments (quote-aware)
	text = stripComments(text)

	// 4. isolate the first top-level array
	if arr := extractTopLevelArray(text); arr != "" {
		text = arr
	}

	// 5..7. delimiter and key normalization, trailing commas
	text = normalizeQuotes(text)
	text = quoteBareKeys(text)
	text = stripTrailingCommas(text)

	if items, err := parseArray(text); err == nil {
		return items, nil
	}

	// 8. truncation salvage: keep the complete objects, or close brackets
	if items := salvageObjects(text); len(items) > 0 {
		return items, nil
	}
	if closed := closeUnbalanced(text); closed != text {
		if items, err := parseArray(closed); err == nil {
			return items, nil
		}
	}

	// 9. pull out object-shaped substrings carrying question/type keys
	if items := extractQuestionObjects(text); len(items) > 0 {
		return items, nil
	}

	// 10. last resort: numbered-list plain text
	if items := extractFromPlainText(raw); len(items) > 0 {
		return items, nil
	}

	return nil, ErrUnrepairable
}

func parseArray(text string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// stripComments removes //, #, /* */ and <!-- --> comments outside strings.
func stripComments(s string) string {
	var out strings.Builder
	inString := false
	escaped := false
	i := 0
	for i < len(s) {
		c := s[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			i++
			continue
		}
		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
			i++
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '#':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 2
			}
		case strings.HasPrefix(s[i:], "<!--"):
			end := strings.Index(s[i+4:], "-->")
			if end < 0 {
				i = len(s)
			} else {
				i += 4 + end + 3
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// extractTopLevelArray returns the first balanced [...] region, or "".
func extractTopLevelArray(s string) string {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return ""
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			// only the quote that opened the string closes it; an
			// apostrophe inside a double-quoted value is plain text
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// unbalanced: return from the bracket to the end so salvage can work
	return s[start:]
}

// normalizeQuotes converts single-quoted string delimiters to double quotes,
// escaping any inner double quotes.
func normalizeQuotes(s string) string {
	var out strings.Builder
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			out.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			out.WriteByte(c)
		case inDouble:
			out.WriteByte(c)
			if c == '"' {
				inDouble = false
			}
		case inSingle:
			switch c {
			case '\'':
				out.WriteByte('"')
				inSingle = false
			case '"':
				out.WriteString(`\"`)
			default:
				out.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			out.WriteByte(c)
		case c == '\'':
			inSingle = true
			out.WriteByte('"')
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// quoteBareKeys wraps unquoted property names in double quotes. Skips string
// interiors by walking the text and only rewriting outside them.
func quoteBareKeys(s string) string {
	var out strings.Builder
	last := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			// rewrite the non-string run we just passed
			out.WriteString(bareKeyRe.ReplaceAllString(s[last:i], `$1"$2":`))
			// find the string end
			j := i + 1
			esc := false
			for j < len(s) {
				if esc {
					esc = false
				} else if s[j] == '\\' {
					esc = true
				} else if s[j] == '"' {
					break
				}
				j++
			}
			if j >= len(s) {
				out.WriteString(s[i:])
				return out.String()
			}
			out.WriteString(s[i : j+1])
			i = j
			last = j + 1
		}
	}
	out.WriteString(bareKeyRe.ReplaceAllString(s[last:], `$1"$2":`))
	return out.String()
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// salvageObjects scans a (possibly truncated) array body and returns every
// complete top-level object that parses on its own.
func salvageObjects(s string) []json.RawMessage {
	var items []json.RawMessage
	for _, candidate := range balancedObjects(s) {
		fixed := stripTrailingCommas(candidate)
		if json.Valid([]byte(fixed)) {
			items = append(items, json.RawMessage(fixed))
		}
	}
	return items
}

// balancedObjects returns every balanced top-level {...} region in s.
func balancedObjects(s string) []string {
	var regions []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					regions = append(regions, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return regions
}

// closeUnbalanced conservatively appends the closers a truncated payload is
// missing: an unterminated string gets a quote, then open braces/brackets are
// closed inside-out.
func closeUnbalanced(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !inString && len(stack) == 0 {
		return s
	}
	out := strings.TrimRight(s, " \t\n,")
	if inString {
		out += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// extractQuestionObjects pulls object substrings that carry both a question
// and a type key, parsing each independently so one bad object cannot sink
// the rest.
func extractQuestionObjects(s string) []json.RawMessage {
	var items []json.RawMessage
	for _, candidate := range balancedObjects(s) {
		if !strings.Contains(candidate, `"question"`) || !strings.Contains(candidate, `"type"`) {
			continue
		}
		fixed := stripTrailingCommas(candidate)
		if json.Valid([]byte(fixed)) {
			items = append(items, json.RawMessage(fixed))
		}
	}
	return items
}

var (
	numberedQuestionRe = regexp.MustCompile(`(?m)^\s*\d+[\.\)]\s*(.+\?)\s*$`)
	letteredOptionRe   = regexp.MustCompile(`(?m)^\s*([A-Da-d])[\.\)]\s*(.+?)\s*$`)
	answerLineRe       = regexp.MustCompile(`(?im)^\s*(?:correct\s+)?answer\s*[:\-]?\s*([A-Da-d])\b`)
)

// extractFromPlainText handles numbered-list output with lettered options and
// an "Answer: X" line per block. Only unambiguous blocks are kept.
func extractFromPlainText(s string) []json.RawMessage {
	blocks := numberedQuestionRe.Split(s, -1)
	prompts := numberedQuestionRe.FindAllStringSubmatch(s, -1)
	if len(prompts) == 0 {
		return nil
	}

	var items []json.RawMessage
	for i, m := range prompts {
		// the block following prompt i holds its options and answer
		if i+1 >= len(blocks) {
			break
		}
		block := blocks[i+1]
		optMatches := letteredOptionRe.FindAllStringSubmatch(block, -1)
		ansMatch := answerLineRe.FindStringSubmatch(block)
		if len(optMatches) < 2 || ansMatch == nil {
			continue
		}
		options := make([]string, 0, len(optMatches))
		for _, om := range optMatches {
			options = append(options, om[2])
		}
		correct := int(strings.ToUpper(ansMatch[1])[0] - 'A')
		if correct < 0 || correct >= len(options) {
			continue
		}
		obj, err := json.Marshal(map[string]any{
			"question":      m[1],
			"type":          "multiple-choice",
			"options":       options,
			"correctAnswer": correct,
		})
		if err != nil {
			continue
		}
		items = append(items, obj)
	}
	return items
}

// RepairError wraps a repair failure with a sample of the offending text for
// logging.
type RepairError struct {
	Sample string
	Err    error
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("repair failed: %v (sample: %.80s)", e.Err, e.Sample)
}

func (e *RepairError) Unwrap() error { return e.Err }
