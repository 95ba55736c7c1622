package quarantine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	doneToken      = "DONE"
	questionPrefix = "QUESTION:"
	optionsPrefix  = "OPTIONS:"

	truncationMarker = "\n[truncated]"
)

// mainTurn is one parsed reply from the main model: either done, or a
// question with its numbered options.
type mainTurn struct {
	done     bool
	question string
	options  []string
}

func (t *mainTurn) maxIndex() int {
	return len(t.options) - 1
}

var optionIndexPattern = regexp.MustCompile(`(?:^|\s)(\d+):\s*`)

// parseMainReply accepts either the DONE token or a QUESTION/OPTIONS block.
// Anything else is a protocol violation.
func parseMainReply(reply string) (*mainTurn, error) {
	trimmed := strings.TrimSpace(reply)
	if strings.EqualFold(strings.TrimRight(trimmed, "."), doneToken) {
		return &mainTurn{done: true}, nil
	}

	qIdx := strings.Index(trimmed, questionPrefix)
	oIdx := strings.Index(trimmed, optionsPrefix)
	if qIdx < 0 || oIdx < 0 || oIdx < qIdx {
		return nil, errors.New("reply is neither DONE nor a QUESTION/OPTIONS block")
	}

	question := strings.TrimSpace(trimmed[qIdx+len(questionPrefix) : oIdx])
	if question == "" {
		return nil, errors.New("question text is empty")
	}

	options, err := parseOptions(trimmed[oIdx+len(optionsPrefix):])
	if err != nil {
		return nil, err
	}
	return &mainTurn{question: question, options: options}, nil
}

// parseOptions extracts "N: text" entries. Indices must count up from zero
// and at least two options are required so the last can stand for
// "other/none".
func parseOptions(s string) ([]string, error) {
	matches := optionIndexPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) < 2 {
		return nil, errors.New("options block needs at least two numbered options")
	}

	options := make([]string, 0, len(matches))
	for i, m := range matches {
		idx, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil || idx != i {
			return nil, fmt.Errorf("option indices must count up from 0, got %q", s[m[2]:m[3]])
		}
		end := len(s)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		text := strings.TrimSpace(s[m[1]:end])
		if text == "" {
			return nil, fmt.Errorf("option %d has no text", idx)
		}
		options = append(options, text)
	}
	return options, nil
}

// parseAnswer accepts exactly one integer in [0, maxIndex].
func parseAnswer(reply string, maxIndex int) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, fmt.Errorf("answer must be a single integer, got %q", strings.TrimSpace(reply))
	}
	if idx < 0 || idx > maxIndex {
		return 0, fmt.Errorf("answer %d is outside [0, %d]", idx, maxIndex)
	}
	return idx, nil
}

// renderTemplate substitutes {{name}} tokens. Unknown tokens are left in
// place.
func renderTemplate(tmpl string, vars map[string]string) string {
	oldnew := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		oldnew = append(oldnew, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(oldnew...).Replace(tmpl)
}

// truncateBytes caps s at max bytes, cutting on a rune boundary and marking
// the cut.
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

func formatOptionsLine(options []string) string {
	var b strings.Builder
	for i, opt := range options {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d: %s", i, opt)
	}
	return b.String()
}

func formatOptionsBlock(options []string) string {
	lines := make([]string, len(options))
	for i, opt := range options {
		lines[i] = fmt.Sprintf("%d: %s", i, opt)
	}
	return strings.Join(lines, "\n")
}

// exchange is one completed question/answer round.
type exchange struct {
	question string
	options  []string
	answer   int
}

// qaText renders the transcript the way the summary prompt and the main
// model's follow-up prompts consume it. Every string here was authored by
// the main model; the raw tool data never appears.
func qaText(transcript []exchange) string {
	var b strings.Builder
	for i, qa := range transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s %s\n%s %s\nANSWER: %d: %s",
			questionPrefix, qa.question,
			optionsPrefix, formatOptionsLine(qa.options),
			qa.answer, qa.options[qa.answer])
	}
	return b.String()
}
