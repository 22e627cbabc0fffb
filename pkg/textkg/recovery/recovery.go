// Package recovery extracts a well-formed structured payload from
// noisy, possibly truncated model output.
//
// Recover tries a ladder of strategies in order, first success wins:
//
//  1. Direct parse of the whole input.
//  2. Extraction of markdown code fences whose content looks like an
//     object or array.
//  3. A balanced-delimiter scan producing candidate JSON spans, ranked
//     by length and delimiter count.
//  4. A repair pass: truncation preprocessing followed by a permissive
//     repair-and-parse tolerating common model mistakes.
//
// Recover is total: for any input it returns either a Result or a
// *errors.ParseError carrying a bounded preview of the input.
package recovery

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
)

// Strategy names the recovery strategy that produced a payload.
type Strategy string

// Recovery strategies, in the order they are attempted.
const (
	StrategyDirect   Strategy = "direct"
	StrategyFenced   Strategy = "fenced_block"
	StrategyBalanced Strategy = "balanced_scan"
	StrategyRepair   Strategy = "repair"
)

// Result is a successfully recovered payload.
type Result struct {
	// Data is the decoded JSON value. Usually a map, but list payloads
	// are valid and passed through.
	Data any

	// Raw is the JSON text that parsed, after any extraction or repair.
	Raw []byte

	// Strategy is the ladder rung that succeeded.
	Strategy Strategy
}

// Object returns the payload as a JSON object, or false when the
// top-level value is not an object.
func (r *Result) Object() (map[string]any, bool) {
	m, ok := r.Data.(map[string]any)
	return m, ok
}

// MissingFields returns which of the expected top-level fields are
// absent from the payload. A non-object payload misses all of them.
// Absence is a quality signal for the caller, not a failure.
func (r *Result) MissingFields(expected []string) []string {
	obj, ok := r.Object()
	if !ok {
		return append([]string(nil), expected...)
	}
	var missing []string
	for _, f := range expected {
		if _, present := obj[f]; !present {
			missing = append(missing, f)
		}
	}
	return missing
}

const (
	// previewLimit bounds the input preview carried by a failure.
	previewLimit = 500

	// maxCandidates bounds how many balanced-scan spans are attempted.
	maxCandidates = 10

	// minCandidateLen filters out trivially short spans.
	minCandidateLen = 10
)

var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```"),
}

// Recover extracts a structured payload from raw model output.
func Recover(raw string) (*Result, error) {
	attempts := 0

	// 1. Direct parse.
	attempts++
	if res, ok := tryParse(raw, StrategyDirect); ok {
		return res, nil
	}

	// 2. Fenced code blocks.
	for _, pat := range fencePatterns {
		for _, m := range pat.FindAllStringSubmatch(raw, -1) {
			attempts++
			if res, ok := tryParse(m[1], StrategyFenced); ok {
				return res, nil
			}
		}
	}

	// 3. Balanced-delimiter candidates.
	candidates := findCandidates(raw)
	for _, c := range candidates {
		attempts++
		if res, ok := tryParse(c, StrategyBalanced); ok {
			return res, nil
		}
	}

	// 4. Repair pass over the raw text and every candidate.
	for _, content := range append([]string{raw}, candidates...) {
		if strings.TrimSpace(content) == "" {
			continue
		}
		attempts++
		if res, ok := tryRepair(content); ok {
			return res, nil
		}
	}

	return nil, &tkerrors.ParseError{
		Preview:  clip(raw, previewLimit),
		Attempts: attempts,
		Message:  "no strategy produced a parseable payload",
	}
}

// tryParse attempts a strict JSON parse.
func tryParse(text string, strategy Strategy) (*Result, bool) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, false
	}
	return &Result{Data: data, Raw: []byte(text), Strategy: strategy}, true
}

// tryRepair preprocesses likely truncation and runs a permissive
// repair-and-parse.
func tryRepair(content string) (*Result, bool) {
	processed := preprocess(content)
	if processed == "" {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(processed)
	if err != nil {
		return nil, false
	}
	res, ok := tryParse(repaired, StrategyRepair)
	if !ok {
		return nil, false
	}
	// The repairer will happily quote bare prose into a JSON string;
	// only structured values count as recovered payloads.
	switch res.Data.(type) {
	case map[string]any, []any:
		return res, true
	}
	return nil, false
}

// findCandidates scans for balanced {...} and [...] spans, adds the
// first-to-last spans for both delimiter pairs, and returns the best
// candidates ranked by length and delimiter count.
func findCandidates(text string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(c string) {
		if len(c) > minCandidateLen && !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
	}

	for _, span := range balancedSpans(text, '{', '}') {
		add(span)
	}
	for _, span := range balancedSpans(text, '[', ']') {
		add(span)
	}

	if first, last := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); first != -1 && last > first {
		add(text[first : last+1])
	}
	if first, last := strings.IndexByte(text, '['), strings.LastIndexByte(text, ']'); first != -1 && last > first {
		add(text[first : last+1])
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		ac := strings.Count(a, "{") + strings.Count(a, "}")
		bc := strings.Count(b, "{") + strings.Count(b, "}")
		return ac > bc
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// balancedSpans returns every maximal span where nesting depth of the
// given delimiter pair returns to zero.
func balancedSpans(text string, open, close byte) []string {
	var spans []string
	depth := 0
	start := -1

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// preprocess improves repair odds on truncated output: strips leading
// non-delimiter noise, trims a dangling comma or unterminated string
// marker, and appends the closing delimiters for any still-open scopes.
func preprocess(content string) string {
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
		brace := strings.IndexByte(content, '{')
		bracket := strings.IndexByte(content, '[')
		start := -1
		switch {
		case brace != -1 && bracket != -1:
			start = min(brace, bracket)
		case brace != -1:
			start = brace
		case bracket != -1:
			start = bracket
		}
		if start == -1 {
			return content
		}
		content = content[start:]
	}

	if strings.HasSuffix(content, "}") || strings.HasSuffix(content, "]") {
		return content
	}

	closers, inString := openScopes(content)
	if len(closers) == 0 {
		return content
	}

	trimmed := strings.TrimRight(content, " \t\r\n")
	if inString {
		// An unterminated string: close it before closing scopes.
		trimmed += `"`
	}
	trimmed = strings.TrimSuffix(trimmed, ",")
	return trimmed + string(closers)
}

// openScopes walks the content tracking open delimiters outside string
// literals. Returns the closing delimiters needed, innermost last, and
// whether the content ends inside a string literal.
func openScopes(content string) (closers []byte, inString bool) {
	var stack []byte
	escaped := false

	for i := 0; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
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

	// Closers come off the stack in reverse.
	for i := len(stack) - 1; i >= 0; i-- {
		closers = append(closers, stack[i])
	}
	return closers, inString
}

// clip bounds a string for diagnostics.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
