package policy

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// Subject is the merged view a condition evaluates against: the call's
// arguments or its result body, plus the trust context attributes.
type Subject struct {
	fields map[string]any
	tc     TrustContext
}

// ArgsSubject builds a subject from decoded call arguments.
func ArgsSubject(args map[string]any, tc TrustContext) Subject {
	return Subject{fields: args, tc: tc}
}

// ResultSubject builds a subject from a raw tool result. A JSON object body
// is addressable by field path; anything else is exposed under "text".
func ResultSubject(raw string, tc TrustContext) Subject {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return Subject{fields: m, tc: tc}
		}
	}
	return Subject{fields: map[string]any{"text": raw}, tc: tc}
}

// Matcher evaluates conditions against subjects. Parsed paths and compiled
// regexes are cached across evaluations.
type Matcher struct {
	paths   sync.Map // raw path -> *parsedPath
	regexps sync.Map // pattern -> *regexp.Regexp, or parse failure marker
}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// Matches reports whether a single condition holds for the subject.
// A key that resolves to nothing matches only under a negated operator.
func (m *Matcher) Matches(cond Condition, sub Subject) bool {
	if rest, ok := strings.CutPrefix(cond.Key, contextKeyPrefix); ok {
		val, present := sub.tc.Attrs[rest]
		if !present {
			return cond.Operator.negated()
		}
		return m.test(cond, val)
	}

	p := m.path(cond.Key)
	if p == nil {
		return false
	}
	vals := p.resolve(sub.fields)
	matched := false
	for _, v := range vals {
		s, ok := stringifyValue(v)
		if !ok {
			continue
		}
		matched = true
		if m.test(cond, s) {
			return true
		}
	}
	if !matched {
		return cond.Operator.negated()
	}
	return false
}

// MatchesAll reports whether every condition holds. An empty slice matches
// unconditionally.
func (m *Matcher) MatchesAll(conds []Condition, sub Subject) bool {
	for _, c := range conds {
		if !m.Matches(c, sub) {
			return false
		}
	}
	return true
}

func (m *Matcher) test(cond Condition, got string) bool {
	switch cond.Operator {
	case OpEqual:
		return got == cond.Value
	case OpNotEqual:
		return got != cond.Value
	case OpContains:
		return strings.Contains(got, cond.Value)
	case OpNotContains:
		return !strings.Contains(got, cond.Value)
	case OpStartsWith:
		return strings.HasPrefix(got, cond.Value)
	case OpEndsWith:
		return strings.HasSuffix(got, cond.Value)
	case OpRegex:
		re := m.regex(cond.Value)
		if re == nil {
			return false
		}
		return re.MatchString(got)
	}
	return false
}

func (m *Matcher) path(raw string) *parsedPath {
	if cached, ok := m.paths.Load(raw); ok {
		p, _ := cached.(*parsedPath)
		return p
	}
	p, err := parsePath(raw)
	if err != nil {
		// Bad keys are rejected at policy validation; a row that slipped
		// through never matches.
		m.paths.Store(raw, (*parsedPath)(nil))
		return nil
	}
	m.paths.Store(raw, p)
	return p
}

func (m *Matcher) regex(pattern string) *regexp.Regexp {
	if cached, ok := m.regexps.Load(pattern); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		m.regexps.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	m.regexps.Store(pattern, re)
	return re
}
