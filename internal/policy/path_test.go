package policy

import (
	"encoding/json"
	"testing"
)

func TestParsePath_Valid(t *testing.T) {
	cases := []struct {
		raw      string
		segments int
	}{
		{"url", 1},
		{"a.b.c", 3},
		{"emails[*].from", 2},
		{"items[*]", 1},
		{"a[*].b[*].c", 3},
	}
	for _, tc := range cases {
		p, err := parsePath(tc.raw)
		if err != nil {
			t.Fatalf("parsePath(%q): unexpected error: %v", tc.raw, err)
		}
		if len(p.segs) != tc.segments {
			t.Fatalf("parsePath(%q): expected %d segments, got %d", tc.raw, tc.segments, len(p.segs))
		}
	}
}

func TestParsePath_Invalid(t *testing.T) {
	cases := []string{"", "  ", ".", "a..b", "[*]", "a.[*]", "a[0]", "a[*][*]"}
	for _, raw := range cases {
		if _, err := parsePath(raw); err == nil {
			t.Fatalf("parsePath(%q): expected error, got nil", raw)
		}
	}
}

func TestParsePath_WildcardFlag(t *testing.T) {
	p, err := parsePath("emails[*].from")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.segs[0].wildcard || p.segs[0].field != "emails" {
		t.Fatalf("expected wildcard segment 'emails', got %+v", p.segs[0])
	}
	if p.segs[1].wildcard || p.segs[1].field != "from" {
		t.Fatalf("expected plain segment 'from', got %+v", p.segs[1])
	}
}

func decodeFields(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	return m
}

func TestResolve_NestedField(t *testing.T) {
	fields := decodeFields(t, `{"a": {"b": {"c": "deep"}}}`)
	p, _ := parsePath("a.b.c")
	vals := p.resolve(fields)
	if len(vals) != 1 || vals[0] != "deep" {
		t.Fatalf("expected [deep], got %v", vals)
	}
}

func TestResolve_WildcardFansOut(t *testing.T) {
	fields := decodeFields(t, `{"emails": [{"from": "a@x.com"}, {"from": "b@y.com"}, {"subject": "no from"}]}`)
	p, _ := parsePath("emails[*].from")
	vals := p.resolve(fields)
	if len(vals) != 2 {
		t.Fatalf("expected 2 values, got %v", vals)
	}
}

func TestResolve_WildcardOnNonSequence(t *testing.T) {
	fields := decodeFields(t, `{"emails": {"from": "a@x.com"}}`)
	p, _ := parsePath("emails[*].from")
	if vals := p.resolve(fields); len(vals) != 0 {
		t.Fatalf("expected no values, got %v", vals)
	}
}

func TestResolve_MissingField(t *testing.T) {
	fields := decodeFields(t, `{"url": "https://x"}`)
	p, _ := parsePath("missing.path")
	if vals := p.resolve(fields); len(vals) != 0 {
		t.Fatalf("expected no values, got %v", vals)
	}
}

func TestResolve_TrailingWildcard(t *testing.T) {
	fields := decodeFields(t, `{"tags": ["red", "blue"]}`)
	p, _ := parsePath("tags[*]")
	vals := p.resolve(fields)
	if len(vals) != 2 {
		t.Fatalf("expected 2 values, got %v", vals)
	}
}

func TestStringifyValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"plain", "plain", true},
		{float64(42), "42", true},
		{float64(3.5), "3.5", true},
		{true, "true", true},
		{nil, "", false},
		{map[string]any{"k": "v"}, `{"k":"v"}`, true},
		{[]any{"a", "b"}, `["a","b"]`, true},
	}
	for _, tc := range cases {
		got, ok := stringifyValue(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("stringifyValue(%v): expected (%q, %v), got (%q, %v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
