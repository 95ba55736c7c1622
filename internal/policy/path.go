package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const contextKeyPrefix = "context."

const wildcardSuffix = "[*]"

// pathSegment is one step of a condition key. A wildcard segment expects a
// sequence at its field and fans out across every element.
type pathSegment struct {
	field    string
	wildcard bool
}

type parsedPath struct {
	raw  string
	segs []pathSegment
}

func parsePath(raw string) (*parsedPath, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(raw, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		seg := pathSegment{field: part}
		if strings.HasSuffix(part, wildcardSuffix) {
			seg.field = strings.TrimSuffix(part, wildcardSuffix)
			seg.wildcard = true
		}
		if seg.field == "" {
			return nil, fmt.Errorf("path %q: empty segment", raw)
		}
		if strings.ContainsAny(seg.field, "[]") {
			return nil, fmt.Errorf("path %q: unsupported index syntax in %q", raw, part)
		}
		segs = append(segs, seg)
	}
	return &parsedPath{raw: raw, segs: segs}, nil
}

// resolve walks fields and returns every value reachable through the path.
// Wildcard segments fan out; branches that dead-end contribute nothing.
func (p *parsedPath) resolve(fields map[string]any) []any {
	if fields == nil {
		return nil
	}
	var out []any
	p.walk(fields, 0, &out)
	return out
}

func (p *parsedPath) walk(v any, depth int, out *[]any) {
	if depth == len(p.segs) {
		if v != nil {
			*out = append(*out, v)
		}
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	child, ok := m[p.segs[depth].field]
	if !ok {
		return
	}
	if p.segs[depth].wildcard {
		seq, ok := child.([]any)
		if !ok {
			return
		}
		for _, elem := range seq {
			p.walk(elem, depth+1, out)
		}
		return
	}
	p.walk(child, depth+1, out)
}

// stringifyValue renders a resolved value for operator comparison. Scalars
// render as their JSON text; composite values render as compact JSON so
// substring operators can see into them. Nil is treated as absent.
func stringifyValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
