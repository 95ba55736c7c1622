package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// InvocationAction is what an invocation policy does when its conditions match.
type InvocationAction uint8

const (
	// InvocationAllowWhenUntrusted explicitly permits a call from an untrusted context.
	InvocationAllowWhenUntrusted InvocationAction = iota
	// InvocationBlockWhenUntrusted blocks a call only when the context is untrusted.
	InvocationBlockWhenUntrusted
	// InvocationBlockAlways blocks a call regardless of trust.
	InvocationBlockAlways
)

var invocationActionNames = map[InvocationAction]string{
	InvocationAllowWhenUntrusted: "allow_when_untrusted",
	InvocationBlockWhenUntrusted: "block_when_untrusted",
	InvocationBlockAlways:        "block_always",
}

func (a InvocationAction) String() string {
	if s, ok := invocationActionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("invocation_action(%d)", uint8(a))
}

func (a InvocationAction) valid() bool {
	_, ok := invocationActionNames[a]
	return ok
}

func ParseInvocationAction(s string) (InvocationAction, error) {
	for a, name := range invocationActionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown invocation action %q", s)
}

func (a InvocationAction) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("invalid invocation action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *InvocationAction) UnmarshalText(b []byte) error {
	parsed, err := ParseInvocationAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ResultAction is what a result policy does to a tool result when its conditions match.
type ResultAction uint8

const (
	// ResultBlockAlways discards the result and returns a denial.
	ResultBlockAlways ResultAction = iota
	// ResultMarkTrusted returns the raw result as trusted.
	ResultMarkTrusted
	// ResultMarkUntrusted returns the raw result tagged untrusted.
	ResultMarkUntrusted
	// ResultSanitize routes the result through the quarantine protocol.
	ResultSanitize
)

var resultActionNames = map[ResultAction]string{
	ResultBlockAlways:   "block_always",
	ResultMarkTrusted:   "mark_trusted",
	ResultMarkUntrusted: "mark_untrusted",
	ResultSanitize:      "sanitize_with_quarantine",
}

func (a ResultAction) String() string {
	if s, ok := resultActionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("result_action(%d)", uint8(a))
}

func (a ResultAction) valid() bool {
	_, ok := resultActionNames[a]
	return ok
}

func ParseResultAction(s string) (ResultAction, error) {
	for a, name := range resultActionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown result action %q", s)
}

func (a ResultAction) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("invalid result action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *ResultAction) UnmarshalText(b []byte) error {
	parsed, err := ParseResultAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Operator compares the value resolved at a condition's key against the condition's value.
type Operator uint8

const (
	OpEqual Operator = iota
	OpNotEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpRegex
)

var operatorNames = map[Operator]string{
	OpEqual:       "equal",
	OpNotEqual:    "not_equal",
	OpContains:    "contains",
	OpNotContains: "not_contains",
	OpStartsWith:  "starts_with",
	OpEndsWith:    "ends_with",
	OpRegex:       "regex",
}

func (o Operator) String() string {
	if s, ok := operatorNames[o]; ok {
		return s
	}
	return fmt.Sprintf("operator(%d)", uint8(o))
}

func (o Operator) valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// negated operators treat an absent key as a match.
func (o Operator) negated() bool {
	return o == OpNotEqual || o == OpNotContains
}

func ParseOperator(s string) (Operator, error) {
	for o, name := range operatorNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

func (o Operator) MarshalText() ([]byte, error) {
	if !o.valid() {
		return nil, fmt.Errorf("invalid operator %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Operator) UnmarshalText(b []byte) error {
	parsed, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Trust is the provenance tag carried alongside a call. The zero value is
// untrusted so that an unset context never widens access.
type Trust uint8

const (
	TrustUntrusted Trust = iota
	TrustTrusted
)

func (t Trust) String() string {
	if t == TrustTrusted {
		return "trusted"
	}
	return "untrusted"
}

func (t Trust) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trust) UnmarshalText(b []byte) error {
	switch string(b) {
	case "trusted":
		*t = TrustTrusted
	case "untrusted":
		*t = TrustUntrusted
	default:
		return fmt.Errorf("unknown trust %q", string(b))
	}
	return nil
}

// TrustContext travels with a tool call. Attrs holds upstream-derived
// attributes addressable in conditions via "context."-prefixed keys.
type TrustContext struct {
	Trust Trust             `json:"trust"`
	Attrs map[string]string `json:"attributes,omitempty"`
}

func (tc TrustContext) Untrusted() bool {
	return tc.Trust == TrustUntrusted
}

// Condition is a single predicate on a call's arguments, context, or result.
// Key is a dot path; a "[*]" suffix on a segment flattens across a sequence,
// and a "context." prefix addresses the trust context attributes instead.
type Condition struct {
	Key      string   `json:"key"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

func (c Condition) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("condition key is empty")
	}
	if !c.Operator.valid() {
		return fmt.Errorf("condition %q: invalid operator", c.Key)
	}
	if !strings.HasPrefix(c.Key, contextKeyPrefix) {
		if _, err := parsePath(c.Key); err != nil {
			return fmt.Errorf("condition %q: %w", c.Key, err)
		}
	}
	if c.Operator == OpRegex {
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("condition %q: bad regex: %w", c.Key, err)
		}
	}
	return nil
}

// InvocationPolicy governs whether a tool call may run. An empty Conditions
// slice matches every call and acts as the tool's default policy.
type InvocationPolicy struct {
	ID         string           `json:"id"`
	OrgID      string           `json:"org_id"`
	ToolID     string           `json:"tool_id"`
	Conditions []Condition      `json:"conditions"`
	Action     InvocationAction `json:"action"`
	Reason     string           `json:"reason"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (p InvocationPolicy) Validate() error {
	if strings.TrimSpace(p.ToolID) == "" {
		return fmt.Errorf("policy tool_id is empty")
	}
	if !p.Action.valid() {
		return fmt.Errorf("policy for %s: invalid action", p.ToolID)
	}
	for _, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResultPolicy classifies a tool result. Conditions match against the result
// body rather than the call arguments.
type ResultPolicy struct {
	ID         string       `json:"id"`
	OrgID      string       `json:"org_id"`
	ToolID     string       `json:"tool_id"`
	Conditions []Condition  `json:"conditions"`
	Action     ResultAction `json:"action"`
	Reason     string       `json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (p ResultPolicy) Validate() error {
	if strings.TrimSpace(p.ToolID) == "" {
		return fmt.Errorf("policy tool_id is empty")
	}
	if !p.Action.valid() {
		return fmt.Errorf("policy for %s: invalid action", p.ToolID)
	}
	for _, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Decision is the outcome of invocation policy evaluation.
type Decision struct {
	Allowed  bool
	PolicyID string
	Reason   string
}

// Classification is the outcome of result policy evaluation.
type Classification uint8

const (
	ClassTrusted Classification = iota
	ClassUntrusted
	ClassBlocked
	ClassSanitize
)

func (c Classification) String() string {
	switch c {
	case ClassTrusted:
		return "trusted"
	case ClassUntrusted:
		return "untrusted"
	case ClassBlocked:
		return "blocked"
	case ClassSanitize:
		return "sanitize"
	}
	return fmt.Sprintf("classification(%d)", uint8(c))
}

// ResultDecision pairs a classification with the policy that produced it.
// PolicyID is empty when no policy matched and the default applied.
type ResultDecision struct {
	Classification Classification
	PolicyID       string
	Reason         string
}
