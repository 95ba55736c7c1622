package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PolicySource supplies the policy rows for a tool, ordered by creation time
// (oldest first) so that tie-breaks between matching rows are deterministic.
type PolicySource interface {
	InvocationPolicies(ctx context.Context, orgID, toolID string) ([]InvocationPolicy, error)
	ResultPolicies(ctx context.Context, orgID, toolID string) ([]ResultPolicy, error)
}

// Engine evaluates invocation and result policies for tool calls.
// Evaluation is read-only; no policy state is mutated as a side effect.
type Engine struct {
	source  PolicySource
	matcher *Matcher
	logger  *zap.Logger
}

func NewEngine(source PolicySource, logger *zap.Logger) *Engine {
	return &Engine{
		source:  source,
		matcher: NewMatcher(),
		logger:  logger,
	}
}

// EvaluateInvocation decides whether a tool call may run.
//
// Priority: a matching block_always policy blocks regardless of trust. For
// untrusted contexts, a matching block_when_untrusted blocks, then a matching
// allow_when_untrusted allows. With no match the call is allowed; operators
// restrict a tool by adding an explicit block rule.
func (e *Engine) EvaluateInvocation(ctx context.Context, orgID, toolID string, args map[string]any, tc TrustContext) (Decision, error) {
	pols, err := e.source.InvocationPolicies(ctx, orgID, toolID)
	if err != nil {
		return Decision{}, fmt.Errorf("load invocation policies: %w", err)
	}

	sub := ArgsSubject(args, tc)

	for _, p := range pols {
		if p.Action == InvocationBlockAlways && e.matcher.MatchesAll(p.Conditions, sub) {
			e.logDecision("invocation blocked", toolID, p.ID, p.Action.String(), tc)
			return Decision{Allowed: false, PolicyID: p.ID, Reason: p.Reason}, nil
		}
	}

	if tc.Untrusted() {
		for _, p := range pols {
			if p.Action == InvocationBlockWhenUntrusted && e.matcher.MatchesAll(p.Conditions, sub) {
				e.logDecision("invocation blocked", toolID, p.ID, p.Action.String(), tc)
				return Decision{Allowed: false, PolicyID: p.ID, Reason: p.Reason}, nil
			}
		}
		for _, p := range pols {
			if p.Action == InvocationAllowWhenUntrusted && e.matcher.MatchesAll(p.Conditions, sub) {
				return Decision{Allowed: true, PolicyID: p.ID}, nil
			}
		}
	}

	return Decision{Allowed: true}, nil
}

// EvaluateResult classifies a tool result.
//
// A matching block_always policy wins over everything; otherwise the first
// matching policy in creation order determines the classification, and a
// result no policy claims is trusted.
func (e *Engine) EvaluateResult(ctx context.Context, orgID, toolID, rawResult string, tc TrustContext) (ResultDecision, error) {
	pols, err := e.source.ResultPolicies(ctx, orgID, toolID)
	if err != nil {
		return ResultDecision{}, fmt.Errorf("load result policies: %w", err)
	}

	sub := ResultSubject(rawResult, tc)

	for _, p := range pols {
		if p.Action == ResultBlockAlways && e.matcher.MatchesAll(p.Conditions, sub) {
			e.logDecision("result blocked", toolID, p.ID, p.Action.String(), tc)
			return ResultDecision{Classification: ClassBlocked, PolicyID: p.ID, Reason: p.Reason}, nil
		}
	}

	for _, p := range pols {
		if p.Action == ResultBlockAlways {
			continue
		}
		if !e.matcher.MatchesAll(p.Conditions, sub) {
			continue
		}
		var class Classification
		switch p.Action {
		case ResultMarkTrusted:
			class = ClassTrusted
		case ResultMarkUntrusted:
			class = ClassUntrusted
		case ResultSanitize:
			class = ClassSanitize
		default:
			continue
		}
		return ResultDecision{Classification: class, PolicyID: p.ID, Reason: p.Reason}, nil
	}

	return ResultDecision{Classification: ClassTrusted}, nil
}

func (e *Engine) logDecision(msg, toolID, policyID, action string, tc TrustContext) {
	e.logger.Debug(msg,
		zap.String("tool_id", toolID),
		zap.String("policy_id", policyID),
		zap.String("action", action),
		zap.String("trust", tc.Trust.String()),
	)
}
