package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rampart-ai/rampart/internal/audit"
	"github.com/rampart-ai/rampart/internal/credential"
	"github.com/rampart-ai/rampart/internal/policy"
	"github.com/rampart-ai/rampart/internal/quarantine"
	"github.com/rampart-ai/rampart/internal/registry"
)

// Sanitizer runs the quarantine protocol over one tool result and returns
// the summary plus the number of completed exchanges.
type Sanitizer interface {
	Run(ctx context.Context, cfg quarantine.Config, originalUserRequest, toolResult string) (string, int, error)
}

// Config wires the gateway's collaborators. Sanitizer is only consulted when
// a result policy routes through quarantine.
type Config struct {
	Engine    *policy.Engine
	Registry  registry.Registry
	Resolver  *credential.Resolver
	Secrets   credential.SecretStore
	Sanitizer Sanitizer
	Configs   quarantine.ConfigStore
	Audit     audit.Recorder
}

// Gateway executes tool calls under policy. Each Execute is independent; the
// gateway itself holds no per-call state.
type Gateway struct {
	engine    *policy.Engine
	registry  registry.Registry
	resolver  *credential.Resolver
	secrets   credential.SecretStore
	sanitizer Sanitizer
	configs   quarantine.ConfigStore
	audit     audit.Recorder
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Gateway {
	return &Gateway{
		engine:    cfg.Engine,
		registry:  cfg.Registry,
		resolver:  cfg.Resolver,
		secrets:   cfg.Secrets,
		sanitizer: cfg.Sanitizer,
		configs:   cfg.Configs,
		audit:     cfg.Audit,
		logger:    logger,
	}
}

// Execute runs the pipeline for one tool call.
//
// Policy denials and missing credentials are outcomes, not errors: they come
// back as a Result with status blocked or auth_required. Errors are reserved
// for unknown tools, invalid arguments, upstream failures, cancellation, and
// broken storage.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.OrgID == "" || req.ToolID == "" {
		return nil, errors.New("Execute: org_id and tool_id are required")
	}

	started := time.Now()
	requestID := uuid.NewString()
	argsPreview := preview(marshalArgs(req.Args))

	tool, err := g.registry.GetTool(ctx, req.ToolID)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if tool == nil {
		return nil, fmt.Errorf("Execute %s: %w", req.ToolID, registry.ErrToolNotFound)
	}

	dec, err := g.engine.EvaluateInvocation(ctx, req.OrgID, req.ToolID, req.Args, req.Context)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if !dec.Allowed {
		ev := g.event(req, requestID, audit.StageInvocation, audit.DecisionBlock, started)
		ev.PolicyID = dec.PolicyID
		ev.Reason = dec.Reason
		ev.ArgsPreview = argsPreview
		g.audit.Record(ev)
		return g.denied(req, requestID, "invocation", dec, started), nil
	}
	allowed := g.event(req, requestID, audit.StageInvocation, audit.DecisionAllow, started)
	allowed.PolicyID = dec.PolicyID
	allowed.ArgsPreview = argsPreview
	g.audit.Record(allowed)

	if err := registry.ValidateArgs(tool, req.Args); err != nil {
		ev := g.event(req, requestID, audit.StageInvocation, audit.DecisionInvalidArguments, started)
		ev.Reason = err.Error()
		ev.ArgsPreview = argsPreview
		g.audit.Record(ev)
		return nil, err
	}

	secret, authRequired, err := g.resolveCredential(ctx, req, requestID, started)
	if err != nil {
		return nil, err
	}
	if authRequired != nil {
		return authRequired, nil
	}

	raw, err := g.registry.Invoke(ctx, req.ToolID, req.Args, secret)
	if err != nil {
		var upstream *registry.UpstreamError
		if errors.As(err, &upstream) {
			ev := g.event(req, requestID, audit.StageInvocation, audit.DecisionUpstreamError, started)
			ev.Reason = upstream.Err.Error()
			g.audit.Record(ev)
		}
		return nil, err
	}

	result, err := g.classifyResult(ctx, req, requestID, raw, started)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("pipeline completed",
		zap.String("request_id", requestID),
		zap.String("tool_id", req.ToolID),
		zap.String("status", string(result.Status)),
		zap.String("trust", string(result.Trust)),
		zap.Float32("elapsed_ms", result.ElapsedMs))
	return result, nil
}

// Check evaluates invocation policy only; nothing is invoked and no audit
// event is recorded, so dry runs leave no trace in the decision log.
func (g *Gateway) Check(ctx context.Context, req Request) (policy.Decision, error) {
	if req.OrgID == "" || req.ToolID == "" {
		return policy.Decision{}, errors.New("Check: org_id and tool_id are required")
	}
	return g.engine.EvaluateInvocation(ctx, req.OrgID, req.ToolID, req.Args, req.Context)
}

// resolveCredential turns the request's assignment into a secret value. A
// visible-scope miss comes back as an auth_required Result, not an error.
func (g *Gateway) resolveCredential(ctx context.Context, req Request, requestID string, started time.Time) (string, *Result, error) {
	caller := credential.Caller{
		OrgID:           req.OrgID,
		UserID:          req.UserID,
		ActiveProfileID: req.ProfileID,
	}

	ref, err := g.resolver.Resolve(ctx, req.Credential, caller)
	if err != nil {
		var authErr *credential.AuthenticationRequiredError
		if errors.As(err, &authErr) {
			ev := g.event(req, requestID, audit.StageCredential, audit.DecisionAuthRequired, started)
			ev.Reason = authErr.Error()
			g.audit.Record(ev)
			return "", &Result{
				RequestID: requestID,
				ToolID:    req.ToolID,
				Status:    StatusAuthRequired,
				Catalog:   authErr.Catalog,
				ElapsedMs: elapsedMs(started),
			}, nil
		}
		return "", nil, fmt.Errorf("Execute: %w", err)
	}

	secret := ""
	if ref != "" {
		secret, err = g.secrets.GetSecret(ctx, ref)
		if err != nil {
			return "", nil, fmt.Errorf("Execute: fetch secret: %w", err)
		}
	}

	if req.Credential != (credential.Assignment{}) {
		g.audit.Record(g.event(req, requestID, audit.StageCredential, audit.DecisionResolved, started))
	}
	return secret, nil, nil
}

func (g *Gateway) classifyResult(ctx context.Context, req Request, requestID, raw string, started time.Time) (*Result, error) {
	rdec, err := g.engine.EvaluateResult(ctx, req.OrgID, req.ToolID, raw, req.Context)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	switch rdec.Classification {
	case policy.ClassBlocked:
		ev := g.event(req, requestID, audit.StageResult, audit.DecisionBlock, started)
		ev.PolicyID = rdec.PolicyID
		ev.Reason = rdec.Reason
		ev.ResultPreview = preview(raw)
		g.audit.Record(ev)
		return g.denied(req, requestID, "result", policy.Decision{PolicyID: rdec.PolicyID, Reason: rdec.Reason}, started), nil

	case policy.ClassUntrusted:
		ev := g.event(req, requestID, audit.StageResult, audit.DecisionUntrusted, started)
		ev.PolicyID = rdec.PolicyID
		ev.ResultPreview = preview(raw)
		g.audit.Record(ev)
		return g.completed(req, requestID, TagUntrusted, raw, started), nil

	case policy.ClassSanitize:
		ev := g.event(req, requestID, audit.StageResult, audit.DecisionSanitize, started)
		ev.PolicyID = rdec.PolicyID
		ev.ResultPreview = preview(raw)
		g.audit.Record(ev)
		return g.sanitize(ctx, req, requestID, raw, started)

	case policy.ClassTrusted:
		ev := g.event(req, requestID, audit.StageResult, audit.DecisionTrusted, started)
		ev.PolicyID = rdec.PolicyID
		ev.ResultPreview = preview(raw)
		g.audit.Record(ev)
		return g.completed(req, requestID, TagTrusted, raw, started), nil

	default:
		return nil, fmt.Errorf("Execute: unknown classification %v", rdec.Classification)
	}
}

// sanitize replaces the raw result with a quarantine summary. Cancellation
// aborts with no summary and a single cancelled audit event.
func (g *Gateway) sanitize(ctx context.Context, req Request, requestID, raw string, started time.Time) (*Result, error) {
	cfg, err := g.configs.GetConfig(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("Execute: quarantine config: %w", err)
	}
	if cfg == nil {
		def := quarantine.DefaultConfig(req.OrgID)
		cfg = &def
	}

	summary, rounds, err := g.sanitizer.Run(ctx, *cfg, req.UserRequest, raw)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ev := g.event(req, requestID, audit.StageQuarantine, audit.DecisionCancelled, started)
			ev.Rounds = uint8(rounds)
			g.audit.Record(ev)
		}
		return nil, err
	}

	ev := g.event(req, requestID, audit.StageQuarantine, audit.DecisionSummarized, started)
	ev.Rounds = uint8(rounds)
	ev.ResultPreview = preview(summary)
	g.audit.Record(ev)
	return g.completed(req, requestID, TagSanitized, summary, started), nil
}

func (g *Gateway) event(req Request, requestID, stage, decision string, started time.Time) *audit.DecisionEvent {
	return &audit.DecisionEvent{
		RequestID:      requestID,
		OrgID:          req.OrgID,
		Timestamp:      time.Now().UTC(),
		Stage:          stage,
		ToolID:         req.ToolID,
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		Decision:       decision,
		Trusted:        !req.Context.Untrusted(),
		ElapsedMs:      elapsedMs(started),
	}
}

func (g *Gateway) denied(req Request, requestID, stage string, dec policy.Decision, started time.Time) *Result {
	return &Result{
		RequestID: requestID,
		ToolID:    req.ToolID,
		Status:    StatusBlocked,
		Denial:    &Denial{Stage: stage, PolicyID: dec.PolicyID, Reason: dec.Reason},
		ElapsedMs: elapsedMs(started),
	}
}

func (g *Gateway) completed(req Request, requestID string, tag TrustTag, output string, started time.Time) *Result {
	return &Result{
		RequestID: requestID,
		ToolID:    req.ToolID,
		Status:    StatusCompleted,
		Trust:     tag,
		Output:    output,
		ElapsedMs: elapsedMs(started),
	}
}

func elapsedMs(started time.Time) float32 {
	return float32(time.Since(started).Microseconds()) / 1000
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

func preview(s string) string {
	return audit.TruncatePreview(s, audit.PreviewLength)
}
