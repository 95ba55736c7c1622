package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rampart-ai/rampart/internal/gateway"
	"github.com/rampart-ai/rampart/internal/registry"
	"go.uber.org/zap"
)

// handleExecute implements POST /v1/execute. Auth middleware has already
// validated the Bearer token and injected the org context.
func (d *Dependencies) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readPipelineRequest(w, r)
	if !ok {
		return
	}

	res, err := d.Gateway.Execute(r.Context(), req)
	if err != nil {
		d.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCheck implements POST /v1/check: invocation policy evaluation only,
// no tool invoked, no decision recorded.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readPipelineRequest(w, r)
	if !ok {
		return
	}

	dec, err := d.Gateway.Check(r.Context(), req)
	if err != nil {
		d.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{
		Allowed:  dec.Allowed,
		PolicyID: dec.PolicyID,
		Reason:   dec.Reason,
	})
}

// readPipelineRequest decodes the body and pins it to the authenticated org.
// Returns ok=false after writing the error response.
func (d *Dependencies) readPipelineRequest(w http.ResponseWriter, r *http.Request) (gateway.Request, bool) {
	var req gateway.Request
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return req, false
	}

	org := orgFromContext(r.Context())
	if org == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing org context"})
		return req, false
	}
	// Keys bound to an org pin the request to it; unbound keys (static auth,
	// fail-open) accept whatever org the body names.
	if org.OrgID != "" {
		if req.OrgID == "" {
			req.OrgID = org.OrgID
		} else if req.OrgID != org.OrgID {
			writeJSON(w, http.StatusForbidden, ErrorResp{Detail: "API key is not valid for this organization"})
			return req, false
		}
	}

	if req.OrgID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "org_id is required"})
		return req, false
	}
	if req.ToolID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_id is required"})
		return req, false
	}
	return req, true
}

// writePipelineError maps pipeline errors to HTTP status codes. Policy
// denials and auth-required are not errors; they arrive as Result outcomes.
func (d *Dependencies) writePipelineError(w http.ResponseWriter, err error) {
	var invalidArgs *registry.InvalidArgumentsError
	var upstream *registry.UpstreamError
	switch {
	case errors.Is(err, registry.ErrToolNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
	case errors.As(err, &invalidArgs):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: invalidArgs.Error()})
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: upstream.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResp{Detail: "pipeline timed out"})
	default:
		d.Logger.Error("execute failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Internal error"})
	}
}
