package api

import (
	"net/http"

	"github.com/rampart-ai/rampart/internal/policy"
	"github.com/rampart-ai/rampart/internal/policystore"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListInvocationPolicies(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")
	toolID := r.PathValue("tool_id")

	policies, err := d.Store.ListInvocationPolicies(r.Context(), orgID, toolID)
	if err != nil {
		d.Logger.Error("failed to list invocation policies", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list policies"})
		return
	}
	if policies == nil {
		policies = []policy.InvocationPolicy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (d *Dependencies) handleCreateInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")
	toolID := r.PathValue("tool_id")

	var req CreatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	action, err := policy.ParseInvocationAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	p := policy.InvocationPolicy{
		OrgID:      orgID,
		ToolID:     toolID,
		Conditions: req.Conditions,
		Action:     action,
		Reason:     req.Reason,
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	created, err := d.Store.CreateInvocationPolicy(r.Context(), p)
	if err != nil {
		d.Logger.Error("failed to create invocation policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create policy"})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d *Dependencies) handleListResultPolicies(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")
	toolID := r.PathValue("tool_id")

	policies, err := d.Store.ListResultPolicies(r.Context(), orgID, toolID)
	if err != nil {
		d.Logger.Error("failed to list result policies", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list policies"})
		return
	}
	if policies == nil {
		policies = []policy.ResultPolicy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (d *Dependencies) handleCreateResultPolicy(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")
	toolID := r.PathValue("tool_id")

	var req CreatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	action, err := policy.ParseResultAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	p := policy.ResultPolicy{
		OrgID:      orgID,
		ToolID:     toolID,
		Conditions: req.Conditions,
		Action:     action,
		Reason:     req.Reason,
	}
	if err := p.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	created, err := d.Store.CreateResultPolicy(r.Context(), p)
	if err != nil {
		d.Logger.Error("failed to create result policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create policy"})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d *Dependencies) handleUpdateInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	params := policystore.UpdateInvocationPolicyParams{
		Conditions: req.Conditions,
		Reason:     req.Reason,
	}
	if req.Action != nil {
		action, err := policy.ParseInvocationAction(*req.Action)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		params.Action = &action
	}
	if req.Conditions != nil {
		for _, c := range *req.Conditions {
			if err := c.Validate(); err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
				return
			}
		}
	}

	updated, err := d.Store.UpdateInvocationPolicy(r.Context(), id, params)
	if err != nil {
		d.Logger.Error("failed to update invocation policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update policy"})
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (d *Dependencies) handleUpdateResultPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdatePolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	params := policystore.UpdateResultPolicyParams{
		Conditions: req.Conditions,
		Reason:     req.Reason,
	}
	if req.Action != nil {
		action, err := policy.ParseResultAction(*req.Action)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		params.Action = &action
	}
	if req.Conditions != nil {
		for _, c := range *req.Conditions {
			if err := c.Validate(); err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
				return
			}
		}
	}

	updated, err := d.Store.UpdateResultPolicy(r.Context(), id, params)
	if err != nil {
		d.Logger.Error("failed to update result policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update policy"})
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (d *Dependencies) handleDeleteInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := d.Store.DeleteInvocationPolicy(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete invocation policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete policy"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleDeleteResultPolicy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := d.Store.DeleteResultPolicy(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete result policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete policy"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDefaultPolicies implements PUT /api/policies/default: one bulk
// write replacing the unconditional policy on every listed tool.
func (d *Dependencies) handleSetDefaultPolicies(w http.ResponseWriter, r *http.Request) {
	var req DefaultPoliciesReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.OrgID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "org_id is required"})
		return
	}
	if len(req.ToolIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_ids must not be empty"})
		return
	}

	var updated int
	switch req.Scope {
	case "invocation":
		action, err := policy.ParseInvocationAction(req.Action)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		updated, err = d.Store.SetDefaultInvocationPolicies(r.Context(), req.OrgID, req.ToolIDs, action, req.Reason)
		if err != nil {
			d.Logger.Error("failed to set default policies", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to set default policies"})
			return
		}
	case "result":
		action, err := policy.ParseResultAction(req.Action)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
			return
		}
		updated, err = d.Store.SetDefaultResultPolicies(r.Context(), req.OrgID, req.ToolIDs, action, req.Reason)
		if err != nil {
			d.Logger.Error("failed to set default policies", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to set default policies"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "scope must be 'invocation' or 'result'"})
		return
	}

	writeJSON(w, http.StatusOK, DefaultPoliciesResp{Updated: updated})
}
