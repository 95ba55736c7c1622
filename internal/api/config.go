package api

import (
	"net/http"

	"github.com/rampart-ai/rampart/internal/quarantine"
	"go.uber.org/zap"
)

// handleGetQuarantineConfig returns the effective quarantine configuration
// for an org: the stored one, or the built-in default when none exists.
func (d *Dependencies) handleGetQuarantineConfig(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")

	cfg, err := d.Configs.GetConfig(r.Context(), orgID)
	if err != nil {
		d.Logger.Error("failed to get quarantine config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get quarantine config"})
		return
	}
	if cfg == nil {
		def := quarantine.DefaultConfig(orgID)
		cfg = &def
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutQuarantineConfig applies a partial update on top of the current
// (or default) configuration and stores the result.
func (d *Dependencies) handlePutQuarantineConfig(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")

	var req QuarantineConfigReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	current, err := d.Configs.GetConfig(r.Context(), orgID)
	if err != nil {
		d.Logger.Error("failed to get quarantine config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get quarantine config"})
		return
	}
	if current == nil {
		def := quarantine.DefaultConfig(orgID)
		current = &def
	}

	cfg := *current
	cfg.OrgID = orgID
	if req.MainPrompt != nil {
		cfg.MainPrompt = *req.MainPrompt
	}
	if req.QuarantinedPrompt != nil {
		cfg.QuarantinedPrompt = *req.QuarantinedPrompt
	}
	if req.SummaryPrompt != nil {
		cfg.SummaryPrompt = *req.SummaryPrompt
	}
	if req.MaxRounds != nil {
		cfg.MaxRounds = *req.MaxRounds
	}

	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	stored, err := d.Configs.UpsertConfig(r.Context(), cfg)
	if err != nil {
		d.Logger.Error("failed to store quarantine config", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to store quarantine config"})
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
