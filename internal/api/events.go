package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rampart-ai/rampart/internal/audit"
	"github.com/rampart-ai/rampart/internal/registry"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := d.Registry.ListTools(r.Context())
	if err != nil {
		d.Logger.Error("failed to list tools", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tools"})
		return
	}
	if tools == nil {
		tools = []registry.Tool{}
	}
	writeJSON(w, http.StatusOK, tools)
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	orgID := q.Get("org_id")
	if orgID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "org_id query parameter is required"})
		return
	}

	params := audit.ListEventsParams{
		OrgID:    orgID,
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool_id"); v != "" {
		params.ToolID = &v
	}
	if v := q.Get("stage"); v != "" {
		params.Stage = &v
	}
	if v := q.Get("decision"); v != "" {
		params.Decision = &v
	}
	if v := q.Get("agent_id"); v != "" {
		params.AgentID = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}
	if events == nil {
		events = []audit.EventRow{}
	}

	writeJSON(w, http.StatusOK, EventListResp{
		Events:   events,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// handleGetRequestEvents returns the full decision trace for one request id,
// oldest first.
func (d *Dependencies) handleGetRequestEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "org_id query parameter is required"})
		return
	}

	events, err := d.Reader.GetRequestEvents(r.Context(), orgID, requestID)
	if err != nil {
		d.Logger.Error("failed to get request events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get events"})
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Request not found."})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
