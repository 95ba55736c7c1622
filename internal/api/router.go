// Package api exposes the pipeline over HTTP: the authenticated execute
// surface plus the administrative endpoints the dashboard and CLI use.
package api

import (
	"net/http"

	"github.com/rampart-ai/rampart/internal/audit"
	"github.com/rampart-ai/rampart/internal/auth"
	"github.com/rampart-ai/rampart/internal/gateway"
	"github.com/rampart-ai/rampart/internal/policystore"
	"github.com/rampart-ai/rampart/internal/quarantine"
	"github.com/rampart-ai/rampart/internal/registry"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Gateway  *gateway.Gateway
	Store    policystore.Store
	Configs  quarantine.ConfigStore
	Registry registry.Registry
	Reader   *audit.Reader // nil if ClickHouse unavailable
	Auth     auth.Authenticator
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Pipeline endpoints (auth required via Bearer rk_ token)
	mux.HandleFunc("POST /v1/execute", deps.authMiddleware(deps.handleExecute))
	mux.HandleFunc("POST /v1/check", deps.authMiddleware(deps.handleCheck))

	// Policy CRUD (no auth yet, dashboard auth added later)
	mux.HandleFunc("GET /api/orgs/{org_id}/tools/{tool_id}/policies/invocation", deps.handleListInvocationPolicies)
	mux.HandleFunc("POST /api/orgs/{org_id}/tools/{tool_id}/policies/invocation", deps.handleCreateInvocationPolicy)
	mux.HandleFunc("GET /api/orgs/{org_id}/tools/{tool_id}/policies/result", deps.handleListResultPolicies)
	mux.HandleFunc("POST /api/orgs/{org_id}/tools/{tool_id}/policies/result", deps.handleCreateResultPolicy)
	mux.HandleFunc("PATCH /api/policies/invocation/{id}", deps.handleUpdateInvocationPolicy)
	mux.HandleFunc("PATCH /api/policies/result/{id}", deps.handleUpdateResultPolicy)
	mux.HandleFunc("DELETE /api/policies/invocation/{id}", deps.handleDeleteInvocationPolicy)
	mux.HandleFunc("DELETE /api/policies/result/{id}", deps.handleDeleteResultPolicy)
	mux.HandleFunc("PUT /api/policies/default", deps.handleSetDefaultPolicies)

	// Quarantine configuration (no auth)
	mux.HandleFunc("GET /api/orgs/{org_id}/quarantine-config", deps.handleGetQuarantineConfig)
	mux.HandleFunc("PUT /api/orgs/{org_id}/quarantine-config", deps.handlePutQuarantineConfig)

	// Tool catalog & decision log (no auth)
	mux.HandleFunc("GET /api/tools", deps.handleListTools)
	mux.HandleFunc("GET /api/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/events/{request_id}", deps.handleGetRequestEvents)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
