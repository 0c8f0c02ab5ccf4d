package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/harveybc/prediction-provider-sub000/pkg/auth"
	"github.com/harveybc/prediction-provider-sub000/pkg/engine"
	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/rbac"
	"github.com/harveybc/prediction-provider-sub000/pkg/tenancy"
)

// MarketplaceHandler handles job marketplace API requests
type MarketplaceHandler struct {
	engine *engine.Engine
	tokens *auth.TokenManager
}

// NewMarketplaceHandler creates a new marketplace handler
func NewMarketplaceHandler(e *engine.Engine) *MarketplaceHandler {
	return &MarketplaceHandler{
		engine: e,
		tokens: auth.NewTokenManager(),
	}
}

// Tokens returns the handler's token manager so callers can wire it into the
// actor middleware and background cleanup.
func (h *MarketplaceHandler) Tokens() *auth.TokenManager {
	return h.tokens
}

// RegisterRoutes registers all API routes
func (h *MarketplaceHandler) RegisterRoutes(r *mux.Router) {
	// Register specific routes before parameterized routes
	r.HandleFunc("/jobs/pending", h.ListPendingJobs).Methods("GET")
	r.HandleFunc("/jobs", h.SubmitJob).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}/claim", h.ClaimJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/result", h.SubmitResult).Methods("POST")
	r.HandleFunc("/jobs/{id}/release", h.ReleaseJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/fail", h.FailJob).Methods("POST")
	r.HandleFunc("/jobs/{id}/priority", h.UpdateJobPriority).Methods("POST")

	r.HandleFunc("/tokens", h.IssueToken).Methods("POST")
	r.HandleFunc("/tokens/{actor}", h.RevokeToken).Methods("DELETE")
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// statusForKind maps engine error kinds to HTTP status codes
func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindConflict:
		return http.StatusConflict
	case engine.KindForbidden:
		return http.StatusForbidden
	case engine.KindExpired:
		return http.StatusGone
	case engine.KindLeaseTimeout:
		return http.StatusRequestTimeout
	case engine.KindCapacityExceeded:
		return http.StatusTooManyRequests
	case engine.KindCostExceeded:
		return http.StatusPaymentRequired
	case engine.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error response, tagging it with the engine kind
func writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := statusForKind(kind)
	if kind == "" {
		log.Printf("Internal error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   string(kind),
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// caller pulls the actor identity and role from the request context
func caller(r *http.Request) (string, models.Role, bool) {
	actorID, err := tenancy.GetActorID(r.Context())
	if err != nil {
		return "", "", false
	}
	return actorID, models.Role(tenancy.GetActorRole(r.Context())), true
}

// SubmitJob creates a new prediction job owned by the caller
func (h *MarketplaceHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobSubmit); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.engine.Submit(actorID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// ListJobs returns jobs, optionally filtered by owner and status
func (h *MarketplaceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}

	ownerID := r.URL.Query().Get("owner")
	// Non-admin clients only see their own jobs
	if !role.IsAdmin() && role != models.RoleEvaluator {
		ownerID = actorID
	}

	jobs, err := h.engine.List(ownerID, models.JobStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// ListPendingJobs returns the pending queue in claim order with positions
func (h *MarketplaceHandler) ListPendingJobs(w http.ResponseWriter, r *http.Request) {
	listing, err := h.engine.ListPending()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  listing,
		"count": len(listing),
	})
}

// GetJob retrieves a specific job by ID
func (h *MarketplaceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.engine.Get(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ClaimJob claims a pending job for the calling evaluator
func (h *MarketplaceHandler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobClaim); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	receipt, err := h.engine.Claim(mux.Vars(r)["id"], actorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// SubmitResult finalizes a processing job with the claimant's prediction
func (h *MarketplaceHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobResult); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var sub models.ResultSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.engine.SubmitResult(mux.Vars(r)["id"], actorID, sub)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// releaseRequest is the body for release and fail operations
type releaseRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

// ReleaseJob returns a processing job to the pending queue
func (h *MarketplaceHandler) ReleaseJob(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobRelease); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "voluntary"
	}

	jobID := mux.Vars(r)["id"]
	if err := h.engine.Release(jobID, actorID, role, req.Reason, req.Details); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "released",
		"job_id": jobID,
	})
}

// CancelJob cancels a pending job and refunds the estimate
func (h *MarketplaceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobCancel); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	job, err := h.engine.Cancel(mux.Vars(r)["id"], actorID, role)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "cancelled",
		"job_id": job.ID,
		"refund": job.RefundAmount,
	})
}

// FailJob marks a processing job as failed
func (h *MarketplaceHandler) FailJob(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobFail); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	jobID := mux.Vars(r)["id"]
	if err := h.engine.Fail(jobID, actorID, role, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "failed",
		"job_id": jobID,
	})
}

// priorityRequest is the body for priority updates
type priorityRequest struct {
	Priority int `json:"priority"`
}

// UpdateJobPriority changes a pending job's priority
func (h *MarketplaceHandler) UpdateJobPriority(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := caller(r)
	if !ok {
		http.Error(w, "Actor identity required", http.StatusUnauthorized)
		return
	}
	if err := rbac.CheckPermission(r.Context(), models.PermJobReprioritize); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var req priorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	jobID := mux.Vars(r)["id"]
	if err := h.engine.UpdatePriority(jobID, actorID, role, req.Priority); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "updated",
		"job_id":   jobID,
		"priority": req.Priority,
	})
}

// tokenRequest is the body for token issuance
type tokenRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
	TTL     string `json:"ttl,omitempty"` // e.g., "24h"
}

// IssueToken issues an authentication token for an actor (admin only)
func (h *MarketplaceHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if err := rbac.CheckPermission(r.Context(), models.PermTokenIssue); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActorID == "" {
		http.Error(w, "actor_id is required", http.StatusBadRequest)
		return
	}

	ttl := 24 * time.Hour
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			http.Error(w, "Invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = parsed
	}

	token, err := h.tokens.IssueToken(req.ActorID, models.Role(req.Role), ttl)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Token issued for %s (role: %s, ttl: %s)", req.ActorID, req.Role, ttl)

	writeJSON(w, http.StatusCreated, map[string]string{
		"actor_id": req.ActorID,
		"token":    token,
	})
}

// RevokeToken invalidates an actor's token (admin only)
func (h *MarketplaceHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := rbac.CheckPermission(r.Context(), models.PermTokenIssue); err != nil {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	actorID := mux.Vars(r)["actor"]
	h.tokens.RevokeToken(actorID)

	log.Printf("Token revoked for %s", actorID)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "revoked",
		"actor_id": actorID,
	})
}

// Health returns the health status of the marketplace node
func (h *MarketplaceHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
