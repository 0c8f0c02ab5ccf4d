package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/harveybc/prediction-provider-sub000/pkg/api"
	"github.com/harveybc/prediction-provider-sub000/pkg/engine"
	"github.com/harveybc/prediction-provider-sub000/pkg/models"
	"github.com/harveybc/prediction-provider-sub000/pkg/store"
	"github.com/harveybc/prediction-provider-sub000/pkg/tenancy"
)

func newTestRouter(t *testing.T) (*mux.Router, *engine.Engine) {
	t.Helper()

	e, err := engine.New(store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	handler := api.NewMarketplaceHandler(e)
	router := mux.NewRouter()
	router.Use(tenancy.ActorMiddleware(handler.Tokens()))
	handler.RegisterRoutes(router)
	return router, e
}

// doBearerRequest authenticates with a bearer token instead of identity headers
func doBearerRequest(router *mux.Router, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doRequest(router *mux.Router, method, path, actorID, role, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader("{}"))
	}
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
		req.Header.Set("X-Actor-Role", role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const submitBody = `{"category":"short_term","symbol":"EURUSD","horizon":12,"lookback":90}`

func submitJob(t *testing.T, router *mux.Router, owner string) models.Job {
	t.Helper()
	w := doRequest(router, "POST", "/jobs", owner, "client", submitBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("Submit status = %d, body: %s", w.Code, w.Body.String())
	}
	var job models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("Failed to parse job response: %v", err)
	}
	return job
}

func TestSubmitJobEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	job := submitJob(t, router, "client-1")
	if job.OwnerID != "client-1" {
		t.Errorf("OwnerID = %s, want client-1", job.OwnerID)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.EstimatedCost != 6.00 {
		t.Errorf("EstimatedCost = %.2f, want 6.00", job.EstimatedCost)
	}
}

func TestSubmitRequiresIdentity(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, "POST", "/jobs", "", "", submitBody)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", w.Code)
	}
}

func TestSubmitRequiresPermission(t *testing.T) {
	router, _ := newTestRouter(t)

	// Evaluators cannot submit jobs
	w := doRequest(router, "POST", "/jobs", "eval-1", "evaluator", submitBody)
	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", w.Code)
	}
}

func TestClaimFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "eval-1", "evaluator", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Claim status = %d, body: %s", w.Code, w.Body.String())
	}

	var receipt models.ClaimReceipt
	if err := json.Unmarshal(w.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("Failed to parse receipt: %v", err)
	}
	if receipt.ClaimantID != "eval-1" {
		t.Errorf("ClaimantID = %s, want eval-1", receipt.ClaimantID)
	}
	if !receipt.LeaseExpiresAt.After(receipt.ClaimedAt) {
		t.Error("Lease must expire after the claim time")
	}

	// Second claim conflicts
	w = doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "eval-2", "evaluator", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Second claim status = %d, want 409", w.Code)
	}
}

func TestClaimByClientForbidden(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "client-1", "client", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", w.Code)
	}
}

func TestSubmitResultEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")
	doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "eval-1", "evaluator", "")

	body := `{"result":{"prediction":1.0932,"confidence":0.87},"quality_score":0.95}`
	w := doRequest(router, "POST", "/jobs/"+job.ID+"/result", "eval-1", "evaluator", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Result status = %d, body: %s", w.Code, w.Body.String())
	}

	var outcome models.SubmissionOutcome
	if err := json.Unmarshal(w.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("Failed to parse outcome: %v", err)
	}
	if outcome.ResultHash == "" {
		t.Error("Expected a result hash")
	}
	if outcome.QualityScore != 0.95 {
		t.Errorf("QualityScore = %.2f, want 0.95", outcome.QualityScore)
	}
	if outcome.Payment <= 0 {
		t.Errorf("Payment = %.2f, want > 0", outcome.Payment)
	}

	// Job is now completed
	w = doRequest(router, "GET", "/jobs/"+job.ID, "client-1", "client", "")
	var got models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to parse job: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestReleaseEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")
	doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "eval-1", "evaluator", "")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/release", "eval-1", "evaluator",
		`{"reason":"giving_up","details":"out of budget"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Release status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/jobs/"+job.ID, "client-1", "client", "")
	var got models.Job
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.Status != models.JobStatusPending {
		t.Errorf("Status = %s, want pending after release", got.Status)
	}
	if len(got.ReleaseHistory) != 1 {
		t.Errorf("ReleaseHistory length = %d, want 1", len(got.ReleaseHistory))
	}
}

func TestCancelEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/cancel", "client-1", "client", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Cancel status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["refund"].(float64) != job.EstimatedCost {
		t.Errorf("refund = %v, want %.2f", resp["refund"], job.EstimatedCost)
	}

	// Cancelling again conflicts
	w = doRequest(router, "POST", "/jobs/"+job.ID+"/cancel", "client-1", "client", "")
	if w.Code != http.StatusConflict {
		t.Errorf("Second cancel status = %d, want 409", w.Code)
	}
}

func TestFailEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")
	doRequest(router, "POST", "/jobs/"+job.ID+"/claim", "eval-1", "evaluator", "")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/fail", "eval-1", "evaluator",
		`{"reason":"model diverged"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Fail status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "GET", "/jobs/"+job.ID, "client-1", "client", "")
	var got models.Job
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
}

func TestPriorityEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	w := doRequest(router, "POST", "/jobs/"+job.ID+"/priority", "client-1", "client",
		`{"priority":9}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Priority status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "POST", "/jobs/"+job.ID+"/priority", "client-1", "client",
		`{"priority":42}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Out-of-range priority status = %d, want 400", w.Code)
	}
}

// TestRouteOrdering verifies /jobs/pending is not swallowed by /jobs/{id}
func TestRouteOrdering(t *testing.T) {
	router, _ := newTestRouter(t)
	submitJob(t, router, "client-1")

	w := doRequest(router, "GET", "/jobs/pending", "eval-1", "evaluator", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Pending status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Jobs  []models.PendingJob `json:"jobs"`
		Count int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("Count = %d, want 1", resp.Count)
	}
	if resp.Jobs[0].Position != 1 {
		t.Errorf("Position = %d, want 1", resp.Jobs[0].Position)
	}
}

func TestListJobsScopedToOwner(t *testing.T) {
	router, _ := newTestRouter(t)
	submitJob(t, router, "client-1")
	submitJob(t, router, "client-2")

	w := doRequest(router, "GET", "/jobs", "client-1", "client", "")
	if w.Code != http.StatusOK {
		t.Fatalf("List status = %d", w.Code)
	}

	var resp struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("Count = %d, want only own jobs", resp.Count)
	}

	// Admin sees everything
	w = doRequest(router, "GET", "/jobs", "admin-1", "admin", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 {
		t.Errorf("Admin count = %d, want 2", resp.Count)
	}
}

func TestErrorKindMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	// not_found -> 404
	w := doRequest(router, "GET", "/jobs/no-such-id", "client-1", "client", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse error body: %v", err)
	}
	if resp["error"] != "not_found" {
		t.Errorf("error = %q, want not_found", resp["error"])
	}

	// capacity_exceeded -> 429
	for i := 0; i < 5; i++ {
		submitJob(t, router, "client-9")
	}
	w = doRequest(router, "POST", "/jobs", "client-9", "client", submitBody)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", w.Code)
	}

	// cost_exceeded -> 402
	w = doRequest(router, "POST", "/jobs", "client-8", "client",
		`{"category":"custom","symbol":"BTC","max_cost":1.0}`)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Status = %d, want 402", w.Code)
	}
}

func TestTokenIssueAdminOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"actor_id":"eval-9","role":"evaluator"}`
	w := doRequest(router, "POST", "/tokens", "client-1", "client", body)
	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403 for non-admin", w.Code)
	}

	w = doRequest(router, "POST", "/tokens", "admin-1", "admin", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["token"] == "" {
		t.Error("Expected a token in the response")
	}
}

func issueToken(t *testing.T, router *mux.Router, actorID, role string) string {
	t.Helper()
	body := `{"actor_id":"` + actorID + `","role":"` + role + `"}`
	w := doRequest(router, "POST", "/tokens", "admin-1", "admin", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Token issue status = %d, body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse token response: %v", err)
	}
	return resp["token"]
}

func TestBearerTokenCarriesIdentityAndRole(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	token := issueToken(t, router, "eval-9", "evaluator")
	if !strings.HasPrefix(token, "ppsub_eval-9_") {
		t.Fatalf("Token = %q, want ppsub_eval-9_ prefix", token)
	}

	w := doBearerRequest(router, "POST", "/jobs/"+job.ID+"/claim", token, "{}")
	if w.Code != http.StatusOK {
		t.Fatalf("Claim status = %d, body: %s", w.Code, w.Body.String())
	}

	var receipt models.ClaimReceipt
	if err := json.Unmarshal(w.Body.Bytes(), &receipt); err != nil {
		t.Fatalf("Failed to parse receipt: %v", err)
	}
	if receipt.ClaimantID != "eval-9" {
		t.Errorf("ClaimantID = %s, want eval-9 from the token", receipt.ClaimantID)
	}
}

func TestFabricatedBearerRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")

	w := doBearerRequest(router, "POST", "/jobs/"+job.ID+"/claim",
		"ppsub_eval-9_"+strings.Repeat("ab", 32), "{}")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401 for fabricated token", w.Code)
	}
}

func TestRoleHeaderIgnoredWithBearer(t *testing.T) {
	router, _ := newTestRouter(t)
	token := issueToken(t, router, "client-7", "client")

	// A client token cannot mint admin rights via the role header
	req := httptest.NewRequest("POST", "/tokens",
		strings.NewReader(`{"actor_id":"x","role":"admin"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Actor-Role", "admin")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", w.Code)
	}
}

func TestRevokedTokenRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	job := submitJob(t, router, "client-1")
	token := issueToken(t, router, "eval-9", "evaluator")

	w := doRequest(router, "DELETE", "/tokens/eval-9", "admin-1", "admin", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Revoke status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doBearerRequest(router, "POST", "/jobs/"+job.ID+"/claim", token, "{}")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401 after revocation", w.Code)
	}
}

func TestTokenRevokeAdminOnly(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, "DELETE", "/tokens/eval-9", "client-1", "client", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want 403 for non-admin", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, "GET", "/health", "", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}
