package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vmscore/internal/blob"
	"vmscore/internal/core"
	"vmscore/internal/infra/persistence/memory"
	"vmscore/pkg/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore(core.DefaultRules())
	service := core.NewService(store, core.WithEvidenceStore(blob.NewMemory()))
	srv := httptest.NewServer(NewHandler(service))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("{}")
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func asActor(url, user string, role domain.Role) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%suser=%s&role=%s", url, sep, user, strings.ReplaceAll(string(role), " ", "%20"))
}

func TestRequirementApprovalFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, project := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/projects", "alice", domain.RoleValidationLead), map[string]any{
		"name":        "LIMS Upgrade",
		"description": "Quarterly upgrade validation",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project status = %d: %v", resp.StatusCode, project)
	}
	projectID, _ := project["id"].(string)
	if projectID == "" {
		t.Fatalf("project id missing: %v", project)
	}

	resp, req := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements", "alice", domain.RoleValidationLead), map[string]any{
		"project_id":          projectID,
		"title":               "Audit trail",
		"description":         "The system shall record an audit trail entry for every change.",
		"acceptance_criteria": "Each change produces one entry.",
		"gxp_impact":          true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create requirement status = %d: %v", resp.StatusCode, req)
	}
	reqID, _ := req["id"].(string)

	resp, body := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements/"+reqID+"/approve", "alice", domain.RoleQA), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self approval status = %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements/"+reqID+"/submit-review", "alice", domain.RoleValidationLead), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit review status = %d: %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements/"+reqID+"/approve", "carol", domain.RoleQA), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d: %v", resp.StatusCode, body)
	}
	if body["status"] != string(domain.RequirementApproved) {
		t.Fatalf("status after approval = %v", body["status"])
	}
}

func TestFunctionalSpecGateReturnsConflict(t *testing.T) {
	srv := newTestServer(t)

	_, project := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/projects", "alice", domain.RoleValidationLead), map[string]any{"name": "p"})
	projectID, _ := project["id"].(string)
	_, req := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements", "alice", domain.RoleValidationLead), map[string]any{
		"project_id": projectID,
		"title":      "Draft only",
	})
	reqID, _ := req["id"].(string)

	resp, body := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/functional-specs", "alice", domain.RoleValidationLead), map[string]any{
		"urs_id": reqID,
		"title":  "Premature FS",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %v", resp.StatusCode, body)
	}
}

func TestUnknownEntityReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/requirements/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp2, body := doJSON(t, http.MethodPut, asActor(srv.URL+"/api/v1/projects/nope/status", "alice", domain.RoleValidationLead), map[string]any{"status": "Active"})
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %v", resp2.StatusCode, body)
	}
}

func TestEvidenceUploadOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	_, project := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/projects", "alice", domain.RoleValidationLead), map[string]any{"name": "p"})
	projectID, _ := project["id"].(string)
	_, req := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements", "alice", domain.RoleValidationLead), map[string]any{
		"project_id": projectID,
		"title":      "URS",
	})
	reqID, _ := req["id"].(string)
	doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements/"+reqID+"/submit-review", "alice", domain.RoleValidationLead), nil)
	doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements/"+reqID+"/approve", "carol", domain.RoleQA), nil)
	_, fs := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/functional-specs", "alice", domain.RoleValidationLead), map[string]any{
		"urs_id": reqID,
		"title":  "FS",
	})
	fsID, _ := fs["id"].(string)
	_, tc := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/test-cases", "alice", domain.RoleValidationLead), map[string]any{
		"fs_id": fsID,
		"title": "TC",
	})
	tcID, _ := tc["id"].(string)
	resp, exec := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/test-executions", "erin", domain.RoleExecutor), map[string]any{
		"test_case_id": tcID,
		"result":       "Pass",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record execution status = %d: %v", resp.StatusCode, exec)
	}
	execID, _ := exec["id"].(string)

	uploadURL := asActor(srv.URL+"/api/v1/test-executions/"+execID+"/evidence?filename=log.txt", "erin", domain.RoleExecutor)
	upload, err := http.Post(uploadURL, "text/plain", strings.NewReader("run output"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer upload.Body.Close()
	if upload.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", upload.StatusCode)
	}
	var result struct {
		Execution domain.TestExecution `json:"execution"`
		Evidence  blob.Info            `json:"evidence"`
	}
	if err := json.NewDecoder(upload.Body).Decode(&result); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if len(result.Execution.EvidenceRefs) != 1 {
		t.Fatalf("evidence refs = %v", result.Execution.EvidenceRefs)
	}
	if result.Evidence.Size != int64(len("run output")) {
		t.Fatalf("evidence size = %d", result.Evidence.Size)
	}
}

func TestAuditTrailLimitQuery(t *testing.T) {
	srv := newTestServer(t)

	_, project := doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/projects", "alice", domain.RoleValidationLead), map[string]any{"name": "p"})
	projectID, _ := project["id"].(string)
	doJSON(t, http.MethodPost, asActor(srv.URL+"/api/v1/requirements", "alice", domain.RoleValidationLead), map[string]any{
		"project_id": projectID,
		"title":      "URS",
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit status = %d: %v", resp.StatusCode, body)
	}
	all, _ := body["entries"].([]any)
	if len(all) < 2 {
		t.Fatalf("entries = %d, want at least 2", len(all))
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit?limit=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("limited audit status = %d: %v", resp.StatusCode, body)
	}
	if limited, _ := body["entries"].([]any); len(limited) != 1 {
		t.Fatalf("entries with limit=1 = %d, want 1", len(limited))
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit?limit=zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400: %v", resp.StatusCode, body)
	}
}

func TestHealthAndDashboardEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, health := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("healthz = %d %v", resp.StatusCode, health)
	}

	resp2, _ := doJSON(t, http.MethodGet, srv.URL+"/api/v1/dashboard", nil)
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", resp2.StatusCode)
	}
}
