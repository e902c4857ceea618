// Package rest exposes the validation workflow engine over HTTP.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"vmscore/internal/core"
	"vmscore/pkg/domain"
)

// Handler provides HTTP access to the workflow service. Routes live under
// /api/v1; the caller identity arrives in the user and role query parameters
// on every state-changing request.
type Handler struct {
	Service *core.Service
}

// NewHandler constructs the API handler.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		h.handleHealth(w, r)
	case path == "/api/v1/dashboard" && r.Method == http.MethodGet:
		h.handleDashboard(w, r)
	case path == "/api/v1/audit" && r.Method == http.MethodGet:
		h.handleAudit(w, r)
	case strings.HasPrefix(path, "/api/v1/projects"):
		h.handleProjects(w, r, strings.TrimPrefix(path, "/api/v1/projects"))
	case strings.HasPrefix(path, "/api/v1/boundaries"):
		h.handleBoundaries(w, r, strings.TrimPrefix(path, "/api/v1/boundaries"))
	case strings.HasPrefix(path, "/api/v1/requirements"):
		h.handleRequirements(w, r, strings.TrimPrefix(path, "/api/v1/requirements"))
	case strings.HasPrefix(path, "/api/v1/functional-specs"):
		h.handleFunctionalSpecs(w, r, strings.TrimPrefix(path, "/api/v1/functional-specs"))
	case strings.HasPrefix(path, "/api/v1/design-specs"):
		h.handleDesignSpecs(w, r, strings.TrimPrefix(path, "/api/v1/design-specs"))
	case strings.HasPrefix(path, "/api/v1/test-cases"):
		h.handleTestCases(w, r, strings.TrimPrefix(path, "/api/v1/test-cases"))
	case strings.HasPrefix(path, "/api/v1/test-executions"):
		h.handleExecutions(w, r, strings.TrimPrefix(path, "/api/v1/test-executions"))
	case strings.HasPrefix(path, "/api/v1/deviations"):
		h.handleDeviations(w, r, strings.TrimPrefix(path, "/api/v1/deviations"))
	case strings.HasPrefix(path, "/api/v1/change-requests"):
		h.handleChanges(w, r, strings.TrimPrefix(path, "/api/v1/change-requests"))
	case path == "/api/v1/signatures" && r.Method == http.MethodPost:
		h.handleSign(w, r)
	default:
		http.NotFound(w, r)
	}
}

func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		Identity: r.URL.Query().Get("user"),
		Role:     domain.Role(r.URL.Query().Get("role")),
	}
}

// segments splits the remainder of a route, dropping the leading slash.
func segments(remainder string) []string {
	remainder = strings.TrimPrefix(remainder, "/")
	if remainder == "" {
		return nil
	}
	return strings.Split(remainder, "/")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := map[string]int{}
	err := h.Service.Store().View(r.Context(), func(v core.TransactionView) error {
		counts["projects"] = len(v.ListProjects())
		counts["requirements"] = len(v.ListRequirements())
		counts["test_executions"] = len(v.ListTestExecutions())
		counts["deviations"] = len(v.ListDeviations())
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "counts": counts})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Service.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		Entity:   domain.EntityType(q.Get("entity")),
		EntityID: q.Get("entity_id"),
		Actor:    q.Get("actor"),
		Action:   domain.AuditAction(q.Get("action")),
		Limit:    200,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	entries := h.Service.AuditTrail(filter)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var project domain.Project
		if !decode(w, r, &project) {
			return
		}
		created, err := h.Service.CreateProject(r.Context(), actorFrom(r), project)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"projects": h.Service.Store().ListProjects()})
	case len(segs) == 1 && r.Method == http.MethodGet:
		project, ok := h.Service.Store().GetProject(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeJSON(w, http.StatusOK, project)
	case len(segs) == 2 && segs[1] == "status" && r.Method == http.MethodPut:
		var req struct {
			Status domain.ProjectStatus `json:"status"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.UpdateProjectStatus(r.Context(), actorFrom(r), segs[0], req.Status)
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "traceability" && r.Method == http.MethodGet:
		matrix, err := h.Service.TraceabilityMatrix(r.Context(), segs[0])
		respond(w, http.StatusOK, matrix, err)
	case len(segs) == 2 && segs[1] == "summary" && r.Method == http.MethodGet:
		summary, err := h.Service.ValidationSummary(r.Context(), segs[0])
		respond(w, http.StatusOK, summary, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "consistency" && r.Method == http.MethodPost:
		report, err := h.Service.CheckConsistency(r.Context(), segs[0])
		respond(w, http.StatusOK, report, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleBoundaries(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var boundary domain.SystemBoundary
		if !decode(w, r, &boundary) {
			return
		}
		created, err := h.Service.CreateBoundary(r.Context(), actorFrom(r), boundary)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		boundary, ok := h.Service.Store().GetBoundary(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "system boundary not found")
			return
		}
		writeJSON(w, http.StatusOK, boundary)
	case len(segs) == 2 && segs[1] == "approve" && r.Method == http.MethodPost:
		updated, err := h.Service.ApproveBoundary(r.Context(), actorFrom(r), segs[0])
		respond(w, http.StatusOK, updated, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleRequirements(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	actor := actorFrom(r)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var req domain.Requirement
		if !decode(w, r, &req) {
			return
		}
		created, err := h.Service.CreateRequirement(r.Context(), actor, req)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 0 && r.Method == http.MethodGet:
		reqs := h.Service.Store().ListRequirements()
		if projectID := r.URL.Query().Get("project_id"); projectID != "" {
			filtered := reqs[:0]
			for _, req := range reqs {
				if req.ProjectID == projectID {
					filtered = append(filtered, req)
				}
			}
			reqs = filtered
		}
		writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
	case len(segs) == 1 && r.Method == http.MethodGet:
		req, ok := h.Service.Store().GetRequirement(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "requirement not found")
			return
		}
		writeJSON(w, http.StatusOK, req)
	case len(segs) == 2 && segs[1] == "risk" && r.Method == http.MethodPut:
		var req struct {
			PatientSafetyRisk  domain.RiskLevel `json:"patient_safety_risk"`
			ProductQualityRisk domain.RiskLevel `json:"product_quality_risk"`
			DataIntegrityRisk  domain.RiskLevel `json:"data_integrity_risk"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.UpdateRequirementRisk(r.Context(), actor, segs[0], req.PatientSafetyRisk, req.ProductQualityRisk, req.DataIntegrityRisk)
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "submit-review" && r.Method == http.MethodPost:
		updated, err := h.Service.SubmitRequirementForReview(r.Context(), actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "approve" && r.Method == http.MethodPost:
		updated, err := h.Service.ApproveRequirement(r.Context(), actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "obsolete" && r.Method == http.MethodPost:
		var req struct {
			Reason string `json:"reason"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.MarkRequirementObsolete(r.Context(), actor, segs[0], req.Reason)
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 3 && segs[1] == "ai":
		h.handleRequirementAI(w, r, actor, segs[0], segs[2])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleRequirementAI(w http.ResponseWriter, r *http.Request, actor domain.Actor, id, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	switch action {
	case "assess-risk":
		assessment, err := h.Service.SuggestRisk(ctx, id)
		respond(w, http.StatusOK, assessment, err)
	case "apply-risk":
		updated, err := h.Service.ApplyRiskSuggestion(ctx, actor, id)
		respond(w, http.StatusOK, updated, err)
	case "ambiguity":
		report, err := h.Service.CheckAmbiguity(ctx, id)
		respond(w, http.StatusOK, report, err)
	case "suggest-spec":
		draft, err := h.Service.SuggestFunctionalSpec(ctx, id)
		respond(w, http.StatusOK, draft, err)
	case "apply-spec":
		created, err := h.Service.ApplySpecDraft(ctx, actor, id)
		respond(w, http.StatusCreated, created, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleFunctionalSpecs(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	actor := actorFrom(r)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var spec domain.FunctionalSpec
		if !decode(w, r, &spec) {
			return
		}
		created, err := h.Service.CreateFunctionalSpec(r.Context(), actor, spec)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		spec, ok := h.Service.Store().GetFunctionalSpec(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "functional spec not found")
			return
		}
		writeJSON(w, http.StatusOK, spec)
	case len(segs) == 2 && segs[1] == "submit-review" && r.Method == http.MethodPost:
		updated, err := h.Service.SubmitFunctionalSpecForReview(r.Context(), actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "approve" && r.Method == http.MethodPost:
		updated, err := h.Service.ApproveFunctionalSpec(r.Context(), actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "suggest-tests" && r.Method == http.MethodPost:
		drafts, err := h.Service.SuggestTestCases(r.Context(), segs[0])
		respond(w, http.StatusOK, map[string]any{"drafts": drafts}, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "apply-tests" && r.Method == http.MethodPost:
		created, err := h.Service.ApplyTestCaseDrafts(r.Context(), actor, segs[0])
		respond(w, http.StatusCreated, map[string]any{"test_cases": created}, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleDesignSpecs(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var design domain.DesignSpec
		if !decode(w, r, &design) {
			return
		}
		created, err := h.Service.CreateDesignSpec(r.Context(), actorFrom(r), design)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		design, ok := h.Service.Store().GetDesignSpec(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "design spec not found")
			return
		}
		writeJSON(w, http.StatusOK, design)
	case len(segs) == 2 && segs[1] == "approve" && r.Method == http.MethodPost:
		updated, err := h.Service.ApproveDesignSpec(r.Context(), actorFrom(r), segs[0])
		respond(w, http.StatusOK, updated, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleTestCases(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var tc domain.TestCase
		if !decode(w, r, &tc) {
			return
		}
		created, err := h.Service.CreateTestCase(r.Context(), actorFrom(r), tc)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		tc, ok := h.Service.Store().GetTestCase(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "test case not found")
			return
		}
		writeJSON(w, http.StatusOK, tc)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleExecutions(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	actor := actorFrom(r)
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var exec domain.TestExecution
		if !decode(w, r, &exec) {
			return
		}
		created, err := h.Service.RecordExecution(r.Context(), actor, exec)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		exec, ok := h.Service.Store().GetTestExecution(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "test execution not found")
			return
		}
		writeJSON(w, http.StatusOK, exec)
	case len(segs) == 2 && segs[1] == "evidence" && r.Method == http.MethodPost:
		filename := r.URL.Query().Get("filename")
		if filename == "" {
			writeError(w, http.StatusBadRequest, "filename query parameter required")
			return
		}
		updated, info, err := h.Service.AttachEvidence(r.Context(), actor, segs[0], filename, r.Header.Get("Content-Type"), r.Body)
		respond(w, http.StatusCreated, map[string]any{"execution": updated, "evidence": info}, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleDeviations(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	actor := actorFrom(r)
	ctx := r.Context()
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var dev domain.Deviation
		if !decode(w, r, &dev) {
			return
		}
		created, err := h.Service.CreateDeviation(ctx, actor, dev)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		dev, ok := h.Service.Store().GetDeviation(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "deviation not found")
			return
		}
		writeJSON(w, http.StatusOK, dev)
	case len(segs) == 2 && r.Method == http.MethodPost:
		h.handleDeviationAction(w, r, actor, segs[0], segs[1])
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "root-cause" && r.Method == http.MethodPost:
		suggestion, err := h.Service.SuggestRootCause(ctx, segs[0])
		respond(w, http.StatusOK, suggestion, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "apply-root-cause" && r.Method == http.MethodPost:
		updated, err := h.Service.ApplyRootCauseSuggestion(ctx, actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleDeviationAction(w http.ResponseWriter, r *http.Request, actor domain.Actor, id, action string) {
	ctx := r.Context()
	switch action {
	case "investigate":
		var req struct {
			Summary string `json:"investigation_summary"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.InvestigateDeviation(ctx, actor, id, req.Summary)
		respond(w, http.StatusOK, updated, err)
	case "assign-capa":
		var req struct {
			Corrective            string `json:"capa_corrective"`
			Preventive            string `json:"capa_preventive"`
			DueDate               string `json:"capa_due_date"`
			AssignedTo            string `json:"assigned_to"`
			EffectivenessCriteria string `json:"effectiveness_criteria"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.AssignCAPA(ctx, actor, id, core.CAPAPlan{
			Corrective:            req.Corrective,
			Preventive:            req.Preventive,
			DueDate:               req.DueDate,
			AssignedTo:            req.AssignedTo,
			EffectivenessCriteria: req.EffectivenessCriteria,
		})
		respond(w, http.StatusOK, updated, err)
	case "verify-capa":
		var req struct {
			Evidence string `json:"effectiveness_evidence"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.VerifyCAPA(ctx, actor, id, req.Evidence)
		respond(w, http.StatusOK, updated, err)
	case "close":
		var req struct {
			Evidence string `json:"effectiveness_evidence"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.CloseDeviation(ctx, actor, id, req.Evidence)
		respond(w, http.StatusOK, updated, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request, remainder string) {
	segs := segments(remainder)
	actor := actorFrom(r)
	ctx := r.Context()
	switch {
	case len(segs) == 0 && r.Method == http.MethodPost:
		var change domain.ChangeRequest
		if !decode(w, r, &change) {
			return
		}
		created, err := h.Service.CreateChange(ctx, actor, change)
		respond(w, http.StatusCreated, created, err)
	case len(segs) == 1 && r.Method == http.MethodGet:
		change, ok := h.Service.Store().GetChangeRequest(segs[0])
		if !ok {
			writeError(w, http.StatusNotFound, "change request not found")
			return
		}
		writeJSON(w, http.StatusOK, change)
	case len(segs) == 2 && segs[1] == "analyze" && r.Method == http.MethodPost:
		var req struct {
			Assessment           string           `json:"impact_assessment"`
			AffectedRequirements []string         `json:"affected_urs"`
			AffectedSpecs        []string         `json:"affected_fs"`
			AffectedTestCases    []string         `json:"affected_tc"`
			RevalidationRequired bool             `json:"revalidation_required"`
			RevalidationScope    string           `json:"revalidation_scope"`
			RiskAssessment       string           `json:"risk_assessment"`
			RiskLevel            domain.RiskLevel `json:"risk_level"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.AnalyzeChange(ctx, actor, segs[0], core.ChangeImpact{
			Assessment:           req.Assessment,
			AffectedRequirements: req.AffectedRequirements,
			AffectedSpecs:        req.AffectedSpecs,
			AffectedTestCases:    req.AffectedTestCases,
			RevalidationRequired: req.RevalidationRequired,
			RevalidationScope:    req.RevalidationScope,
			RiskAssessment:       req.RiskAssessment,
			RiskLevel:            req.RiskLevel,
		})
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "approve" && r.Method == http.MethodPost:
		updated, err := h.Service.ApproveChange(ctx, actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "implement" && r.Method == http.MethodPost:
		updated, err := h.Service.StartChangeImplementation(ctx, actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "complete" && r.Method == http.MethodPost:
		updated, err := h.Service.CompleteChange(ctx, actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 2 && segs[1] == "reject" && r.Method == http.MethodPost:
		var req struct {
			Reason string `json:"reason"`
		}
		if !decode(w, r, &req) {
			return
		}
		updated, err := h.Service.RejectChange(ctx, actor, segs[0], req.Reason)
		respond(w, http.StatusOK, updated, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "impact" && r.Method == http.MethodPost:
		analysis, err := h.Service.SuggestChangeImpact(ctx, segs[0])
		respond(w, http.StatusOK, analysis, err)
	case len(segs) == 3 && segs[1] == "ai" && segs[2] == "apply-impact" && r.Method == http.MethodPost:
		updated, err := h.Service.ApplyImpactSuggestion(ctx, actor, segs[0])
		respond(w, http.StatusOK, updated, err)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityType    domain.EntityType    `json:"entity_type"`
		EntityID      string               `json:"entity_id"`
		SignatureType domain.SignatureType `json:"signature_type"`
		Meaning       string               `json:"meaning"`
		Reason        string               `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	created, err := h.Service.Sign(r.Context(), actorFrom(r), req.EntityType, req.EntityID, req.SignatureType, req.Meaning, req.Reason)
	respond(w, http.StatusCreated, created, err)
}

func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound     domain.NotFoundError
		forbidden    domain.ForbiddenError
		selfApproval domain.SelfApprovalError
		invalidState domain.InvalidStateError
		precondition domain.PreconditionError
		violation    domain.RuleViolationError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &selfApproval):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &invalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &precondition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &violation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
