package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"vmscore/pkg/domain"
)

// RequirementSummary counts requirement lifecycle states for a project.
type RequirementSummary struct {
	Total       int                      `json:"total"`
	Approved    int                      `json:"approved"`
	ByRisk      map[domain.RiskLevel]int `json:"by_risk"`
	GxPImpacted int                      `json:"gxp_impacted"`
}

// TestingSummary aggregates execution outcomes. Pass rate is computed over
// executed runs only; Not Executed entries never count against it.
type TestingSummary struct {
	TotalTestCases  int     `json:"total_test_cases"`
	TotalExecutions int     `json:"total_executions"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Blocked         int     `json:"blocked"`
	NotExecuted     int     `json:"not_executed"`
	PassRatePercent float64 `json:"pass_rate_percent"`
}

// DeviationSummary aggregates the deviation workload for a project.
type DeviationSummary struct {
	Total          int                      `json:"total"`
	Open           int                      `json:"open"`
	Closed         int                      `json:"closed"`
	OpenBySeverity map[domain.RiskLevel]int `json:"open_by_severity"`
	OpenWithCAPA   int                      `json:"open_with_capa_plan"`
}

// ChangeSummary aggregates change request state for a project.
type ChangeSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Rejected   int `json:"rejected"`
	InProgress int `json:"in_progress"`
}

// TraceabilitySummary condenses the matrix for the report.
type TraceabilitySummary struct {
	CoveragePercent float64 `json:"coverage_percent"`
	Complete        int     `json:"complete_chains"`
	Failed          int     `json:"failed_chains"`
	Partial         int     `json:"partial_chains"`
	NotStarted      int     `json:"not_started_chains"`
}

// ValidationSummary is the validation summary report for one project. It is
// derived entirely from current state; generating it changes nothing.
type ValidationSummary struct {
	ProjectID     string               `json:"project_id"`
	ProjectName   string               `json:"project_name"`
	ProjectStatus domain.ProjectStatus `json:"project_status"`
	GeneratedAt   time.Time            `json:"generated_at"`
	Requirements  RequirementSummary   `json:"requirements"`
	Testing       TestingSummary       `json:"testing"`
	Deviations    DeviationSummary     `json:"deviations"`
	Changes       ChangeSummary        `json:"changes"`
	Traceability  TraceabilitySummary  `json:"traceability"`
	Decision      domain.Decision      `json:"decision"`
	Rationale     string               `json:"decision_rationale"`
}

// ValidationSummary builds the summary report and recommends a release
// decision.
func (s *Service) ValidationSummary(ctx context.Context, projectID string) (ValidationSummary, error) {
	matrix, err := s.TraceabilityMatrix(ctx, projectID)
	if err != nil {
		return ValidationSummary{}, err
	}
	report := ValidationSummary{ProjectID: projectID, GeneratedAt: s.nowFn()}
	err = s.store.View(ctx, func(v TransactionView) error {
		project, ok := v.FindProject(projectID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		report.ProjectName = project.Name
		report.ProjectStatus = project.Status

		report.Requirements = summarizeRequirements(v.ListRequirementsByProject(projectID))
		report.Testing = summarizeTesting(v, matrix)
		report.Deviations = summarizeDeviations(v.ListDeviationsByProject(projectID))
		report.Changes = summarizeChanges(v.ListChangeRequestsByProject(projectID))
		return nil
	})
	if err != nil {
		return ValidationSummary{}, err
	}

	report.Traceability = TraceabilitySummary{CoveragePercent: matrix.CoveragePercent}
	for _, row := range matrix.Rows {
		switch row.Chain {
		case domain.ChainComplete:
			report.Traceability.Complete++
		case domain.ChainFailed:
			report.Traceability.Failed++
		case domain.ChainPartial:
			report.Traceability.Partial++
		case domain.ChainNotStarted:
			report.Traceability.NotStarted++
		}
	}

	report.Decision, report.Rationale = recommendDecision(report)
	return report, nil
}

func summarizeRequirements(reqs []domain.Requirement) RequirementSummary {
	sum := RequirementSummary{ByRisk: make(map[domain.RiskLevel]int)}
	for _, r := range reqs {
		if r.Status == domain.RequirementObsolete {
			continue
		}
		sum.Total++
		if r.Status == domain.RequirementApproved {
			sum.Approved++
		}
		sum.ByRisk[r.OverallRisk]++
		if r.GxPImpact {
			sum.GxPImpacted++
		}
	}
	return sum
}

func summarizeTesting(v TransactionView, matrix TraceabilityMatrix) TestingSummary {
	sum := TestingSummary{}
	for _, row := range matrix.Rows {
		if row.TestCaseID == "" {
			continue
		}
		sum.TotalTestCases++
		for _, exec := range v.ListTestExecutionsByTestCase(row.TestCaseID) {
			sum.TotalExecutions++
			switch exec.Result {
			case domain.ResultPass:
				sum.Passed++
			case domain.ResultFail:
				sum.Failed++
			case domain.ResultBlocked:
				sum.Blocked++
			case domain.ResultNotExecuted:
				sum.NotExecuted++
			}
		}
	}
	executed := sum.TotalExecutions - sum.NotExecuted
	if executed < 1 {
		executed = 1
	}
	sum.PassRatePercent = math.Round(float64(sum.Passed)/float64(executed)*10000) / 100
	return sum
}

func summarizeDeviations(devs []domain.Deviation) DeviationSummary {
	sum := DeviationSummary{OpenBySeverity: make(map[domain.RiskLevel]int)}
	for _, d := range devs {
		sum.Total++
		if !d.Open() {
			sum.Closed++
			continue
		}
		sum.Open++
		sum.OpenBySeverity[d.Severity]++
		if d.CAPACorrective != "" && d.CAPADueDate != nil {
			sum.OpenWithCAPA++
		}
	}
	return sum
}

func summarizeChanges(changes []domain.ChangeRequest) ChangeSummary {
	sum := ChangeSummary{}
	for _, c := range changes {
		sum.Total++
		switch c.Status {
		case domain.ChangeCompleted:
			sum.Completed++
		case domain.ChangeRejected:
			sum.Rejected++
		default:
			sum.InProgress++
		}
	}
	return sum
}

// recommendDecision applies the release decision policy. Failed chains or
// open High/Critical deviations always block; open Low/Medium deviations
// permit a conditional approval only when every one carries a CAPA plan with
// a due date.
func recommendDecision(report ValidationSummary) (domain.Decision, string) {
	openHigh := report.Deviations.OpenBySeverity[domain.RiskHigh] + report.Deviations.OpenBySeverity[domain.RiskCritical]
	switch {
	case openHigh > 0:
		return domain.DecisionNotApproved, fmt.Sprintf("%d open High/Critical deviation(s) must be resolved before release", openHigh)
	case report.Traceability.Failed > 0:
		return domain.DecisionNotApproved, fmt.Sprintf("%d requirement chain(s) have unresolved test failures", report.Traceability.Failed)
	case report.Deviations.Open > 0 && report.Deviations.OpenWithCAPA == report.Deviations.Open:
		return domain.DecisionConditionallyApproved, fmt.Sprintf("%d open Low/Medium deviation(s) tracked under CAPA plans with due dates", report.Deviations.Open)
	case report.Deviations.Open > 0:
		return domain.DecisionNotApproved, fmt.Sprintf("%d open deviation(s) lack a CAPA plan with a due date", report.Deviations.Open)
	default:
		return domain.DecisionApproved, "All requirement chains settled with no open deviations"
	}
}

// DashboardMetrics is the cross-project operational overview.
type DashboardMetrics struct {
	Projects          map[domain.ProjectStatus]int `json:"projects_by_status"`
	TotalProjects     int                          `json:"total_projects"`
	TotalRequirements int                          `json:"total_requirements"`
	PendingApprovals  int                          `json:"pending_approvals"`
	OpenDeviations    int                          `json:"open_deviations"`
	OpenChanges       int                          `json:"open_changes"`
	TotalExecutions   int                          `json:"total_executions"`
}

// Dashboard aggregates workload counters across every project.
func (s *Service) Dashboard(ctx context.Context) (DashboardMetrics, error) {
	metrics := DashboardMetrics{Projects: make(map[domain.ProjectStatus]int)}
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, p := range v.ListProjects() {
			metrics.TotalProjects++
			metrics.Projects[p.Status]++
		}
		for _, r := range v.ListRequirements() {
			if r.Status == domain.RequirementObsolete {
				continue
			}
			metrics.TotalRequirements++
			if r.Status == domain.RequirementUnderReview {
				metrics.PendingApprovals++
			}
		}
		for _, f := range v.ListFunctionalSpecs() {
			if f.Status == domain.SpecUnderReview {
				metrics.PendingApprovals++
			}
		}
		for _, d := range v.ListDeviations() {
			if d.Open() {
				metrics.OpenDeviations++
			}
		}
		for _, c := range v.ListChangeRequests() {
			if !c.Terminal() {
				metrics.OpenChanges++
			}
		}
		metrics.TotalExecutions = len(v.ListTestExecutions())
		return nil
	})
	return metrics, err
}
