package core

import (
	"context"
	"math"
	"sort"

	"vmscore/pkg/domain"
)

// TraceabilityRow is one Requirement x FS x TestCase combination with its
// latest execution, linked deviation, and derived chain status. A requirement
// with no functional spec yields a single row with the downstream fields
// empty.
type TraceabilityRow struct {
	RequirementID     string                 `json:"urs_id"`
	Title             string                 `json:"urs_title"`
	Status            string                 `json:"urs_status"`
	OverallRisk       domain.RiskLevel       `json:"urs_risk"`
	FunctionalSpecID  string                 `json:"fs_id,omitempty"`
	FunctionalStatus  string                 `json:"fs_status,omitempty"`
	DesignSpecID      string                 `json:"ds_id,omitempty"`
	TestCaseID        string                 `json:"tc_id,omitempty"`
	TestCaseTitle     string                 `json:"tc_title,omitempty"`
	LatestExecutionID string                 `json:"exec_id,omitempty"`
	LatestResult      domain.TestResult      `json:"exec_result,omitempty"`
	LatestCycle       int                    `json:"exec_cycle,omitempty"`
	DeviationID       string                 `json:"deviation_id,omitempty"`
	DeviationStatus   domain.DeviationStatus `json:"deviation_status,omitempty"`
	Chain             domain.ChainStatus     `json:"chain_status"`
}

// TraceabilityMatrix links every requirement to its downstream artifacts.
// Rows and coverage are always derived from current state, never stored.
// Coverage counts requirements, not rows: a requirement is covered when at
// least one of its rows is Complete.
type TraceabilityMatrix struct {
	ProjectID            string            `json:"project_id"`
	Rows                 []TraceabilityRow `json:"rows"`
	TotalRequirements    int               `json:"total_requirements"`
	CompleteRequirements int               `json:"complete_requirements"`
	CoveragePercent      float64           `json:"coverage_percent"`
}

// TraceabilityMatrix derives the matrix for a project from one consistent
// snapshot.
func (s *Service) TraceabilityMatrix(ctx context.Context, projectID string) (TraceabilityMatrix, error) {
	matrix := TraceabilityMatrix{ProjectID: projectID}
	err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		reqs := v.ListRequirementsByProject(projectID)
		sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
		for _, req := range reqs {
			if req.Status == domain.RequirementObsolete {
				continue
			}
			matrix.TotalRequirements++
			rows := requirementRows(v, req)
			complete := false
			for _, row := range rows {
				if row.Chain == domain.ChainComplete {
					complete = true
				}
			}
			if complete {
				matrix.CompleteRequirements++
			}
			matrix.Rows = append(matrix.Rows, rows...)
		}
		return nil
	})
	if err != nil {
		return TraceabilityMatrix{}, err
	}
	if matrix.TotalRequirements > 0 {
		matrix.CoveragePercent = math.Round(100 * float64(matrix.CompleteRequirements) / float64(matrix.TotalRequirements))
	}
	return matrix, nil
}

// requirementRows left-joins one requirement through FS, TestCase, latest
// execution, and deviation, emitting one row per distinct combination.
func requirementRows(v TransactionView, req domain.Requirement) []TraceabilityRow {
	base := TraceabilityRow{
		RequirementID: req.ID,
		Title:         req.Title,
		Status:        string(req.Status),
		OverallRisk:   req.OverallRisk,
	}
	specs := v.ListFunctionalSpecsByRequirement(req.ID)
	if len(specs) == 0 {
		base.Chain = domain.ChainNotStarted
		return []TraceabilityRow{base}
	}

	var rows []TraceabilityRow
	for _, spec := range specs {
		row := base
		row.FunctionalSpecID = spec.ID
		row.FunctionalStatus = string(spec.Status)
		if designs := v.ListDesignSpecsByFunctionalSpec(spec.ID); len(designs) > 0 {
			row.DesignSpecID = designs[0].ID
		}
		cases := v.ListTestCasesByFunctionalSpec(spec.ID)
		if len(cases) == 0 {
			row.Chain = domain.ChainNotStarted
			rows = append(rows, row)
			continue
		}
		for _, tc := range cases {
			rows = append(rows, caseRow(v, spec, tc, row))
		}
	}
	return rows
}

func caseRow(v TransactionView, spec domain.FunctionalSpec, tc domain.TestCase, row TraceabilityRow) TraceabilityRow {
	row.TestCaseID = tc.ID
	row.TestCaseTitle = tc.Title
	latest, executed := latestExecution(v.ListTestExecutionsByTestCase(tc.ID))
	if executed {
		row.LatestExecutionID = latest.ID
		row.LatestResult = latest.Result
		row.LatestCycle = latest.Cycle
		if latest.DeviationID != nil {
			row.DeviationID = *latest.DeviationID
			if dev, ok := v.FindDeviation(*latest.DeviationID); ok {
				row.DeviationStatus = dev.Status
			}
		}
	}

	// Precedence: Failed, then Complete, then Partial. Not Started never
	// applies here; a linked test case rules it out.
	switch {
	case executed && latest.Result == domain.ResultFail && !resolvedDeviation(v, latest):
		row.Chain = domain.ChainFailed
	case executed && latest.Result == domain.ResultPass && spec.Status == domain.SpecApproved:
		row.Chain = domain.ChainComplete
	default:
		row.Chain = domain.ChainPartial
	}
	return row
}

func resolvedDeviation(v TransactionView, exec domain.TestExecution) bool {
	if exec.DeviationID == nil {
		return false
	}
	dev, ok := v.FindDeviation(*exec.DeviationID)
	return ok && dev.Resolved()
}

// latestExecution picks the run with the greatest execution timestamp, ties
// broken by the higher cycle number.
func latestExecution(execs []domain.TestExecution) (domain.TestExecution, bool) {
	if len(execs) == 0 {
		return domain.TestExecution{}, false
	}
	latest := execs[0]
	for _, e := range execs[1:] {
		if e.ExecutedAt.After(latest.ExecutedAt) {
			latest = e
			continue
		}
		if e.ExecutedAt.Equal(latest.ExecutedAt) && e.Cycle > latest.Cycle {
			latest = e
		}
	}
	return latest, true
}
