package core

import (
	"context"
	"fmt"

	"vmscore/internal/assist"
	"vmscore/pkg/domain"
)

// Every AI suggestion is advisory. Suggestion calls read state and leave an
// audit entry under the reserved AI identity; no suggestion mutates a record
// until an authorized actor applies it, and applied suggestions are flagged
// on the record.

// SuggestRisk returns a suggested risk grading for a requirement.
func (s *Service) SuggestRisk(ctx context.Context, id string) (assist.RiskAssessment, error) {
	var req domain.Requirement
	if err := s.findRequirement(ctx, id, &req); err != nil {
		return assist.RiskAssessment{}, err
	}
	assessment, err := s.assistant.AssessRisk(ctx, req)
	if err != nil {
		return assist.RiskAssessment{}, err
	}
	err = s.auditSuggestion(ctx, "suggest_risk", domain.EntityRequirement, id,
		fmt.Sprintf("Suggested risk assessment: overall %s (confidence %.2f)", assessment.OverallRisk, assessment.Confidence))
	return assessment, err
}

// ApplyRiskSuggestion applies the assistant's risk grading to a mutable
// requirement and flags it as AI suggested.
func (s *Service) ApplyRiskSuggestion(ctx context.Context, actor Actor, id string) (domain.Requirement, error) {
	var req domain.Requirement
	if err := s.findRequirement(ctx, id, &req); err != nil {
		return domain.Requirement{}, err
	}
	assessment, err := s.assistant.AssessRisk(ctx, req)
	if err != nil {
		return domain.Requirement{}, err
	}
	var updated domain.Requirement
	err = s.run(ctx, "apply_risk_suggestion", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if !current.Mutable() {
			return domain.PreconditionError{Entity: domain.EntityRequirement, ID: id, Reason: fmt.Sprintf("requirement in status %s is immutable", current.Status)}
		}
		var txErr error
		updated, txErr = tx.UpdateRequirement(id, func(r *domain.Requirement) error {
			r.GxPImpact = assessment.GxPImpact
			r.PatientSafetyRisk = assessment.PatientSafetyRisk
			r.ProductQualityRisk = assessment.ProductQualityRisk
			r.DataIntegrityRisk = assessment.DataIntegrityRisk
			r.OverallRisk = domain.MaxRisk(assessment.PatientSafetyRisk, assessment.ProductQualityRisk, assessment.DataIntegrityRisk)
			r.AISuggested = true
			return nil
		})
		if txErr != nil {
			return txErr
		}
		return audit(tx, "apply_risk_suggestion", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditUpdateRisk,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			OldValue: strPtr(string(current.OverallRisk)),
			NewValue: strPtr(string(updated.OverallRisk)),
			Details:  fmt.Sprintf("Accepted AI risk suggestion: %s", assessment.Reason),
		})
	})
	return updated, err
}

// CheckAmbiguity scores a requirement's language clarity. The score and
// notes are persisted on the record only while it is still mutable; for an
// approved or obsolete requirement the report is returned without touching
// the record.
func (s *Service) CheckAmbiguity(ctx context.Context, id string) (assist.AmbiguityReport, error) {
	var req domain.Requirement
	if err := s.findRequirement(ctx, id, &req); err != nil {
		return assist.AmbiguityReport{}, err
	}
	report, err := s.assistant.DetectAmbiguity(ctx, req)
	if err != nil {
		return assist.AmbiguityReport{}, err
	}
	notes := ""
	for i, issue := range report.Issues {
		if i > 0 {
			notes += "; "
		}
		notes += fmt.Sprintf("%s: %q", issue.Type, issue.Term)
	}
	err = s.run(ctx, "check_ambiguity", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		if current.Mutable() {
			if _, err := tx.UpdateRequirement(id, func(r *domain.Requirement) error {
				score := report.Score
				r.AmbiguityScore = &score
				if notes != "" {
					r.AmbiguityNotes = strPtr(notes)
				} else {
					r.AmbiguityNotes = nil
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return audit(tx, "check_ambiguity", domain.AuditEntry{
			Actor:    domain.AIActor.Identity,
			Role:     domain.AIActor.Role,
			Action:   domain.AuditSuggest,
			Entity:   domain.EntityRequirement,
			EntityID: id,
			NewValue: strPtr(fmt.Sprintf("%.2f", report.Score)),
			Details:  fmt.Sprintf("Ambiguity analysis: score %.2f, %d issue(s)", report.Score, len(report.Issues)),
		})
	})
	return report, err
}

// SuggestFunctionalSpec drafts a functional spec for a requirement.
func (s *Service) SuggestFunctionalSpec(ctx context.Context, id string) (assist.SpecDraft, error) {
	var req domain.Requirement
	if err := s.findRequirement(ctx, id, &req); err != nil {
		return assist.SpecDraft{}, err
	}
	draft, err := s.assistant.DraftFunctionalSpec(ctx, req)
	if err != nil {
		return assist.SpecDraft{}, err
	}
	err = s.auditSuggestion(ctx, "suggest_functional_spec", domain.EntityRequirement, id,
		fmt.Sprintf("Drafted functional spec %q", draft.Title))
	return draft, err
}

// ApplySpecDraft creates a functional spec from the assistant's draft. The
// approval gate on the requirement still applies; the created spec is
// flagged as AI generated and starts in Draft like any other.
func (s *Service) ApplySpecDraft(ctx context.Context, actor Actor, requirementID string) (domain.FunctionalSpec, error) {
	var req domain.Requirement
	if err := s.findRequirement(ctx, requirementID, &req); err != nil {
		return domain.FunctionalSpec{}, err
	}
	draft, err := s.assistant.DraftFunctionalSpec(ctx, req)
	if err != nil {
		return domain.FunctionalSpec{}, err
	}
	return s.CreateFunctionalSpec(ctx, actor, domain.FunctionalSpec{
		RequirementID:     requirementID,
		Title:             draft.Title,
		Description:       draft.Description,
		TechnicalApproach: draft.Approach,
		AIGenerated:       true,
	})
}

// SuggestTestCases drafts test cases for a functional spec.
func (s *Service) SuggestTestCases(ctx context.Context, specID string) ([]assist.TestCaseDraft, error) {
	var spec domain.FunctionalSpec
	var req domain.Requirement
	if err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		spec, ok = v.FindFunctionalSpec(specID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: specID}
		}
		req, _ = v.FindRequirement(spec.RequirementID)
		return nil
	}); err != nil {
		return nil, err
	}
	drafts, err := s.assistant.DraftTestCases(ctx, spec, req)
	if err != nil {
		return nil, err
	}
	err = s.auditSuggestion(ctx, "suggest_test_cases", domain.EntityFunctionalSpec, specID,
		fmt.Sprintf("Drafted %d test case(s)", len(drafts)))
	return drafts, err
}

// ApplyTestCaseDrafts creates test cases from the assistant's drafts, each
// flagged as AI generated.
func (s *Service) ApplyTestCaseDrafts(ctx context.Context, actor Actor, specID string) ([]domain.TestCase, error) {
	drafts, err := s.SuggestTestCases(ctx, specID)
	if err != nil {
		return nil, err
	}
	created := make([]domain.TestCase, 0, len(drafts))
	for _, draft := range drafts {
		tc, err := s.CreateTestCase(ctx, actor, domain.TestCase{
			FunctionalSpecID: specID,
			TestType:         draft.TestType,
			Title:            draft.Title,
			Description:      draft.Description,
			TestSteps:        draft.Steps,
			ExpectedResult:   draft.ExpectedResult,
			Priority:         draft.Priority,
			AIGenerated:      true,
		})
		if err != nil {
			return created, err
		}
		created = append(created, tc)
	}
	return created, nil
}

// SuggestRootCause proposes a root cause and CAPA text for a deviation.
func (s *Service) SuggestRootCause(ctx context.Context, id string) (assist.RootCauseSuggestion, error) {
	var dev domain.Deviation
	if err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		dev, ok = v.FindDeviation(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDeviation, ID: id}
		}
		return nil
	}); err != nil {
		return assist.RootCauseSuggestion{}, err
	}
	suggestion, err := s.assistant.SuggestRootCause(ctx, dev)
	if err != nil {
		return assist.RootCauseSuggestion{}, err
	}
	err = s.auditSuggestion(ctx, "suggest_root_cause", domain.EntityDeviation, id,
		fmt.Sprintf("Suggested root cause category %s (confidence %.2f)", suggestion.Category, suggestion.Confidence))
	return suggestion, err
}

// ApplyRootCauseSuggestion records the assistant's root cause on an open
// deviation and flags it as AI suggested.
func (s *Service) ApplyRootCauseSuggestion(ctx context.Context, actor Actor, id string) (domain.Deviation, error) {
	suggestion, err := s.SuggestRootCause(ctx, id)
	if err != nil {
		return domain.Deviation{}, err
	}
	var updated domain.Deviation
	err = s.run(ctx, "apply_root_cause_suggestion", func(tx Transaction) error {
		current, ok := tx.Snapshot().FindDeviation(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityDeviation, ID: id}
		}
		if !current.Open() {
			return domain.InvalidStateError{Entity: domain.EntityDeviation, ID: id, From: string(current.Status), To: string(current.Status)}
		}
		var txErr error
		updated, txErr = tx.UpdateDeviation(id, func(d *domain.Deviation) error {
			d.RootCause = suggestion.RootCause
			d.RootCauseCategory = suggestion.Category
			d.RootCauseAISuggested = true
			return nil
		})
		if txErr != nil {
			return txErr
		}
		return audit(tx, "apply_root_cause_suggestion", domain.AuditEntry{
			Actor:    actor.Identity,
			Role:     actor.Role,
			Action:   domain.AuditUpdate,
			Entity:   domain.EntityDeviation,
			EntityID: id,
			NewValue: strPtr(suggestion.Category),
			Details:  "Accepted AI root cause suggestion",
		})
	})
	return updated, err
}

// SuggestChangeImpact analyzes which artifacts a change request plausibly
// affects.
func (s *Service) SuggestChangeImpact(ctx context.Context, id string) (assist.ImpactAnalysis, error) {
	var change domain.ChangeRequest
	var reqs []domain.Requirement
	var specs []domain.FunctionalSpec
	var cases []domain.TestCase
	if err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		change, ok = v.FindChangeRequest(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityChangeRequest, ID: id}
		}
		reqs = v.ListRequirementsByProject(change.ProjectID)
		for _, r := range reqs {
			specs = append(specs, v.ListFunctionalSpecsByRequirement(r.ID)...)
		}
		for _, f := range specs {
			cases = append(cases, v.ListTestCasesByFunctionalSpec(f.ID)...)
		}
		return nil
	}); err != nil {
		return assist.ImpactAnalysis{}, err
	}
	analysis, err := s.assistant.AnalyzeChangeImpact(ctx, change, reqs, specs, cases)
	if err != nil {
		return assist.ImpactAnalysis{}, err
	}
	err = s.auditSuggestion(ctx, "suggest_change_impact", domain.EntityChangeRequest, id,
		fmt.Sprintf("Suggested impact: %d requirement(s), %d spec(s), %d test case(s)", len(analysis.AffectedRequirements), len(analysis.AffectedSpecs), len(analysis.AffectedTestCases)))
	return analysis, err
}

// ApplyImpactSuggestion records the assistant's impact analysis on the
// change request, moving it to Impact Analysis and flagging the suggestion.
func (s *Service) ApplyImpactSuggestion(ctx context.Context, actor Actor, id string) (domain.ChangeRequest, error) {
	analysis, err := s.SuggestChangeImpact(ctx, id)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	return s.advanceChange(ctx, actor, id, "apply_impact_suggestion", domain.ChangeRequested, domain.ChangeImpactAnalysis, domain.AuditAnalyze, "Accepted AI impact analysis", func(c *domain.ChangeRequest) {
		c.ImpactAssessment = analysis.RiskAssessment
		c.AffectedRequirements = analysis.AffectedRequirements
		c.AffectedSpecs = analysis.AffectedSpecs
		c.AffectedTestCases = analysis.AffectedTestCases
		c.RevalidationRequired = analysis.RevalidationRequired
		c.RiskAssessment = analysis.RiskAssessment
		c.AIImpactSuggested = true
	})
}

// CheckConsistency scans a project's artifact set for cross-artifact
// inconsistencies.
func (s *Service) CheckConsistency(ctx context.Context, projectID string) (assist.ConsistencyReport, error) {
	var reqs []domain.Requirement
	var specs []domain.FunctionalSpec
	var cases []domain.TestCase
	if err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.FindProject(projectID); !ok {
			return domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		reqs = v.ListRequirementsByProject(projectID)
		for _, r := range reqs {
			specs = append(specs, v.ListFunctionalSpecsByRequirement(r.ID)...)
		}
		for _, f := range specs {
			cases = append(cases, v.ListTestCasesByFunctionalSpec(f.ID)...)
		}
		return nil
	}); err != nil {
		return assist.ConsistencyReport{}, err
	}
	report, err := s.assistant.CheckConsistency(ctx, projectID, reqs, specs, cases)
	if err != nil {
		return assist.ConsistencyReport{}, err
	}
	err = s.auditSuggestion(ctx, "check_consistency", domain.EntityProject, projectID,
		fmt.Sprintf("Consistency check: score %d, %d issue(s)", report.Score, len(report.Issues)))
	return report, err
}

func (s *Service) findRequirement(ctx context.Context, id string, out *domain.Requirement) error {
	return s.store.View(ctx, func(v TransactionView) error {
		req, ok := v.FindRequirement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
		}
		*out = req
		return nil
	})
}

// auditSuggestion records an advisory AI interaction under the reserved AI
// identity without touching any record.
func (s *Service) auditSuggestion(ctx context.Context, op string, entity domain.EntityType, entityID, details string) error {
	return s.run(ctx, op, func(tx Transaction) error {
		return audit(tx, op, domain.AuditEntry{
			Actor:    domain.AIActor.Identity,
			Role:     domain.AIActor.Role,
			Action:   domain.AuditSuggest,
			Entity:   entity,
			EntityID: entityID,
			Details:  details,
		})
	})
}
