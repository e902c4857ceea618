// Package assist provides advisory AI assistance for the validation
// lifecycle. Suggestions are explainable, never mutate engine state, and
// always require human acceptance before they touch a record.
package assist

import (
	"context"
	"time"

	"vmscore/pkg/domain"
)

// RiskAssessment is a suggested risk grading for a requirement.
type RiskAssessment struct {
	GxPImpact          bool             `json:"gxp_impact"`
	PatientSafetyRisk  domain.RiskLevel `json:"patient_safety_risk"`
	ProductQualityRisk domain.RiskLevel `json:"product_quality_risk"`
	DataIntegrityRisk  domain.RiskLevel `json:"data_integrity_risk"`
	OverallRisk        domain.RiskLevel `json:"overall_risk"`
	Reason             string           `json:"reason"`
	Confidence         float64          `json:"confidence"`
}

// AmbiguityIssue flags one ambiguous phrase in a requirement.
type AmbiguityIssue struct {
	Type       string `json:"type"`
	Term       string `json:"term"`
	Suggestion string `json:"suggestion"`
}

// AmbiguityReport scores requirement language clarity from 0 (clear) to 1.
type AmbiguityReport struct {
	RequirementID string           `json:"urs_id"`
	Score         float64          `json:"ambiguity_score"`
	Issues        []AmbiguityIssue `json:"issues"`
	Suggestions   []string         `json:"suggestions"`
}

// SpecDraft is a suggested functional specification for a requirement.
type SpecDraft struct {
	RequirementID string `json:"urs_id"`
	Title         string `json:"suggested_title"`
	Description   string `json:"suggested_description"`
	Approach      string `json:"suggested_approach"`
}

// TestCaseDraft is one suggested test case derived from a functional spec.
type TestCaseDraft struct {
	TestType       string `json:"test_type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Steps          string `json:"steps"`
	ExpectedResult string `json:"expected"`
	Priority       string `json:"priority"`
}

// RootCauseSuggestion proposes a root cause category and CAPA text for a
// deviation.
type RootCauseSuggestion struct {
	DeviationID string  `json:"deviation_id"`
	RootCause   string  `json:"suggested_root_cause"`
	Category    string  `json:"suggested_category"`
	CAPA        string  `json:"suggested_capa"`
	Confidence  float64 `json:"confidence"`
}

// ImpactAnalysis lists artifacts plausibly affected by a change request.
type ImpactAnalysis struct {
	ChangeID             string   `json:"change_id"`
	AffectedRequirements []string `json:"affected_urs"`
	AffectedSpecs        []string `json:"affected_fs"`
	AffectedTestCases    []string `json:"affected_tc"`
	RevalidationRequired bool     `json:"revalidation_required"`
	EstimatedEffort      string   `json:"estimated_effort"`
	RiskAssessment       string   `json:"risk_assessment"`
}

// ConsistencyIssue flags one cross-artifact inconsistency.
type ConsistencyIssue struct {
	Entity      domain.EntityType `json:"entity"`
	EntityID    string            `json:"entity_id"`
	IssueType   string            `json:"issue_type"`
	Description string            `json:"description"`
	Suggestion  string            `json:"suggestion"`
}

// ConsistencyReport scores a project's artifact set from 0 to 100.
type ConsistencyReport struct {
	ProjectID string             `json:"project_id"`
	Issues    []ConsistencyIssue `json:"issues"`
	Score     int                `json:"score"`
}

// Assistant generates advisory suggestions for validation artifacts. All
// methods are read-only with respect to engine state.
type Assistant interface {
	AssessRisk(ctx context.Context, req domain.Requirement) (RiskAssessment, error)
	DetectAmbiguity(ctx context.Context, req domain.Requirement) (AmbiguityReport, error)
	DraftFunctionalSpec(ctx context.Context, req domain.Requirement) (SpecDraft, error)
	DraftTestCases(ctx context.Context, spec domain.FunctionalSpec, req domain.Requirement) ([]TestCaseDraft, error)
	SuggestRootCause(ctx context.Context, dev domain.Deviation) (RootCauseSuggestion, error)
	AnalyzeChangeImpact(ctx context.Context, change domain.ChangeRequest, reqs []domain.Requirement, specs []domain.FunctionalSpec, cases []domain.TestCase) (ImpactAnalysis, error)
	CheckConsistency(ctx context.Context, projectID string, reqs []domain.Requirement, specs []domain.FunctionalSpec, cases []domain.TestCase) (ConsistencyReport, error)
}

// WithTimeout wraps an Assistant so every call carries a deadline. A zero
// timeout returns the inner assistant unchanged.
func WithTimeout(inner Assistant, timeout time.Duration) Assistant {
	if timeout <= 0 {
		return inner
	}
	return timeoutAssistant{inner: inner, timeout: timeout}
}

type timeoutAssistant struct {
	inner   Assistant
	timeout time.Duration
}

func (a timeoutAssistant) AssessRisk(ctx context.Context, req domain.Requirement) (RiskAssessment, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.AssessRisk(ctx, req)
}

func (a timeoutAssistant) DetectAmbiguity(ctx context.Context, req domain.Requirement) (AmbiguityReport, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.DetectAmbiguity(ctx, req)
}

func (a timeoutAssistant) DraftFunctionalSpec(ctx context.Context, req domain.Requirement) (SpecDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.DraftFunctionalSpec(ctx, req)
}

func (a timeoutAssistant) DraftTestCases(ctx context.Context, spec domain.FunctionalSpec, req domain.Requirement) ([]TestCaseDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.DraftTestCases(ctx, spec, req)
}

func (a timeoutAssistant) SuggestRootCause(ctx context.Context, dev domain.Deviation) (RootCauseSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.SuggestRootCause(ctx, dev)
}

func (a timeoutAssistant) AnalyzeChangeImpact(ctx context.Context, change domain.ChangeRequest, reqs []domain.Requirement, specs []domain.FunctionalSpec, cases []domain.TestCase) (ImpactAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.AnalyzeChangeImpact(ctx, change, reqs, specs, cases)
}

func (a timeoutAssistant) CheckConsistency(ctx context.Context, projectID string, reqs []domain.Requirement, specs []domain.FunctionalSpec, cases []domain.TestCase) (ConsistencyReport, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.inner.CheckConsistency(ctx, projectID, reqs, specs, cases)
}
