package core

import (
	"context"
	"fmt"

	"vmscore/pkg/domain"
)

// RiskConsistencyRule blocks requirement writes whose overall risk does not
// equal the maximum of the three risk dimensions.
func RiskConsistencyRule() domain.Rule {
	return riskConsistencyRule{}
}

type riskConsistencyRule struct{}

func (riskConsistencyRule) Name() string { return "risk_consistency" }

func (riskConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityRequirement {
			continue
		}
		req, ok := change.After.(domain.Requirement)
		if !ok {
			continue
		}
		want := domain.MaxRisk(req.PatientSafetyRisk, req.ProductQualityRisk, req.DataIntegrityRisk)
		if req.OverallRisk != want {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "risk_consistency",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("requirement %s overall risk %s does not match dimension maximum %s", req.ID, req.OverallRisk, want),
				Entity:   domain.EntityRequirement,
				EntityID: req.ID,
			})
		}
	}
	return res, nil
}

// DefaultRules returns the rules registered for every store.
func DefaultRules() *RulesEngine {
	return domain.NewRulesEngine(RiskConsistencyRule(), StatusTransitionRule())
}
