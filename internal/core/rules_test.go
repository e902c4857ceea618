package core

import (
	"context"
	"testing"

	"vmscore/pkg/domain"
)

func TestStatusTransitionRuleBlocksUnknownStatus(t *testing.T) {
	rule := StatusTransitionRule()
	res, err := rule.Evaluate(context.Background(), nil, []domain.Change{{
		Entity: domain.EntityDeviation,
		Action: domain.ActionUpdate,
		Before: domain.Deviation{Base: domain.Base{ID: "dev-1"}, Status: domain.DeviationOpen},
		After:  domain.Deviation{Base: domain.Base{ID: "dev-1"}, Status: "Reopened"},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatal("unknown status not blocked")
	}
}

func TestStatusTransitionRuleBlocksLeavingTerminalState(t *testing.T) {
	rule := StatusTransitionRule()
	res, err := rule.Evaluate(context.Background(), nil, []domain.Change{{
		Entity: domain.EntityChangeRequest,
		Action: domain.ActionUpdate,
		Before: domain.ChangeRequest{Base: domain.Base{ID: "cr-1"}, Status: domain.ChangeRejected},
		After:  domain.ChangeRequest{Base: domain.Base{ID: "cr-1"}, Status: domain.ChangeRequested},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatal("terminal exit not blocked")
	}
}

func TestStatusTransitionRuleAllowsValidMove(t *testing.T) {
	rule := StatusTransitionRule()
	res, err := rule.Evaluate(context.Background(), nil, []domain.Change{{
		Entity: domain.EntityRequirement,
		Action: domain.ActionUpdate,
		Before: domain.Requirement{Base: domain.Base{ID: "req-1"}, Status: domain.RequirementDraft},
		After:  domain.Requirement{Base: domain.Base{ID: "req-1"}, Status: domain.RequirementUnderReview},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.HasBlocking() {
		t.Fatalf("valid transition blocked: %+v", res.Violations)
	}
}

func TestRiskConsistencyRuleBlocksMismatch(t *testing.T) {
	rule := RiskConsistencyRule()
	res, err := rule.Evaluate(context.Background(), nil, []domain.Change{{
		Entity: domain.EntityRequirement,
		Action: domain.ActionCreate,
		After: domain.Requirement{
			Base:               domain.Base{ID: "req-1"},
			Status:             domain.RequirementDraft,
			PatientSafetyRisk:  domain.RiskCritical,
			ProductQualityRisk: domain.RiskLow,
			DataIntegrityRisk:  domain.RiskLow,
			OverallRisk:        domain.RiskLow,
		},
	}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatal("risk mismatch not blocked")
	}
}
