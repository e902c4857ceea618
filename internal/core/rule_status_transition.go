package core

import (
	"context"
	"fmt"

	"vmscore/pkg/domain"
)

// StatusTransitionRule blocks unknown status values and any attempt to leave
// a terminal state on stateful entities.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

type statusMachine struct {
	entity    domain.EntityType
	label     string
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload any) (id string, state string, ok bool)
}

var statusMachines = map[domain.EntityType]statusMachine{
	domain.EntityProject: {
		entity: domain.EntityProject,
		label:  "project",
		valid: toSet(
			string(domain.ProjectPlanning),
			string(domain.ProjectURS),
			string(domain.ProjectFS),
			string(domain.ProjectDS),
			string(domain.ProjectTesting),
			string(domain.ProjectCompleted),
			string(domain.ProjectOnHold),
		),
		terminal: toSet(),
		extractor: func(payload any) (string, string, bool) {
			p, ok := payload.(domain.Project)
			if !ok {
				return "", "", false
			}
			return p.ID, string(p.Status), true
		},
	},
	domain.EntityRequirement: {
		entity:   domain.EntityRequirement,
		label:    "requirement",
		terminal: toSet(string(domain.RequirementObsolete)),
		valid: toSet(
			string(domain.RequirementDraft),
			string(domain.RequirementUnderReview),
			string(domain.RequirementApproved),
			string(domain.RequirementObsolete),
		),
		extractor: func(payload any) (string, string, bool) {
			r, ok := payload.(domain.Requirement)
			if !ok {
				return "", "", false
			}
			return r.ID, string(r.Status), true
		},
	},
	domain.EntityBoundary: {
		entity:   domain.EntityBoundary,
		label:    "system boundary",
		terminal: toSet(),
		valid: toSet(
			string(domain.SpecDraft),
			string(domain.SpecUnderReview),
			string(domain.SpecApproved),
		),
		extractor: func(payload any) (string, string, bool) {
			b, ok := payload.(domain.SystemBoundary)
			if !ok {
				return "", "", false
			}
			return b.ID, string(b.Status), true
		},
	},
	domain.EntityFunctionalSpec: {
		entity:   domain.EntityFunctionalSpec,
		label:    "functional spec",
		terminal: toSet(),
		valid: toSet(
			string(domain.SpecDraft),
			string(domain.SpecUnderReview),
			string(domain.SpecApproved),
		),
		extractor: func(payload any) (string, string, bool) {
			f, ok := payload.(domain.FunctionalSpec)
			if !ok {
				return "", "", false
			}
			return f.ID, string(f.Status), true
		},
	},
	domain.EntityDesignSpec: {
		entity:   domain.EntityDesignSpec,
		label:    "design spec",
		terminal: toSet(),
		valid: toSet(
			string(domain.SpecDraft),
			string(domain.SpecUnderReview),
			string(domain.SpecApproved),
		),
		extractor: func(payload any) (string, string, bool) {
			d, ok := payload.(domain.DesignSpec)
			if !ok {
				return "", "", false
			}
			return d.ID, string(d.Status), true
		},
	},
	domain.EntityDeviation: {
		entity:   domain.EntityDeviation,
		label:    "deviation",
		terminal: toSet(string(domain.DeviationClosed)),
		valid: toSet(
			string(domain.DeviationOpen),
			string(domain.DeviationInvestigating),
			string(domain.DeviationCAPAAssigned),
			string(domain.DeviationCAPAVerified),
			string(domain.DeviationClosed),
		),
		extractor: func(payload any) (string, string, bool) {
			d, ok := payload.(domain.Deviation)
			if !ok {
				return "", "", false
			}
			return d.ID, string(d.Status), true
		},
	},
	domain.EntityChangeRequest: {
		entity:   domain.EntityChangeRequest,
		label:    "change request",
		terminal: toSet(string(domain.ChangeCompleted), string(domain.ChangeRejected)),
		valid: toSet(
			string(domain.ChangeRequested),
			string(domain.ChangeImpactAnalysis),
			string(domain.ChangeApproved),
			string(domain.ChangeImplementing),
			string(domain.ChangeCompleted),
			string(domain.ChangeRejected),
		),
		extractor: func(payload any) (string, string, bool) {
			c, ok := payload.(domain.ChangeRequest)
			if !ok {
				return "", "", false
			}
			return c.ID, string(c.Status), true
		},
	},
}

func (statusTransitionRule) Name() string { return "status_transition" }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := statusMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, newState, ok := machine.extractor(change.After)
		if ok {
			if _, valid := machine.valid[newState]; !valid {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "status_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s %s is set to invalid status %s", machine.label, afterID, newState),
					Entity:   machine.entity,
					EntityID: afterID,
				})
				continue
			}
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if _, terminal := machine.terminal[beforeState]; !terminal {
			continue
		}
		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if afterState != beforeState {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from terminal status %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
