package domain

import "fmt"

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PreconditionError indicates a creation or transition gate was not met,
// such as drafting a functional spec under an unapproved requirement.
type PreconditionError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for %s %s: %s", e.Entity, e.ID, e.Reason)
}

// ForbiddenError indicates the actor's role lacks the required capability.
type ForbiddenError struct {
	Actor      string
	Role       Role
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s of %s cannot %s", e.Role, e.Actor, e.Capability)
}

// SelfApprovalError indicates an actor attempted to approve an artifact they
// authored. Returned regardless of role.
type SelfApprovalError struct {
	Entity EntityType
	ID     string
	Actor  string
}

func (e SelfApprovalError) Error() string {
	return fmt.Sprintf("%s may not approve own %s %s", e.Actor, e.Entity, e.ID)
}

// InvalidStateError indicates a status transition outside the entity's state
// machine, including any attempt to leave a terminal state.
type InvalidStateError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s cannot transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// AuditWriteError indicates the audit entry for a mutation could not be
// recorded. The mutation it accompanied is rolled back.
type AuditWriteError struct {
	Op  string
	Err error
}

func (e AuditWriteError) Error() string {
	return fmt.Sprintf("audit write failed during %s: %v", e.Op, e.Err)
}

func (e AuditWriteError) Unwrap() error { return e.Err }

// RuleViolationError is returned when a transaction is blocked by rule
// violations.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
