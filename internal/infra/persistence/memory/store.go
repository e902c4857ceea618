// Package memory provides the transactional in-memory store the persistent
// backends build upon. It lives under infra to keep domain dependencies
// one-way (domain -> nothing).
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"vmscore/pkg/domain"
)

// Exported aliases to keep method signatures concise while still exposing
// domain types from this infra package.
type (
	// Project is an alias of domain.Project.
	Project = domain.Project
	// SystemBoundary is an alias of domain.SystemBoundary.
	SystemBoundary = domain.SystemBoundary
	// Requirement is an alias of domain.Requirement.
	Requirement = domain.Requirement
	// FunctionalSpec is an alias of domain.FunctionalSpec.
	FunctionalSpec = domain.FunctionalSpec
	// DesignSpec is an alias of domain.DesignSpec.
	DesignSpec = domain.DesignSpec
	// TestCase is an alias of domain.TestCase.
	TestCase = domain.TestCase
	// TestExecution is an alias of domain.TestExecution.
	TestExecution = domain.TestExecution
	// Deviation is an alias of domain.Deviation.
	Deviation = domain.Deviation
	// ChangeRequest is an alias of domain.ChangeRequest.
	ChangeRequest = domain.ChangeRequest
	// Signature is an alias of domain.Signature.
	Signature = domain.Signature
	// AuditEntry is an alias of domain.AuditEntry.
	AuditEntry = domain.AuditEntry
	// Change is an alias of domain.Change.
	Change = domain.Change
	// Result is an alias of domain.Result.
	Result = domain.Result
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
)

type state struct {
	projects   map[string]Project
	boundaries map[string]SystemBoundary
	reqs       map[string]Requirement
	specs      map[string]FunctionalSpec
	designs    map[string]DesignSpec
	cases      map[string]TestCase
	executions map[string]TestExecution
	deviations map[string]Deviation
	changes    map[string]ChangeRequest
	signatures map[string]Signature
	audit      []AuditEntry
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	Projects   map[string]Project        `json:"projects"`
	Boundaries map[string]SystemBoundary `json:"boundaries"`
	Reqs       map[string]Requirement    `json:"requirements"`
	Specs      map[string]FunctionalSpec `json:"functional_specs"`
	Designs    map[string]DesignSpec     `json:"design_specs"`
	Cases      map[string]TestCase       `json:"test_cases"`
	Executions map[string]TestExecution  `json:"test_executions"`
	Deviations map[string]Deviation      `json:"deviations"`
	Changes    map[string]ChangeRequest  `json:"change_requests"`
	Signatures map[string]Signature      `json:"signatures"`
	Audit      []AuditEntry              `json:"audit_trail"`
}

func newState() state {
	return state{
		projects:   map[string]Project{},
		boundaries: map[string]SystemBoundary{},
		reqs:       map[string]Requirement{},
		specs:      map[string]FunctionalSpec{},
		designs:    map[string]DesignSpec{},
		cases:      map[string]TestCase{},
		executions: map[string]TestExecution{},
		deviations: map[string]Deviation{},
		changes:    map[string]ChangeRequest{},
		signatures: map[string]Signature{},
	}
}

func snapshotFromState(st state) Snapshot {
	s := Snapshot{
		Projects:   make(map[string]Project, len(st.projects)),
		Boundaries: make(map[string]SystemBoundary, len(st.boundaries)),
		Reqs:       make(map[string]Requirement, len(st.reqs)),
		Specs:      make(map[string]FunctionalSpec, len(st.specs)),
		Designs:    make(map[string]DesignSpec, len(st.designs)),
		Cases:      make(map[string]TestCase, len(st.cases)),
		Executions: make(map[string]TestExecution, len(st.executions)),
		Deviations: make(map[string]Deviation, len(st.deviations)),
		Changes:    make(map[string]ChangeRequest, len(st.changes)),
		Signatures: make(map[string]Signature, len(st.signatures)),
		Audit:      append([]AuditEntry(nil), st.audit...),
	}
	for k, v := range st.projects {
		s.Projects[k] = cloneProject(v)
	}
	for k, v := range st.boundaries {
		s.Boundaries[k] = cloneBoundary(v)
	}
	for k, v := range st.reqs {
		s.Reqs[k] = cloneRequirement(v)
	}
	for k, v := range st.specs {
		s.Specs[k] = cloneFunctionalSpec(v)
	}
	for k, v := range st.designs {
		s.Designs[k] = cloneDesignSpec(v)
	}
	for k, v := range st.cases {
		s.Cases[k] = cloneTestCase(v)
	}
	for k, v := range st.executions {
		s.Executions[k] = cloneExecution(v)
	}
	for k, v := range st.deviations {
		s.Deviations[k] = cloneDeviation(v)
	}
	for k, v := range st.changes {
		s.Changes[k] = cloneChangeRequest(v)
	}
	for k, v := range st.signatures {
		s.Signatures[k] = cloneSignature(v)
	}
	return s
}

func stateFromSnapshot(s Snapshot) state {
	st := newState()
	for k, v := range s.Projects {
		st.projects[k] = cloneProject(v)
	}
	for k, v := range s.Boundaries {
		st.boundaries[k] = cloneBoundary(v)
	}
	for k, v := range s.Reqs {
		st.reqs[k] = cloneRequirement(v)
	}
	for k, v := range s.Specs {
		st.specs[k] = cloneFunctionalSpec(v)
	}
	for k, v := range s.Designs {
		st.designs[k] = cloneDesignSpec(v)
	}
	for k, v := range s.Cases {
		st.cases[k] = cloneTestCase(v)
	}
	for k, v := range s.Executions {
		st.executions[k] = cloneExecution(v)
	}
	for k, v := range s.Deviations {
		st.deviations[k] = cloneDeviation(v)
	}
	for k, v := range s.Changes {
		st.changes[k] = cloneChangeRequest(v)
	}
	for k, v := range s.Signatures {
		st.signatures[k] = cloneSignature(v)
	}
	st.audit = append([]AuditEntry(nil), s.Audit...)
	return st
}

func (st state) clone() state { return stateFromSnapshot(snapshotFromState(st)) }

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneProject(p Project) Project {
	cp := p
	cp.Regulations = append([]string(nil), p.Regulations...)
	cp.TargetCompletion = cloneStringPtr(p.TargetCompletion)
	cp.ActualCompletion = cloneStringPtr(p.ActualCompletion)
	return cp
}

func cloneBoundary(b SystemBoundary) SystemBoundary {
	cp := b
	cp.InScope = append([]string(nil), b.InScope...)
	cp.OutOfScope = append([]string(nil), b.OutOfScope...)
	cp.Exclusions = append([]domain.BoundaryExclusion(nil), b.Exclusions...)
	cp.Interfaces = append([]domain.BoundaryInterface(nil), b.Interfaces...)
	cp.Dependencies = append([]domain.BoundaryDependency(nil), b.Dependencies...)
	cp.SOPReferences = append([]domain.SOPReference(nil), b.SOPReferences...)
	cp.ApprovedBy = cloneStringPtr(b.ApprovedBy)
	cp.ApprovedAt = cloneTimePtr(b.ApprovedAt)
	return cp
}

func cloneRequirement(r Requirement) Requirement {
	cp := r
	cp.AmbiguityScore = cloneFloatPtr(r.AmbiguityScore)
	cp.AmbiguityNotes = cloneStringPtr(r.AmbiguityNotes)
	cp.ApprovedBy = cloneStringPtr(r.ApprovedBy)
	cp.ApprovedAt = cloneTimePtr(r.ApprovedAt)
	return cp
}

func cloneFunctionalSpec(f FunctionalSpec) FunctionalSpec {
	cp := f
	cp.ApprovedBy = cloneStringPtr(f.ApprovedBy)
	cp.ApprovedAt = cloneTimePtr(f.ApprovedAt)
	return cp
}

func cloneDesignSpec(d DesignSpec) DesignSpec {
	cp := d
	cp.ApprovedBy = cloneStringPtr(d.ApprovedBy)
	cp.ApprovedAt = cloneTimePtr(d.ApprovedAt)
	return cp
}

func cloneTestCase(t TestCase) TestCase { return t }

func cloneExecution(e TestExecution) TestExecution {
	cp := e
	cp.EvidenceRefs = append([]string(nil), e.EvidenceRefs...)
	cp.DeviationID = cloneStringPtr(e.DeviationID)
	cp.SignatureID = cloneStringPtr(e.SignatureID)
	return cp
}

func cloneDeviation(d Deviation) Deviation {
	cp := d
	cp.TestExecutionID = cloneStringPtr(d.TestExecutionID)
	cp.CAPADueDate = cloneStringPtr(d.CAPADueDate)
	cp.AssignedTo = cloneStringPtr(d.AssignedTo)
	cp.ClosedBy = cloneStringPtr(d.ClosedBy)
	cp.ClosedAt = cloneTimePtr(d.ClosedAt)
	return cp
}

func cloneChangeRequest(c ChangeRequest) ChangeRequest {
	cp := c
	cp.AffectedRequirements = append([]string(nil), c.AffectedRequirements...)
	cp.AffectedSpecs = append([]string(nil), c.AffectedSpecs...)
	cp.AffectedTestCases = append([]string(nil), c.AffectedTestCases...)
	cp.ApprovedBy = cloneStringPtr(c.ApprovedBy)
	cp.ApprovedAt = cloneTimePtr(c.ApprovedAt)
	cp.CompletedAt = cloneTimePtr(c.CompletedAt)
	return cp
}

func cloneSignature(s Signature) Signature { return s }

// Store is the clone-on-write transactional store. All transactions run
// serialized under the write lock; views read a cloned snapshot.
type Store struct {
	mu     sync.RWMutex
	state  state
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an empty store with the given rules engine. A nil
// engine disables rule evaluation.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{state: newState(), engine: engine, nowFn: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a deep copy of current state for persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces current state with the snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

// RulesEngine returns the engine evaluating transactions.
func (s *Store) RulesEngine() *RulesEngine { s.mu.RLock(); defer s.mu.RUnlock(); return s.engine }

// NowFunc returns the store clock.
func (s *Store) NowFunc() func() time.Time { s.mu.RLock(); defer s.mu.RUnlock(); return s.nowFn }

// SetNowFunc overrides the store clock (tests).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   state
	changes []Change
	now     time.Time
}

type view struct{ state *state }

func newView(st *state) TransactionView { return view{state: st} }

// RunInTransaction executes fn against a cloned state, evaluates registered
// rules over the accumulated changes, and swaps the clone in on success.
// Any error or blocking violation discards the clone entirely, so a
// mutation and its audit entry can only land together.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{store: s, state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, newView(&tx.state), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against an immutable clone of current state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return fn(newView(&snapshot))
}

func (tx *transaction) recordChange(change Change) { tx.changes = append(tx.changes, change) }
func (tx *transaction) Snapshot() TransactionView  { return newView(&tx.state) }

func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

func (tx *transaction) UpdateProject(id string, mutate func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := cloneProject(current)
	if err := mutate(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

func (tx *transaction) CreateBoundary(b SystemBoundary) (SystemBoundary, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.boundaries[b.ID]; exists {
		return SystemBoundary{}, fmt.Errorf("boundary %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.boundaries[b.ID] = cloneBoundary(b)
	tx.recordChange(Change{Entity: domain.EntityBoundary, Action: domain.ActionCreate, After: cloneBoundary(b)})
	return cloneBoundary(b), nil
}

func (tx *transaction) UpdateBoundary(id string, mutate func(*SystemBoundary) error) (SystemBoundary, error) {
	current, ok := tx.state.boundaries[id]
	if !ok {
		return SystemBoundary{}, domain.NotFoundError{Entity: domain.EntityBoundary, ID: id}
	}
	before := cloneBoundary(current)
	if err := mutate(&current); err != nil {
		return SystemBoundary{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.boundaries[id] = cloneBoundary(current)
	tx.recordChange(Change{Entity: domain.EntityBoundary, Action: domain.ActionUpdate, Before: before, After: cloneBoundary(current)})
	return cloneBoundary(current), nil
}

func (tx *transaction) CreateRequirement(r Requirement) (Requirement, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.reqs[r.ID]; exists {
		return Requirement{}, fmt.Errorf("requirement %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reqs[r.ID] = cloneRequirement(r)
	tx.recordChange(Change{Entity: domain.EntityRequirement, Action: domain.ActionCreate, After: cloneRequirement(r)})
	return cloneRequirement(r), nil
}

func (tx *transaction) UpdateRequirement(id string, mutate func(*Requirement) error) (Requirement, error) {
	current, ok := tx.state.reqs[id]
	if !ok {
		return Requirement{}, domain.NotFoundError{Entity: domain.EntityRequirement, ID: id}
	}
	before := cloneRequirement(current)
	if err := mutate(&current); err != nil {
		return Requirement{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.reqs[id] = cloneRequirement(current)
	tx.recordChange(Change{Entity: domain.EntityRequirement, Action: domain.ActionUpdate, Before: before, After: cloneRequirement(current)})
	return cloneRequirement(current), nil
}

func (tx *transaction) CreateFunctionalSpec(f FunctionalSpec) (FunctionalSpec, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.specs[f.ID]; exists {
		return FunctionalSpec{}, fmt.Errorf("functional spec %q already exists", f.ID)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.specs[f.ID] = cloneFunctionalSpec(f)
	tx.recordChange(Change{Entity: domain.EntityFunctionalSpec, Action: domain.ActionCreate, After: cloneFunctionalSpec(f)})
	return cloneFunctionalSpec(f), nil
}

func (tx *transaction) UpdateFunctionalSpec(id string, mutate func(*FunctionalSpec) error) (FunctionalSpec, error) {
	current, ok := tx.state.specs[id]
	if !ok {
		return FunctionalSpec{}, domain.NotFoundError{Entity: domain.EntityFunctionalSpec, ID: id}
	}
	before := cloneFunctionalSpec(current)
	if err := mutate(&current); err != nil {
		return FunctionalSpec{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.specs[id] = cloneFunctionalSpec(current)
	tx.recordChange(Change{Entity: domain.EntityFunctionalSpec, Action: domain.ActionUpdate, Before: before, After: cloneFunctionalSpec(current)})
	return cloneFunctionalSpec(current), nil
}

func (tx *transaction) CreateDesignSpec(d DesignSpec) (DesignSpec, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.designs[d.ID]; exists {
		return DesignSpec{}, fmt.Errorf("design spec %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.designs[d.ID] = cloneDesignSpec(d)
	tx.recordChange(Change{Entity: domain.EntityDesignSpec, Action: domain.ActionCreate, After: cloneDesignSpec(d)})
	return cloneDesignSpec(d), nil
}

func (tx *transaction) UpdateDesignSpec(id string, mutate func(*DesignSpec) error) (DesignSpec, error) {
	current, ok := tx.state.designs[id]
	if !ok {
		return DesignSpec{}, domain.NotFoundError{Entity: domain.EntityDesignSpec, ID: id}
	}
	before := cloneDesignSpec(current)
	if err := mutate(&current); err != nil {
		return DesignSpec{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.designs[id] = cloneDesignSpec(current)
	tx.recordChange(Change{Entity: domain.EntityDesignSpec, Action: domain.ActionUpdate, Before: before, After: cloneDesignSpec(current)})
	return cloneDesignSpec(current), nil
}

func (tx *transaction) CreateTestCase(t TestCase) (TestCase, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.cases[t.ID]; exists {
		return TestCase{}, fmt.Errorf("test case %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.cases[t.ID] = cloneTestCase(t)
	tx.recordChange(Change{Entity: domain.EntityTestCase, Action: domain.ActionCreate, After: cloneTestCase(t)})
	return cloneTestCase(t), nil
}

func (tx *transaction) UpdateTestCase(id string, mutate func(*TestCase) error) (TestCase, error) {
	current, ok := tx.state.cases[id]
	if !ok {
		return TestCase{}, domain.NotFoundError{Entity: domain.EntityTestCase, ID: id}
	}
	before := cloneTestCase(current)
	if err := mutate(&current); err != nil {
		return TestCase{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cases[id] = cloneTestCase(current)
	tx.recordChange(Change{Entity: domain.EntityTestCase, Action: domain.ActionUpdate, Before: before, After: cloneTestCase(current)})
	return cloneTestCase(current), nil
}

func (tx *transaction) CreateTestExecution(e TestExecution) (TestExecution, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.executions[e.ID]; exists {
		return TestExecution{}, fmt.Errorf("test execution %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.executions[e.ID] = cloneExecution(e)
	tx.recordChange(Change{Entity: domain.EntityTestExecution, Action: domain.ActionCreate, After: cloneExecution(e)})
	return cloneExecution(e), nil
}

func (tx *transaction) UpdateTestExecution(id string, mutate func(*TestExecution) error) (TestExecution, error) {
	current, ok := tx.state.executions[id]
	if !ok {
		return TestExecution{}, domain.NotFoundError{Entity: domain.EntityTestExecution, ID: id}
	}
	before := cloneExecution(current)
	if err := mutate(&current); err != nil {
		return TestExecution{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.executions[id] = cloneExecution(current)
	tx.recordChange(Change{Entity: domain.EntityTestExecution, Action: domain.ActionUpdate, Before: before, After: cloneExecution(current)})
	return cloneExecution(current), nil
}

func (tx *transaction) CreateDeviation(d Deviation) (Deviation, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.deviations[d.ID]; exists {
		return Deviation{}, fmt.Errorf("deviation %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.deviations[d.ID] = cloneDeviation(d)
	tx.recordChange(Change{Entity: domain.EntityDeviation, Action: domain.ActionCreate, After: cloneDeviation(d)})
	return cloneDeviation(d), nil
}

func (tx *transaction) UpdateDeviation(id string, mutate func(*Deviation) error) (Deviation, error) {
	current, ok := tx.state.deviations[id]
	if !ok {
		return Deviation{}, domain.NotFoundError{Entity: domain.EntityDeviation, ID: id}
	}
	before := cloneDeviation(current)
	if err := mutate(&current); err != nil {
		return Deviation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.deviations[id] = cloneDeviation(current)
	tx.recordChange(Change{Entity: domain.EntityDeviation, Action: domain.ActionUpdate, Before: before, After: cloneDeviation(current)})
	return cloneDeviation(current), nil
}

func (tx *transaction) CreateChangeRequest(c ChangeRequest) (ChangeRequest, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.changes[c.ID]; exists {
		return ChangeRequest{}, fmt.Errorf("change request %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.changes[c.ID] = cloneChangeRequest(c)
	tx.recordChange(Change{Entity: domain.EntityChangeRequest, Action: domain.ActionCreate, After: cloneChangeRequest(c)})
	return cloneChangeRequest(c), nil
}

func (tx *transaction) UpdateChangeRequest(id string, mutate func(*ChangeRequest) error) (ChangeRequest, error) {
	current, ok := tx.state.changes[id]
	if !ok {
		return ChangeRequest{}, domain.NotFoundError{Entity: domain.EntityChangeRequest, ID: id}
	}
	before := cloneChangeRequest(current)
	if err := mutate(&current); err != nil {
		return ChangeRequest{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.changes[id] = cloneChangeRequest(current)
	tx.recordChange(Change{Entity: domain.EntityChangeRequest, Action: domain.ActionUpdate, Before: before, After: cloneChangeRequest(current)})
	return cloneChangeRequest(current), nil
}

func (tx *transaction) CreateSignature(sig Signature) (Signature, error) {
	if sig.ID == "" {
		sig.ID = tx.store.newID()
	}
	if _, exists := tx.state.signatures[sig.ID]; exists {
		return Signature{}, fmt.Errorf("signature %q already exists", sig.ID)
	}
	sig.CreatedAt = tx.now
	sig.UpdatedAt = tx.now
	tx.state.signatures[sig.ID] = cloneSignature(sig)
	tx.recordChange(Change{Entity: domain.EntitySignature, Action: domain.ActionCreate, After: cloneSignature(sig)})
	return cloneSignature(sig), nil
}

func (tx *transaction) AppendAudit(entry AuditEntry) (AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = tx.store.newID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.now
	}
	tx.state.audit = append(tx.state.audit, entry)
	return entry, nil
}

func (v view) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

func (v view) ListBoundaries() []SystemBoundary {
	out := make([]SystemBoundary, 0, len(v.state.boundaries))
	for _, b := range v.state.boundaries {
		out = append(out, cloneBoundary(b))
	}
	return out
}

func (v view) ListRequirements() []Requirement {
	out := make([]Requirement, 0, len(v.state.reqs))
	for _, r := range v.state.reqs {
		out = append(out, cloneRequirement(r))
	}
	return out
}

func (v view) ListFunctionalSpecs() []FunctionalSpec {
	out := make([]FunctionalSpec, 0, len(v.state.specs))
	for _, f := range v.state.specs {
		out = append(out, cloneFunctionalSpec(f))
	}
	return out
}

func (v view) ListDesignSpecs() []DesignSpec {
	out := make([]DesignSpec, 0, len(v.state.designs))
	for _, d := range v.state.designs {
		out = append(out, cloneDesignSpec(d))
	}
	return out
}

func (v view) ListTestCases() []TestCase {
	out := make([]TestCase, 0, len(v.state.cases))
	for _, t := range v.state.cases {
		out = append(out, cloneTestCase(t))
	}
	return out
}

func (v view) ListTestExecutions() []TestExecution {
	out := make([]TestExecution, 0, len(v.state.executions))
	for _, e := range v.state.executions {
		out = append(out, cloneExecution(e))
	}
	return out
}

func (v view) ListDeviations() []Deviation {
	out := make([]Deviation, 0, len(v.state.deviations))
	for _, d := range v.state.deviations {
		out = append(out, cloneDeviation(d))
	}
	return out
}

func (v view) ListChangeRequests() []ChangeRequest {
	out := make([]ChangeRequest, 0, len(v.state.changes))
	for _, c := range v.state.changes {
		out = append(out, cloneChangeRequest(c))
	}
	return out
}

func (v view) ListSignatures() []Signature {
	out := make([]Signature, 0, len(v.state.signatures))
	for _, s := range v.state.signatures {
		out = append(out, cloneSignature(s))
	}
	return out
}

func (v view) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

func (v view) FindBoundary(id string) (SystemBoundary, bool) {
	b, ok := v.state.boundaries[id]
	if !ok {
		return SystemBoundary{}, false
	}
	return cloneBoundary(b), true
}

func (v view) FindRequirement(id string) (Requirement, bool) {
	r, ok := v.state.reqs[id]
	if !ok {
		return Requirement{}, false
	}
	return cloneRequirement(r), true
}

func (v view) FindFunctionalSpec(id string) (FunctionalSpec, bool) {
	f, ok := v.state.specs[id]
	if !ok {
		return FunctionalSpec{}, false
	}
	return cloneFunctionalSpec(f), true
}

func (v view) FindDesignSpec(id string) (DesignSpec, bool) {
	d, ok := v.state.designs[id]
	if !ok {
		return DesignSpec{}, false
	}
	return cloneDesignSpec(d), true
}

func (v view) FindTestCase(id string) (TestCase, bool) {
	t, ok := v.state.cases[id]
	if !ok {
		return TestCase{}, false
	}
	return cloneTestCase(t), true
}

func (v view) FindTestExecution(id string) (TestExecution, bool) {
	e, ok := v.state.executions[id]
	if !ok {
		return TestExecution{}, false
	}
	return cloneExecution(e), true
}

func (v view) FindDeviation(id string) (Deviation, bool) {
	d, ok := v.state.deviations[id]
	if !ok {
		return Deviation{}, false
	}
	return cloneDeviation(d), true
}

func (v view) FindChangeRequest(id string) (ChangeRequest, bool) {
	c, ok := v.state.changes[id]
	if !ok {
		return ChangeRequest{}, false
	}
	return cloneChangeRequest(c), true
}

func (v view) FindSignature(id string) (Signature, bool) {
	s, ok := v.state.signatures[id]
	if !ok {
		return Signature{}, false
	}
	return cloneSignature(s), true
}

func (v view) ListRequirementsByProject(projectID string) []Requirement {
	var out []Requirement
	for _, r := range v.state.reqs {
		if r.ProjectID == projectID {
			out = append(out, cloneRequirement(r))
		}
	}
	return out
}

func (v view) ListFunctionalSpecsByRequirement(requirementID string) []FunctionalSpec {
	var out []FunctionalSpec
	for _, f := range v.state.specs {
		if f.RequirementID == requirementID {
			out = append(out, cloneFunctionalSpec(f))
		}
	}
	return out
}

func (v view) ListDesignSpecsByFunctionalSpec(functionalSpecID string) []DesignSpec {
	var out []DesignSpec
	for _, d := range v.state.designs {
		if d.FunctionalSpecID == functionalSpecID {
			out = append(out, cloneDesignSpec(d))
		}
	}
	return out
}

func (v view) ListTestCasesByFunctionalSpec(functionalSpecID string) []TestCase {
	var out []TestCase
	for _, t := range v.state.cases {
		if t.FunctionalSpecID == functionalSpecID {
			out = append(out, cloneTestCase(t))
		}
	}
	return out
}

func (v view) ListTestExecutionsByTestCase(testCaseID string) []TestExecution {
	var out []TestExecution
	for _, e := range v.state.executions {
		if e.TestCaseID == testCaseID {
			out = append(out, cloneExecution(e))
		}
	}
	return out
}

func (v view) ListDeviationsByProject(projectID string) []Deviation {
	var out []Deviation
	for _, d := range v.state.deviations {
		if d.ProjectID == projectID {
			out = append(out, cloneDeviation(d))
		}
	}
	return out
}

func (v view) ListChangeRequestsByProject(projectID string) []ChangeRequest {
	var out []ChangeRequest
	for _, c := range v.state.changes {
		if c.ProjectID == projectID {
			out = append(out, cloneChangeRequest(c))
		}
	}
	return out
}

func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindProject(id)
}

func (s *Store) GetBoundary(id string) (SystemBoundary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindBoundary(id)
}

func (s *Store) GetRequirement(id string) (Requirement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindRequirement(id)
}

func (s *Store) GetFunctionalSpec(id string) (FunctionalSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindFunctionalSpec(id)
}

func (s *Store) GetDesignSpec(id string) (DesignSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindDesignSpec(id)
}

func (s *Store) GetTestCase(id string) (TestCase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindTestCase(id)
}

func (s *Store) GetTestExecution(id string) (TestExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindTestExecution(id)
}

func (s *Store) GetDeviation(id string) (Deviation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindDeviation(id)
}

func (s *Store) GetChangeRequest(id string) (ChangeRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindChangeRequest(id)
}

func (s *Store) GetSignature(id string) (Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindSignature(id)
}

func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListProjects()
}

func (s *Store) ListBoundaries() []SystemBoundary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListBoundaries()
}

func (s *Store) ListRequirements() []Requirement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListRequirements()
}

func (s *Store) ListFunctionalSpecs() []FunctionalSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListFunctionalSpecs()
}

func (s *Store) ListDesignSpecs() []DesignSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListDesignSpecs()
}

func (s *Store) ListTestCases() []TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListTestCases()
}

func (s *Store) ListTestExecutions() []TestExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListTestExecutions()
}

func (s *Store) ListDeviations() []Deviation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListDeviations()
}

func (s *Store) ListChangeRequests() []ChangeRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListChangeRequests()
}

func (s *Store) ListSignatures() []Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListSignatures()
}

// ListAuditEntries returns entries matching the filter, newest first.
func (s *Store) ListAuditEntries(filter domain.AuditFilter) []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, 0, len(s.state.audit))
	for i := len(s.state.audit) - 1; i >= 0; i-- {
		e := s.state.audit[i]
		if filter.Entity != "" && e.Entity != filter.Entity {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}
