// Package memory provides the in-memory implementation of the workflow
// persistence store. Durable backends wrap it and persist committed
// snapshots.
package memory

import (
	"casetrack/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Request aliases domain.Request for in-memory persistence operations.
	Request = domain.Request
	// Case aliases domain.Case.
	Case = domain.Case
	// Device aliases domain.Device.
	Device = domain.Device
	// Extraction aliases domain.Extraction.
	Extraction = domain.Extraction
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// Scope aliases domain.Scope restricting visible units.
	Scope = domain.Scope
)

type memoryState struct {
	requests    map[string]Request
	cases       map[string]Case
	devices     map[string]Device
	extractions map[string]Extraction
	sequences   map[string]int
}

// Snapshot captures a point-in-time clone of the store state, including the
// per-unit case sequence counters.
type Snapshot struct {
	Requests    map[string]Request    `json:"requests"`
	Cases       map[string]Case       `json:"cases"`
	Devices     map[string]Device     `json:"devices"`
	Extractions map[string]Extraction `json:"extractions"`
	Sequences   map[string]int        `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		requests:    make(map[string]Request),
		cases:       make(map[string]Case),
		devices:     make(map[string]Device),
		extractions: make(map[string]Extraction),
		sequences:   make(map[string]int),
	}
}

func sequenceKey(unit string, year int) string {
	return fmt.Sprintf("%s|%d", unit, year)
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Requests:    make(map[string]Request, len(state.requests)),
		Cases:       make(map[string]Case, len(state.cases)),
		Devices:     make(map[string]Device, len(state.devices)),
		Extractions: make(map[string]Extraction, len(state.extractions)),
		Sequences:   make(map[string]int, len(state.sequences)),
	}
	for k, v := range state.requests {
		s.Requests[k] = cloneRequest(v)
	}
	for k, v := range state.cases {
		s.Cases[k] = cloneCase(v)
	}
	for k, v := range state.devices {
		s.Devices[k] = cloneDevice(v)
	}
	for k, v := range state.extractions {
		s.Extractions[k] = cloneExtraction(v)
	}
	for k, v := range state.sequences {
		s.Sequences[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Requests {
		state.requests[k] = cloneRequest(v)
	}
	for k, v := range s.Cases {
		state.cases[k] = cloneCase(v)
	}
	for k, v := range s.Devices {
		state.devices[k] = cloneDevice(v)
	}
	for k, v := range s.Extractions {
		state.extractions[k] = cloneExtraction(v)
	}
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	return state
}

// migrateSnapshot normalizes snapshots restored from durable storage: nil
// buckets become empty maps, orphaned children are dropped, and the sequence
// counters are raised to cover every case number already issued, tombstoned
// cases included. A counter is never lowered, so restored state cannot
// re-issue a number.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Requests == nil {
		snapshot.Requests = map[string]Request{}
	}
	if snapshot.Cases == nil {
		snapshot.Cases = map[string]Case{}
	}
	if snapshot.Devices == nil {
		snapshot.Devices = map[string]Device{}
	}
	if snapshot.Extractions == nil {
		snapshot.Extractions = map[string]Extraction{}
	}
	if snapshot.Sequences == nil {
		snapshot.Sequences = map[string]int{}
	}

	caseExists := func(id string) bool {
		_, ok := snapshot.Cases[id]
		return ok
	}

	for id, device := range snapshot.Devices {
		if device.CaseID == "" || !caseExists(device.CaseID) {
			delete(snapshot.Devices, id)
		}
	}
	for id, ex := range snapshot.Extractions {
		if ex.CaseID == "" || !caseExists(ex.CaseID) {
			delete(snapshot.Extractions, id)
			continue
		}
		if _, ok := snapshot.Devices[ex.DeviceID]; !ok {
			delete(snapshot.Extractions, id)
		}
	}
	for _, c := range snapshot.Cases {
		if c.SequenceNumber == nil {
			continue
		}
		key := sequenceKey(c.Unit, c.Year)
		if snapshot.Sequences[key] < *c.SequenceNumber {
			snapshot.Sequences[key] = *c.SequenceNumber
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.requests {
		cloned.requests[k] = cloneRequest(v)
	}
	for k, v := range s.cases {
		cloned.cases[k] = cloneCase(v)
	}
	for k, v := range s.devices {
		cloned.devices[k] = cloneDevice(v)
	}
	for k, v := range s.extractions {
		cloned.extractions[k] = cloneExtraction(v)
	}
	for k, v := range s.sequences {
		cloned.sequences[k] = v
	}
	return cloned
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneIntPtr(n *int) *int {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}

func cloneRequest(r Request) Request {
	cp := r
	cp.DeletedAt = cloneTimePtr(r.DeletedAt)
	cp.ReceivedAt = cloneTimePtr(r.ReceivedAt)
	cp.CaseID = cloneStringPtr(r.CaseID)
	return cp
}

func cloneCase(c Case) Case {
	cp := c
	cp.DeletedAt = cloneTimePtr(c.DeletedAt)
	cp.SequenceNumber = cloneIntPtr(c.SequenceNumber)
	cp.RequestID = cloneStringPtr(c.RequestID)
	cp.RegistrationCompletedAt = cloneTimePtr(c.RegistrationCompletedAt)
	cp.FinishedAt = cloneTimePtr(c.FinishedAt)
	return cp
}

func cloneDevice(d Device) Device {
	cp := d
	cp.DeletedAt = cloneTimePtr(d.DeletedAt)
	return cp
}

func cloneExtraction(e Extraction) Extraction {
	cp := e
	cp.DeletedAt = cloneTimePtr(e.DeletedAt)
	cp.AssignedExtractor = cloneStringPtr(e.AssignedExtractor)
	cp.AssignedAt = cloneTimePtr(e.AssignedAt)
	cp.StartedAt = cloneTimePtr(e.StartedAt)
	cp.FinishedAt = cloneTimePtr(e.FinishedAt)
	return cp
}

// caseUnit resolves the owning unit of a case for scope checks. Unknown case
// IDs resolve to an empty unit, which no restricted scope allows.
func caseUnit(state *memoryState, caseID string) string {
	if c, ok := state.cases[caseID]; ok {
		return c.Unit
	}
	return ""
}

// Store provides the in-memory transactional store for the workflow domain.
// A single mutex serializes commits, so sequence allocation and version
// checks never race.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListRequests returns all live requests within the transaction snapshot.
func (v transactionView) ListRequests() []Request {
	out := make([]Request, 0, len(v.state.requests))
	for _, r := range v.state.requests {
		if r.Deleted() {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListCases returns all live cases within the transaction snapshot.
func (v transactionView) ListCases() []Case {
	out := make([]Case, 0, len(v.state.cases))
	for _, c := range v.state.cases {
		if c.Deleted() {
			continue
		}
		out = append(out, cloneCase(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListDevices returns all live devices within the transaction snapshot.
func (v transactionView) ListDevices() []Device {
	out := make([]Device, 0, len(v.state.devices))
	for _, d := range v.state.devices {
		if d.Deleted() {
			continue
		}
		out = append(out, cloneDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListExtractions returns all live extractions within the transaction snapshot.
func (v transactionView) ListExtractions() []Extraction {
	out := make([]Extraction, 0, len(v.state.extractions))
	for _, e := range v.state.extractions {
		if e.Deleted() {
			continue
		}
		out = append(out, cloneExtraction(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindRequest retrieves a live request by ID from the snapshot.
func (v transactionView) FindRequest(id string) (Request, bool) {
	r, ok := v.state.requests[id]
	if !ok || r.Deleted() {
		return Request{}, false
	}
	return cloneRequest(r), true
}

// FindCase retrieves a live case by ID from the snapshot.
func (v transactionView) FindCase(id string) (Case, bool) {
	c, ok := v.state.cases[id]
	if !ok || c.Deleted() {
		return Case{}, false
	}
	return cloneCase(c), true
}

// FindDevice retrieves a live device by ID from the snapshot.
func (v transactionView) FindDevice(id string) (Device, bool) {
	d, ok := v.state.devices[id]
	if !ok || d.Deleted() {
		return Device{}, false
	}
	return cloneDevice(d), true
}

// FindExtraction retrieves a live extraction by ID from the snapshot.
func (v transactionView) FindExtraction(id string) (Extraction, bool) {
	e, ok := v.state.extractions[id]
	if !ok || e.Deleted() {
		return Extraction{}, false
	}
	return cloneExtraction(e), true
}

// ListDevicesByCase returns the live devices registered under a case.
func (v transactionView) ListDevicesByCase(caseID string) []Device {
	return devicesByCase(v.state, caseID)
}

// ListExtractionsByCase returns the live extractions belonging to a case.
func (v transactionView) ListExtractionsByCase(caseID string) []Extraction {
	return extractionsByCase(v.state, caseID)
}

func devicesByCase(state *memoryState, caseID string) []Device {
	var out []Device
	for _, d := range state.devices {
		if d.Deleted() || d.CaseID != caseID {
			continue
		}
		out = append(out, cloneDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func extractionsByCase(state *memoryState, caseID string) []Extraction {
	var out []Extraction
	for _, e := range state.extractions {
		if e.Deleted() || e.CaseID != caseID {
			continue
		}
		out = append(out, cloneExtraction(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is published only after the rules engine reports no
// blocking violation; any error discards the copy, sequence allocations
// included.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
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

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// AllocateSequence hands out the next number for the unit and year. The
// increment lives in the transactional copy, so a rolled-back transaction
// never consumes a number.
func (tx *transaction) AllocateSequence(unit string, year int) (int, error) {
	if unit == "" {
		return 0, &domain.SequenceUnavailableError{Unit: unit, Year: year, Err: fmt.Errorf("unit is empty")}
	}
	if year <= 0 {
		return 0, &domain.SequenceUnavailableError{Unit: unit, Year: year, Err: fmt.Errorf("year %d out of range", year)}
	}
	key := sequenceKey(unit, year)
	next := tx.state.sequences[key] + 1
	tx.state.sequences[key] = next
	return next, nil
}

// FindRequest exposes request lookup within the transaction scope.
func (tx *transaction) FindRequest(id string) (Request, bool) {
	r, ok := tx.state.requests[id]
	if !ok || r.Deleted() {
		return Request{}, false
	}
	return cloneRequest(r), true
}

// FindCase exposes case lookup within the transaction scope.
func (tx *transaction) FindCase(id string) (Case, bool) {
	c, ok := tx.state.cases[id]
	if !ok || c.Deleted() {
		return Case{}, false
	}
	return cloneCase(c), true
}

// FindDevice exposes device lookup within the transaction scope.
func (tx *transaction) FindDevice(id string) (Device, bool) {
	d, ok := tx.state.devices[id]
	if !ok || d.Deleted() {
		return Device{}, false
	}
	return cloneDevice(d), true
}

// FindExtraction exposes extraction lookup within the transaction scope.
func (tx *transaction) FindExtraction(id string) (Extraction, bool) {
	e, ok := tx.state.extractions[id]
	if !ok || e.Deleted() {
		return Extraction{}, false
	}
	return cloneExtraction(e), true
}

// ListDevicesByCase lists the live devices of a case within the transaction scope.
func (tx *transaction) ListDevicesByCase(caseID string) []Device {
	return devicesByCase(&tx.state, caseID)
}

// ListExtractionsByCase lists the live extractions of a case within the transaction scope.
func (tx *transaction) ListExtractionsByCase(caseID string) []Extraction {
	return extractionsByCase(&tx.state, caseID)
}

// CreateRequest stores a new request within the transaction.
func (tx *transaction) CreateRequest(r Request) (Request, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return Request{}, fmt.Errorf("request %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	r.Version = 1
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: cloneRequest(r)})
	return cloneRequest(r), nil
}

// UpdateRequest mutates a request after the optimistic version check.
func (tx *transaction) UpdateRequest(id string, expectedVersion int, mutator func(*Request) error) (Request, error) {
	current, ok := tx.state.requests[id]
	if !ok || current.Deleted() {
		return Request{}, &domain.NotFoundError{Entity: domain.EntityRequest, ID: id}
	}
	if current.Version != expectedVersion {
		return Request{}, &domain.VersionConflictError{Entity: domain.EntityRequest, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneRequest(current)
	if err := mutator(&current); err != nil {
		return Request{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: before, After: cloneRequest(current)})
	return cloneRequest(current), nil
}

// DeleteRequest tombstones a request.
func (tx *transaction) DeleteRequest(id string, expectedVersion int, actorID string) error {
	current, ok := tx.state.requests[id]
	if !ok || current.Deleted() {
		return &domain.NotFoundError{Entity: domain.EntityRequest, ID: id}
	}
	if current.Version != expectedVersion {
		return &domain.VersionConflictError{Entity: domain.EntityRequest, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneRequest(current)
	deletedAt := tx.now
	current.DeletedAt = &deletedAt
	current.DeletedBy = actorID
	current.UpdatedAt = tx.now
	current.UpdatedBy = actorID
	current.Version++
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityRequest, Action: domain.ActionDelete, Before: before, After: cloneRequest(current)})
	return nil
}

// CreateCase stores a new case within the transaction.
func (tx *transaction) CreateCase(c Case) (Case, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.cases[c.ID]; exists {
		return Case{}, fmt.Errorf("case %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	c.Version = 1
	tx.state.cases[c.ID] = cloneCase(c)
	tx.recordChange(Change{Entity: domain.EntityCase, Action: domain.ActionCreate, After: cloneCase(c)})
	return cloneCase(c), nil
}

// UpdateCase mutates a case after the optimistic version check.
func (tx *transaction) UpdateCase(id string, expectedVersion int, mutator func(*Case) error) (Case, error) {
	current, ok := tx.state.cases[id]
	if !ok || current.Deleted() {
		return Case{}, &domain.NotFoundError{Entity: domain.EntityCase, ID: id}
	}
	if current.Version != expectedVersion {
		return Case{}, &domain.VersionConflictError{Entity: domain.EntityCase, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneCase(current)
	if err := mutator(&current); err != nil {
		return Case{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.cases[id] = cloneCase(current)
	tx.recordChange(Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: cloneCase(current)})
	return cloneCase(current), nil
}

// DeleteCase tombstones a case. Devices and extractions under it keep their
// records but become unreachable through live reads.
func (tx *transaction) DeleteCase(id string, expectedVersion int, actorID string) error {
	current, ok := tx.state.cases[id]
	if !ok || current.Deleted() {
		return &domain.NotFoundError{Entity: domain.EntityCase, ID: id}
	}
	if current.Version != expectedVersion {
		return &domain.VersionConflictError{Entity: domain.EntityCase, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneCase(current)
	deletedAt := tx.now
	current.DeletedAt = &deletedAt
	current.DeletedBy = actorID
	current.UpdatedAt = tx.now
	current.UpdatedBy = actorID
	current.Version++
	tx.state.cases[id] = cloneCase(current)
	tx.recordChange(Change{Entity: domain.EntityCase, Action: domain.ActionDelete, Before: before, After: cloneCase(current)})
	return nil
}

// CreateDevice stores a new device within the transaction.
func (tx *transaction) CreateDevice(d Device) (Device, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.devices[d.ID]; exists {
		return Device{}, fmt.Errorf("device %q already exists", d.ID)
	}
	if c, ok := tx.state.cases[d.CaseID]; !ok || c.Deleted() {
		return Device{}, &domain.NotFoundError{Entity: domain.EntityCase, ID: d.CaseID}
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	d.Version = 1
	tx.state.devices[d.ID] = cloneDevice(d)
	tx.recordChange(Change{Entity: domain.EntityDevice, Action: domain.ActionCreate, After: cloneDevice(d)})
	return cloneDevice(d), nil
}

// UpdateDevice mutates a device after the optimistic version check. A device
// never moves between cases.
func (tx *transaction) UpdateDevice(id string, expectedVersion int, mutator func(*Device) error) (Device, error) {
	current, ok := tx.state.devices[id]
	if !ok || current.Deleted() {
		return Device{}, &domain.NotFoundError{Entity: domain.EntityDevice, ID: id}
	}
	if current.Version != expectedVersion {
		return Device{}, &domain.VersionConflictError{Entity: domain.EntityDevice, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneDevice(current)
	if err := mutator(&current); err != nil {
		return Device{}, err
	}
	current.ID = id
	current.CaseID = before.CaseID
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.devices[id] = cloneDevice(current)
	tx.recordChange(Change{Entity: domain.EntityDevice, Action: domain.ActionUpdate, Before: before, After: cloneDevice(current)})
	return cloneDevice(current), nil
}

// DeleteDevice tombstones a device together with its live extractions, so
// the device stops contributing to the case's derived status.
func (tx *transaction) DeleteDevice(id string, expectedVersion int, actorID string) error {
	current, ok := tx.state.devices[id]
	if !ok || current.Deleted() {
		return &domain.NotFoundError{Entity: domain.EntityDevice, ID: id}
	}
	if current.Version != expectedVersion {
		return &domain.VersionConflictError{Entity: domain.EntityDevice, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneDevice(current)
	deletedAt := tx.now
	current.DeletedAt = &deletedAt
	current.DeletedBy = actorID
	current.UpdatedAt = tx.now
	current.UpdatedBy = actorID
	current.Version++
	tx.state.devices[id] = cloneDevice(current)
	tx.recordChange(Change{Entity: domain.EntityDevice, Action: domain.ActionDelete, Before: before, After: cloneDevice(current)})

	for exID, ex := range tx.state.extractions {
		if ex.Deleted() || ex.DeviceID != id {
			continue
		}
		exBefore := cloneExtraction(ex)
		ex.DeletedAt = &deletedAt
		ex.DeletedBy = actorID
		ex.UpdatedAt = tx.now
		ex.UpdatedBy = actorID
		ex.Version++
		tx.state.extractions[exID] = cloneExtraction(ex)
		tx.recordChange(Change{Entity: domain.EntityExtraction, Action: domain.ActionDelete, Before: exBefore, After: cloneExtraction(ex)})
	}
	return nil
}

// CreateExtraction stores a new extraction within the transaction. CaseID is
// always taken from the device.
func (tx *transaction) CreateExtraction(e Extraction) (Extraction, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.extractions[e.ID]; exists {
		return Extraction{}, fmt.Errorf("extraction %q already exists", e.ID)
	}
	device, ok := tx.state.devices[e.DeviceID]
	if !ok || device.Deleted() {
		return Extraction{}, &domain.NotFoundError{Entity: domain.EntityDevice, ID: e.DeviceID}
	}
	e.CaseID = device.CaseID
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	e.Version = 1
	tx.state.extractions[e.ID] = cloneExtraction(e)
	tx.recordChange(Change{Entity: domain.EntityExtraction, Action: domain.ActionCreate, After: cloneExtraction(e)})
	return cloneExtraction(e), nil
}

// UpdateExtraction mutates an extraction after the optimistic version check.
func (tx *transaction) UpdateExtraction(id string, expectedVersion int, mutator func(*Extraction) error) (Extraction, error) {
	current, ok := tx.state.extractions[id]
	if !ok || current.Deleted() {
		return Extraction{}, &domain.NotFoundError{Entity: domain.EntityExtraction, ID: id}
	}
	if current.Version != expectedVersion {
		return Extraction{}, &domain.VersionConflictError{Entity: domain.EntityExtraction, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneExtraction(current)
	if err := mutator(&current); err != nil {
		return Extraction{}, err
	}
	current.ID = id
	current.DeviceID = before.DeviceID
	current.CaseID = before.CaseID
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.extractions[id] = cloneExtraction(current)
	tx.recordChange(Change{Entity: domain.EntityExtraction, Action: domain.ActionUpdate, Before: before, After: cloneExtraction(current)})
	return cloneExtraction(current), nil
}

// DeleteExtraction tombstones an extraction.
func (tx *transaction) DeleteExtraction(id string, expectedVersion int, actorID string) error {
	current, ok := tx.state.extractions[id]
	if !ok || current.Deleted() {
		return &domain.NotFoundError{Entity: domain.EntityExtraction, ID: id}
	}
	if current.Version != expectedVersion {
		return &domain.VersionConflictError{Entity: domain.EntityExtraction, ID: id, Expected: expectedVersion, Actual: current.Version}
	}
	before := cloneExtraction(current)
	deletedAt := tx.now
	current.DeletedAt = &deletedAt
	current.DeletedBy = actorID
	current.UpdatedAt = tx.now
	current.UpdatedBy = actorID
	current.Version++
	tx.state.extractions[id] = cloneExtraction(current)
	tx.recordChange(Change{Entity: domain.EntityExtraction, Action: domain.ActionDelete, Before: before, After: cloneExtraction(current)})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetRequest returns a live request visible in the scope. Requests are
// visible from both the requesting side and the target side.
func (s *Store) GetRequest(scope Scope, id string) (Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.requests[id]
	if !ok || r.Deleted() {
		return Request{}, false
	}
	if !scope.Allows(r.TargetUnit) && !scope.Allows(r.RequestingUnit) {
		return Request{}, false
	}
	return cloneRequest(r), true
}

// ListRequests returns the live requests visible in the scope, sorted by ID.
func (s *Store) ListRequests(scope Scope) []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, 0, len(s.state.requests))
	for _, r := range s.state.requests {
		if r.Deleted() {
			continue
		}
		if !scope.Allows(r.TargetUnit) && !scope.Allows(r.RequestingUnit) {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetCase returns a live case if its unit is inside the scope.
func (s *Store) GetCase(scope Scope, id string) (Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cases[id]
	if !ok || c.Deleted() || !scope.Allows(c.Unit) {
		return Case{}, false
	}
	return cloneCase(c), true
}

// ListCases returns the live cases visible in the scope, sorted by ID.
func (s *Store) ListCases(scope Scope) []Case {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Case, 0, len(s.state.cases))
	for _, c := range s.state.cases {
		if c.Deleted() || !scope.Allows(c.Unit) {
			continue
		}
		out = append(out, cloneCase(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDevice returns a live device if its case's unit is inside the scope.
func (s *Store) GetDevice(scope Scope, id string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.devices[id]
	if !ok || d.Deleted() || !scope.Allows(caseUnit(&s.state, d.CaseID)) {
		return Device{}, false
	}
	return cloneDevice(d), true
}

// ListDevicesByCase returns the live devices of a case visible in the scope.
func (s *Store) ListDevicesByCase(scope Scope, caseID string) []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !scope.Allows(caseUnit(&s.state, caseID)) {
		return nil
	}
	return devicesByCase(&s.state, caseID)
}

// GetExtraction returns a live extraction if its case's unit is inside the scope.
func (s *Store) GetExtraction(scope Scope, id string) (Extraction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.extractions[id]
	if !ok || e.Deleted() || !scope.Allows(caseUnit(&s.state, e.CaseID)) {
		return Extraction{}, false
	}
	return cloneExtraction(e), true
}

// ListExtractionsByCase returns the live extractions of a case visible in the scope.
func (s *Store) ListExtractionsByCase(scope Scope, caseID string) []Extraction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !scope.Allows(caseUnit(&s.state, caseID)) {
		return nil
	}
	return extractionsByCase(&s.state, caseID)
}

// ListExtractionsByExtractor returns the live extractions assigned to the
// extractor whose cases fall inside the scope, sorted by ID.
func (s *Store) ListExtractionsByExtractor(scope Scope, extractorID string) []Extraction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Extraction
	for _, e := range s.state.extractions {
		if e.Deleted() || e.AssignedExtractor == nil || *e.AssignedExtractor != extractorID {
			continue
		}
		if !scope.Allows(caseUnit(&s.state, e.CaseID)) {
			continue
		}
		out = append(out, cloneExtraction(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
