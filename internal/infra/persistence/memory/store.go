// Package memory provides an in-memory implementation of the hostel
// persistence store used for tests, ephemeral environments, and as the
// working set of the durable backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hostelcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Student aliases domain.Student for in-memory persistence operations.
	Student = domain.Student
	// Hostel aliases domain.Hostel.
	Hostel = domain.Hostel
	// AllocationRequest aliases domain.AllocationRequest.
	AllocationRequest = domain.AllocationRequest
	// LeaveRequest aliases domain.LeaveRequest.
	LeaveRequest = domain.LeaveRequest
	// Complaint aliases domain.Complaint.
	Complaint = domain.Complaint
	// Announcement aliases domain.Announcement.
	Announcement = domain.Announcement
	// FoodMenu aliases domain.FoodMenu.
	FoodMenu = domain.FoodMenu
	// Session aliases domain.Session.
	Session = domain.Session
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
)

type memoryState struct {
	students      map[string]Student
	hostels       map[string]Hostel
	requests      map[string]AllocationRequest
	leaves        map[string]LeaveRequest
	complaints    map[string]Complaint
	announcements map[string]Announcement
	menu          FoodMenu
	sessions      map[string]Session
	read          map[string][]string
	dismissed     map[string][]string
}

func newMemoryState() memoryState {
	return memoryState{
		students:      make(map[string]Student),
		hostels:       make(map[string]Hostel),
		requests:      make(map[string]AllocationRequest),
		leaves:        make(map[string]LeaveRequest),
		complaints:    make(map[string]Complaint),
		announcements: make(map[string]Announcement),
		sessions:      make(map[string]Session),
		read:          make(map[string][]string),
		dismissed:     make(map[string][]string),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.students {
		out.students[k] = cloneStudent(v)
	}
	for k, v := range s.hostels {
		out.hostels[k] = cloneHostel(v)
	}
	for k, v := range s.requests {
		out.requests[k] = cloneRequest(v)
	}
	for k, v := range s.leaves {
		out.leaves[k] = cloneLeave(v)
	}
	for k, v := range s.complaints {
		out.complaints[k] = v
	}
	for k, v := range s.announcements {
		out.announcements[k] = v
	}
	for k, v := range s.sessions {
		v.Student = cloneStudent(v.Student)
		out.sessions[k] = v
	}
	for k, v := range s.read {
		out.read[k] = append([]string(nil), v...)
	}
	for k, v := range s.dismissed {
		out.dismissed[k] = append([]string(nil), v...)
	}
	out.menu = cloneMenu(s.menu)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStudent(s Student) Student {
	s.HostelID = clonePtr(s.HostelID)
	s.HostelName = clonePtr(s.HostelName)
	s.Room = clonePtr(s.Room)
	return s
}

func cloneHostel(h Hostel) Hostel {
	h.Facilities = append([]string(nil), h.Facilities...)
	h.Images = append([]string(nil), h.Images...)
	return h
}

func cloneRequest(r AllocationRequest) AllocationRequest {
	r.CurrentHostelID = clonePtr(r.CurrentHostelID)
	r.DecidedAt = clonePtr(r.DecidedAt)
	if r.StudentDetails != nil {
		details := cloneStudent(*r.StudentDetails)
		r.StudentDetails = &details
	}
	return r
}

func cloneLeave(l LeaveRequest) LeaveRequest {
	l.DecidedAt = clonePtr(l.DecidedAt)
	return l
}

func cloneMenu(m FoodMenu) FoodMenu {
	if m.Meals == nil {
		return m
	}
	meals := make(map[domain.Meal][]domain.MenuItem, len(m.Meals))
	for meal, items := range m.Meals {
		meals[meal] = append([]domain.MenuItem(nil), items...)
	}
	m.Meals = meals
	return m
}

// Commit is the durable write set of a transaction that passed rule
// evaluation. Payloads are keyed by bucket; Versions holds the version each
// dirty bucket had when the transaction started.
type Commit struct {
	Payloads map[string][]byte
	Versions map[string]int64
}

// Committer persists a Commit before it becomes visible in memory. Returning
// an error aborts the transaction and leaves committed state untouched.
type Committer interface {
	Commit(ctx context.Context, commit Commit) error
}

// Option configures a Store.
type Option func(*Store)

// WithCommitter registers a durable write hook.
func WithCommitter(c Committer) Option {
	return func(s *Store) { s.committer = c }
}

// WithNowFunc overrides the timestamp source.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// Store provides an in-memory transactional store for the hostel domain.
type Store struct {
	mu          sync.RWMutex
	state       memoryState
	versions    map[string]int64
	quarantined []domain.QuarantinedBucket
	engine      *RulesEngine
	committer   Committer
	nowFn       func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:    newMemoryState(),
		versions: make(map[string]int64),
		engine:   engine,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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
	s.state = memoryStateFromSnapshot(snapshot)
}

// StoredBucket is a raw persisted payload and the version it was read at.
type StoredBucket struct {
	Payload []byte
	Version int64
}

// LoadBuckets replaces the store state with decoded bucket payloads. Buckets
// missing from raw start empty. A payload that fails to decode is quarantined:
// its bucket starts empty, the raw bytes are retained, and the returned error
// is a *domain.StorageCorruptError. The store remains usable in that case.
func (s *Store) LoadBuckets(raw map[string]StoredBucket) error {
	snapshot := Snapshot{}
	versions := make(map[string]int64, len(raw))
	var quarantined []domain.QuarantinedBucket
	for _, bucket := range Buckets {
		stored, ok := raw[bucket]
		if !ok {
			continue
		}
		versions[bucket] = stored.Version
		if len(stored.Payload) == 0 {
			continue
		}
		if err := decodeBucket(&snapshot, bucket, stored.Payload); err != nil {
			quarantined = append(quarantined, domain.QuarantinedBucket{
				Bucket:  bucket,
				Version: stored.Version,
				Payload: append([]byte(nil), stored.Payload...),
				Err:     err,
			})
		}
	}
	s.mu.Lock()
	s.state = memoryStateFromSnapshot(snapshot)
	s.versions = versions
	s.quarantined = quarantined
	s.mu.Unlock()
	if len(quarantined) > 0 {
		return &domain.StorageCorruptError{Buckets: quarantined}
	}
	return nil
}

// EncodeBuckets renders the committed state of every bucket.
func (s *Store) EncodeBuckets() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		payload, err := encodeBucket(&s.state, bucket)
		if err != nil {
			return nil, err
		}
		out[bucket] = payload
	}
	return out, nil
}

// Versions returns the committed version of each bucket.
func (s *Store) Versions() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.versions))
	for k, v := range s.versions {
		out[k] = v
	}
	return out
}

// Quarantined returns payloads set aside on the last load.
func (s *Store) Quarantined() []domain.QuarantinedBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.QuarantinedBucket(nil), s.quarantined...)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	dirty   map[string]struct{}
	now     time.Time
}

// RunInTransaction executes fn against a clone of the committed state. The
// clone is evaluated by the rules engine, handed to the committer if one is
// configured, and only then becomes the committed state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		dirty: make(map[string]struct{}),
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

	if len(tx.dirty) == 0 {
		return result, nil
	}
	if s.committer != nil {
		commit := Commit{
			Payloads: make(map[string][]byte, len(tx.dirty)),
			Versions: make(map[string]int64, len(tx.dirty)),
		}
		for bucket := range tx.dirty {
			payload, err := encodeBucket(&tx.state, bucket)
			if err != nil {
				return result, fmt.Errorf("encode %s: %w", bucket, err)
			}
			commit.Payloads[bucket] = payload
			commit.Versions[bucket] = s.versions[bucket]
		}
		if err := s.committer.Commit(ctx, commit); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	for bucket := range tx.dirty {
		s.versions[bucket]++
	}
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
	if bucket, ok := entityBuckets[change.Entity]; ok {
		tx.dirty[bucket] = struct{}{}
	}
}

func (tx *transaction) markDirty(bucket string) {
	tx.dirty[bucket] = struct{}{}
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindStudent exposes student lookup within the transaction scope.
func (tx *transaction) FindStudent(id string) (Student, bool) {
	s, ok := tx.state.students[id]
	if !ok {
		return Student{}, false
	}
	return cloneStudent(s), true
}

// FindHostel exposes hostel lookup within the transaction scope.
func (tx *transaction) FindHostel(id string) (Hostel, bool) {
	h, ok := tx.state.hostels[id]
	if !ok {
		return Hostel{}, false
	}
	return cloneHostel(h), true
}

// FindAllocationRequest exposes request lookup within the transaction scope.
func (tx *transaction) FindAllocationRequest(id string) (AllocationRequest, bool) {
	r, ok := tx.state.requests[id]
	if !ok {
		return AllocationRequest{}, false
	}
	return cloneRequest(r), true
}

// FindLeaveRequest exposes leave lookup within the transaction scope.
func (tx *transaction) FindLeaveRequest(id string) (LeaveRequest, bool) {
	l, ok := tx.state.leaves[id]
	if !ok {
		return LeaveRequest{}, false
	}
	return cloneLeave(l), true
}

// CreateStudent stores a new student. RegNo must be unique.
func (tx *transaction) CreateStudent(s Student) (Student, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.students[s.ID]; exists {
		return Student{}, fmt.Errorf("student %q: %w", s.ID, domain.ErrAlreadyExists)
	}
	for _, existing := range tx.state.students {
		if s.RegNo != "" && existing.RegNo == s.RegNo {
			return Student{}, fmt.Errorf("student regNo %q: %w", s.RegNo, domain.ErrAlreadyExists)
		}
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.students[s.ID] = cloneStudent(s)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionCreate, After: domain.MustChangePayload(s)})
	return cloneStudent(s), nil
}

// UpdateStudent mutates a student using the provided mutator function. The id
// and regNo are immutable.
func (tx *transaction) UpdateStudent(id string, mutator func(*Student) error) (Student, error) {
	current, ok := tx.state.students[id]
	if !ok {
		return Student{}, domain.NotFoundError{Entity: domain.EntityStudent, ID: id}
	}
	before := cloneStudent(current)
	current = cloneStudent(current)
	if err := mutator(&current); err != nil {
		return Student{}, err
	}
	current.ID = id
	current.RegNo = before.RegNo
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.students[id] = cloneStudent(current)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(current)})
	return cloneStudent(current), nil
}

// DeleteStudent removes a student and any sessions bound to them.
func (tx *transaction) DeleteStudent(id string) error {
	current, ok := tx.state.students[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStudent, ID: id}
	}
	delete(tx.state.students, id)
	tx.recordChange(Change{Entity: domain.EntityStudent, Action: domain.ActionDelete, Before: domain.MustChangePayload(current)})
	for sid, session := range tx.state.sessions {
		if session.StudentID == id {
			delete(tx.state.sessions, sid)
			tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionDelete, Before: domain.MustChangePayload(session)})
		}
	}
	return nil
}

// CreateHostel stores a new hostel.
func (tx *transaction) CreateHostel(h Hostel) (Hostel, error) {
	if h.ID == "" {
		h.ID = tx.store.newID()
	}
	if _, exists := tx.state.hostels[h.ID]; exists {
		return Hostel{}, fmt.Errorf("hostel %q: %w", h.ID, domain.ErrAlreadyExists)
	}
	h.CreatedAt = tx.now
	h.UpdatedAt = tx.now
	tx.state.hostels[h.ID] = cloneHostel(h)
	tx.recordChange(Change{Entity: domain.EntityHostel, Action: domain.ActionCreate, After: domain.MustChangePayload(h)})
	return cloneHostel(h), nil
}

// UpdateHostel mutates a hostel using the provided mutator function.
func (tx *transaction) UpdateHostel(id string, mutator func(*Hostel) error) (Hostel, error) {
	current, ok := tx.state.hostels[id]
	if !ok {
		return Hostel{}, domain.NotFoundError{Entity: domain.EntityHostel, ID: id}
	}
	before := cloneHostel(current)
	current = cloneHostel(current)
	if err := mutator(&current); err != nil {
		return Hostel{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.hostels[id] = cloneHostel(current)
	tx.recordChange(Change{Entity: domain.EntityHostel, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(current)})
	return cloneHostel(current), nil
}

// DeleteHostel removes a hostel that no student references.
func (tx *transaction) DeleteHostel(id string) error {
	current, ok := tx.state.hostels[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityHostel, ID: id}
	}
	for _, student := range tx.state.students {
		if student.HostelID != nil && *student.HostelID == id {
			return &domain.InvalidStateError{Entity: domain.EntityHostel, ID: id, State: "occupied", Reason: fmt.Sprintf("student %s still assigned", student.RegNo)}
		}
	}
	delete(tx.state.hostels, id)
	tx.recordChange(Change{Entity: domain.EntityHostel, Action: domain.ActionDelete, Before: domain.MustChangePayload(current)})
	return nil
}

// CreateAllocationRequest stores a new allocation or transfer request.
func (tx *transaction) CreateAllocationRequest(r AllocationRequest) (AllocationRequest, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.requests[r.ID]; exists {
		return AllocationRequest{}, fmt.Errorf("allocation request %q: %w", r.ID, domain.ErrAlreadyExists)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.requests[r.ID] = cloneRequest(r)
	tx.recordChange(Change{Entity: domain.EntityAllocationRequest, Action: domain.ActionCreate, After: domain.MustChangePayload(r)})
	return cloneRequest(r), nil
}

// UpdateAllocationRequest mutates a request using the provided mutator function.
func (tx *transaction) UpdateAllocationRequest(id string, mutator func(*AllocationRequest) error) (AllocationRequest, error) {
	current, ok := tx.state.requests[id]
	if !ok {
		return AllocationRequest{}, domain.NotFoundError{Entity: domain.EntityAllocationRequest, ID: id}
	}
	before := cloneRequest(current)
	current = cloneRequest(current)
	if err := mutator(&current); err != nil {
		return AllocationRequest{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.requests[id] = cloneRequest(current)
	tx.recordChange(Change{Entity: domain.EntityAllocationRequest, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(current)})
	return cloneRequest(current), nil
}

// CreateLeaveRequest stores a new leave request.
func (tx *transaction) CreateLeaveRequest(l LeaveRequest) (LeaveRequest, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.leaves[l.ID]; exists {
		return LeaveRequest{}, fmt.Errorf("leave request %q: %w", l.ID, domain.ErrAlreadyExists)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.leaves[l.ID] = cloneLeave(l)
	tx.recordChange(Change{Entity: domain.EntityLeaveRequest, Action: domain.ActionCreate, After: domain.MustChangePayload(l)})
	return cloneLeave(l), nil
}

// UpdateLeaveRequest mutates a leave request using the provided mutator function.
func (tx *transaction) UpdateLeaveRequest(id string, mutator func(*LeaveRequest) error) (LeaveRequest, error) {
	current, ok := tx.state.leaves[id]
	if !ok {
		return LeaveRequest{}, domain.NotFoundError{Entity: domain.EntityLeaveRequest, ID: id}
	}
	before := cloneLeave(current)
	current = cloneLeave(current)
	if err := mutator(&current); err != nil {
		return LeaveRequest{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.leaves[id] = cloneLeave(current)
	tx.recordChange(Change{Entity: domain.EntityLeaveRequest, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(current)})
	return cloneLeave(current), nil
}

// CreateComplaint stores a new complaint.
func (tx *transaction) CreateComplaint(c Complaint) (Complaint, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.complaints[c.ID]; exists {
		return Complaint{}, fmt.Errorf("complaint %q: %w", c.ID, domain.ErrAlreadyExists)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.complaints[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityComplaint, Action: domain.ActionCreate, After: domain.MustChangePayload(c)})
	return c, nil
}

// UpdateComplaint mutates a complaint using the provided mutator function.
func (tx *transaction) UpdateComplaint(id string, mutator func(*Complaint) error) (Complaint, error) {
	current, ok := tx.state.complaints[id]
	if !ok {
		return Complaint{}, domain.NotFoundError{Entity: domain.EntityComplaint, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Complaint{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.complaints[id] = current
	tx.recordChange(Change{Entity: domain.EntityComplaint, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(current)})
	return current, nil
}

// CreateAnnouncement stores a new announcement.
func (tx *transaction) CreateAnnouncement(a Announcement) (Announcement, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.announcements[a.ID]; exists {
		return Announcement{}, fmt.Errorf("announcement %q: %w", a.ID, domain.ErrAlreadyExists)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.announcements[a.ID] = a
	tx.recordChange(Change{Entity: domain.EntityAnnouncement, Action: domain.ActionCreate, After: domain.MustChangePayload(a)})
	return a, nil
}

// DeleteAnnouncement removes an announcement.
func (tx *transaction) DeleteAnnouncement(id string) error {
	current, ok := tx.state.announcements[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAnnouncement, ID: id}
	}
	delete(tx.state.announcements, id)
	tx.recordChange(Change{Entity: domain.EntityAnnouncement, Action: domain.ActionDelete, Before: domain.MustChangePayload(current)})
	return nil
}

// SetFoodMenu replaces the food menu and stamps its publication time.
func (tx *transaction) SetFoodMenu(menu FoodMenu) (FoodMenu, error) {
	before := cloneMenu(tx.state.menu)
	menu = cloneMenu(menu)
	menu.UpdatedAt = tx.now
	tx.state.menu = menu
	tx.recordChange(Change{Entity: domain.EntityFoodMenu, Action: domain.ActionUpdate, Before: domain.MustChangePayload(before), After: domain.MustChangePayload(menu)})
	return cloneMenu(menu), nil
}

// CreateSession stores an authenticated session.
func (tx *transaction) CreateSession(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.sessions[s.ID]; exists {
		return Session{}, fmt.Errorf("session %q: %w", s.ID, domain.ErrAlreadyExists)
	}
	s.CreatedAt = tx.now
	s.Student = cloneStudent(s.Student)
	tx.state.sessions[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionCreate, After: domain.MustChangePayload(s)})
	return s, nil
}

// DeleteSession removes a session.
func (tx *transaction) DeleteSession(id string) error {
	current, ok := tx.state.sessions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySession, ID: id}
	}
	delete(tx.state.sessions, id)
	tx.recordChange(Change{Entity: domain.EntitySession, Action: domain.ActionDelete, Before: domain.MustChangePayload(current)})
	return nil
}

type notificationChange struct {
	User string                 `json:"user"`
	Set  domain.NotificationSet `json:"set"`
	IDs  []string               `json:"ids"`
}

func (tx *transaction) notificationMap(set domain.NotificationSet) (map[string][]string, string, error) {
	bucket, err := notificationBucket(set)
	if err != nil {
		return nil, "", err
	}
	if set == domain.NotificationsRead {
		return tx.state.read, bucket, nil
	}
	return tx.state.dismissed, bucket, nil
}

// AddNotificationIDs unions ids into a user's set and returns the resulting set.
// Adding ids that are already present changes nothing.
func (tx *transaction) AddNotificationIDs(set domain.NotificationSet, userKey string, ids ...string) ([]string, error) {
	if userKey == "" {
		return nil, errors.New("notification user key required")
	}
	m, bucket, err := tx.notificationMap(set)
	if err != nil {
		return nil, err
	}
	before := m[userKey]
	merged := dedupeStrings(append(append([]string(nil), before...), ids...))
	if len(merged) != len(before) {
		m[userKey] = merged
		tx.changes = append(tx.changes, Change{
			Entity: domain.EntityNotificationState,
			Action: domain.ActionUpdate,
			Before: domain.MustChangePayload(notificationChange{User: userKey, Set: set, IDs: before}),
			After:  domain.MustChangePayload(notificationChange{User: userKey, Set: set, IDs: merged}),
		})
		tx.markDirty(bucket)
	}
	return append([]string(nil), merged...), nil
}

// ResetNotificationIDs clears a user's set.
func (tx *transaction) ResetNotificationIDs(set domain.NotificationSet, userKey string) error {
	m, bucket, err := tx.notificationMap(set)
	if err != nil {
		return err
	}
	before, ok := m[userKey]
	if !ok {
		return nil
	}
	delete(m, userKey)
	tx.changes = append(tx.changes, Change{
		Entity: domain.EntityNotificationState,
		Action: domain.ActionDelete,
		Before: domain.MustChangePayload(notificationChange{User: userKey, Set: set, IDs: before}),
	})
	tx.markDirty(bucket)
	return nil
}

// GetStudent returns a student by id.
func (s *Store) GetStudent(id string) (Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.students[id]
	if !ok {
		return Student{}, false
	}
	return cloneStudent(st), true
}

// ListStudents returns all students ordered by creation time.
func (s *Store) ListStudents() []Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListStudents()
}

// GetHostel returns a hostel by id.
func (s *Store) GetHostel(id string) (Hostel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.state.hostels[id]
	if !ok {
		return Hostel{}, false
	}
	return cloneHostel(h), true
}

// ListHostels returns all hostels ordered by creation time.
func (s *Store) ListHostels() []Hostel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListHostels()
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func listSorted[T any](m map[string]T, base func(T) domain.Base, clone func(T) T) []T {
	out := sortedValues(m, base)
	for i := range out {
		out[i] = clone(out[i])
	}
	return out
}

func identity[T any](v T) T { return v }

// ListStudents returns all students within the snapshot.
func (v transactionView) ListStudents() []Student {
	return listSorted(v.state.students, func(s Student) domain.Base { return s.Base }, cloneStudent)
}

// ListHostels returns all hostels within the snapshot.
func (v transactionView) ListHostels() []Hostel {
	return listSorted(v.state.hostels, func(h Hostel) domain.Base { return h.Base }, cloneHostel)
}

// ListAllocationRequests returns all allocation and transfer requests.
func (v transactionView) ListAllocationRequests() []AllocationRequest {
	return listSorted(v.state.requests, func(r AllocationRequest) domain.Base { return r.Base }, cloneRequest)
}

// ListLeaveRequests returns all leave requests.
func (v transactionView) ListLeaveRequests() []LeaveRequest {
	return listSorted(v.state.leaves, func(l LeaveRequest) domain.Base { return l.Base }, cloneLeave)
}

// ListComplaints returns all complaints.
func (v transactionView) ListComplaints() []Complaint {
	return listSorted(v.state.complaints, func(c Complaint) domain.Base { return c.Base }, identity[Complaint])
}

// ListAnnouncements returns all announcements, oldest first.
func (v transactionView) ListAnnouncements() []Announcement {
	return listSorted(v.state.announcements, func(a Announcement) domain.Base { return a.Base }, identity[Announcement])
}

// FoodMenu returns the current menu.
func (v transactionView) FoodMenu() FoodMenu {
	return cloneMenu(v.state.menu)
}

// FindStudent retrieves a student by ID from the snapshot.
func (v transactionView) FindStudent(id string) (Student, bool) {
	s, ok := v.state.students[id]
	if !ok {
		return Student{}, false
	}
	return cloneStudent(s), true
}

// FindHostel retrieves a hostel by ID from the snapshot.
func (v transactionView) FindHostel(id string) (Hostel, bool) {
	h, ok := v.state.hostels[id]
	if !ok {
		return Hostel{}, false
	}
	return cloneHostel(h), true
}

// FindAllocationRequest retrieves a request by ID from the snapshot.
func (v transactionView) FindAllocationRequest(id string) (AllocationRequest, bool) {
	r, ok := v.state.requests[id]
	if !ok {
		return AllocationRequest{}, false
	}
	return cloneRequest(r), true
}

// FindLeaveRequest retrieves a leave request by ID from the snapshot.
func (v transactionView) FindLeaveRequest(id string) (LeaveRequest, bool) {
	l, ok := v.state.leaves[id]
	if !ok {
		return LeaveRequest{}, false
	}
	return cloneLeave(l), true
}

// FindComplaint retrieves a complaint by ID from the snapshot.
func (v transactionView) FindComplaint(id string) (Complaint, bool) {
	c, ok := v.state.complaints[id]
	return c, ok
}

// FindSession retrieves a session by ID from the snapshot.
func (v transactionView) FindSession(id string) (Session, bool) {
	s, ok := v.state.sessions[id]
	if !ok {
		return Session{}, false
	}
	s.Student = cloneStudent(s.Student)
	return s, true
}

// NotificationIDs returns a copy of a user's read or dismissed set.
func (v transactionView) NotificationIDs(set domain.NotificationSet, userKey string) []string {
	var ids []string
	switch set {
	case domain.NotificationsRead:
		ids = v.state.read[userKey]
	case domain.NotificationsDismissed:
		ids = v.state.dismissed[userKey]
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
