package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"hostelcore/pkg/domain"
)

func strPtr(v string) *string { return &v }

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindHostel("missing"); ok {
			t.Fatalf("expected missing hostel lookup")
		}
		created, err := tx.CreateStudent(domain.Student{RegNo: "CS2099009", Name: "Asha", Gender: domain.GenderFemale})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		view := tx.Snapshot()
		if len(view.ListStudents()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListStudents()) != 1 {
		t.Fatalf("expected persisted student")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListStudents()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListStudents()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock}}}, nil
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateHostel(domain.Hostel{Name: "Fail"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListHostels()) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
	if v := store.Versions()[BucketHostels]; v != 0 {
		t.Fatalf("blocked transaction must not bump version, got %d", v)
	}
}

func TestStoreRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateHostel(domain.Hostel{Name: "Ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ListHostels()) != 0 {
		t.Fatalf("failed transaction leaked state")
	}
}

func TestStoreCancelledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	if _, err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if called {
		t.Fatalf("transaction body must not run on cancelled context")
	}
}

func TestStoreDuplicateRegNo(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	create := func() error {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateStudent(domain.Student{RegNo: "CS1", Name: "A"})
			return err
		})
		return err
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStoreUpdateKeepsIdentity(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateStudent(domain.Student{RegNo: "CS1", Name: "A"})
		id = s.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStudent(id, func(s *domain.Student) error {
			s.ID = "other"
			s.RegNo = "CHANGED"
			s.Name = "B"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := store.GetStudent(id)
	if !ok || got.RegNo != "CS1" || got.Name != "B" {
		t.Fatalf("unexpected student after update: %+v", got)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStudent("missing", func(*domain.Student) error { return nil })
		return err
	}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreDeleteHostelRefusedWhileOccupied(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var hostelID, studentID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		h, err := tx.CreateHostel(domain.Hostel{Name: "North", TotalRooms: 2, AvailableRooms: 2})
		if err != nil {
			return err
		}
		hostelID = h.ID
		s, err := tx.CreateStudent(domain.Student{RegNo: "CS1", Name: "A", HostelID: strPtr(h.ID)})
		studentID = s.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteHostel(hostelID) })
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteStudent(studentID); err != nil {
			return err
		}
		return tx.DeleteHostel(hostelID)
	}); err != nil {
		t.Fatalf("delete after vacating: %v", err)
	}
}

func TestStoreDeleteStudentDropsSessions(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var sessionID, studentID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateStudent(domain.Student{RegNo: "CS1", Name: "A"})
		if err != nil {
			return err
		}
		studentID = s.ID
		sess, err := tx.CreateSession(domain.Session{StudentID: s.ID, Student: s})
		sessionID = sess.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteStudent(studentID) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindSession(sessionID); ok {
			t.Fatalf("expected session to be removed with its student")
		}
		return nil
	})
}

func TestStoreVersionsTrackDirtyBuckets(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateHostel(domain.Hostel{Name: "North"})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	versions := store.Versions()
	if versions[BucketHostels] != 1 {
		t.Fatalf("expected hostel bucket version 1, got %d", versions[BucketHostels])
	}
	if versions[BucketStudents] != 0 {
		t.Fatalf("untouched bucket must keep version 0, got %d", versions[BucketStudents])
	}
	if _, err := store.RunInTransaction(ctx, func(domain.Transaction) error { return nil }); err != nil {
		t.Fatalf("empty transaction: %v", err)
	}
	if store.Versions()[BucketHostels] != 1 {
		t.Fatalf("read-only transaction must not bump versions")
	}
}

type recordingCommitter struct {
	commits []Commit
	err     error
}

func (c *recordingCommitter) Commit(_ context.Context, commit Commit) error {
	c.commits = append(c.commits, commit)
	return c.err
}

func TestStoreCommitterReceivesDirtyBuckets(t *testing.T) {
	committer := &recordingCommitter{}
	store := NewStore(nil, WithCommitter(committer))
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnnouncement(domain.Announcement{Title: "Water outage", Desc: "Block B"})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(committer.commits) != 1 {
		t.Fatalf("expected one commit, got %d", len(committer.commits))
	}
	commit := committer.commits[0]
	if len(commit.Payloads) != 1 {
		t.Fatalf("expected only the announcements bucket, got %v", commit.Payloads)
	}
	var decoded []domain.Announcement
	if err := json.Unmarshal(commit.Payloads[BucketAnnouncements], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Title != "Water outage" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if commit.Versions[BucketAnnouncements] != 0 {
		t.Fatalf("expected expected-version 0, got %d", commit.Versions[BucketAnnouncements])
	}

	committer.err = &domain.VersionConflictError{Bucket: BucketAnnouncements, Expected: 1}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnnouncement(domain.Announcement{Title: "Lost"})
		return err
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if n := len(v.ListAnnouncements()); n != 1 {
			t.Fatalf("failed commit must not become visible, have %d announcements", n)
		}
		return nil
	})
	if store.Versions()[BucketAnnouncements] != 1 {
		t.Fatalf("failed commit must not bump version")
	}
}

func TestStoreLoadBucketsQuarantinesCorruptPayload(t *testing.T) {
	store := NewStore(nil)
	hostels := fmt.Sprintf(`[{"id":"h1","name":"St Mary's Hostel","type":"Girls","totalRooms":80,"availableRooms":%d}]`, 80)
	err := store.LoadBuckets(map[string]StoredBucket{
		BucketHostels:  {Payload: []byte(hostels), Version: 4},
		BucketStudents: {Payload: []byte(`[{"id":`), Version: 2},
	})
	var corrupt *domain.StorageCorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected storage corrupt error, got %v", err)
	}
	if !errors.Is(err, domain.ErrStorageCorrupt) {
		t.Fatalf("expected ErrStorageCorrupt sentinel")
	}
	if len(corrupt.Buckets) != 1 || corrupt.Buckets[0].Bucket != BucketStudents {
		t.Fatalf("unexpected quarantine set %+v", corrupt.Buckets)
	}
	q := store.Quarantined()
	if len(q) != 1 || string(q[0].Payload) != `[{"id":` {
		t.Fatalf("expected raw payload retained, got %+v", q)
	}
	if len(store.ListStudents()) != 0 {
		t.Fatalf("quarantined bucket must start empty")
	}
	h, ok := store.GetHostel("h1")
	if !ok {
		t.Fatalf("healthy bucket must load")
	}
	if h.TotalBeds != 80 || h.AvailableBeds != 80 {
		t.Fatalf("expected legacy hostel to gain bed counters, got %+v", h)
	}
	versions := store.Versions()
	if versions[BucketHostels] != 4 || versions[BucketStudents] != 2 {
		t.Fatalf("expected stored versions to be kept, got %v", versions)
	}
}

func TestStoreLoadBucketsAssignsMissingIDs(t *testing.T) {
	store := NewStore(nil)
	if err := store.LoadBuckets(map[string]StoredBucket{
		BucketComplaints: {Payload: []byte(`[{"student":"Asha","type":"Electrical","desc":"Fan broken"}]`), Version: 1},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		complaints := v.ListComplaints()
		if len(complaints) != 1 || complaints[0].ID == "" {
			t.Fatalf("expected surrogate id, got %+v", complaints)
		}
		if complaints[0].Status != domain.ComplaintPending {
			t.Fatalf("expected default status Pending, got %q", complaints[0].Status)
		}
		return nil
	})
}

func TestStoreLoadBucketsAcceptsBrowserPayloads(t *testing.T) {
	store := NewStore(nil)
	hostels := `[
		{"id":1,"name":"St Thomas Hostel","totalRooms":50,"availableRooms":50,"image":"/hostels/St Thomas Hostel.png","type":"Boys"},
		{"id":7,"name":"St Mary’s Hostel","totalRooms":80,"availableRooms":80,"image":null,"type":"Girls"}
	]`
	students := `[
		{"id":1,"name":"Rahul Kumar","regNo":"CS2023001","parentName":"Suresh Kumar","hostel":"St Thomas Hostel","room":"101","status":"Active","feeDue":0},
		{"id":4,"name":"Arjun Das","regNo":"CV2023088","hostel":"St Thomas Hostel","room":"105","status":"Active","feeDue":"₹5,000"}
	]`
	requests := `[{"id":1741939200123,"studentName":"Sneha Reddy","regNo":"EC2023112","currentHostel":"None",
		"requestedHostel":"St Mary’s Hostel","reason":"New Allocation","status":"Pending","date":"2025-03-14",
		"studentDetails":{"id":9,"name":"Sneha Reddy","regNo":"EC2023112","gender":"Female","status":"Pending_Approval"}}]`
	leaves := `[{"id":1741939200456,"studentName":"Rahul Kumar","regNo":"CS2023001","type":"Home","from":"2025-03-20","to":"2025-03-22","reason":"Festival","status":"Pending"}]`
	complaints := `[{"id":1741939200789,"student":"Rahul Kumar","type":"Plumbing","desc":"Tap leaking","status":"Pending","date":"14 Mar 2025"}]`
	profile := `{"name":"Rahul Kumar","regNo":"CS2023001","hostelName":"St Thomas Hostel","feeDue":"₹0"}`

	if err := store.LoadBuckets(map[string]StoredBucket{
		BucketHostels:            {Payload: []byte(hostels), Version: 1},
		BucketStudents:           {Payload: []byte(students), Version: 1},
		BucketAllocationRequests: {Payload: []byte(requests), Version: 1},
		BucketLeaveRequests:      {Payload: []byte(leaves), Version: 1},
		BucketComplaints:         {Payload: []byte(complaints), Version: 1},
		BucketSessions:           {Payload: []byte(profile), Version: 1},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if q := store.Quarantined(); len(q) != 0 {
		t.Fatalf("expected nothing quarantined, got %+v", q)
	}
	if _, ok := store.GetHostel("7"); !ok {
		t.Fatalf("expected hostel 7 keyed by its decimal id")
	}
	snap := store.ExportState()
	rahul, ok := snap.Students["1"]
	if !ok {
		t.Fatalf("expected student 1, got %v", snap.Students)
	}
	if rahul.GuardianName != "Suresh Kumar" || rahul.HostelName == nil || *rahul.HostelName != "St Thomas Hostel" {
		t.Fatalf("expected renamed fields carried over, got %+v", rahul)
	}
	if rahul.HostelID == nil || *rahul.HostelID != "1" {
		t.Fatalf("expected hostel id linked by name, got %v", rahul.HostelID)
	}
	if fee := snap.Students["4"].FeeDue; fee != 5000 {
		t.Fatalf("expected display amount read as 5000, got %d", fee)
	}
	req, ok := snap.Requests["1741939200123"]
	if !ok {
		t.Fatalf("expected request keyed by its full timestamp id, got %v", snap.Requests)
	}
	if req.RequestedHostelID != "7" || req.CurrentHostelID != nil {
		t.Fatalf("expected requested hostel linked and no current hostel, got %q %v", req.RequestedHostelID, req.CurrentHostelID)
	}
	if req.StudentDetails == nil || req.StudentDetails.ID != "9" {
		t.Fatalf("expected nested student id normalised, got %+v", req.StudentDetails)
	}
	if _, ok := snap.Leaves["1741939200456"]; !ok {
		t.Fatalf("expected leave keyed by decimal id, got %v", snap.Leaves)
	}
	if _, ok := snap.Complaints["1741939200789"]; !ok {
		t.Fatalf("expected complaint keyed by decimal id, got %v", snap.Complaints)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("expected the stored profile as one session, got %v", snap.Sessions)
	}
	for _, sess := range snap.Sessions {
		if sess.Student.RegNo != "CS2023001" || sess.Student.FeeDue != 0 {
			t.Fatalf("unexpected session %+v", sess)
		}
	}
}

func TestStoreLoadBucketsLeavesAmbiguousHostelNamesUnlinked(t *testing.T) {
	store := NewStore(nil)
	if err := store.LoadBuckets(map[string]StoredBucket{
		BucketHostels: {Payload: []byte(`[{"id":"a","name":"Annex","type":"Boys","totalRooms":1,"availableRooms":1},
			{"id":"b","name":"Annex","type":"Boys","totalRooms":1,"availableRooms":1}]`), Version: 1},
		BucketAllocationRequests: {Payload: []byte(`[{"id":"r1","requestedHostel":"Annex","status":"Pending"}]`), Version: 1},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := store.ExportState().Requests["r1"].RequestedHostelID; got != "" {
		t.Fatalf("expected ambiguous name left unlinked, got %q", got)
	}
}

func TestStoreEncodeBucketsRoundTrip(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.SetFoodMenu(domain.FoodMenu{Meals: map[domain.Meal][]domain.MenuItem{
			domain.MealLunch: {{Name: "Rice", Type: "Veg"}},
		}}); err != nil {
			return err
		}
		_, err := tx.AddNotificationIDs(domain.NotificationsRead, "u1", "notice-1")
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	encoded, err := store.EncodeBuckets()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := make(map[string]StoredBucket, len(encoded))
	for bucket, payload := range encoded {
		raw[bucket] = StoredBucket{Payload: payload, Version: 1}
	}
	restored := NewStore(nil)
	if err := restored.LoadBuckets(raw); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = restored.View(ctx, func(v domain.TransactionView) error {
		menu := v.FoodMenu()
		if !menu.Published() || len(menu.Meals[domain.MealLunch]) != 1 {
			t.Fatalf("menu not restored: %+v", menu)
		}
		if ids := v.NotificationIDs(domain.NotificationsRead, "u1"); len(ids) != 1 || ids[0] != "notice-1" {
			t.Fatalf("read set not restored: %v", ids)
		}
		return nil
	})
}

func TestStoreNotificationSetsAreIdempotent(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	add := func(ids ...string) []string {
		var out []string
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			out, err = tx.AddNotificationIDs(domain.NotificationsDismissed, "u1", ids...)
			return err
		}); err != nil {
			t.Fatalf("add: %v", err)
		}
		return out
	}
	add("a", "b")
	if got := add("b", "a"); len(got) != 2 {
		t.Fatalf("expected union of size 2, got %v", got)
	}
	if v := store.Versions()[BucketDismissedNotifications]; v != 1 {
		t.Fatalf("no-op union must not dirty the bucket, version %d", v)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.ResetNotificationIDs(domain.NotificationsDismissed, "u1")
	}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		if ids := v.NotificationIDs(domain.NotificationsDismissed, "u1"); len(ids) != 0 {
			t.Fatalf("expected empty set after reset, got %v", ids)
		}
		return nil
	})
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.AddNotificationIDs("bogus", "u1", "x")
		return err
	}); err == nil {
		t.Fatalf("expected unknown set error")
	}
}

func TestViewReturnsClones(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateHostel(domain.Hostel{Base: domain.Base{ID: "h1"}, Name: "North", Facilities: []string{"WiFi"}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		h, _ := v.FindHostel("h1")
		h.Facilities[0] = "mutated"
		return nil
	})
	h, _ := store.GetHostel("h1")
	if h.Facilities[0] != "WiFi" {
		t.Fatalf("view mutation leaked into committed state")
	}
}
