package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"hostelcore/pkg/domain"
)

// steppingClock advances by one second on every read so records created in
// sequence sort deterministically.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithClock(newSteppingClock())}, opts...)
	return NewInMemoryService(nil, opts...)
}

func mustRegister(t *testing.T, svc *Service, regNo, name string, gender domain.Gender) Student {
	t.Helper()
	st, _, err := svc.RegisterStudent(context.Background(), RegisterStudentInput{
		RegNo:  regNo,
		Name:   name,
		Email:  regNo + "@example.edu",
		Gender: gender,
	})
	if err != nil {
		t.Fatalf("register %s: %v", regNo, err)
	}
	return st
}

func mustHostel(t *testing.T, svc *Service, name string, typ domain.HostelType, rooms int) Hostel {
	t.Helper()
	h, _, err := svc.CreateHostel(context.Background(), HostelInput{Name: name, Type: typ, TotalRooms: rooms})
	if err != nil {
		t.Fatalf("create hostel %s: %v", name, err)
	}
	return h
}

// mustResident registers a student, walks them through an approved
// allocation into hostel and acknowledges the outcome.
func mustResident(t *testing.T, svc *Service, regNo, name string, gender domain.Gender, hostel Hostel) Student {
	t.Helper()
	ctx := context.Background()
	st := mustRegister(t, svc, regNo, name, gender)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit allocation for %s: %v", regNo, err)
	}
	if _, _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatalf("approve allocation for %s: %v", regNo, err)
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, req.ID); err != nil {
		t.Fatalf("dismiss allocation for %s: %v", regNo, err)
	}
	out, err := svc.GetStudent(ctx, st.ID)
	if err != nil {
		t.Fatalf("reload %s: %v", regNo, err)
	}
	return out
}

func mustGetHostel(t *testing.T, svc *Service, id string) Hostel {
	t.Helper()
	h, err := svc.GetHostel(context.Background(), id)
	if err != nil {
		t.Fatalf("get hostel %s: %v", id, err)
	}
	return h
}

func mustGetStudent(t *testing.T, svc *Service, id string) Student {
	t.Helper()
	st, err := svc.GetStudent(context.Background(), id)
	if err != nil {
		t.Fatalf("get student %s: %v", id, err)
	}
	return st
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (l *captureLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, level+":"+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.record("d", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.record("i", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("w", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.record("e", msg) }

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c == entry {
			return true
		}
	}
	return false
}

type capturePublisher struct {
	mu     sync.Mutex
	events []OutcomeEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}
