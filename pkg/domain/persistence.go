package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateStudent(Student) (Student, error)
	UpdateStudent(id string, mutator func(*Student) error) (Student, error)
	DeleteStudent(id string) error
	CreateHostel(Hostel) (Hostel, error)
	UpdateHostel(id string, mutator func(*Hostel) error) (Hostel, error)
	DeleteHostel(id string) error
	CreateAllocationRequest(AllocationRequest) (AllocationRequest, error)
	UpdateAllocationRequest(id string, mutator func(*AllocationRequest) error) (AllocationRequest, error)
	CreateLeaveRequest(LeaveRequest) (LeaveRequest, error)
	UpdateLeaveRequest(id string, mutator func(*LeaveRequest) error) (LeaveRequest, error)
	CreateComplaint(Complaint) (Complaint, error)
	UpdateComplaint(id string, mutator func(*Complaint) error) (Complaint, error)
	CreateAnnouncement(Announcement) (Announcement, error)
	DeleteAnnouncement(id string) error
	SetFoodMenu(FoodMenu) (FoodMenu, error)
	CreateSession(Session) (Session, error)
	DeleteSession(id string) error
	AddNotificationIDs(set NotificationSet, userKey string, ids ...string) ([]string, error)
	ResetNotificationIDs(set NotificationSet, userKey string) error
	FindStudent(id string) (Student, bool)
	FindHostel(id string) (Hostel, bool)
	FindAllocationRequest(id string) (AllocationRequest, bool)
	FindLeaveRequest(id string) (LeaveRequest, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListComplaints() []Complaint
	ListAnnouncements() []Announcement
	FoodMenu() FoodMenu
	FindComplaint(id string) (Complaint, bool)
	FindSession(id string) (Session, bool)
	NotificationIDs(set NotificationSet, userKey string) []string
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetStudent(id string) (Student, bool)
	ListStudents() []Student
	GetHostel(id string) (Hostel, bool)
	ListHostels() []Hostel
	Versions() map[string]int64
	Quarantined() []QuarantinedBucket
}
