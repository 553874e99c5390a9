// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by hostelcore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityStudent identifies a student record.
	EntityStudent EntityType = "student"
	// EntityHostel identifies a hostel record.
	EntityHostel EntityType = "hostel"
	// EntityAllocationRequest identifies an allocation or transfer request.
	EntityAllocationRequest EntityType = "allocation_request"
	// EntityLeaveRequest identifies a leave request.
	EntityLeaveRequest EntityType = "leave_request"
	// EntityComplaint identifies a complaint record.
	EntityComplaint EntityType = "complaint"
	// EntityAnnouncement identifies an announcement record.
	EntityAnnouncement EntityType = "announcement"
	// EntityFoodMenu identifies the singleton food menu.
	EntityFoodMenu EntityType = "food_menu"
	// EntitySession identifies an authenticated session.
	EntitySession EntityType = "session"
	// EntityNotificationState identifies per-user read/dismissed notification sets.
	EntityNotificationState EntityType = "notification_state"
)

// Sentinel display values carried by students during allocation.
const (
	// HostelPendingAllocation is shown as the hostel name while an allocation awaits a decision.
	HostelPendingAllocation = "Pending Allocation"
	// RoomAllocated marks a student who has a hostel but no concrete room yet.
	RoomAllocated = "Allocated"
)

// Gender of a student, used by the hostel compatibility gate.
type Gender string

// Supported genders.
const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// HostelType restricts which students a hostel accepts.
type HostelType string

// Supported hostel types.
const (
	HostelTypeBoys  HostelType = "Boys"
	HostelTypeGirls HostelType = "Girls"
)

// StudentStatus tracks where a student sits in the allocation workflow.
type StudentStatus string

// Canonical student statuses.
const (
	StudentPendingHostel   StudentStatus = "Pending_Hostel"
	StudentPendingApproval StudentStatus = "Pending_Approval"
	StudentActive          StudentStatus = "Active"
	StudentAllocated       StudentStatus = "Allocated"
	StudentWarning         StudentStatus = "Warning"
)

// RequestType distinguishes first-time allocation from a hostel change.
type RequestType string

// Allocation request types.
const (
	RequestAllocation RequestType = "Allocation"
	RequestTransfer   RequestType = "Transfer"
)

// RequestStatus is shared by allocation and leave requests; each entity runs
// its own independent state machine over the same values.
type RequestStatus string

// Request statuses. The *Seen variants mark an outcome acknowledged by the student.
const (
	RequestPending      RequestStatus = "Pending"
	RequestApproved     RequestStatus = "Approved"
	RequestRejected     RequestStatus = "Rejected"
	RequestApprovedSeen RequestStatus = "ApprovedSeen"
	RequestRejectedSeen RequestStatus = "RejectedSeen"
)

// ComplaintStatus enumerates complaint progress. Any status may be reassigned.
type ComplaintStatus string

// Complaint statuses.
const (
	ComplaintPending    ComplaintStatus = "Pending"
	ComplaintInProgress ComplaintStatus = "In Progress"
	ComplaintResolved   ComplaintStatus = "Resolved"
)

// Meal names a section of the food menu.
type Meal string

// Menu sections.
const (
	MealBreakfast Meal = "breakfast"
	MealLunch     Meal = "lunch"
	MealSnacks    Meal = "snacks"
	MealDinner    Meal = "dinner"
)

// Meals lists menu sections in serving order.
var Meals = []Meal{MealBreakfast, MealLunch, MealSnacks, MealDinner}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Student is a resident or applicant. RegNo is the institutional identity and
// never changes; ID is the surrogate used for every internal reference.
type Student struct {
	Base
	RegNo         string        `json:"regNo"`
	Name          string        `json:"name"`
	Department    string        `json:"department,omitempty"`
	Year          string        `json:"year,omitempty"`
	Email         string        `json:"email,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	GuardianName  string        `json:"guardianName,omitempty"`
	GuardianPhone string        `json:"guardianPhone,omitempty"`
	Gender        Gender        `json:"gender"`
	ProfileImage  string        `json:"profileImage,omitempty"`
	HostelID      *string       `json:"hostelId"`
	HostelName    *string       `json:"hostelName"`
	Room          *string       `json:"room"`
	Status        StudentStatus `json:"status"`
	FeeDue        int           `json:"feeDue"`
}

// Resident reports whether the student currently holds a hostel place.
func (s Student) Resident() bool {
	switch s.Status {
	case StudentActive, StudentAllocated, StudentWarning:
		return true
	}
	return false
}

// Hostel is a residence with a gender restriction and capacity counters.
type Hostel struct {
	Base
	Name           string     `json:"name"`
	Type           HostelType `json:"type"`
	Description    string     `json:"description,omitempty"`
	Facilities     []string   `json:"facilities,omitempty"`
	Images         []string   `json:"images,omitempty"`
	TotalRooms     int        `json:"totalRooms"`
	AvailableRooms int        `json:"availableRooms"`
	TotalBeds      int        `json:"totalBeds"`
	AvailableBeds  int        `json:"availableBeds"`
	TotalBathrooms int        `json:"totalBathrooms,omitempty"`
}

// Accepts reports whether a student of the given gender may live in the hostel.
func (h Hostel) Accepts(g Gender) bool {
	switch {
	case g == GenderMale && h.Type == HostelTypeGirls:
		return false
	case g == GenderFemale && h.Type == HostelTypeBoys:
		return false
	}
	return true
}

// OccupiedRooms returns the number of rooms no longer available.
func (h Hostel) OccupiedRooms() int {
	return h.TotalRooms - h.AvailableRooms
}

// AllocationRequest is a student's application for a first hostel place or a
// move to another hostel.
type AllocationRequest struct {
	Base
	StudentID         string        `json:"studentId,omitempty"`
	StudentName       string        `json:"studentName"`
	RegNo             string        `json:"regNo"`
	CurrentHostelID   *string       `json:"currentHostelId,omitempty"`
	CurrentHostel     string        `json:"currentHostel"`
	RequestedHostelID string        `json:"requestedHostelId"`
	RequestedHostel   string        `json:"requestedHostel"`
	Reason            string        `json:"reason"`
	Type              RequestType   `json:"type"`
	Status            RequestStatus `json:"status"`
	Date              string        `json:"date"`
	StudentDetails    *Student      `json:"studentDetails,omitempty"`
	DecidedAt         *time.Time    `json:"decidedAt,omitempty"`
}

// LeaveRequest asks permission to be away from the hostel for a date range.
type LeaveRequest struct {
	Base
	StudentID   string        `json:"studentId,omitempty"`
	StudentName string        `json:"studentName"`
	RegNo       string        `json:"regNo"`
	Type        string        `json:"type"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Reason      string        `json:"reason"`
	Status      RequestStatus `json:"status"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty"`
}

// Complaint is a maintenance or welfare issue raised by a student.
type Complaint struct {
	Base
	StudentID string          `json:"studentId,omitempty"`
	Student   string          `json:"student"`
	Type      string          `json:"type"`
	Desc      string          `json:"desc"`
	Image     string          `json:"image,omitempty"`
	Status    ComplaintStatus `json:"status"`
	Date      string          `json:"date"`
}

// Announcement is an administrative notice shown to every student.
type Announcement struct {
	Base
	Title string `json:"title"`
	Desc  string `json:"desc"`
	Date  string `json:"date"`
}

// MenuItem is a single dish on the food menu.
type MenuItem struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Special bool   `json:"special,omitempty"`
}

// FoodMenu is the singleton weekly menu. A zero UpdatedAt means it was never published.
type FoodMenu struct {
	Meals     map[Meal][]MenuItem `json:"meals"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Published reports whether an administrator has set the menu.
func (m FoodMenu) Published() bool {
	return !m.UpdatedAt.IsZero()
}

// Session records the identity behind an authenticated client.
type Session struct {
	ID        string    `json:"id"`
	StudentID string    `json:"studentId"`
	Student   Student   `json:"student"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationSet selects one of the per-user notification id sets.
type NotificationSet string

// Persisted notification sets.
const (
	NotificationsRead      NotificationSet = "read"
	NotificationsDismissed NotificationSet = "dismissed"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Rule+": "+v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
