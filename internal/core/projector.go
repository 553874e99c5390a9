package core

import (
	"context"
	"iter"
	"slices"

	"hostelcore/pkg/domain"
)

// Identity names the student a notification feed is built for. Records that
// carry a student id are matched by id; older records fall back to the
// denormalized name and regNo.
type Identity struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	RegNo     string `json:"regNo"`
}

// IdentityOf returns the identity of a student record.
func IdentityOf(s Student) Identity {
	return Identity{StudentID: s.ID, Name: s.Name, RegNo: s.RegNo}
}

// Key returns the key under which read and dismissed sets are stored.
func (i Identity) Key() string {
	if i.StudentID != "" {
		return i.StudentID
	}
	return i.RegNo
}

func (i Identity) student() Student {
	return Student{Base: Base{ID: i.StudentID}, Name: i.Name, RegNo: i.RegNo}
}

// NotificationType mirrors the visual tone of a notification.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
	NotificationNotice  NotificationType = "notice"
)

// MenuNotificationID is the fixed id of the food menu notification.
const MenuNotificationID = "menu-update"

const recentNotices = 3

// NotificationSource points at a decided request whose outcome the student
// has not acknowledged yet.
type NotificationSource struct {
	Kind OutcomeKind `json:"kind"`
	ID   string      `json:"id"`
}

// Notification is one derived feed entry.
type Notification struct {
	ID      string              `json:"id"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Time    string              `json:"time"`
	Type    NotificationType    `json:"type"`
	Read    bool                `json:"read"`
	Source  *NotificationSource `json:"source,omitempty"`
}

// Feed is a point-in-time notification projection for one identity.
type Feed struct {
	identity   Identity
	leaves     []LeaveRequest
	complaints []Complaint
	requests   []AllocationRequest
	notices    []Announcement
	menu       bool
	read       map[string]struct{}
	dismissed  map[string]struct{}
}

// Projector derives notification feeds from store snapshots.
type Projector struct {
	store PersistentStore
}

// NewProjector binds a projector to store.
func NewProjector(store PersistentStore) *Projector {
	return &Projector{store: store}
}

// Feed snapshots the store and returns the feed for identity.
func (p *Projector) Feed(ctx context.Context, identity Identity) (Feed, error) {
	var feed Feed
	err := p.store.View(ctx, func(view TransactionView) error {
		feed = buildFeed(view, identity)
		return nil
	})
	return feed, err
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func buildFeed(view TransactionView, identity Identity) Feed {
	notices := newestFirst(view.ListAnnouncements())
	if len(notices) > recentNotices {
		notices = notices[:recentNotices]
	}
	return Feed{
		identity:   identity,
		leaves:     view.ListLeaveRequests(),
		complaints: view.ListComplaints(),
		requests:   view.ListAllocationRequests(),
		notices:    notices,
		menu:       view.FoodMenu().Published(),
		read:       toSet(view.NotificationIDs(domain.NotificationsRead, identity.Key())),
		dismissed:  toSet(view.NotificationIDs(domain.NotificationsDismissed, identity.Key())),
	}
}

func (f Feed) leaveMatches(l LeaveRequest) bool {
	if l.StudentID != "" && f.identity.StudentID != "" {
		return l.StudentID == f.identity.StudentID
	}
	return (l.StudentName != "" && l.StudentName == f.identity.Name) || (l.RegNo != "" && l.RegNo == f.identity.RegNo)
}

func (f Feed) complaintMatches(c Complaint) bool {
	if c.StudentID != "" && f.identity.StudentID != "" {
		return c.StudentID == f.identity.StudentID
	}
	return c.Student == f.identity.Name
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func leaveNotification(l LeaveRequest) (Notification, bool) {
	kind := orDefault(l.Type, "leave")
	n := Notification{Time: orDefault(l.From, "Recently")}
	switch {
	case l.Status.IsApproved():
		n.ID, n.Title, n.Type = "leave-approved-"+l.ID, "Leave Approved", NotificationSuccess
		n.Message = "Your " + kind + " request has been approved."
	case l.Status.IsRejected():
		n.ID, n.Title, n.Type = "leave-rejected-"+l.ID, "Leave Rejected", NotificationError
		n.Message = "Your " + kind + " request has been rejected."
	case l.Status == domain.RequestPending:
		n.ID, n.Title, n.Type = "leave-pending-"+l.ID, "Leave Submitted", NotificationInfo
		n.Message = "Your " + kind + " request is pending review."
	default:
		return Notification{}, false
	}
	if _, unseen := l.Status.Seen(); unseen {
		n.Source = &NotificationSource{Kind: OutcomeLeave, ID: l.ID}
	}
	return n, true
}

func complaintNotification(c Complaint) (Notification, bool) {
	n := Notification{Time: orDefault(c.Date, "Recently")}
	switch c.Status {
	case domain.ComplaintResolved:
		n.ID, n.Title, n.Type = "complaint-resolved-"+c.ID, "Complaint Resolved", NotificationSuccess
		n.Message = "Your " + c.Type + " complaint has been resolved."
	case domain.ComplaintInProgress:
		n.ID, n.Title, n.Type = "complaint-progress-"+c.ID, "Complaint In Progress", NotificationInfo
		n.Message = "Your " + c.Type + " complaint is being addressed."
	default:
		return Notification{}, false
	}
	return n, true
}

func requestNotification(r AllocationRequest) (Notification, bool) {
	label := "Transfer"
	if r.Type == domain.RequestAllocation {
		label = "Admission"
	}
	n := Notification{Time: "Recently"}
	switch {
	case r.Status.IsApproved():
		n.ID, n.Title, n.Type = "transfer-approved-"+r.ID, label+" Approved", NotificationSuccess
		n.Message = "You've been allocated to " + r.RequestedHostel + "."
	case r.Status.IsRejected():
		n.ID, n.Title, n.Type = "transfer-rejected-"+r.ID, label+" Rejected", NotificationError
		n.Message = "Request for " + r.RequestedHostel + " was rejected."
	default:
		return Notification{}, false
	}
	if _, unseen := r.Status.Seen(); unseen {
		n.Source = &NotificationSource{Kind: OutcomeAllocation, ID: r.ID}
	}
	return n, true
}

// All yields the feed in display order: leave, complaint and request
// outcomes, recent notices, then the menu entry. Dismissed entries are
// skipped. The sequence can be ranged over any number of times.
func (f Feed) All() iter.Seq[Notification] {
	return func(yield func(Notification) bool) {
		emit := func(n Notification) bool {
			if _, gone := f.dismissed[n.ID]; gone {
				return true
			}
			_, n.Read = f.read[n.ID]
			return yield(n)
		}
		for _, l := range f.leaves {
			if !f.leaveMatches(l) {
				continue
			}
			if n, ok := leaveNotification(l); ok && !emit(n) {
				return
			}
		}
		for _, c := range f.complaints {
			if !f.complaintMatches(c) {
				continue
			}
			if n, ok := complaintNotification(c); ok && !emit(n) {
				return
			}
		}
		self := f.identity.student()
		for _, r := range f.requests {
			if !r.BelongsTo(self) {
				continue
			}
			if n, ok := requestNotification(r); ok && !emit(n) {
				return
			}
		}
		for _, a := range f.notices {
			n := Notification{
				ID:      "notice-" + a.ID,
				Title:   "New Notice",
				Message: a.Title,
				Time:    orDefault(a.Date, "Recently"),
				Type:    NotificationNotice,
			}
			if !emit(n) {
				return
			}
		}
		if f.menu {
			emit(Notification{
				ID:      MenuNotificationID,
				Title:   "Menu Updated",
				Message: "Today's food menu has been updated by the admin.",
				Time:    "Today",
				Type:    NotificationInfo,
			})
		}
	}
}

// UnreadCount counts visible notifications absent from the read set.
func (f Feed) UnreadCount() int {
	count := 0
	for n := range f.All() {
		if !n.Read {
			count++
		}
	}
	return count
}

// IDs returns the ids of every visible notification in display order.
func (f Feed) IDs() []string {
	var ids []string
	for n := range f.All() {
		ids = append(ids, n.ID)
	}
	return ids
}

// List materialises the feed.
func (f Feed) List() []Notification {
	return slices.Collect(f.All())
}

// Notifications returns the feed for identity.
func (s *Service) Notifications(ctx context.Context, identity Identity) (Feed, error) {
	return s.projector.Feed(ctx, identity)
}

func requireIdentity(identity Identity) error {
	if identity.Key() == "" {
		return &domain.ValidationError{Fields: map[string]string{"identity": "required"}}
	}
	return nil
}

// MarkNotificationsRead adds ids to the identity's read set.
func (s *Service) MarkNotificationsRead(ctx context.Context, identity Identity, ids ...string) (Result, error) {
	if err := requireIdentity(identity); err != nil {
		return Result{}, err
	}
	return s.run(ctx, "mark_notifications_read", func(tx Transaction) (string, error) {
		_, err := tx.AddNotificationIDs(domain.NotificationsRead, identity.Key(), ids...)
		return identity.Key(), err
	})
}

// MarkAllRead adds every currently visible notification to the read set.
func (s *Service) MarkAllRead(ctx context.Context, identity Identity) (Result, error) {
	if err := requireIdentity(identity); err != nil {
		return Result{}, err
	}
	return s.run(ctx, "mark_all_read", func(tx Transaction) (string, error) {
		ids := buildFeed(tx.Snapshot(), identity).IDs()
		_, err := tx.AddNotificationIDs(domain.NotificationsRead, identity.Key(), ids...)
		return identity.Key(), err
	})
}

// ClearAll dismisses every currently visible notification and empties the
// read set.
func (s *Service) ClearAll(ctx context.Context, identity Identity) (Result, error) {
	if err := requireIdentity(identity); err != nil {
		return Result{}, err
	}
	return s.run(ctx, "clear_notifications", func(tx Transaction) (string, error) {
		ids := buildFeed(tx.Snapshot(), identity).IDs()
		if _, err := tx.AddNotificationIDs(domain.NotificationsDismissed, identity.Key(), ids...); err != nil {
			return identity.Key(), err
		}
		return identity.Key(), tx.ResetNotificationIDs(domain.NotificationsRead, identity.Key())
	})
}
