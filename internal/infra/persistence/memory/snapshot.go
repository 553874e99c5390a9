package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"hostelcore/pkg/domain"
)

// Persisted bucket keys. They match the key space of the browser build so
// exported payloads can be loaded without translation.
const (
	BucketStudents               = "studentList"
	BucketHostels                = "hostelData"
	BucketAllocationRequests     = "hostelChangeRequests"
	BucketLeaveRequests          = "leaveRequests"
	BucketComplaints             = "complaintList"
	BucketAnnouncements          = "announcements"
	BucketFoodMenu               = "foodMenu"
	BucketSessions               = "userData"
	BucketReadNotifications      = "readNotifications"
	BucketDismissedNotifications = "dismissedNotifications"
)

// Buckets lists every persisted bucket in a stable order.
var Buckets = []string{
	BucketStudents,
	BucketHostels,
	BucketAllocationRequests,
	BucketLeaveRequests,
	BucketComplaints,
	BucketAnnouncements,
	BucketFoodMenu,
	BucketSessions,
	BucketReadNotifications,
	BucketDismissedNotifications,
}

var entityBuckets = map[domain.EntityType]string{
	domain.EntityStudent:           BucketStudents,
	domain.EntityHostel:            BucketHostels,
	domain.EntityAllocationRequest: BucketAllocationRequests,
	domain.EntityLeaveRequest:      BucketLeaveRequests,
	domain.EntityComplaint:         BucketComplaints,
	domain.EntityAnnouncement:      BucketAnnouncements,
	domain.EntityFoodMenu:          BucketFoodMenu,
	domain.EntitySession:           BucketSessions,
}

func notificationBucket(set domain.NotificationSet) (string, error) {
	switch set {
	case domain.NotificationsRead:
		return BucketReadNotifications, nil
	case domain.NotificationsDismissed:
		return BucketDismissedNotifications, nil
	}
	return "", fmt.Errorf("unknown notification set %q", set)
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Students      map[string]Student           `json:"students"`
	Hostels       map[string]Hostel            `json:"hostels"`
	Requests      map[string]AllocationRequest `json:"requests"`
	Leaves        map[string]LeaveRequest      `json:"leaves"`
	Complaints    map[string]Complaint         `json:"complaints"`
	Announcements map[string]Announcement      `json:"announcements"`
	Menu          FoodMenu                     `json:"menu"`
	Sessions      map[string]Session           `json:"sessions"`
	Read          map[string][]string          `json:"read"`
	Dismissed     map[string][]string          `json:"dismissed"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Students:      c.students,
		Hostels:       c.hostels,
		Requests:      c.requests,
		Leaves:        c.leaves,
		Complaints:    c.complaints,
		Announcements: c.announcements,
		Menu:          c.menu,
		Sessions:      c.sessions,
		Read:          c.read,
		Dismissed:     c.dismissed,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		students:      s.Students,
		hostels:       s.Hostels,
		requests:      s.Requests,
		leaves:        s.Leaves,
		complaints:    s.Complaints,
		announcements: s.Announcements,
		menu:          s.Menu,
		sessions:      s.Sessions,
		read:          s.Read,
		dismissed:     s.Dismissed,
	}.clone()
	migrated := migrateSnapshot(Snapshot{
		Students:      state.students,
		Hostels:       state.hostels,
		Requests:      state.requests,
		Leaves:        state.leaves,
		Complaints:    state.complaints,
		Announcements: state.announcements,
		Menu:          state.menu,
		Sessions:      state.sessions,
		Read:          state.read,
		Dismissed:     state.dismissed,
	})
	state.students = migrated.Students
	state.hostels = migrated.Hostels
	state.requests = migrated.Requests
	state.leaves = migrated.Leaves
	state.complaints = migrated.Complaints
	state.announcements = migrated.Announcements
	state.read = migrated.Read
	state.dismissed = migrated.Dismissed
	return state
}

// migrateSnapshot normalises payloads written by older builds: missing maps,
// hostels without bed counters, counters outside [0, total], and hostel
// references recorded by name only.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Students == nil {
		snapshot.Students = map[string]Student{}
	}
	if snapshot.Hostels == nil {
		snapshot.Hostels = map[string]Hostel{}
	}
	if snapshot.Requests == nil {
		snapshot.Requests = map[string]AllocationRequest{}
	}
	if snapshot.Leaves == nil {
		snapshot.Leaves = map[string]LeaveRequest{}
	}
	if snapshot.Complaints == nil {
		snapshot.Complaints = map[string]Complaint{}
	}
	if snapshot.Announcements == nil {
		snapshot.Announcements = map[string]Announcement{}
	}
	if snapshot.Sessions == nil {
		snapshot.Sessions = map[string]Session{}
	}
	if snapshot.Read == nil {
		snapshot.Read = map[string][]string{}
	}
	if snapshot.Dismissed == nil {
		snapshot.Dismissed = map[string][]string{}
	}

	for id, hostel := range snapshot.Hostels {
		snapshot.Hostels[id] = migrateHostel(hostel)
	}
	backfillHostelRefs(&snapshot)
	for id, student := range snapshot.Students {
		if student.Status == "" {
			student.Status = domain.StudentPendingHostel
		}
		if student.FeeDue < 0 {
			student.FeeDue = 0
		}
		snapshot.Students[id] = student
	}
	for id, req := range snapshot.Requests {
		if req.Type == "" {
			req.Type = domain.RequestAllocation
		}
		if req.Status == "" {
			req.Status = domain.RequestPending
		}
		snapshot.Requests[id] = req
	}
	for id, leave := range snapshot.Leaves {
		if leave.Status == "" {
			leave.Status = domain.RequestPending
		}
		snapshot.Leaves[id] = leave
	}
	for id, complaint := range snapshot.Complaints {
		if complaint.Status == "" {
			complaint.Status = domain.ComplaintPending
		}
		snapshot.Complaints[id] = complaint
	}
	for user, ids := range snapshot.Read {
		snapshot.Read[user] = dedupeStrings(ids)
	}
	for user, ids := range snapshot.Dismissed {
		snapshot.Dismissed[user] = dedupeStrings(ids)
	}
	return snapshot
}

// backfillHostelRefs links students and requests that name a hostel but carry
// no id. A name shared by several hostels is left unlinked.
func backfillHostelRefs(snapshot *Snapshot) {
	byName := make(map[string]string, len(snapshot.Hostels))
	for id, h := range snapshot.Hostels {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			continue
		}
		if _, dup := byName[name]; dup {
			byName[name] = ""
			continue
		}
		byName[name] = id
	}
	lookup := func(name string) (string, bool) {
		id := byName[strings.TrimSpace(name)]
		return id, id != ""
	}
	for id, st := range snapshot.Students {
		if st.HostelID != nil || st.HostelName == nil {
			continue
		}
		if hid, ok := lookup(*st.HostelName); ok {
			st.HostelID = &hid
			snapshot.Students[id] = st
		}
	}
	for id, req := range snapshot.Requests {
		if req.RequestedHostelID == "" {
			if hid, ok := lookup(req.RequestedHostel); ok {
				req.RequestedHostelID = hid
			}
		}
		if req.CurrentHostelID == nil {
			if hid, ok := lookup(req.CurrentHostel); ok {
				req.CurrentHostelID = &hid
			}
		}
		snapshot.Requests[id] = req
	}
}

func migrateHostel(h Hostel) Hostel {
	if h.TotalRooms < 0 {
		h.TotalRooms = 0
	}
	if h.TotalBeds == 0 && h.AvailableBeds == 0 {
		h.TotalBeds = h.TotalRooms
		h.AvailableBeds = h.AvailableRooms
	}
	h.AvailableRooms = clamp(h.AvailableRooms, 0, h.TotalRooms)
	h.AvailableBeds = clamp(h.AvailableBeds, 0, h.TotalBeds)
	return h
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// encodeBucket renders one bucket of state as the JSON value stored under its key.
func encodeBucket(state *memoryState, bucket string) ([]byte, error) {
	switch bucket {
	case BucketStudents:
		return json.Marshal(sortedValues(state.students, func(v Student) domain.Base { return v.Base }))
	case BucketHostels:
		return json.Marshal(sortedValues(state.hostels, func(v Hostel) domain.Base { return v.Base }))
	case BucketAllocationRequests:
		return json.Marshal(sortedValues(state.requests, func(v AllocationRequest) domain.Base { return v.Base }))
	case BucketLeaveRequests:
		return json.Marshal(sortedValues(state.leaves, func(v LeaveRequest) domain.Base { return v.Base }))
	case BucketComplaints:
		return json.Marshal(sortedValues(state.complaints, func(v Complaint) domain.Base { return v.Base }))
	case BucketAnnouncements:
		return json.Marshal(sortedValues(state.announcements, func(v Announcement) domain.Base { return v.Base }))
	case BucketFoodMenu:
		return json.Marshal(state.menu)
	case BucketSessions:
		return json.Marshal(sortedValues(state.sessions, func(v Session) domain.Base {
			return domain.Base{ID: v.ID, CreatedAt: v.CreatedAt}
		}))
	case BucketReadNotifications:
		return json.Marshal(state.read)
	case BucketDismissedNotifications:
		return json.Marshal(state.dismissed)
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

// decodeBucket parses a stored payload into the matching part of snapshot.
// Records without an id are given a fresh surrogate id.
func decodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	switch bucket {
	case BucketStudents:
		return decodeList(payload, &snapshot.Students, func(v *Student) *string { return &v.ID })
	case BucketHostels:
		return decodeList(payload, &snapshot.Hostels, func(v *Hostel) *string { return &v.ID })
	case BucketAllocationRequests:
		return decodeList(payload, &snapshot.Requests, func(v *AllocationRequest) *string { return &v.ID })
	case BucketLeaveRequests:
		return decodeList(payload, &snapshot.Leaves, func(v *LeaveRequest) *string { return &v.ID })
	case BucketComplaints:
		return decodeList(payload, &snapshot.Complaints, func(v *Complaint) *string { return &v.ID })
	case BucketAnnouncements:
		return decodeList(payload, &snapshot.Announcements, func(v *Announcement) *string { return &v.ID })
	case BucketSessions:
		if isJSONObject(payload) {
			sessions, err := decodeLegacySession(payload)
			if err != nil {
				return err
			}
			snapshot.Sessions = sessions
			return nil
		}
		return decodeList(payload, &snapshot.Sessions, func(v *Session) *string { return &v.ID })
	case BucketFoodMenu:
		var menu FoodMenu
		if err := json.Unmarshal(payload, &menu); err != nil {
			return err
		}
		snapshot.Menu = menu
		return nil
	case BucketReadNotifications, BucketDismissedNotifications:
		var sets map[string][]string
		if err := json.Unmarshal(payload, &sets); err != nil {
			return err
		}
		if bucket == BucketReadNotifications {
			snapshot.Read = sets
		} else {
			snapshot.Dismissed = sets
		}
		return nil
	}
	return fmt.Errorf("unknown bucket %q", bucket)
}

func decodeList[T any](payload []byte, dst *map[string]T, idOf func(*T) *string) error {
	payload, err := normalizeLegacyList(payload)
	if err != nil {
		return err
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return err
	}
	out := make(map[string]T, len(items))
	for i := range items {
		id := idOf(&items[i])
		if *id == "" {
			*id = uuid.NewString()
		}
		if _, dup := out[*id]; dup {
			return fmt.Errorf("duplicate id %q", *id)
		}
		out[*id] = items[i]
	}
	*dst = out
	return nil
}

func sortedValues[T any](m map[string]T, base func(T) domain.Base) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := base(out[i]), base(out[j])
		if !bi.CreatedAt.Equal(bj.CreatedAt) {
			return bi.CreatedAt.Before(bj.CreatedAt)
		}
		return bi.ID < bj.ID
	})
	return out
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
