package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{RequestPending, RequestApproved, true},
		{RequestPending, RequestRejected, true},
		{RequestPending, RequestApprovedSeen, false},
		{RequestApproved, RequestApprovedSeen, true},
		{RequestApproved, RequestRejected, false},
		{RequestRejected, RequestRejectedSeen, true},
		{RequestRejected, RequestPending, false},
		{RequestApprovedSeen, RequestApproved, false},
		{RequestRejectedSeen, RequestRejectedSeen, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestRequestStatusSeen(t *testing.T) {
	if seen, ok := RequestApproved.Seen(); !ok || seen != RequestApprovedSeen {
		t.Fatalf("approved should map to ApprovedSeen, got %s %v", seen, ok)
	}
	if seen, ok := RequestRejected.Seen(); !ok || seen != RequestRejectedSeen {
		t.Fatalf("rejected should map to RejectedSeen, got %s %v", seen, ok)
	}
	for _, s := range []RequestStatus{RequestPending, RequestApprovedSeen, RequestRejectedSeen} {
		if _, ok := s.Seen(); ok {
			t.Fatalf("%s should have no seen form", s)
		}
	}
	if !RequestApproved.InFlight() || !RequestPending.InFlight() || RequestRejected.InFlight() || RequestApprovedSeen.InFlight() {
		t.Fatalf("unexpected in-flight classification")
	}
	if RequestStatus("Cancelled").Valid() {
		t.Fatalf("unknown status reported valid")
	}
	if ComplaintStatus("Closed").Valid() || !ComplaintInProgress.Valid() {
		t.Fatalf("unexpected complaint status validity")
	}
}

func TestHostelAcceptsGender(t *testing.T) {
	girls := Hostel{Type: HostelTypeGirls}
	boys := Hostel{Type: HostelTypeBoys}
	if girls.Accepts(GenderMale) || !girls.Accepts(GenderFemale) {
		t.Fatalf("girls hostel gate wrong")
	}
	if boys.Accepts(GenderFemale) || !boys.Accepts(GenderMale) {
		t.Fatalf("boys hostel gate wrong")
	}
}

func TestAllocationRequestBelongsTo(t *testing.T) {
	student := Student{Base: Base{ID: "s1"}, RegNo: "CS2099009", Name: "Asha"}
	if !(AllocationRequest{StudentID: "s1"}).BelongsTo(student) {
		t.Fatalf("expected id match")
	}
	if (AllocationRequest{StudentID: "s2", RegNo: "CS2099009", StudentName: "Asha"}).BelongsTo(student) {
		t.Fatalf("id mismatch must win over regNo/name")
	}
	if !(AllocationRequest{RegNo: "CS2099009", StudentName: "Asha"}).BelongsTo(student) {
		t.Fatalf("expected legacy regNo+name match")
	}
	if (AllocationRequest{RegNo: "CS2099009", StudentName: "Someone"}).BelongsTo(student) {
		t.Fatalf("legacy match requires both regNo and name")
	}
}

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{NotFoundError{Entity: EntityHostel, ID: "h"}, ErrNotFound},
		{&InvalidStateError{Entity: EntityAllocationRequest, ID: "r", State: "Approved"}, ErrInvalidState},
		{&DuplicateRequestError{StudentID: "s", ExistingID: "r"}, ErrDuplicateRequest},
		{&IncompatibleHostelError{HostelID: "h", HostelType: HostelTypeGirls, Gender: GenderMale}, ErrIncompatibleHostel},
		{&StorageCorruptError{Buckets: []QuarantinedBucket{{Bucket: "studentList", Err: errors.New("bad json")}}}, ErrStorageCorrupt},
		{&VersionConflictError{Bucket: "hostelData", Expected: 3}, ErrVersionConflict},
		{&ValidationError{Fields: map[string]string{"name": "is required"}}, ErrValidation},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("command: %w", tc.err)
		if !errors.Is(wrapped, tc.want) {
			t.Fatalf("%T does not unwrap to %v", tc.err, tc.want)
		}
		if tc.err.Error() == "" {
			t.Fatalf("%T has empty message", tc.err)
		}
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"reason": "is required", "hostelId": "is required"}}
	want := "validation failed: hostelId is required, reason is required"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
