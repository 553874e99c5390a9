package core

import (
	"context"
	"errors"
	"testing"

	"hostelcore/internal/infra/persistence/memory"
	"hostelcore/pkg/domain"
)

func TestGenderGateRefusesAllocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	st := mustRegister(t, svc, "CS2099009", "Asha Verma", domain.GenderMale)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 80)

	_, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if !errors.Is(err, domain.ErrIncompatibleHostel) {
		t.Fatalf("expected ErrIncompatibleHostel, got %v", err)
	}
	reqs, err := svc.ListRequests(ctx)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("expected no request record, got %d", len(reqs))
	}
	if got := mustGetHostel(t, svc, hostel.ID); got.AvailableRooms != 80 || got.AvailableBeds != 80 {
		t.Fatalf("expected counters untouched at 80/80, got %d/%d", got.AvailableRooms, got.AvailableBeds)
	}
	if got := mustGetStudent(t, svc, st.ID); got.Status != domain.StudentPendingHostel {
		t.Fatalf("expected student to stay Pending_Hostel, got %s", got.Status)
	}
}

func TestAllocationApproveDecrementsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	st := mustRegister(t, svc, "CS2099009", "Asha Verma", domain.GenderFemale)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 80)

	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req.Status != domain.RequestPending || req.Type != domain.RequestAllocation {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Reason != "New Allocation" || req.CurrentHostel != "None" {
		t.Fatalf("unexpected reason/current hostel %q/%q", req.Reason, req.CurrentHostel)
	}
	if req.StudentDetails == nil || req.StudentDetails.RegNo != "CS2099009" {
		t.Fatalf("expected embedded student snapshot, got %+v", req.StudentDetails)
	}
	pending := mustGetStudent(t, svc, st.ID)
	if pending.Status != domain.StudentPendingApproval {
		t.Fatalf("expected Pending_Approval, got %s", pending.Status)
	}
	if derefString(pending.HostelName) != domain.HostelPendingAllocation || pending.HostelID != nil {
		t.Fatalf("expected pending sentinel without hostel id, got %v/%v", pending.HostelName, pending.HostelID)
	}
	if got := mustGetHostel(t, svc, hostel.ID); got.AvailableRooms != 80 {
		t.Fatalf("submission must not touch capacity, got %d", got.AvailableRooms)
	}

	approved, _, err := svc.ApproveRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.RequestApproved || approved.DecidedAt == nil {
		t.Fatalf("expected approved request with decision time, got %+v", approved)
	}
	active := mustGetStudent(t, svc, st.ID)
	if active.Status != domain.StudentActive || derefString(active.HostelName) != "St Mary's Hostel" {
		t.Fatalf("unexpected student after approval: %s %v", active.Status, active.HostelName)
	}
	if derefString(active.HostelID) != hostel.ID || derefString(active.Room) != domain.RoomAllocated || active.FeeDue != 0 {
		t.Fatalf("unexpected placement fields: %+v", active)
	}
	if got := mustGetHostel(t, svc, hostel.ID); got.AvailableRooms != 79 || got.AvailableBeds != 79 {
		t.Fatalf("expected 79/79, got %d/%d", got.AvailableRooms, got.AvailableBeds)
	}

	if _, _, err := svc.ApproveRequest(ctx, req.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second approve, got %v", err)
	}
	if got := mustGetHostel(t, svc, hostel.ID); got.AvailableRooms != 79 || got.AvailableBeds != 79 {
		t.Fatalf("expected counters to remain 79/79, got %d/%d", got.AvailableRooms, got.AvailableBeds)
	}
}

func TestDuplicateRequestLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	st := mustRegister(t, svc, "CS2099010", "Meera Nair", domain.GenderFemale)
	a := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 80)
	b := mustHostel(t, svc, "Lotus Block", domain.HostelTypeGirls, 40)

	first, _, err := svc.SubmitAllocationRequest(ctx, st.ID, a.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := svc.Store().Versions()

	_, _, err = svc.SubmitAllocationRequest(ctx, st.ID, b.ID)
	var dup *domain.DuplicateRequestError
	if !errors.As(err, &dup) || dup.ExistingID != first.ID {
		t.Fatalf("expected DuplicateRequestError for %s, got %v", first.ID, err)
	}
	after := svc.Store().Versions()
	for bucket, v := range before {
		if after[bucket] != v {
			t.Fatalf("bucket %s changed from %d to %d on a refused submission", bucket, v, after[bucket])
		}
	}

	if _, _, err := svc.ApproveRequest(ctx, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approved but unseen still blocks a new request.
	if _, _, err := svc.SubmitTransferRequest(ctx, st.ID, b.ID, "closer to lab"); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest while outcome unseen, got %v", err)
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, first.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if _, _, err := svc.SubmitTransferRequest(ctx, st.ID, b.ID, "closer to lab"); err != nil {
		t.Fatalf("transfer after acknowledging: %v", err)
	}
}

func TestAllocationRequiresPendingHostelStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)
	st := mustResident(t, svc, "ME2101001", "Ravi Kumar", domain.GenderMale, hostel)

	_, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for resident, got %v", err)
	}
	if _, _, err := svc.SubmitAllocationRequest(ctx, "missing", hostel.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown student, got %v", err)
	}
	if _, _, err := svc.SubmitAllocationRequest(ctx, st.ID, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hostel, got %v", err)
	}
}

func TestRejectAllocationRevertsStudent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	st := mustRegister(t, svc, "CS2099011", "Nisha Rao", domain.GenderFemale)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 80)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	rejected, _, err := svc.RejectRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.RequestRejected {
		t.Fatalf("expected Rejected, got %s", rejected.Status)
	}
	got := mustGetStudent(t, svc, st.ID)
	if got.Status != domain.StudentPendingHostel || got.HostelName != nil || got.HostelID != nil {
		t.Fatalf("expected clean Pending_Hostel student, got %+v", got)
	}
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 80 {
		t.Fatalf("reject must not touch capacity, got %d", h.AvailableRooms)
	}
	if _, _, err := svc.RejectRequest(ctx, req.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second reject, got %v", err)
	}
	// A rejected request no longer blocks a new one.
	if _, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID); err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
}

func TestTransferRejectRestoresPreviousHostel(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	from := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)
	to := mustHostel(t, svc, "Raman Hall", domain.HostelTypeBoys, 10)
	st := mustResident(t, svc, "ME2101002", "Arjun Das", domain.GenderMale, from)

	req, _, err := svc.SubmitTransferRequest(ctx, st.ID, to.ID, "  ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for blank reason, got %v (req %+v)", err, req)
	}
	req, _, err = svc.SubmitTransferRequest(ctx, st.ID, to.ID, "Room maintenance")
	if err != nil {
		t.Fatalf("submit transfer: %v", err)
	}
	if req.CurrentHostel != "Tagore House" || derefString(req.CurrentHostelID) != from.ID {
		t.Fatalf("expected current hostel captured, got %q/%v", req.CurrentHostel, req.CurrentHostelID)
	}
	if got := mustGetStudent(t, svc, st.ID); got.Status != domain.StudentActive || derefString(got.HostelID) != from.ID {
		t.Fatalf("transfer submission must leave the student in place, got %+v", got)
	}

	if _, _, err := svc.RejectRequest(ctx, req.ID); err != nil {
		t.Fatalf("reject transfer: %v", err)
	}
	got := mustGetStudent(t, svc, st.ID)
	if got.Status != domain.StudentActive || derefString(got.HostelName) != "Tagore House" || derefString(got.HostelID) != from.ID {
		t.Fatalf("expected student restored to Tagore House, got %+v", got)
	}
}

func TestTransferGuards(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	boys := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)
	girls := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 10)
	st := mustResident(t, svc, "ME2101003", "Kabir Shah", domain.GenderMale, boys)
	applicant := mustRegister(t, svc, "ME2101004", "Dev Patel", domain.GenderMale)

	if _, _, err := svc.SubmitTransferRequest(ctx, st.ID, girls.ID, "friends there"); !errors.Is(err, domain.ErrIncompatibleHostel) {
		t.Fatalf("expected ErrIncompatibleHostel, got %v", err)
	}
	if _, _, err := svc.SubmitTransferRequest(ctx, st.ID, boys.ID, "same"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for same hostel, got %v", err)
	}
	if _, _, err := svc.SubmitTransferRequest(ctx, applicant.ID, boys.ID, "no place yet"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for non-resident, got %v", err)
	}
	reqs, _ := svc.ListRequests(ctx, domain.RequestPending)
	if len(reqs) != 0 {
		t.Fatalf("expected no pending requests, got %d", len(reqs))
	}
}

func TestTransferCapacityModes(t *testing.T) {
	cases := []struct {
		name           string
		mode           TransferCapacityMode
		wantFrom       int
		wantTo         int
		wantRoomSentry bool
	}{
		{name: "observed", mode: TransferCapacityObserved, wantFrom: 9, wantTo: 10},
		{name: "rebalance", mode: TransferCapacityRebalance, wantFrom: 10, wantTo: 9, wantRoomSentry: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, WithTransferCapacity(tc.mode))
			if svc.TransferCapacity() != tc.mode {
				t.Fatalf("expected mode %s, got %s", tc.mode, svc.TransferCapacity())
			}
			from := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)
			to := mustHostel(t, svc, "Raman Hall", domain.HostelTypeBoys, 10)
			st := mustResident(t, svc, "ME2101005", "Imran Ali", domain.GenderMale, from)
			if _, _, err := svc.AssignRoom(ctx, st.ID, "B-12"); err != nil {
				t.Fatalf("assign room: %v", err)
			}

			req, _, err := svc.SubmitTransferRequest(ctx, st.ID, to.ID, "quieter block")
			if err != nil {
				t.Fatalf("submit transfer: %v", err)
			}
			if _, _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
				t.Fatalf("approve transfer: %v", err)
			}
			got := mustGetStudent(t, svc, st.ID)
			if derefString(got.HostelID) != to.ID || derefString(got.HostelName) != "Raman Hall" {
				t.Fatalf("expected student moved to Raman Hall, got %+v", got)
			}
			if room := derefString(got.Room); (room == domain.RoomAllocated) != tc.wantRoomSentry {
				t.Fatalf("unexpected room %q for mode %s", room, tc.mode)
			}
			if h := mustGetHostel(t, svc, from.ID); h.AvailableRooms != tc.wantFrom || h.AvailableBeds != tc.wantFrom {
				t.Fatalf("source counters %d/%d, want %d", h.AvailableRooms, h.AvailableBeds, tc.wantFrom)
			}
			if h := mustGetHostel(t, svc, to.ID); h.AvailableRooms != tc.wantTo || h.AvailableBeds != tc.wantTo {
				t.Fatalf("target counters %d/%d, want %d", h.AvailableRooms, h.AvailableBeds, tc.wantTo)
			}
		})
	}
}

func TestApproveFloorsCountersAtZero(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "Annex", domain.HostelTypeGirls, 1)
	a := mustRegister(t, svc, "CS2200001", "Ira Sen", domain.GenderFemale)
	b := mustRegister(t, svc, "CS2200002", "Tara Bose", domain.GenderFemale)
	ra, _, err := svc.SubmitAllocationRequest(ctx, a.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	rb, _, err := svc.SubmitAllocationRequest(ctx, b.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	for _, id := range []string{ra.ID, rb.ID} {
		if _, _, err := svc.ApproveRequest(ctx, id); err != nil {
			t.Fatalf("approve %s: %v", id, err)
		}
	}
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 0 || h.AvailableBeds != 0 {
		t.Fatalf("expected counters floored at 0, got %d/%d", h.AvailableRooms, h.AvailableBeds)
	}
}

func TestApproveSynthesizesDeletedStudent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 5)
	st := mustRegister(t, svc, "CS2200003", "Lina Roy", domain.GenderFemale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.DeleteStudent(ctx, st.ID); err != nil {
		t.Fatalf("delete student: %v", err)
	}
	if _, _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	restored := mustGetStudent(t, svc, st.ID)
	if restored.RegNo != "CS2200003" || restored.Status != domain.StudentActive || derefString(restored.HostelID) != hostel.ID {
		t.Fatalf("expected student restored from snapshot, got %+v", restored)
	}
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 4 {
		t.Fatalf("expected 4 rooms left, got %d", h.AvailableRooms)
	}
}

func TestApproveRefusesRequestForReRegisteredStudent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 5)
	st := mustRegister(t, svc, "CS2200004", "Meera Nair", domain.GenderFemale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.DeleteStudent(ctx, st.ID); err != nil {
		t.Fatalf("delete student: %v", err)
	}
	again := mustRegister(t, svc, "CS2200004", "Meera Nair", domain.GenderFemale)

	_, _, err = svc.ApproveRequest(ctx, req.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	got, err := svc.GetRequest(ctx, req.ID)
	if err != nil || got.Status != domain.RequestPending {
		t.Fatalf("expected request left pending, got %+v (%v)", got, err)
	}
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 5 {
		t.Fatalf("expected no place claimed, got %d", h.AvailableRooms)
	}
	if cur := mustGetStudent(t, svc, again.ID); cur.HostelID != nil {
		t.Fatalf("expected new registration untouched, got %+v", cur)
	}
	if _, _, err := svc.RejectRequest(ctx, req.ID); err != nil {
		t.Fatalf("reject stale request: %v", err)
	}
}

func TestApproveResolvesHostelByName(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Thomas Hostel", domain.HostelTypeBoys, 3)
	st := mustRegister(t, svc, "CS2023001", "Rahul Kumar", domain.GenderMale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Imported records name the hostel without an id.
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
			r.RequestedHostelID = ""
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("strip hostel id: %v", err)
	}

	if _, _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	placed := mustGetStudent(t, svc, st.ID)
	if derefString(placed.HostelID) != hostel.ID || placed.Status != domain.StudentActive {
		t.Fatalf("expected student placed in %s, got %+v", hostel.ID, placed)
	}
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 2 {
		t.Fatalf("expected 2 rooms left, got %d", h.AvailableRooms)
	}
}

func TestApproveUnknownHostelNameIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "Sahrudaya Hostel", domain.HostelTypeBoys, 3)
	st := mustRegister(t, svc, "ME2023045", "Aditya Singh", domain.GenderMale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
			r.RequestedHostelID = ""
			r.RequestedHostel = "Closed Annex"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("rename hostel: %v", err)
	}
	if _, _, err := svc.ApproveRequest(ctx, req.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDismissOutcomeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 5)
	st := mustRegister(t, svc, "CS2200004", "Maya Iyer", domain.GenderFemale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, req.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState dismissing a pending request, got %v", err)
	}
	if _, _, err := svc.RejectRequest(ctx, req.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, req.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	seen, err := svc.GetRequest(ctx, req.ID)
	if err != nil || seen.Status != domain.RequestRejectedSeen {
		t.Fatalf("expected RejectedSeen, got %s (%v)", seen.Status, err)
	}
	versions := svc.Store().Versions()
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, req.ID); err != nil {
		t.Fatalf("second dismiss: %v", err)
	}
	if again := svc.Store().Versions(); again[memory.BucketAllocationRequests] != versions[memory.BucketAllocationRequests] {
		t.Fatalf("second dismiss must not write, version %d -> %d", versions[memory.BucketAllocationRequests], again[memory.BucketAllocationRequests])
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeAllocation, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.DismissOutcome(ctx, OutcomeKind("bogus"), req.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}
}

func TestDecisionsPublishOutcomes(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("broker down")}
	log := &captureLogger{}
	svc := newTestService(t, WithOutcomePublisher(pub), WithLogger(log))
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 5)
	st := mustRegister(t, svc, "CS2200005", "Zoya Khan", domain.GenderFemale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatalf("approve must succeed even when publishing fails: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != OutcomeRequestApproved || ev.ID != req.ID || ev.StudentID != st.ID || ev.OccurredAt.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !log.has("w:publish outcome failed") {
		t.Fatalf("expected publish failure to be logged, got %v", log.calls)
	}
}
