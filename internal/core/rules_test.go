package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hostelcore/pkg/domain"
)

func expectRuleBlock(t *testing.T, err error, rule string) {
	t.Helper()
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError from %s, got %v", rule, err)
	}
	for _, v := range violation.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("expected blocking violation from %s, got %+v", rule, violation.Result.Violations)
}

func TestDefaultRulesEngineRegistersPolicies(t *testing.T) {
	got := strings.Join(NewDefaultRulesEngine().Rules(), ",")
	want := "occupancy_bounds,occupancy_guard,request_lifecycle,pending_approval_consistency"
	if got != want {
		t.Fatalf("unexpected rule order %s", got)
	}
}

func TestOccupancyGuardBlocksCounterChangesOutsideApproval(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateHostel(hostel.ID, func(h *Hostel) error {
			h.AvailableRooms--
			return nil
		})
		return err
	})
	expectRuleBlock(t, err, "occupancy_guard")
	if h := mustGetHostel(t, svc, hostel.ID); h.AvailableRooms != 10 {
		t.Fatalf("blocked change must not commit, got %d", h.AvailableRooms)
	}

	if _, err := svc.Store().RunInTransaction(withCapacityGrant(ctx), func(tx Transaction) error {
		_, err := tx.UpdateHostel(hostel.ID, claimPlace)
		return err
	}); err != nil {
		t.Fatalf("granted change: %v", err)
	}
}

func TestOccupancyBoundsBlocksShrinkingBelowAvailable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "Tagore House", domain.HostelTypeBoys, 10)

	_, _, err := svc.UpdateHostel(ctx, hostel.ID, HostelInput{Name: "Tagore House", Type: domain.HostelTypeBoys, TotalRooms: 5})
	expectRuleBlock(t, err, "occupancy_bounds")

	updated, _, err := svc.UpdateHostel(ctx, hostel.ID, HostelInput{Name: "Tagore House East", Type: domain.HostelTypeBoys, TotalRooms: 12, TotalBeds: 24})
	if err != nil {
		t.Fatalf("grow hostel: %v", err)
	}
	if updated.AvailableRooms != 10 || updated.AvailableBeds != 10 || updated.TotalBeds != 24 {
		t.Fatalf("expected available counters preserved, got %+v", updated)
	}

	_, err = svc.Store().RunInTransaction(withCapacityGrant(ctx), func(tx Transaction) error {
		_, err := tx.UpdateHostel(hostel.ID, func(h *Hostel) error {
			h.AvailableBeds = -1
			return nil
		})
		return err
	})
	expectRuleBlock(t, err, "occupancy_bounds")
}

func TestRequestLifecycleRule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 10)
	st := mustRegister(t, svc, "CS2300001", "Anu Pillai", domain.GenderFemale)
	req, _, err := svc.SubmitAllocationRequest(ctx, st.ID, hostel.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	leave, _, err := svc.SubmitLeave(ctx, st.ID, LeaveInput{Type: "Home", From: "2025-04-01", To: "2025-04-03", Reason: "family"})
	if err != nil {
		t.Fatalf("submit leave: %v", err)
	}

	cases := []struct {
		name string
		fn   func(tx Transaction) error
	}{
		{"pending to seen", func(tx Transaction) error {
			_, err := tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
				r.Status = domain.RequestApprovedSeen
				return nil
			})
			return err
		}},
		{"unknown request status", func(tx Transaction) error {
			_, err := tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
				r.Status = "Archived"
				return nil
			})
			return err
		}},
		{"leave pending to rejected seen", func(tx Transaction) error {
			_, err := tx.UpdateLeaveRequest(leave.ID, func(l *LeaveRequest) error {
				l.Status = domain.RequestRejectedSeen
				return nil
			})
			return err
		}},
		{"unknown complaint status", func(tx Transaction) error {
			_, err := tx.CreateComplaint(Complaint{Student: st.Name, Type: "Water", Status: "Closed"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Store().RunInTransaction(ctx, tc.fn)
			expectRuleBlock(t, err, "request_lifecycle")
		})
	}

	if _, _, err := svc.ApproveLeave(ctx, leave.ID); err != nil {
		t.Fatalf("approve leave: %v", err)
	}
	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateLeaveRequest(leave.ID, func(l *LeaveRequest) error {
			l.Status = domain.RequestPending
			return nil
		})
		return err
	})
	expectRuleBlock(t, err, "request_lifecycle")
}

func TestPendingApprovalConsistencyRule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	hostel := mustHostel(t, svc, "St Mary's Hostel", domain.HostelTypeGirls, 10)
	st := mustRegister(t, svc, "CS2300002", "Ritu Jain", domain.GenderFemale)

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateStudent(st.ID, func(s *Student) error {
			s.Status = domain.StudentPendingApproval
			return nil
		})
		return err
	})
	expectRuleBlock(t, err, "pending_approval_consistency")

	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateAllocationRequest(AllocationRequest{
			StudentID:         st.ID,
			StudentName:       st.Name,
			RegNo:             st.RegNo,
			RequestedHostelID: hostel.ID,
			Type:              domain.RequestAllocation,
			Status:            domain.RequestPending,
		})
		return err
	})
	expectRuleBlock(t, err, "pending_approval_consistency")

	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateStudent(st.ID, func(s *Student) error {
			s.HostelID = strPtr(hostel.ID)
			return nil
		})
		return err
	})
	expectRuleBlock(t, err, "pending_approval_consistency")
}
