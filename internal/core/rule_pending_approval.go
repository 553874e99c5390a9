package core

import (
	"context"
	"fmt"

	"hostelcore/pkg/domain"
)

// NewPendingApprovalConsistencyRule ties a student's pending status to the
// request queue: Pending_Approval holds exactly when one pending allocation
// request exists, and Pending_Hostel never carries a hostel. Only students
// touched by the transaction are checked.
func NewPendingApprovalConsistencyRule() domain.Rule {
	return pendingApprovalRule{}
}

type pendingApprovalRule struct{}

const pendingApprovalRuleName = "pending_approval_consistency"

func (pendingApprovalRule) Name() string { return pendingApprovalRuleName }

func (pendingApprovalRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := touchedStudents(view, changes)
	if len(touched) == 0 {
		return res, nil
	}
	requests := view.ListAllocationRequests()
	for _, student := range touched {
		pending := 0
		for _, req := range requests {
			if req.Type == domain.RequestAllocation && req.Status == domain.RequestPending && req.BelongsTo(student) {
				pending++
			}
		}
		switch {
		case student.Status == domain.StudentPendingApproval && pending != 1:
			res.Violations = append(res.Violations, pendingViolation(student, fmt.Sprintf("student %s awaits approval but has %d pending allocation requests", student.RegNo, pending)))
		case student.Status != domain.StudentPendingApproval && pending > 0:
			res.Violations = append(res.Violations, pendingViolation(student, fmt.Sprintf("student %s has a pending allocation request but status %s", student.RegNo, student.Status)))
		}
		if student.Status == domain.StudentPendingHostel && student.HostelID != nil {
			res.Violations = append(res.Violations, pendingViolation(student, fmt.Sprintf("student %s has no hostel place but references hostel %s", student.RegNo, *student.HostelID)))
		}
	}
	return res, nil
}

func pendingViolation(student domain.Student, msg string) domain.Violation {
	return domain.Violation{
		Rule:     pendingApprovalRuleName,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityStudent,
		EntityID: student.ID,
	}
}

// touchedStudents resolves the students affected by student or request
// changes, in change order and without duplicates.
func touchedStudents(view domain.RuleView, changes []domain.Change) []domain.Student {
	var out []domain.Student
	seen := make(map[string]struct{})
	add := func(s domain.Student) {
		if _, ok := seen[s.ID]; ok {
			return
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	var students []domain.Student
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityStudent:
			if change.Action == domain.ActionDelete {
				continue
			}
			after, ok := domain.DecodeChangePayload[domain.Student](change.After)
			if !ok {
				continue
			}
			if current, ok := view.FindStudent(after.ID); ok {
				add(current)
			}
		case domain.EntityAllocationRequest:
			req, ok := domain.DecodeChangePayload[domain.AllocationRequest](change.After)
			if !ok {
				continue
			}
			if students == nil {
				students = view.ListStudents()
			}
			for _, s := range students {
				if req.BelongsTo(s) {
					add(s)
				}
			}
		}
	}
	return out
}
