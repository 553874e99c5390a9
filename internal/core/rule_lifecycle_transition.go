package core

import (
	"context"
	"fmt"

	"hostelcore/pkg/domain"
)

// RequestLifecycleRule blocks illegal status transitions on allocation and
// leave requests and unknown complaint statuses.
func RequestLifecycleRule() domain.Rule {
	return requestLifecycleRule{}
}

type requestLifecycleRule struct{}

type lifecycleMachine struct {
	entity    domain.EntityType
	label     string
	valid     func(state string) bool
	allowed   func(from, to string) bool
	extractor func(payload domain.ChangePayload) (id string, state string, ok bool)
}

func requestStatusValid(state string) bool {
	return domain.RequestStatus(state).Valid()
}

func requestStatusAllowed(from, to string) bool {
	return domain.RequestStatus(from).CanTransition(domain.RequestStatus(to))
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityAllocationRequest: {
		entity:  domain.EntityAllocationRequest,
		label:   "allocation request",
		valid:   requestStatusValid,
		allowed: requestStatusAllowed,
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			req, ok := domain.DecodeChangePayload[domain.AllocationRequest](payload)
			if !ok {
				return "", "", false
			}
			return req.ID, string(req.Status), true
		},
	},
	domain.EntityLeaveRequest: {
		entity:  domain.EntityLeaveRequest,
		label:   "leave request",
		valid:   requestStatusValid,
		allowed: requestStatusAllowed,
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			leave, ok := domain.DecodeChangePayload[domain.LeaveRequest](payload)
			if !ok {
				return "", "", false
			}
			return leave.ID, string(leave.Status), true
		},
	},
	domain.EntityComplaint: {
		entity: domain.EntityComplaint,
		label:  "complaint",
		valid: func(state string) bool {
			return domain.ComplaintStatus(state).Valid()
		},
		allowed: func(string, string) bool { return true },
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			complaint, ok := domain.DecodeChangePayload[domain.Complaint](payload)
			if !ok {
				return "", "", false
			}
			return complaint.ID, string(complaint.Status), true
		},
	},
}

func (requestLifecycleRule) Name() string { return "request_lifecycle" }

func (requestLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, newState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if !machine.valid(newState) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "request_lifecycle",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s is set to invalid status %q", machine.label, afterID, newState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
			continue
		}

		_, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if !machine.allowed(beforeState, newState) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "request_lifecycle",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from %s to %s", machine.label, afterID, beforeState, newState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}
