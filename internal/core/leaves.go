package core

import (
	"context"
	"strings"
	"time"

	"hostelcore/pkg/domain"
)

// LeaveInput is a leave application. Dates use the YYYY-MM-DD layout.
type LeaveInput struct {
	Type   string `json:"type" validate:"required,max=60"`
	From   string `json:"from" validate:"required,datetime=2006-01-02"`
	To     string `json:"to" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason" validate:"required,max=1000"`
}

// LeaveFilter narrows ListLeaves.
type LeaveFilter struct {
	StudentID string
	Status    domain.RequestStatus
}

// SubmitLeave files a pending leave request for a student.
func (s *Service) SubmitLeave(ctx context.Context, studentID string, in LeaveInput) (LeaveRequest, Result, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Reason = strings.TrimSpace(in.Reason)
	if err := s.validateInput(in); err != nil {
		return LeaveRequest{}, Result{}, err
	}
	from, _ := time.Parse(dateLayout, in.From)
	to, _ := time.Parse(dateLayout, in.To)
	if to.Before(from) {
		return LeaveRequest{}, Result{}, &domain.ValidationError{Fields: map[string]string{"to": "before from"}}
	}
	var created LeaveRequest
	res, err := s.run(ctx, "submit_leave", func(tx Transaction) (string, error) {
		student, ok := tx.FindStudent(studentID)
		if !ok {
			return studentID, domain.NotFoundError{Entity: EntityStudent, ID: studentID}
		}
		var err error
		created, err = tx.CreateLeaveRequest(LeaveRequest{
			StudentID:   student.ID,
			StudentName: student.Name,
			RegNo:       student.RegNo,
			Type:        in.Type,
			From:        in.From,
			To:          in.To,
			Reason:      in.Reason,
			Status:      domain.RequestPending,
		})
		return created.ID, err
	})
	return created, res, err
}

// ApproveLeave grants a pending leave request.
func (s *Service) ApproveLeave(ctx context.Context, id string) (LeaveRequest, Result, error) {
	return s.decideLeave(ctx, "approve_leave", id, domain.RequestApproved, OutcomeLeaveApproved)
}

// RejectLeave refuses a pending leave request.
func (s *Service) RejectLeave(ctx context.Context, id string) (LeaveRequest, Result, error) {
	return s.decideLeave(ctx, "reject_leave", id, domain.RequestRejected, OutcomeLeaveRejected)
}

func (s *Service) decideLeave(ctx context.Context, op, id string, status domain.RequestStatus, outcome OutcomeType) (LeaveRequest, Result, error) {
	var decided LeaveRequest
	res, err := s.run(ctx, op, func(tx Transaction) (string, error) {
		leave, ok := tx.FindLeaveRequest(id)
		if !ok {
			return id, domain.NotFoundError{Entity: EntityLeaveRequest, ID: id}
		}
		if leave.Status != domain.RequestPending {
			return id, &domain.InvalidStateError{Entity: EntityLeaveRequest, ID: id, State: string(leave.Status), Reason: "only pending leave can be decided"}
		}
		at := s.now()
		var err error
		decided, err = tx.UpdateLeaveRequest(id, func(l *LeaveRequest) error {
			l.Status = status
			l.DecidedAt = &at
			return nil
		})
		return id, err
	})
	if err == nil {
		s.publish(ctx, OutcomeEvent{Type: outcome, Entity: EntityLeaveRequest, ID: decided.ID, StudentID: decided.StudentID, RegNo: decided.RegNo, Status: string(decided.Status)})
	}
	return decided, res, err
}

// ListLeaves returns leave requests matching filter, oldest first.
func (s *Service) ListLeaves(ctx context.Context, filter LeaveFilter) ([]LeaveRequest, error) {
	var out []LeaveRequest
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, l := range view.ListLeaveRequests() {
			if filter.StudentID != "" && l.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && l.Status != filter.Status {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}
