package core

import (
	"context"
	"fmt"
	"strings"

	"hostelcore/pkg/domain"
)

const (
	allocationReason = "New Allocation"
	noHostel         = "None"
	dateLayout       = "2006-01-02"
)

// OutcomeKind selects which request collection a dismissal targets.
type OutcomeKind string

const (
	OutcomeAllocation OutcomeKind = "allocation"
	OutcomeLeave      OutcomeKind = "leave"
)

// inFlightRequest returns the first request of the student that still blocks
// a new submission.
func inFlightRequest(view domain.RuleView, student Student) (AllocationRequest, bool) {
	for _, req := range view.ListAllocationRequests() {
		if req.Status.InFlight() && req.BelongsTo(student) {
			return req, true
		}
	}
	return AllocationRequest{}, false
}

func loadStudentAndHostel(tx Transaction, studentID, hostelID string) (Student, Hostel, error) {
	student, ok := tx.FindStudent(studentID)
	if !ok {
		return Student{}, Hostel{}, domain.NotFoundError{Entity: EntityStudent, ID: studentID}
	}
	hostel, ok := tx.FindHostel(hostelID)
	if !ok {
		return Student{}, Hostel{}, domain.NotFoundError{Entity: EntityHostel, ID: hostelID}
	}
	return student, hostel, nil
}

// SubmitAllocationRequest files a first-time hostel request for a student
// with no place. The student moves to Pending_Approval; capacity is untouched
// until approval.
func (s *Service) SubmitAllocationRequest(ctx context.Context, studentID, hostelID string) (AllocationRequest, Result, error) {
	var created AllocationRequest
	res, err := s.run(ctx, "submit_allocation", func(tx Transaction) (string, error) {
		student, hostel, err := loadStudentAndHostel(tx, studentID, hostelID)
		if err != nil {
			return studentID, err
		}
		if existing, ok := inFlightRequest(tx.Snapshot(), student); ok {
			return student.ID, &domain.DuplicateRequestError{StudentID: student.ID, ExistingID: existing.ID, Status: existing.Status}
		}
		if student.Status != domain.StudentPendingHostel {
			return student.ID, &domain.InvalidStateError{Entity: EntityStudent, ID: student.ID, State: string(student.Status), Reason: "allocation requires a student without a hostel"}
		}
		if !hostel.Accepts(student.Gender) {
			return student.ID, &domain.IncompatibleHostelError{HostelID: hostel.ID, HostelType: hostel.Type, Gender: student.Gender}
		}

		snapshot := student
		created, err = tx.CreateAllocationRequest(AllocationRequest{
			StudentID:         student.ID,
			StudentName:       student.Name,
			RegNo:             student.RegNo,
			CurrentHostel:     noHostel,
			RequestedHostelID: hostel.ID,
			RequestedHostel:   hostel.Name,
			Reason:            allocationReason,
			Type:              domain.RequestAllocation,
			Status:            domain.RequestPending,
			Date:              s.now().Format(dateLayout),
			StudentDetails:    &snapshot,
		})
		if err != nil {
			return student.ID, err
		}
		_, err = tx.UpdateStudent(student.ID, func(st *Student) error {
			st.Status = domain.StudentPendingApproval
			st.HostelName = strPtr(domain.HostelPendingAllocation)
			st.HostelID = nil
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

// SubmitTransferRequest files a request to move a resident to another hostel.
// The student keeps their current place while the request is pending.
func (s *Service) SubmitTransferRequest(ctx context.Context, studentID, hostelID, reason string) (AllocationRequest, Result, error) {
	var created AllocationRequest
	res, err := s.run(ctx, "submit_transfer", func(tx Transaction) (string, error) {
		student, hostel, err := loadStudentAndHostel(tx, studentID, hostelID)
		if err != nil {
			return studentID, err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return student.ID, &domain.ValidationError{Fields: map[string]string{"reason": "required"}}
		}
		if existing, ok := inFlightRequest(tx.Snapshot(), student); ok {
			return student.ID, &domain.DuplicateRequestError{StudentID: student.ID, ExistingID: existing.ID, Status: existing.Status}
		}
		if !student.Resident() {
			return student.ID, &domain.InvalidStateError{Entity: EntityStudent, ID: student.ID, State: string(student.Status), Reason: "transfer requires a current hostel place"}
		}
		if student.HostelID != nil && *student.HostelID == hostel.ID {
			return student.ID, &domain.InvalidStateError{Entity: EntityStudent, ID: student.ID, State: string(student.Status), Reason: "already resident in " + hostel.Name}
		}
		if !hostel.Accepts(student.Gender) {
			return student.ID, &domain.IncompatibleHostelError{HostelID: hostel.ID, HostelType: hostel.Type, Gender: student.Gender}
		}

		current := derefString(student.HostelName)
		if current == "" {
			current = noHostel
		}
		snapshot := student
		created, err = tx.CreateAllocationRequest(AllocationRequest{
			StudentID:         student.ID,
			StudentName:       student.Name,
			RegNo:             student.RegNo,
			CurrentHostelID:   student.HostelID,
			CurrentHostel:     current,
			RequestedHostelID: hostel.ID,
			RequestedHostel:   hostel.Name,
			Reason:            reason,
			Type:              domain.RequestTransfer,
			Status:            domain.RequestPending,
			Date:              s.now().Format(dateLayout),
			StudentDetails:    &snapshot,
		})
		return created.ID, err
	})
	return created, res, err
}

func pendingRequest(tx Transaction, requestID string) (AllocationRequest, error) {
	req, ok := tx.FindAllocationRequest(requestID)
	if !ok {
		return AllocationRequest{}, domain.NotFoundError{Entity: EntityAllocationRequest, ID: requestID}
	}
	if req.Status != domain.RequestPending {
		return AllocationRequest{}, &domain.InvalidStateError{Entity: EntityAllocationRequest, ID: req.ID, State: string(req.Status), Reason: "only pending requests can be decided"}
	}
	return req, nil
}

// requestStudent finds the student who filed req, by id or, for records
// without one, by regNo and name.
func requestStudent(tx Transaction, req AllocationRequest) (Student, bool) {
	if req.StudentID != "" {
		if st, ok := tx.FindStudent(req.StudentID); ok {
			return st, true
		}
	}
	for _, st := range tx.Snapshot().ListStudents() {
		if req.BelongsTo(st) {
			return st, true
		}
	}
	return Student{}, false
}

// requestedHostel resolves the target of a request. Records imported from the
// browser build name the hostel but carry no id; those resolve by name when
// exactly one hostel has it.
func requestedHostel(tx Transaction, req AllocationRequest) (Hostel, bool) {
	if req.RequestedHostelID != "" {
		return tx.FindHostel(req.RequestedHostelID)
	}
	return hostelByName(tx.Snapshot(), req.RequestedHostel)
}

func hostelByName(view domain.RuleView, name string) (Hostel, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Hostel{}, false
	}
	var found Hostel
	matches := 0
	for _, h := range view.ListHostels() {
		if h.Name == name {
			found = h
			matches++
		}
	}
	return found, matches == 1
}

func claimPlace(h *Hostel) error {
	h.AvailableRooms = max(h.AvailableRooms-1, 0)
	h.AvailableBeds = max(h.AvailableBeds-1, 0)
	return nil
}

func releasePlace(h *Hostel) error {
	h.AvailableRooms = min(h.AvailableRooms+1, h.TotalRooms)
	h.AvailableBeds = min(h.AvailableBeds+1, h.TotalBeds)
	return nil
}

// ApproveRequest decides a pending allocation or transfer request in favour
// of the student. Approving anything but a pending request fails with
// domain.ErrInvalidState and changes nothing.
func (s *Service) ApproveRequest(ctx context.Context, requestID string) (AllocationRequest, Result, error) {
	var approved AllocationRequest
	res, err := s.run(withCapacityGrant(ctx), "approve_request", func(tx Transaction) (string, error) {
		req, err := pendingRequest(tx, requestID)
		if err != nil {
			return requestID, err
		}
		target, ok := requestedHostel(tx, req)
		if !ok {
			ref := req.RequestedHostelID
			if ref == "" {
				ref = req.RequestedHostel
			}
			return req.ID, domain.NotFoundError{Entity: EntityHostel, ID: ref}
		}
		switch req.Type {
		case domain.RequestAllocation:
			err = s.applyAllocation(tx, req, target)
		case domain.RequestTransfer:
			err = s.applyTransfer(tx, req, target)
		default:
			err = &domain.InvalidStateError{Entity: EntityAllocationRequest, ID: req.ID, State: string(req.Type), Reason: "unknown request type"}
		}
		if err != nil {
			return req.ID, err
		}
		decided := s.now()
		approved, err = tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
			r.Status = domain.RequestApproved
			r.DecidedAt = &decided
			return nil
		})
		return req.ID, err
	})
	if err == nil {
		s.publish(ctx, OutcomeEvent{Type: OutcomeRequestApproved, Entity: EntityAllocationRequest, ID: approved.ID, StudentID: approved.StudentID, RegNo: approved.RegNo, Status: string(approved.Status)})
	}
	return approved, res, err
}

func (s *Service) applyAllocation(tx Transaction, req AllocationRequest, target Hostel) error {
	place := func(st *Student) {
		st.HostelID = strPtr(target.ID)
		st.HostelName = strPtr(target.Name)
		st.Room = strPtr(domain.RoomAllocated)
		st.Status = domain.StudentActive
		st.FeeDue = 0
	}
	student, ok := requestStudent(tx, req)
	if ok {
		if _, err := tx.UpdateStudent(student.ID, func(st *Student) error {
			place(st)
			return nil
		}); err != nil {
			return err
		}
	} else {
		if req.StudentDetails == nil {
			return domain.NotFoundError{Entity: EntityStudent, ID: req.StudentID}
		}
		synth := *req.StudentDetails
		synth.ID = req.StudentID
		if synth.RegNo == "" {
			synth.RegNo = req.RegNo
		}
		for _, other := range tx.Snapshot().ListStudents() {
			if synth.RegNo != "" && other.RegNo == synth.RegNo {
				return &domain.InvalidStateError{
					Entity: EntityAllocationRequest,
					ID:     req.ID,
					State:  string(req.Status),
					Reason: fmt.Sprintf("student %s was re-registered as %s; reject this request", synth.RegNo, other.ID),
				}
			}
		}
		if synth.Name == "" {
			synth.Name = req.StudentName
		}
		place(&synth)
		if _, err := tx.CreateStudent(synth); err != nil {
			return fmt.Errorf("restore student %s from request %s: %w", synth.RegNo, req.ID, err)
		}
	}
	_, err := tx.UpdateHostel(target.ID, claimPlace)
	return err
}

func (s *Service) applyTransfer(tx Transaction, req AllocationRequest, target Hostel) error {
	student, ok := requestStudent(tx, req)
	if !ok {
		return domain.NotFoundError{Entity: EntityStudent, ID: req.StudentID}
	}
	if !target.Accepts(student.Gender) {
		return &domain.IncompatibleHostelError{HostelID: target.ID, HostelType: target.Type, Gender: student.Gender}
	}
	rebalance := s.opts.transferMode == TransferCapacityRebalance
	source := student.HostelID
	if _, err := tx.UpdateStudent(student.ID, func(st *Student) error {
		st.HostelID = strPtr(target.ID)
		st.HostelName = strPtr(target.Name)
		if rebalance {
			st.Room = strPtr(domain.RoomAllocated)
		}
		return nil
	}); err != nil {
		return err
	}
	if !rebalance {
		return nil
	}
	if _, err := tx.UpdateHostel(target.ID, claimPlace); err != nil {
		return err
	}
	if source != nil && *source != target.ID {
		if _, ok := tx.FindHostel(*source); ok {
			if _, err := tx.UpdateHostel(*source, releasePlace); err != nil {
				return err
			}
		}
	}
	return nil
}

// RejectRequest decides a pending request against the student and reverts
// the student to where they stood before submitting.
func (s *Service) RejectRequest(ctx context.Context, requestID string) (AllocationRequest, Result, error) {
	var rejected AllocationRequest
	res, err := s.run(ctx, "reject_request", func(tx Transaction) (string, error) {
		req, err := pendingRequest(tx, requestID)
		if err != nil {
			return requestID, err
		}
		if student, ok := requestStudent(tx, req); ok {
			_, err = tx.UpdateStudent(student.ID, func(st *Student) error {
				if req.Type == domain.RequestAllocation {
					st.Status = domain.StudentPendingHostel
					st.HostelID = nil
					st.HostelName = nil
					return nil
				}
				st.Status = domain.StudentActive
				st.HostelID = req.CurrentHostelID
				if req.CurrentHostel == "" || req.CurrentHostel == noHostel {
					st.HostelName = nil
				} else {
					st.HostelName = strPtr(req.CurrentHostel)
				}
				return nil
			})
			if err != nil {
				return req.ID, err
			}
		}
		decided := s.now()
		rejected, err = tx.UpdateAllocationRequest(req.ID, func(r *AllocationRequest) error {
			r.Status = domain.RequestRejected
			r.DecidedAt = &decided
			return nil
		})
		return req.ID, err
	})
	if err == nil {
		s.publish(ctx, OutcomeEvent{Type: OutcomeRequestRejected, Entity: EntityAllocationRequest, ID: rejected.ID, StudentID: rejected.StudentID, RegNo: rejected.RegNo, Status: string(rejected.Status)})
	}
	return rejected, res, err
}

// DismissOutcome acknowledges a decided request. Dismissing an already
// acknowledged request is a no-op; dismissing a pending one fails with
// domain.ErrInvalidState.
func (s *Service) DismissOutcome(ctx context.Context, kind OutcomeKind, id string) (Result, error) {
	switch kind {
	case OutcomeAllocation:
		return s.run(ctx, "dismiss_allocation", func(tx Transaction) (string, error) {
			req, ok := tx.FindAllocationRequest(id)
			if !ok {
				return id, domain.NotFoundError{Entity: EntityAllocationRequest, ID: id}
			}
			next, err := seenStatus(EntityAllocationRequest, id, req.Status)
			if err != nil || next == req.Status {
				return id, err
			}
			_, err = tx.UpdateAllocationRequest(id, func(r *AllocationRequest) error {
				r.Status = next
				return nil
			})
			return id, err
		})
	case OutcomeLeave:
		return s.run(ctx, "dismiss_leave", func(tx Transaction) (string, error) {
			leave, ok := tx.FindLeaveRequest(id)
			if !ok {
				return id, domain.NotFoundError{Entity: EntityLeaveRequest, ID: id}
			}
			next, err := seenStatus(EntityLeaveRequest, id, leave.Status)
			if err != nil || next == leave.Status {
				return id, err
			}
			_, err = tx.UpdateLeaveRequest(id, func(l *LeaveRequest) error {
				l.Status = next
				return nil
			})
			return id, err
		})
	default:
		return Result{}, &domain.ValidationError{Fields: map[string]string{"kind": "unknown outcome kind " + string(kind)}}
	}
}

// seenStatus returns the acknowledged form of status. A status that is
// already acknowledged maps to itself.
func seenStatus(entity EntityType, id string, status domain.RequestStatus) (domain.RequestStatus, error) {
	if next, ok := status.Seen(); ok {
		return next, nil
	}
	if status == domain.RequestApprovedSeen || status == domain.RequestRejectedSeen {
		return status, nil
	}
	return status, &domain.InvalidStateError{Entity: entity, ID: id, State: string(status), Reason: "no outcome to dismiss"}
}

// ListRequests returns allocation and transfer requests, optionally filtered
// by status, oldest first.
func (s *Service) ListRequests(ctx context.Context, statuses ...domain.RequestStatus) ([]AllocationRequest, error) {
	var out []AllocationRequest
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, req := range view.ListAllocationRequests() {
			if len(statuses) == 0 || containsStatus(statuses, req.Status) {
				out = append(out, req)
			}
		}
		return nil
	})
	return out, err
}

// GetRequest returns one allocation or transfer request.
func (s *Service) GetRequest(ctx context.Context, id string) (AllocationRequest, error) {
	var out AllocationRequest
	err := s.store.View(ctx, func(view TransactionView) error {
		req, ok := view.FindAllocationRequest(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityAllocationRequest, ID: id}
		}
		out = req
		return nil
	})
	return out, err
}

func containsStatus(statuses []domain.RequestStatus, status domain.RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
