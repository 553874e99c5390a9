package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"hostelcore/internal/blob"
	"hostelcore/pkg/domain"
)

// ComplaintInput is a new complaint.
type ComplaintInput struct {
	Type string `json:"type" validate:"required,max=60"`
	Desc string `json:"desc" validate:"required,max=2000"`
}

// SubmitComplaint records a pending complaint raised by a student.
func (s *Service) SubmitComplaint(ctx context.Context, studentID string, in ComplaintInput) (Complaint, Result, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Desc = strings.TrimSpace(in.Desc)
	if err := s.validateInput(in); err != nil {
		return Complaint{}, Result{}, err
	}
	var created Complaint
	res, err := s.run(ctx, "submit_complaint", func(tx Transaction) (string, error) {
		student, ok := tx.FindStudent(studentID)
		if !ok {
			return studentID, domain.NotFoundError{Entity: EntityStudent, ID: studentID}
		}
		var err error
		created, err = tx.CreateComplaint(Complaint{
			StudentID: student.ID,
			Student:   student.Name,
			Type:      in.Type,
			Desc:      in.Desc,
			Status:    domain.ComplaintPending,
			Date:      s.now().Format(dateLayout),
		})
		return created.ID, err
	})
	return created, res, err
}

// SetComplaintStatus moves a complaint to any valid status.
func (s *Service) SetComplaintStatus(ctx context.Context, id string, status domain.ComplaintStatus) (Complaint, Result, error) {
	if !status.Valid() {
		return Complaint{}, Result{}, &domain.ValidationError{Fields: map[string]string{"status": "unknown complaint status " + string(status)}}
	}
	var updated Complaint
	res, err := s.run(ctx, "set_complaint_status", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateComplaint(id, func(c *Complaint) error {
			c.Status = status
			return nil
		})
		return id, err
	})
	if err == nil {
		s.publish(ctx, OutcomeEvent{Type: OutcomeComplaintUpdated, Entity: EntityComplaint, ID: updated.ID, StudentID: updated.StudentID, Status: string(updated.Status)})
	}
	return updated, res, err
}

// AttachComplaintImage stores a photo for a complaint.
func (s *Service) AttachComplaintImage(ctx context.Context, id, filename, contentType string, r io.Reader) (Complaint, Result, error) {
	if s.opts.blobs == nil {
		return Complaint{}, Result{}, ErrAttachmentsDisabled
	}
	if _, err := s.GetComplaint(ctx, id); err != nil {
		return Complaint{}, Result{}, err
	}
	key := attachmentKey("complaints", id, "image", filename)
	if _, err := s.opts.blobs.Put(ctx, key, r, blob.PutOptions{ContentType: contentType, Metadata: map[string]string{"complaint": id}}); err != nil {
		return Complaint{}, Result{}, fmt.Errorf("store complaint image: %w", err)
	}
	var updated Complaint
	res, err := s.run(ctx, "attach_complaint_image", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateComplaint(id, func(c *Complaint) error {
			c.Image = key
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// GetComplaint returns one complaint.
func (s *Service) GetComplaint(ctx context.Context, id string) (Complaint, error) {
	var out Complaint
	err := s.store.View(ctx, func(view TransactionView) error {
		c, ok := view.FindComplaint(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityComplaint, ID: id}
		}
		out = c
		return nil
	})
	return out, err
}

// ListComplaints returns complaints, optionally only those of one student.
func (s *Service) ListComplaints(ctx context.Context, studentID string) ([]Complaint, error) {
	var out []Complaint
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, c := range view.ListComplaints() {
			if studentID == "" || c.StudentID == studentID {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}
