package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"hostelcore/internal/blob"
	"hostelcore/pkg/domain"
)

// ErrAttachmentsDisabled is returned by image uploads when no blob store is configured.
var ErrAttachmentsDisabled = errors.New("attachments disabled: no blob store configured")

// RegisterStudentInput is the self-registration payload.
type RegisterStudentInput struct {
	RegNo         string        `json:"regNo" validate:"required,alphanum,max=32"`
	Name          string        `json:"name" validate:"required,max=120"`
	Department    string        `json:"department" validate:"max=120"`
	Year          string        `json:"year" validate:"max=16"`
	Email         string        `json:"email" validate:"omitempty,email"`
	Phone         string        `json:"phone" validate:"omitempty,max=32"`
	GuardianName  string        `json:"guardianName" validate:"max=120"`
	GuardianPhone string        `json:"guardianPhone" validate:"omitempty,max=32"`
	Gender        domain.Gender `json:"gender" validate:"required,oneof=Male Female"`
}

// StudentProfileUpdate carries editable profile fields. Nil fields are left
// unchanged. Allocation fields are owned by the request workflow.
type StudentProfileUpdate struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	Department    *string `json:"department" validate:"omitempty,max=120"`
	Year          *string `json:"year" validate:"omitempty,max=16"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Phone         *string `json:"phone" validate:"omitempty,max=32"`
	GuardianName  *string `json:"guardianName" validate:"omitempty,max=120"`
	GuardianPhone *string `json:"guardianPhone" validate:"omitempty,max=32"`
	FeeDue        *int    `json:"feeDue" validate:"omitempty,gte=0"`
}

// StudentFilter narrows ListStudents. Search matches name or regNo, case-insensitively.
type StudentFilter struct {
	HostelID string
	Status   domain.StudentStatus
	Search   string
}

func (f StudentFilter) match(s Student) bool {
	if f.HostelID != "" && derefString(s.HostelID) != f.HostelID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		return strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.RegNo), q)
	}
	return true
}

// RegisterStudent creates a student without a hostel place.
func (s *Service) RegisterStudent(ctx context.Context, in RegisterStudentInput) (Student, Result, error) {
	in.RegNo = strings.ToUpper(strings.TrimSpace(in.RegNo))
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validateInput(in); err != nil {
		return Student{}, Result{}, err
	}
	var created Student
	res, err := s.run(ctx, "register_student", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateStudent(Student{
			RegNo:         in.RegNo,
			Name:          in.Name,
			Department:    in.Department,
			Year:          in.Year,
			Email:         in.Email,
			Phone:         in.Phone,
			GuardianName:  in.GuardianName,
			GuardianPhone: in.GuardianPhone,
			Gender:        in.Gender,
			Status:        domain.StudentPendingHostel,
		})
		return created.ID, err
	})
	return created, res, err
}

// LookupStudent resolves a sign-in identifier, either a registration number
// or an email address.
func (s *Service) LookupStudent(ctx context.Context, identifier string) (Student, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Student{}, &domain.ValidationError{Fields: map[string]string{"identifier": "required"}}
	}
	var found Student
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, st := range view.ListStudents() {
			if strings.EqualFold(st.RegNo, identifier) || (st.Email != "" && strings.EqualFold(st.Email, identifier)) {
				found = st
				return nil
			}
		}
		return domain.NotFoundError{Entity: EntityStudent, ID: identifier}
	})
	return found, err
}

// GetStudent returns one student by id.
func (s *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	var out Student
	err := s.store.View(ctx, func(view TransactionView) error {
		st, ok := view.FindStudent(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityStudent, ID: id}
		}
		out = st
		return nil
	})
	return out, err
}

// ListStudents returns students matching filter, oldest registration first.
func (s *Service) ListStudents(ctx context.Context, filter StudentFilter) ([]Student, error) {
	var out []Student
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, st := range view.ListStudents() {
			if filter.match(st) {
				out = append(out, st)
			}
		}
		return nil
	})
	return out, err
}

// UpdateStudentProfile edits contact and personal details.
func (s *Service) UpdateStudentProfile(ctx context.Context, id string, in StudentProfileUpdate) (Student, Result, error) {
	if err := s.validateInput(in); err != nil {
		return Student{}, Result{}, err
	}
	var updated Student
	res, err := s.run(ctx, "update_student_profile", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateStudent(id, func(st *Student) error {
			assign := func(dst *string, src *string) {
				if src != nil {
					*dst = strings.TrimSpace(*src)
				}
			}
			assign(&st.Name, in.Name)
			assign(&st.Department, in.Department)
			assign(&st.Year, in.Year)
			assign(&st.Email, in.Email)
			assign(&st.Phone, in.Phone)
			assign(&st.GuardianName, in.GuardianName)
			assign(&st.GuardianPhone, in.GuardianPhone)
			if in.FeeDue != nil {
				st.FeeDue = *in.FeeDue
			}
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// AssignRoom sets the concrete room of a resident.
func (s *Service) AssignRoom(ctx context.Context, id, room string) (Student, Result, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return Student{}, Result{}, &domain.ValidationError{Fields: map[string]string{"room": "required"}}
	}
	var updated Student
	res, err := s.run(ctx, "assign_room", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateStudent(id, func(st *Student) error {
			if !st.Resident() {
				return &domain.InvalidStateError{Entity: EntityStudent, ID: id, State: string(st.Status), Reason: "rooms are assigned to residents only"}
			}
			st.Room = strPtr(room)
			st.Status = domain.StudentAllocated
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// SetStudentWarning flags or clears a disciplinary warning on a resident.
func (s *Service) SetStudentWarning(ctx context.Context, id string, warn bool) (Student, Result, error) {
	var updated Student
	res, err := s.run(ctx, "set_student_warning", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateStudent(id, func(st *Student) error {
			if !st.Resident() {
				return &domain.InvalidStateError{Entity: EntityStudent, ID: id, State: string(st.Status), Reason: "warnings apply to residents only"}
			}
			switch {
			case warn:
				st.Status = domain.StudentWarning
			case st.Status == domain.StudentWarning:
				st.Status = domain.StudentActive
			}
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// SetProfileImage stores an uploaded image and records its blob key on the student.
func (s *Service) SetProfileImage(ctx context.Context, id, filename, contentType string, r io.Reader) (Student, Result, error) {
	if s.opts.blobs == nil {
		return Student{}, Result{}, ErrAttachmentsDisabled
	}
	if _, err := s.GetStudent(ctx, id); err != nil {
		return Student{}, Result{}, err
	}
	key := attachmentKey("students", id, "profile", filename)
	if _, err := s.opts.blobs.Put(ctx, key, r, blob.PutOptions{ContentType: contentType, Metadata: map[string]string{"student": id}}); err != nil {
		return Student{}, Result{}, fmt.Errorf("store profile image: %w", err)
	}
	var updated Student
	res, err := s.run(ctx, "set_profile_image", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateStudent(id, func(st *Student) error {
			st.ProfileImage = key
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteStudent removes a student and their sessions. A pending allocation
// request keeps its embedded snapshot and can still be decided.
func (s *Service) DeleteStudent(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_student", func(tx Transaction) (string, error) {
		return id, tx.DeleteStudent(id)
	})
}

func attachmentKey(collection, id, name, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(collection, id, name+ext)
}
