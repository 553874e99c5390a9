package core

import (
	"context"
	"strings"

	"hostelcore/pkg/domain"
)

// SignIn opens a session for the student identified by regNo or email.
// There is no password check; identity is asserted by the caller.
func (s *Service) SignIn(ctx context.Context, identifier string) (Session, Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Session{}, Result{}, &domain.ValidationError{Fields: map[string]string{"identifier": "required"}}
	}
	var created Session
	res, err := s.run(ctx, "sign_in", func(tx Transaction) (string, error) {
		var student Student
		found := false
		for _, st := range tx.Snapshot().ListStudents() {
			if strings.EqualFold(st.RegNo, identifier) || (st.Email != "" && strings.EqualFold(st.Email, identifier)) {
				student, found = st, true
				break
			}
		}
		if !found {
			return identifier, domain.NotFoundError{Entity: EntityStudent, ID: identifier}
		}
		var err error
		created, err = tx.CreateSession(Session{StudentID: student.ID, Student: student})
		return created.ID, err
	})
	return created, res, err
}

// SignOut ends a session.
func (s *Service) SignOut(ctx context.Context, sessionID string) (Result, error) {
	return s.run(ctx, "sign_out", func(tx Transaction) (string, error) {
		return sessionID, tx.DeleteSession(sessionID)
	})
}

// Session resolves a session. The embedded student is refreshed from the
// current record when it still exists.
func (s *Service) Session(ctx context.Context, sessionID string) (Session, error) {
	var out Session
	err := s.store.View(ctx, func(view TransactionView) error {
		sess, ok := view.FindSession(sessionID)
		if !ok {
			return domain.NotFoundError{Entity: EntitySession, ID: sessionID}
		}
		if st, ok := view.FindStudent(sess.StudentID); ok {
			sess.Student = st
		}
		out = sess
		return nil
	})
	return out, err
}
