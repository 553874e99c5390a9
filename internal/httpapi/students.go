package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

func (s *Server) registerStudent(c *gin.Context) {
	var in core.RegisterStudentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "body", err)
		return
	}
	st, res, err := s.svc.RegisterStudent(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, st, res)
}

func (s *Server) listStudents(c *gin.Context) {
	list, err := s.svc.ListStudents(c.Request.Context(), core.StudentFilter{
		HostelID: c.Query("hostelId"),
		Status:   domain.StudentStatus(c.Query("status")),
		Search:   c.Query("search"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) getStudent(c *gin.Context) {
	st, err := s.svc.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, core.Result{})
}

func (s *Server) lookupStudent(c *gin.Context) {
	identifier := c.Query("identifier")
	if identifier == "" {
		badRequest(c, "identifier", errors.New("required"))
		return
	}
	st, err := s.svc.LookupStudent(c.Request.Context(), identifier)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, core.Result{})
}

func (s *Server) updateStudent(c *gin.Context) {
	var in core.StudentProfileUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "body", err)
		return
	}
	st, res, err := s.svc.UpdateStudentProfile(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, res)
}

func (s *Server) deleteStudent(c *gin.Context) {
	id := c.Param("id")
	res, err := s.svc.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id}, res)
}

func (s *Server) assignRoom(c *gin.Context) {
	var body struct {
		Room string `json:"room"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	st, res, err := s.svc.AssignRoom(c.Request.Context(), c.Param("id"), body.Room)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, res)
}

func (s *Server) setWarning(c *gin.Context) {
	var body struct {
		Warning bool `json:"warning"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	st, res, err := s.svc.SetStudentWarning(c.Request.Context(), c.Param("id"), body.Warning)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, res)
}

func (s *Server) uploadProfileImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image", err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()
	st, res, err := s.svc.SetProfileImage(c.Request.Context(), c.Param("id"), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, st, res)
}

func (s *Server) identity(c *gin.Context) (core.Identity, bool) {
	st, err := s.svc.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return core.Identity{}, false
	}
	return core.IdentityOf(st), true
}

func (s *Server) notifications(c *gin.Context) {
	id, ok := s.identity(c)
	if !ok {
		return
	}
	feed, err := s.svc.Notifications(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if s.dismisser != nil {
		s.dismisser.Observe(feed)
	}
	respond(c, http.StatusOK, gin.H{"unread": feed.UnreadCount(), "items": feed.List()}, core.Result{})
}

func (s *Server) markRead(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	id, ok := s.identity(c)
	if !ok {
		return
	}
	res, err := s.svc.MarkNotificationsRead(c.Request.Context(), id, body.IDs...)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"read": body.IDs}, res)
}

func (s *Server) markAllRead(c *gin.Context) {
	id, ok := s.identity(c)
	if !ok {
		return
	}
	res, err := s.svc.MarkAllRead(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"studentId": id.StudentID}, res)
}

func (s *Server) clearNotifications(c *gin.Context) {
	id, ok := s.identity(c)
	if !ok {
		return
	}
	res, err := s.svc.ClearAll(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"studentId": id.StudentID}, res)
}

func (s *Server) signIn(c *gin.Context) {
	var body struct {
		Identifier string `json:"identifier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	sess, res, err := s.svc.SignIn(c.Request.Context(), body.Identifier)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, sess, res)
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, sess, core.Result{})
}

func (s *Server) signOut(c *gin.Context) {
	id := c.Param("id")
	res, err := s.svc.SignOut(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id}, res)
}
