package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/blob"
	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

type submitComplaintBody struct {
	StudentID string `json:"studentId"`
	core.ComplaintInput
}

func (s *Server) submitComplaint(c *gin.Context) {
	var body submitComplaintBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	cp, res, err := s.svc.SubmitComplaint(c.Request.Context(), body.StudentID, body.ComplaintInput)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, cp, res)
}

func (s *Server) listComplaints(c *gin.Context) {
	list, err := s.svc.ListComplaints(c.Request.Context(), c.Query("studentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) getComplaint(c *gin.Context) {
	cp, err := s.svc.GetComplaint(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, cp, core.Result{})
}

func (s *Server) setComplaintStatus(c *gin.Context) {
	var body struct {
		Status domain.ComplaintStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	cp, res, err := s.svc.SetComplaintStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, cp, res)
}

func (s *Server) uploadComplaintImage(c *gin.Context) {
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
	cp, res, err := s.svc.AttachComplaintImage(c.Request.Context(), c.Param("id"), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, cp, res)
}

func (s *Server) postAnnouncement(c *gin.Context) {
	var in core.AnnouncementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "body", err)
		return
	}
	a, res, err := s.svc.PostAnnouncement(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, a, res)
}

func (s *Server) listAnnouncements(c *gin.Context) {
	list, err := s.svc.ListAnnouncements(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) deleteAnnouncement(c *gin.Context) {
	id := c.Param("id")
	res, err := s.svc.DeleteAnnouncement(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id}, res)
}

func (s *Server) getMenu(c *gin.Context) {
	menu, err := s.svc.FoodMenu(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, menu, core.Result{})
}

func (s *Server) publishMenu(c *gin.Context) {
	var body struct {
		Meals map[domain.Meal][]core.MenuItem `json:"meals"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	menu, res, err := s.svc.PublishFoodMenu(c.Request.Context(), body.Meals)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, menu, res)
}

func (s *Server) dashboard(c *gin.Context) {
	d, err := s.svc.Dashboard(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, d, core.Result{})
}

// attachment streams a stored blob. Keys are validated by the store.
func (s *Server) attachment(c *gin.Context) {
	if s.blobs == nil {
		writeError(c, blob.ErrNotFound)
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	info, rc, err := s.blobs.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	headers := map[string]string{}
	if info.ETag != "" {
		headers["ETag"] = `"` + info.ETag + `"`
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, headers)
}
