package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

func (s *Server) createHostel(c *gin.Context) {
	var in core.HostelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "body", err)
		return
	}
	h, res, err := s.svc.CreateHostel(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, h, res)
}

func (s *Server) listHostels(c *gin.Context) {
	list, err := s.svc.ListHostels(c.Request.Context(), domain.Gender(c.Query("gender")))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) getHostel(c *gin.Context) {
	h, err := s.svc.GetHostel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, h, core.Result{})
}

func (s *Server) updateHostel(c *gin.Context) {
	var in core.HostelInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "body", err)
		return
	}
	h, res, err := s.svc.UpdateHostel(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, h, res)
}

func (s *Server) deleteHostel(c *gin.Context) {
	id := c.Param("id")
	res, err := s.svc.DeleteHostel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id}, res)
}
