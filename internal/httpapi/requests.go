package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

type submitRequestBody struct {
	Type      domain.RequestType `json:"type"`
	StudentID string             `json:"studentId"`
	HostelID  string             `json:"hostelId"`
	Reason    string             `json:"reason"`
}

func (s *Server) submitRequest(c *gin.Context) {
	var body submitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	var (
		req core.AllocationRequest
		res core.Result
		err error
	)
	ctx := c.Request.Context()
	switch body.Type {
	case domain.RequestAllocation, "":
		req, res, err = s.svc.SubmitAllocationRequest(ctx, body.StudentID, body.HostelID)
	case domain.RequestTransfer:
		req, res, err = s.svc.SubmitTransferRequest(ctx, body.StudentID, body.HostelID, body.Reason)
	default:
		badRequest(c, "type", fmt.Errorf("unknown request type %q", body.Type))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, req, res)
}

func (s *Server) listRequests(c *gin.Context) {
	var statuses []domain.RequestStatus
	for _, st := range c.QueryArray("status") {
		statuses = append(statuses, domain.RequestStatus(st))
	}
	list, err := s.svc.ListRequests(c.Request.Context(), statuses...)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) getRequest(c *gin.Context) {
	req, err := s.svc.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, req, core.Result{})
}

func (s *Server) approveRequest(c *gin.Context) {
	req, res, err := s.svc.ApproveRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, req, res)
}

func (s *Server) rejectRequest(c *gin.Context) {
	req, res, err := s.svc.RejectRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, req, res)
}

// dismiss acknowledges a decided allocation or leave request. With an
// auto-dismisser configured its pending timer is cancelled first.
func (s *Server) dismiss(kind core.OutcomeKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var (
			res core.Result
			err error
		)
		if s.dismisser != nil {
			res, err = s.dismisser.Dismiss(c.Request.Context(), kind, id)
		} else {
			res, err = s.svc.DismissOutcome(c.Request.Context(), kind, id)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"kind": kind, "id": id}, res)
	}
}

type submitLeaveBody struct {
	StudentID string `json:"studentId"`
	core.LeaveInput
}

func (s *Server) submitLeave(c *gin.Context) {
	var body submitLeaveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "body", err)
		return
	}
	leave, res, err := s.svc.SubmitLeave(c.Request.Context(), body.StudentID, body.LeaveInput)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, leave, res)
}

func (s *Server) listLeaves(c *gin.Context) {
	list, err := s.svc.ListLeaves(c.Request.Context(), core.LeaveFilter{
		StudentID: c.Query("studentId"),
		Status:    domain.RequestStatus(c.Query("status")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, list, core.Result{})
}

func (s *Server) approveLeave(c *gin.Context) {
	leave, res, err := s.svc.ApproveLeave(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, leave, res)
}

func (s *Server) rejectLeave(c *gin.Context) {
	leave, res, err := s.svc.RejectLeave(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, leave, res)
}
