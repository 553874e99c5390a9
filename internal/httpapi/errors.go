package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/blob"
	"hostelcore/internal/core"
	"hostelcore/pkg/domain"
)

type errorBody struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	Violations []violationDTO    `json:"violations,omitempty"`
}

type violationDTO struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity"`
	EntityID string `json:"entityId,omitempty"`
}

func violations(res core.Result) []violationDTO {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationDTO, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationDTO{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	return out
}

// statusFor maps service errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var rv domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_key"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, blob.ErrExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, domain.ErrIncompatibleHostel):
		return http.StatusUnprocessableEntity, "incompatible_hostel"
	case errors.As(err, &rv):
		return http.StatusUnprocessableEntity, "rule_violation"
	case errors.Is(err, domain.ErrStorageCorrupt), errors.Is(err, core.ErrAttachmentsDisabled):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := errorBody{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
		_ = c.Error(err)
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		body.Violations = violations(rv.Result)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, field string, err error) {
	writeError(c, &domain.ValidationError{Fields: map[string]string{field: err.Error()}})
}

// respond writes data with any non-blocking rule warnings.
func respond(c *gin.Context, status int, data any, res core.Result) {
	body := gin.H{"data": data}
	if v := violations(res); v != nil {
		body["violations"] = v
	}
	c.JSON(status, body)
}
