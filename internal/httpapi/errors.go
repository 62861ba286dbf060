package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulexconde/bizassess/pkg/fault"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Subject string `json:"subject,omitempty"`
}

// StatusOf maps a service error onto an HTTP status.
func StatusOf(err error) int {
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindInvalidStructure:
		return http.StatusBadRequest
	case fault.KindInvalidTransition:
		return http.StatusConflict
	case fault.KindConflict:
		return http.StatusServiceUnavailable
	}
	if fault.IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusOf(err)

	resp := ErrorResponse{Error: fault.MessageOf(err), Code: fault.KindOf(err).String()}
	var f *fault.Fault
	if errors.As(err, &f) {
		resp.Subject = f.Subject
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
		if status == http.StatusInternalServerError {
			resp = ErrorResponse{Error: "internal error", Code: "Internal"}
		}
	} else {
		h.log.Debug("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}

	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "InvalidRequest"})
}
