package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is a minimal error envelope: a human-readable message plus an
// optional machine-checkable code for callers that want to branch on it.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error   APIError `json:"error"`
	TraceID string   `json:"trace_id,omitempty"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error:   APIError{Message: msg, Code: code},
		TraceID: c.GetString("trace_id"),
	})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
