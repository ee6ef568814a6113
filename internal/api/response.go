// Package api exposes the command surface (a small, stable request/response
// set over HTTP) and the streaming event protocol (a websocket push
// channel) that the renderer drives the core through.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clawflow/clawflow/internal/models"
)

// Response is the envelope every command-surface endpoint returns.
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

func success(data any) Response {
	return Response{SchemaVersion: "v1", Success: true, Data: data}
}

func failure(err error) Response {
	resp := Response{SchemaVersion: "v1", Success: false, Error: err.Error()}
	var re models.RecoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// writeOK sends a 200 success envelope.
func writeOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, success(data))
}

// writeErr translates err into an HTTP status (400 for validation, 422 for
// precondition, 409 for circuit-breaker/VCS conflicts, 504 for timeout, 500
// otherwise) plus the failure envelope.
func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var re models.RecoverableError
	if errors.As(err, &re) {
		switch re.ErrorCode() {
		case "validation":
			status = http.StatusBadRequest
		case "precondition":
			status = http.StatusUnprocessableEntity
		case "circuit_breaker", "vcs_conflict":
			status = http.StatusConflict
		case "timeout":
			status = http.StatusGatewayTimeout
		}
	}
	c.JSON(status, failure(err))
}
