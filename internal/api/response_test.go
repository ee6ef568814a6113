package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestWriteOK_WritesSuccessEnvelope(t *testing.T) {
	c, w := newTestContext()
	writeOK(c, map[string]string{"hello": "world"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
}

func TestWriteErr_ValidationErrorMapsTo400(t *testing.T) {
	c, w := newTestContext()
	writeErr(c, models.NewValidationError("bad input", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteErr_PreconditionErrorMapsTo422(t *testing.T) {
	c, w := newTestContext()
	writeErr(c, models.NewPreconditionError("not ready", nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestWriteErr_PlainErrorMapsTo500(t *testing.T) {
	c, w := newTestContext()
	writeErr(c, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestFailure_PopulatesErrorCodeAndSuggestedAction(t *testing.T) {
	resp := failure(models.NewValidationError("bad input", map[string]string{"field": "title"}))
	require.False(t, resp.Success)
	require.Equal(t, "validation", resp.ErrorCode)
	require.Equal(t, "title", resp.ErrorContext["field"])
}
