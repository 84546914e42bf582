package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEnvelope(t *testing.T) {
	Now = func() time.Time { return time.UnixMilli(1700000000000) }
	t.Cleanup(func() { Now = time.Now })

	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "Validation failed", "name is required")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorResponse{
		Status:    400,
		Message:   "Validation failed",
		Timestamp: 1700000000000,
		Details:   []string{"name is required"},
	}, body)
}

func TestErrorOmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusNotFound, "Student not found with id: 1")
	assert.NotContains(t, rec.Body.String(), "details")
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
