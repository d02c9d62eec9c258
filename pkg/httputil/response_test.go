package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON with correct content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusOK, map[string]string{"foo": "bar"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var result map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "bar", result["foo"])
	})

	t.Run("handles nil data", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusAccepted, nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid_input", "msg") }, http.StatusBadRequest, "invalid_input"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "not_found", "msg") }, http.StatusNotFound, "not_found"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, "internal_error", "msg") }, http.StatusInternalServerError, "internal_error"},
		{"bad gateway", func(w http.ResponseWriter) { WriteBadGateway(w, "remote_unavailable", "msg") }, http.StatusBadGateway, "remote_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var result ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tt.code, result.Error)
			assert.Equal(t, "msg", result.Message)
			assert.NotContains(t, rec.Body.String(), "details")
		})
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()

	WriteErrorWithDetails(rec, http.StatusBadRequest, "validation_error", "Validation failed", []string{"request: required"})

	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "validation_error", result["error"])
	assert.Equal(t, []any{"request: required"}, result["details"])
}

func TestWriteNoContent(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteNoContent(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		InstanceID string `json:"instanceId"`
	}
	decode := func(raw string, allowEmpty bool) (body, error) {
		var b body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		err := DecodeJSON(httptest.NewRecorder(), req, &b, allowEmpty)
		return b, err
	}

	b, err := decode(`{"instanceId":"i-1"}`, false)
	require.NoError(t, err)
	assert.Equal(t, "i-1", b.InstanceID)

	_, err = decode(``, false)
	assert.EqualError(t, err, "request body is empty")

	_, err = decode(``, true)
	assert.NoError(t, err)

	_, err = decode(`{"instanceId":`, false)
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = decode(`{"other":1}`, false)
	assert.ErrorContains(t, err, "unknown field")

	_, err = decode(`{} {}`, false)
	assert.ErrorContains(t, err, "single JSON value")

	_, err = decode(`{"instanceId":"`+strings.Repeat("x", MaxBodySize)+`"}`, false)
	assert.ErrorContains(t, err, "exceeds")
}
