package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-vkg/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"bad request", http.StatusBadRequest, "invalid_request", "missing question"},
		{"internal error", http.StatusInternalServerError, "internal_error", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			require.NoError(t, ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message))

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.errorCode, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteJSON(w, http.StatusAccepted, map[string]int{"rows": 3}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"rows":3}`, w.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Question string `json:"question"`
	}

	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"question":"How many orders?"}`))
		var p payload
		require.NoError(t, DecodeJSON(r, &p))
		assert.Equal(t, "How many orders?", p.Question)
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var p payload
		err := DecodeJSON(r, &p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest))
	})

	t.Run("oversized body", func(t *testing.T) {
		body := `{"question":"` + strings.Repeat("a", maxRequestBody) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var p payload
		assert.ErrorIs(t, DecodeJSON(r, &p), apperrors.ErrInvalidRequest)
	})
}
