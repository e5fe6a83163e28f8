package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campusmart/backend/services"
	"github.com/campusmart/backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "validation", err: services.ErrInvalidOrExpiredTicket, wantStatus: http.StatusBadRequest, wantError: "Password reset token is invalid or has expired"},
		{name: "conflict", err: services.ErrEmailTaken, wantStatus: http.StatusConflict, wantError: "Email is already registered"},
		{name: "authentication", err: services.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantError: "Invalid credentials"},
		{name: "authorization", err: services.ErrInvalidRefreshToken, wantStatus: http.StatusForbidden, wantError: "Invalid or expired refresh token"},
		{name: "internal", err: &services.Error{Kind: services.KindInternal, Message: "Server error", Err: errors.New("db down")}, wantStatus: http.StatusInternalServerError, wantError: "Server error"},
		{name: "foreign error", err: errors.New("mongo: secret connection detail"), wantStatus: http.StatusInternalServerError, wantError: "Server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Set("requestID", "req-12345678")

			respondError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, "req-12345678", body["requestId"])
			assert.NotContains(t, w.Body.String(), "secret connection detail")
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

func TestRespondError_ValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, &services.Error{
		Kind:    services.KindValidation,
		Message: "Validation failed",
		Details: utils.Violations{{Field: "email", Message: "email is required"}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Validation failed","requestId":"","details":[{"field":"email","message":"email is required"}]}`, w.Body.String())
}
