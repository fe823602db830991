package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/client"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/service"
)

func runRespondError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, err)
	return w
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"busy", service.ErrInstanceBusy, http.StatusConflict},
		{"name taken", service.ErrNameTaken, http.StatusConflict},
		{"email taken", service.ErrEmailTaken, http.StatusConflict},
		{"user has instances", service.ErrUserHasInstances, http.StatusConflict},
		{"quota", &service.QuotaExceededError{Kind: "instances", Limit: 1, Current: 1}, http.StatusForbidden},
		{"invalid transition", &service.InvalidTransitionError{State: "CONNECTING", Op: "connect"}, http.StatusBadRequest},
		{"gateway unreachable", &client.Error{Kind: client.KindUnreachable, Op: "connect"}, http.StatusServiceUnavailable},
		{"gateway 4xx passthrough", &client.Error{Kind: client.KindRejected, Op: "create_instance", StatusCode: 403}, http.StatusForbidden},
		{"gateway rejected without status", &client.Error{Kind: client.KindRejected, Op: "connect"}, http.StatusBadGateway},
		{"gateway unexpected", &client.Error{Kind: client.KindUnexpected, Op: "connect", StatusCode: 502}, http.StatusBadGateway},
		{"storage", &service.StorageError{Op: "create instance", Err: errors.New("boom")}, http.StatusInternalServerError},
		{"unknown", errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := runRespondError(tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRespondError_QuotaBodyCarriesUsage(t *testing.T) {
	w := runRespondError(&service.QuotaExceededError{Kind: "messages", Limit: 1000, Current: 1000})

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "messages", body["kind"])
	assert.Equal(t, float64(1000), body["limit"])
	assert.Equal(t, float64(1000), body["current"])
}

func TestRespondError_StorageDetailNotLeaked(t *testing.T) {
	w := runRespondError(&service.StorageError{Op: "create instance", Err: errors.New("pq: password authentication failed")})

	assert.NotContains(t, w.Body.String(), "password", "internal failure detail must not reach clients")
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestRespondError_TransitionBodyNamesState(t *testing.T) {
	w := runRespondError(&service.InvalidTransitionError{State: "DISCONNECTED", Op: "send_message"})

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DISCONNECTED", body["state"])
}
