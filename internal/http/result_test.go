package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/dashboard"
	"greenlife-monitor/internal/identity"
)

func TestFanOutcome(t *testing.T) {
	status, res := fanOutcome(true, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, "Fan turned on", res.Result.(alert.Notice).Title)

	status, res = fanOutcome(false, dashboard.ErrNotLive)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeFailed, res.Code)

	status, res = fanOutcome(false, &alert.CommandError{Desired: false, Err: errors.New("permission denied")})
	assert.Equal(t, http.StatusBadGateway, status)
	notice, isNotice := res.Result.(alert.Notice)
	require.True(t, isNotice)
	assert.Equal(t, "Failed to update fan status", notice.Message)

	status, _ = fanOutcome(true, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestAuthFailure(t *testing.T) {
	status, res := authFailure(nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, CodeSignInAgain, res.Code)

	status, res = authFailure(fmt.Errorf("lookup: %w", identity.ErrInvalidToken))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, CodeSignInAgain, res.Code)

	status, res = authFailure(errors.New("dial tcp: timeout"))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, CodeFailed, res.Code)
}
