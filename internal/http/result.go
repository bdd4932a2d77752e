package httpapi

import (
	"errors"
	"net/http"

	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/dashboard"
	"greenlife-monitor/internal/identity"
)

// Response codes carried in Result.Code.
const (
	CodeOK          = 2000
	CodeFailed      = -1
	CodeSignInAgain = 60401 // sent with 401; the dashboard returns to its sign-in screen
)

// Result envelope of every dashboard JSON response. Type is "success" or
// "error"; fan outcomes carry the toast the dashboard shows in Result.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

func ok[T any](result T) Result[T] {
	return Result[T]{Code: CodeOK, Type: "success", Message: "ok", Result: result}
}

func failed(message string) Result[any] {
	return Result[any]{Code: CodeFailed, Type: "error", Message: message}
}

// authFailure maps a token problem to its response. Only a rejected token
// sends the user back to sign-in; an unreachable identity service does not.
func authFailure(err error) (int, Result[any]) {
	if err == nil || errors.Is(err, identity.ErrInvalidToken) {
		msg := "sign in again"
		if err == nil {
			msg = "missing bearer token"
		}
		return http.StatusUnauthorized, Result[any]{Code: CodeSignInAgain, Type: "error", Message: msg}
	}
	return http.StatusBadGateway, failed("identity service unavailable")
}

// fanOutcome maps the result of a fan toggle to its response.
func fanOutcome(desired bool, err error) (int, Result[any]) {
	notice := alert.NoticeFor(desired, err)
	var cmdErr *alert.CommandError
	switch {
	case err == nil:
		return http.StatusOK, Result[any]{Code: CodeOK, Type: "success", Message: notice.Message, Result: notice}
	case errors.Is(err, dashboard.ErrNotLive):
		return http.StatusConflict, failed(err.Error())
	case errors.As(err, &cmdErr):
		return http.StatusBadGateway, Result[any]{Code: CodeFailed, Type: "error", Message: notice.Message, Result: notice}
	default:
		return http.StatusInternalServerError, failed(err.Error())
	}
}
