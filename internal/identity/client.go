package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInvalidToken the identity provider rejected the token
var ErrInvalidToken = errors.New("invalid or expired token")

// lookupRequest accounts:lookup request body
type lookupRequest struct {
	IDToken string `json:"idToken"`
}

// lookupResponse accounts:lookup response body
type lookupResponse struct {
	Users []struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
	} `json:"users"`
}

// apiError identity provider error body
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client verifies ID tokens against the hosted identity REST API.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	logger     *zap.Logger
}

// NewClient creates an identity client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Verify resolves token to the user's identity.
func (c *Client) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	var result lookupResponse
	var apiErr apiError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(lookupRequest{IDToken: token}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1/accounts:lookup")
	if err != nil {
		c.logger.Error("Identity API call failed", zap.Error(err))
		return "", fmt.Errorf("failed to call identity API: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		c.logger.Info("Token rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", apiErr.Error.Message),
		)
		return "", ErrInvalidToken
	case resp.IsError():
		return "", fmt.Errorf("identity API error: %s (status: %d)", apiErr.Error.Message, resp.StatusCode())
	}

	if len(result.Users) == 0 || result.Users[0].LocalID == "" {
		return "", ErrInvalidToken
	}
	return result.Users[0].LocalID, nil
}
