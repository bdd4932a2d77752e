package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:lookup", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch body["idToken"] {
		case "good-token":
			_, _ = w.Write([]byte(`{"users":[{"localId":"uid-123","email":"ada@example.com"}]}`))
		case "no-users":
			_, _ = w.Write([]byte(`{"users":[]}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"BACKEND_ERROR"}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_ID_TOKEN"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Verify(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL, "test-key", 2*time.Second, zap.NewNop())
	client.httpClient.SetRetryCount(0)
	ctx := context.Background()

	uid, err := client.Verify(ctx, "good-token")
	require.NoError(t, err)
	assert.Equal(t, "uid-123", uid)

	_, err = client.Verify(ctx, "expired")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.Verify(ctx, "no-users")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.Verify(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}
