package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/dashboard"
	"greenlife-monitor/internal/identity"
	"greenlife-monitor/internal/models"
)

const telemetryPath = "health_monitor"

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", identity.ErrInvalidToken
}

type testEnv struct {
	mr       *miniredis.Miniredis
	channel  *channel.RedisChannel
	verifier tokenVerifier
	hub      *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ch := channel.NewRedisChannel(client, channel.RedisOptions{
		KeyPrefix:    "rtdb:",
		BlockTimeout: 20 * time.Millisecond,
	}, zap.NewNop())
	verifier := tokenVerifier{"tok-a": "uid-a", "tok-b": "uid-b"}
	coordinator := alert.NewCoordinator(ch, telemetryPath, nil, nil, zap.NewNop())

	hub := NewHub(ch, verifier, coordinator, dashboard.Options{
		TelemetryPath:     telemetryPath,
		ProfilePathPrefix: "patients/",
		WindowSize:        20,
		Location:          time.UTC,
	}, nil, zap.NewNop())
	t.Cleanup(hub.CloseAll)

	return &testEnv{mr: mr, channel: ch, verifier: verifier, hub: hub}
}

func (e *testEnv) seed(t *testing.T, uid string) {
	ctx := context.Background()
	require.NoError(t, e.channel.WritePartial(ctx, telemetryPath, map[string]interface{}{
		"pulse":     72,
		"temp":      36.8,
		"hum":       45,
		"fan":       false,
		"buzzer":    false,
		"timestamp": "2025-01-01T00:00:00Z",
	}))
	require.NoError(t, e.channel.WritePartial(ctx, "patients/"+uid, map[string]interface{}{
		"patientName":   "Ada Lovelace",
		"disease":       "asthma",
		"guardianName":  "Byron",
		"guardianPhone": "555-0100",
	}))
}

func (e *testEnv) liveSession(t *testing.T, token string) *Session {
	sess := e.hub.Open()
	_, err := sess.Auth.SignIn(context.Background(), token)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sess.Controller.View().State == models.StateLive
	}, 3*time.Second, 10*time.Millisecond)
	return sess
}
