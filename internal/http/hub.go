package httpapi

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logpkg "greenlife-monitor/common/logger"
	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/dashboard"
	"greenlife-monitor/internal/metrics"
	"greenlife-monitor/internal/models"
	"greenlife-monitor/internal/session"
)

const noticeBuffer = 8

// Session one connected dashboard: its own sign-in state and controller
type Session struct {
	ID         uuid.UUID
	Auth       *session.Context
	Controller *dashboard.Controller

	views     chan models.View
	notices   chan alert.Notice
	done      chan struct{}
	closeOnce sync.Once
}

// Views delivers the newest read model; intermediate views may be skipped.
func (s *Session) Views() <-chan models.View {
	return s.views
}

// Notices delivers command outcomes.
func (s *Session) Notices() <-chan alert.Notice {
	return s.notices
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ToggleFan runs the command and queues the resulting notice.
func (s *Session) ToggleFan(ctx context.Context, desired bool) error {
	err := s.Controller.ToggleFan(ctx, desired)
	if errors.Is(err, dashboard.ErrNotLive) {
		s.offerNotice(alert.Notice{Level: "error", Title: "Error", Message: "Dashboard is still loading"})
		return err
	}
	s.offerNotice(alert.NoticeFor(desired, err))
	return err
}

// offerView keeps only the latest view pending. Called from the controller goroutine only.
func (s *Session) offerView(v models.View) {
	select {
	case s.views <- v:
		return
	default:
	}
	select {
	case <-s.views:
	default:
	}
	select {
	case s.views <- v:
	default:
	}
}

func (s *Session) offerNotice(n alert.Notice) {
	select {
	case s.notices <- n:
	default:
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.Controller.Close()
		close(s.done)
	})
}

// Hub registry of open dashboard sessions
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	channel  channel.Channel
	verifier session.Verifier
	fan      dashboard.FanToggler
	opts     dashboard.Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHub creates an empty hub. opts.OnView is replaced per session.
func NewHub(ch channel.Channel, verifier session.Verifier, fan dashboard.FanToggler, opts dashboard.Options, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]*Session),
		channel:  ch,
		verifier: verifier,
		fan:      fan,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// Open starts a new signed-out session.
func (h *Hub) Open() *Session {
	id := uuid.New()
	logger := logpkg.ForSession(h.logger, id.String())

	s := &Session{
		ID:      id,
		Auth:    session.New(h.verifier, logger),
		views:   make(chan models.View, 1),
		notices: make(chan alert.Notice, noticeBuffer),
		done:    make(chan struct{}),
	}
	opts := h.opts
	opts.OnView = s.offerView
	s.Controller = dashboard.NewController(h.channel, s.Auth, h.fan, opts, h.metrics, logger)

	go func() {
		if err := s.Controller.Run(context.Background()); err != nil {
			logger.Warn("Dashboard controller stopped", zap.Error(err))
		}
	}()

	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	h.metrics.SessionOpened()

	logger.Info("Dashboard session opened")
	return s
}

// Get looks up an open session.
func (h *Hub) Get(id uuid.UUID) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Remove closes and forgets a session. Unknown ids are ignored.
func (h *Hub) Remove(id uuid.UUID) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	h.metrics.SessionClosed()
	h.logger.Info("Dashboard session closed", zap.String("session_id", id.String()))
}

// CloseAll closes every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Remove(id)
	}
}

// Len number of open sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
