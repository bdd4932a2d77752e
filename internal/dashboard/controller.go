package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"greenlife-monitor/internal/alert"
	"greenlife-monitor/internal/channel"
	"greenlife-monitor/internal/metrics"
	"greenlife-monitor/internal/models"
	"greenlife-monitor/internal/session"
	"greenlife-monitor/internal/telemetry"
)

// ErrNotLive a command was issued before the dashboard had live data
var ErrNotLive = errors.New("dashboard is not live")

const inboxSize = 64

// IdentitySource reports sign-in transitions.
type IdentitySource interface {
	OnChange(fn func(identity string)) (unsubscribe func())
}

// FanToggler issues fan commands.
type FanToggler interface {
	ToggleFan(ctx context.Context, identity string, desired bool) error
}

// Options controller settings
type Options struct {
	TelemetryPath     string
	ProfilePathPrefix string
	WindowSize        int
	Location          *time.Location
	// OnView is called on the controller goroutine after every read-model
	// change. It must not block or call Close.
	OnView func(models.View)
}

type document int

const (
	docTelemetry document = iota
	docProfile
)

func (d document) String() string {
	if d == docTelemetry {
		return "telemetry"
	}
	return "profile"
}

type eventKind int

const (
	eventIdentity eventKind = iota
	eventSnapshot
	eventError
)

type event struct {
	kind     eventKind
	epoch    uint64
	doc      document
	identity string
	snap     channel.Snapshot
	err      error
}

// generation the subscriptions opened for one identity
type generation struct {
	epoch uint64
	stop  chan struct{}
	subs  []channel.Subscription
}

// Controller drives one dashboard session: it follows the signed-in
// identity, keeps the telemetry and profile subscriptions for it, and
// publishes the read model. All ingestion happens on the Run goroutine.
type Controller struct {
	channel    channel.Channel
	identities IdentitySource
	fan        FanToggler
	opts       Options
	metrics    *metrics.Metrics
	logger     *zap.Logger

	inbox   chan event
	done    chan struct{}
	stopped chan struct{}

	lifeMu  sync.Mutex
	started bool
	closed  bool

	// owned by the Run goroutine
	state       models.DashboardState
	identity    string
	epoch       uint64
	gen         *generation
	window      *telemetry.Window
	latest      models.Loadable[models.Reading]
	profile     models.Loadable[models.PatientProfile]
	unavailable map[string]string

	viewMu sync.RWMutex
	view   models.View
}

// NewController creates a controller in the unauthenticated state.
func NewController(ch channel.Channel, identities IdentitySource, fan FanToggler, opts Options, m *metrics.Metrics, logger *zap.Logger) *Controller {
	if opts.TelemetryPath == "" {
		opts.TelemetryPath = "health_monitor"
	}
	if opts.ProfilePathPrefix == "" {
		opts.ProfilePathPrefix = "patients/"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	c := &Controller{
		channel:     ch,
		identities:  identities,
		fan:         fan,
		opts:        opts,
		metrics:     m,
		logger:      logger,
		inbox:       make(chan event, inboxSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		state:       models.StateUnauthenticated,
		identity:    session.NoIdentity,
		window:      telemetry.NewWindow(opts.WindowSize, opts.Location),
		unavailable: make(map[string]string),
	}
	c.view = models.View{State: models.StateUnauthenticated}
	return c
}

// ProfilePath returns the profile document path for identity.
func (c *Controller) ProfilePath(identity string) string {
	return c.opts.ProfilePathPrefix + identity
}

// Run processes events until ctx is done or Close is called. It must be
// called at most once.
func (c *Controller) Run(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.closed || c.started {
		c.lifeMu.Unlock()
		return nil
	}
	c.started = true
	c.lifeMu.Unlock()
	defer close(c.stopped)

	unsubscribe := c.identities.OnChange(func(identity string) {
		select {
		case c.inbox <- event{kind: eventIdentity, identity: identity}:
		case <-c.done:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-c.done:
			c.shutdown()
			return nil
		case ev := <-c.inbox:
			c.handle(ev)
		}
	}
}

// Close tears the session down and waits for Run to return. Idempotent.
func (c *Controller) Close() {
	c.lifeMu.Lock()
	first := !c.closed
	if first {
		c.closed = true
		close(c.done)
	}
	started := c.started
	c.lifeMu.Unlock()

	if started {
		<-c.stopped
		return
	}
	if first {
		c.publish(models.View{State: models.StateTornDown})
	}
}

// View returns the latest published read model.
func (c *Controller) View() models.View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// ToggleFan asks the remote store to switch the fan. The displayed fan state
// only changes when a telemetry push confirms it.
func (c *Controller) ToggleFan(ctx context.Context, desired bool) error {
	v := c.View()
	if v.State != models.StateLive {
		return ErrNotLive
	}
	return c.fan.ToggleFan(ctx, v.Identity, desired)
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case eventIdentity:
		c.onIdentity(ev.identity)
	case eventSnapshot:
		if ev.epoch != c.epoch || c.gen == nil {
			c.logger.Debug("Dropping stale snapshot", zap.String("path", ev.snap.Path))
			return
		}
		c.onSnapshot(ev.doc, ev.snap)
	case eventError:
		if ev.epoch != c.epoch || c.gen == nil {
			return
		}
		c.onError(ev.doc, ev.err)
	}
}

func (c *Controller) onIdentity(identity string) {
	if identity == c.identity {
		return
	}

	c.closeGeneration()
	c.reset()
	c.identity = identity

	if identity == session.NoIdentity {
		c.state = models.StateUnauthenticated
		c.logger.Info("Dashboard signed out")
		c.republish()
		return
	}

	c.state = models.StateLoading
	c.logger.Info("Dashboard loading", zap.String("identity", identity))
	c.openGeneration(identity)
	c.republish()
}

func (c *Controller) onSnapshot(doc document, snap channel.Snapshot) {
	// an absent document is not an error, the dashboard just keeps waiting
	if !snap.Exists() {
		return
	}

	switch doc {
	case docTelemetry:
		var hd models.HealthDocument
		if err := snap.Decode(&hd); err != nil {
			c.onError(doc, &channel.SubscriptionError{Path: snap.Path, Err: err})
			return
		}
		reading := models.NewReading(hd)
		c.latest = models.Loaded(reading)
		c.window.Append(reading)
	case docProfile:
		var profile models.PatientProfile
		if err := snap.Decode(&profile); err != nil {
			c.onError(doc, &channel.SubscriptionError{Path: snap.Path, Err: err})
			return
		}
		c.profile = models.Loaded(profile)
	}

	delete(c.unavailable, snap.Path)
	c.metrics.Snapshot(doc.String())

	if c.state == models.StateLoading && c.latest.IsLoaded() && c.profile.IsLoaded() {
		c.state = models.StateLive
		c.logger.Info("Dashboard live", zap.String("identity", c.identity))
	}
	c.republish()
}

func (c *Controller) onError(doc document, err error) {
	path := c.pathOf(doc)
	var subErr *channel.SubscriptionError
	if errors.As(err, &subErr) {
		path = subErr.Path
	}
	c.logger.Warn("Dashboard data unavailable",
		zap.String("path", path),
		zap.Error(err),
	)
	c.unavailable[path] = err.Error()
	c.metrics.SubscriptionError(doc.String())
	c.republish()
}

func (c *Controller) pathOf(doc document) string {
	if doc == docTelemetry {
		return c.opts.TelemetryPath
	}
	return c.ProfilePath(c.identity)
}

func (c *Controller) openGeneration(identity string) {
	c.epoch++
	gen := &generation{epoch: c.epoch, stop: make(chan struct{})}
	c.gen = gen

	for _, doc := range []document{docTelemetry, docProfile} {
		path := c.opts.TelemetryPath
		if doc == docProfile {
			path = c.ProfilePath(identity)
		}
		sub, err := c.channel.Subscribe(path, c.handlerFor(gen, doc))
		if err != nil {
			c.logger.Error("Failed to subscribe", zap.String("path", path), zap.Error(err))
			c.unavailable[path] = err.Error()
			c.metrics.SubscriptionError(doc.String())
			continue
		}
		gen.subs = append(gen.subs, sub)
	}
}

func (c *Controller) handlerFor(gen *generation, doc document) channel.Handler {
	send := func(ev event) {
		select {
		case c.inbox <- ev:
		case <-gen.stop:
		case <-c.done:
		}
	}
	return channel.HandlerFuncs{
		Snapshot: func(s channel.Snapshot) {
			send(event{kind: eventSnapshot, epoch: gen.epoch, doc: doc, snap: s})
		},
		Error: func(err error) {
			send(event{kind: eventError, epoch: gen.epoch, doc: doc, err: err})
		},
	}
}

// closeGeneration closes both subscriptions before anything new is opened.
func (c *Controller) closeGeneration() {
	if c.gen == nil {
		return
	}
	close(c.gen.stop)
	for _, sub := range c.gen.subs {
		sub.Close()
	}
	c.gen = nil
	c.epoch++
}

func (c *Controller) reset() {
	c.window.Reset()
	c.latest = models.NotYetLoaded[models.Reading]()
	c.profile = models.NotYetLoaded[models.PatientProfile]()
	c.unavailable = make(map[string]string)
}

func (c *Controller) shutdown() {
	c.closeGeneration()
	c.reset()
	c.state = models.StateTornDown
	c.logger.Info("Dashboard torn down", zap.String("identity", c.identity))
	c.republish()
}

func (c *Controller) republish() {
	c.publish(c.buildView())
}

func (c *Controller) buildView() models.View {
	v := models.View{
		State:    c.state,
		Identity: c.identity,
	}
	if len(c.unavailable) > 0 {
		v.Unavailable = make(map[string]string, len(c.unavailable))
		for k, msg := range c.unavailable {
			v.Unavailable[k] = msg
		}
	}
	if c.state != models.StateLive {
		return v
	}

	reading, _ := c.latest.Get()
	status := telemetry.ClassifyReading(reading)
	v.Patient = c.profile
	v.Latest = c.latest
	v.Status = &status
	v.Alert = alert.DeriveAlert(reading)
	v.Trend = c.window.Snapshot()
	if reading.HasTime() {
		v.LastUpdated = reading.ObservedAt.In(c.opts.Location).Format("2006-01-02 15:04:05")
	} else {
		v.LastUpdated = reading.RawTimestamp
	}
	return v
}

func (c *Controller) publish(v models.View) {
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()

	if c.opts.OnView != nil {
		c.opts.OnView(v)
	}
}
