package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// NoIdentity is reported when nobody is signed in.
const NoIdentity = ""

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Context current signed-in identity of one client session, with change
// notification. Listeners run synchronously on the goroutine that changed the
// identity and must not call SignIn or SignOut.
type Context struct {
	verifier Verifier
	logger   *zap.Logger

	notifyMu sync.Mutex // serializes changes so listeners see them in order
	mu       sync.Mutex
	identity string
	nextID   int
	watchers map[int]func(string)
}

// New creates a signed-out session context.
func New(verifier Verifier, logger *zap.Logger) *Context {
	return &Context{
		verifier: verifier,
		logger:   logger,
		watchers: make(map[int]func(string)),
	}
}

// Identity returns the current identity or NoIdentity.
func (c *Context) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// OnChange registers fn and immediately calls it with the current identity.
// The returned function unregisters it.
func (c *Context) OnChange(fn func(identity string)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	current := c.identity
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// SignIn verifies token and, on success, switches to its identity.
func (c *Context) SignIn(ctx context.Context, token string) (string, error) {
	identity, err := c.verifier.Verify(ctx, token)
	if err != nil {
		c.logger.Info("Sign-in rejected", zap.Error(err))
		return NoIdentity, err
	}
	c.set(identity)
	return identity, nil
}

// SignOut clears the identity.
func (c *Context) SignOut() {
	c.set(NoIdentity)
}

func (c *Context) set(identity string) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.identity == identity {
		c.mu.Unlock()
		return
	}
	c.identity = identity
	watchers := make([]func(string), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	c.logger.Debug("Identity changed", zap.Bool("signed_in", identity != NoIdentity))
	for _, fn := range watchers {
		fn(identity)
	}
}
