package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "greenlife-monitor/common/redis"
)

const (
	changeBatch       = 100
	maxUpdateAttempts = 5
)

// RedisOptions RedisChannel settings
type RedisOptions struct {
	KeyPrefix    string        // document hashes live at <prefix><path>
	StreamMaxLen int64         // approximate change-stream length, 0 = unbounded
	BlockTimeout time.Duration // XREAD block per poll
	RetryBackoff time.Duration // first wait after a failed read, doubled up to MaxBackoff
	MaxBackoff   time.Duration
}

// RedisChannel stores each document as a hash of JSON-encoded fields and
// announces every write on a per-document change stream.
type RedisChannel struct {
	client *redis.Client
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedisChannel creates a RedisChannel.
func NewRedisChannel(client *redis.Client, opts RedisOptions, logger *zap.Logger) *RedisChannel {
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.MaxBackoff < opts.RetryBackoff {
		opts.MaxBackoff = opts.RetryBackoff
	}
	return &RedisChannel{
		client: client,
		opts:   opts,
		logger: logger,
	}
}

func (c *RedisChannel) docKey(path string) string {
	return c.opts.KeyPrefix + path
}

func (c *RedisChannel) streamKey(path string) string {
	return c.opts.KeyPrefix + "changes:" + path
}

// WritePartial merges fields into the document and appends a change entry in
// the same transaction.
func (c *RedisChannel) WritePartial(ctx context.Context, path string, fields map[string]interface{}) error {
	hash, names, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if len(hash) == 0 {
		return nil
	}
	if _, err := c.client.TxPipelined(ctx, c.writeOps(ctx, path, hash, names)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Update reads the document and merges the fields fn returns in one
// optimistic transaction. fn runs again when the document changes in between,
// so it must not have side effects.
func (c *RedisChannel) Update(ctx context.Context, path string, fn UpdateFunc) error {
	key := c.docKey(path)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			values, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			fields, err := fn(snapshotOf(path, values))
			if err != nil {
				return err
			}
			hash, names, err := encodeFields(fields)
			if err != nil || len(hash) == 0 {
				return err
			}
			_, err = tx.TxPipelined(ctx, c.writeOps(ctx, path, hash, names))
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("failed to update %s: %w", path, redis.TxFailedErr)
}

func (c *RedisChannel) writeOps(ctx context.Context, path string, hash map[string]interface{}, names []string) func(redis.Pipeliner) error {
	return func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.docKey(path), hash)
		_, err := rediscommon.AddToStream(ctx, pipe, c.streamKey(path), c.opts.StreamMaxLen, map[string]interface{}{
			"fields": strings.Join(names, ","),
		})
		return err
	}
}

func encodeFields(fields map[string]interface{}) (map[string]interface{}, []string, error) {
	hash := make(map[string]interface{}, len(fields))
	names := make([]string, 0, len(fields))
	for name, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		hash[name] = string(data)
		names = append(names, name)
	}
	sort.Strings(names)
	return hash, names, nil
}

// Read returns the current snapshot of path.
func (c *RedisChannel) Read(ctx context.Context, path string) (Snapshot, error) {
	values, err := c.client.HGetAll(ctx, c.docKey(path)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return snapshotOf(path, values), nil
}

func snapshotOf(path string, values map[string]string) Snapshot {
	snap := Snapshot{Path: path}
	if len(values) == 0 {
		return snap
	}
	snap.Fields = make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		snap.Fields[k] = json.RawMessage(v)
	}
	return snap
}

// Subscribe starts a watcher goroutine for path.
func (c *RedisChannel) Subscribe(path string, h Handler) (Subscription, error) {
	if path == "" {
		return nil, fmt.Errorf("empty document path")
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		cancel:  cancel,
		done:    make(chan struct{}),
		handler: h,
	}
	go c.watch(ctx, path, sub)
	return sub, nil
}

// watch follows path until the subscription is closed. A failed read is
// reported once per outage, then the watcher backs off and resyncs from the
// current document.
func (c *RedisChannel) watch(ctx context.Context, path string, sub *redisSubscription) {
	defer close(sub.done)

	backoff := c.opts.RetryBackoff
	for {
		err := c.follow(ctx, path, sub, func() { backoff = c.opts.RetryBackoff })
		if ctx.Err() != nil {
			return
		}
		if !sub.failing {
			sub.failing = true
			c.logger.Warn("Subscription failed",
				zap.String("path", path),
				zap.Error(err),
			)
			sub.report(&SubscriptionError{Path: path, Err: err})
		}
		c.logger.Debug("Retrying subscription",
			zap.String("path", path),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

// follow delivers the current document, then one snapshot per batch of
// changes. It returns the first read error, or ctx.Err() once closed.
func (c *RedisChannel) follow(ctx context.Context, path string, sub *redisSubscription, recovered func()) error {
	stream := c.streamKey(path)
	lastID, err := rediscommon.LastStreamID(ctx, c.client, stream)
	if err != nil {
		return err
	}
	if err := c.deliverCurrent(ctx, path, sub); err != nil {
		return err
	}
	if sub.failing {
		sub.failing = false
		c.logger.Info("Subscription recovered", zap.String("path", path))
	}
	recovered()

	for {
		msgs, err := rediscommon.ReadStreamAfter(ctx, c.client, stream, lastID, changeBatch, c.opts.BlockTimeout)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			continue
		}
		lastID = msgs[len(msgs)-1].ID
		// a batch of changes collapses into one snapshot of the latest state
		if err := c.deliverCurrent(ctx, path, sub); err != nil {
			return err
		}
	}
}

func (c *RedisChannel) deliverCurrent(ctx context.Context, path string, sub *redisSubscription) error {
	snap, err := c.Read(ctx, path)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if !sub.deliver(snap) {
		return context.Canceled
	}
	return nil
}

type redisSubscription struct {
	mu      sync.Mutex
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	handler Handler

	failing bool // owned by the watcher goroutine
}

func (s *redisSubscription) deliver(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.handler.OnSnapshot(snap)
	return true
}

func (s *redisSubscription) report(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler.OnError(err)
}

// Close stops the watcher. A handler call in progress finishes first.
func (s *redisSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// Done is closed once the watcher goroutine has exited.
func (s *redisSubscription) Done() <-chan struct{} {
	return s.done
}
