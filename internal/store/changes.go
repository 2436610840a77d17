package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changeChannelPrefix = "store:changes:"

// Change is the notice published after every committed write.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // set, update, delete
	At         time.Time `json:"at"`
}

// ChangeFeed distributes change notices between processes over Redis pub/sub
// and fans them out to local watchers. One Redis subscription serves every
// live subscription in the process.
type ChangeFeed struct {
	client *redis.Client
	logger *zap.Logger

	mu       sync.RWMutex
	next     uint64
	watchers map[string]map[uint64]func(Change)
}

// NewChangeFeed creates a feed; Run must be started for remote notices to arrive.
func NewChangeFeed(client *redis.Client, logger *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		client:   client,
		logger:   logger,
		watchers: make(map[string]map[uint64]func(Change)),
	}
}

// Publish announces a change to every process, this one included.
func (f *ChangeFeed) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, changeChannelPrefix+c.Collection, data).Err()
}

// Watch registers fn for changes to collection and returns its cancel func.
func (f *ChangeFeed) Watch(collection string, fn func(Change)) func() {
	f.mu.Lock()
	f.next++
	id := f.next
	if f.watchers[collection] == nil {
		f.watchers[collection] = make(map[uint64]func(Change))
	}
	f.watchers[collection][id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.watchers[collection], id)
		if len(f.watchers[collection]) == 0 {
			delete(f.watchers, collection)
		}
		f.mu.Unlock()
	}
}

func (f *ChangeFeed) fanOut(c Change) {
	f.mu.RLock()
	fns := make([]func(Change), 0, len(f.watchers[c.Collection]))
	for _, fn := range f.watchers[c.Collection] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Run holds the Redis pattern subscription until ctx is cancelled,
// reconnecting with exponential backoff.
func (f *ChangeFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := f.receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("change feed subscriber error", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *ChangeFeed) receive(ctx context.Context) error {
	pubsub := f.client.PSubscribe(ctx, changeChannelPrefix+"*")
	defer pubsub.Close()

	f.logger.Info("change feed subscribed", zap.String("pattern", changeChannelPrefix+"*"))

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var c Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			f.logger.Warn("dropping malformed change notice", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if c.Collection == "" {
			c.Collection = strings.TrimPrefix(msg.Channel, changeChannelPrefix)
		}
		f.fanOut(c)
	}
}
