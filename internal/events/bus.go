// Package events carries permission-denial notifications from data-access code
// to whichever listeners are mounted (toast forwarders, audit logging).
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// TopicPermissionError is the topic every store denial is emitted on.
const TopicPermissionError = "permission-error"

// Listener receives an emitted error.
type Listener func(err *models.PermissionError)

// ListenerID identifies a registration so it can be removed with Off.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Bus is a topic-keyed publish/subscribe registry. Emission is synchronous and
// unbuffered: an event with no listeners is dropped.
type Bus struct {
	mu     sync.Mutex
	nextID ListenerID
	topics map[string][]registration
	logger *zap.Logger
}

// NewBus creates an empty bus. A nil logger disables panic logging.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]registration),
		logger: logger,
	}
}

// On registers fn for topic. Listeners run in registration order.
func (b *Bus) On(topic string, fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], registration{id: id, fn: fn})
	return id
}

// Off removes a registration. Unknown ids are ignored.
func (b *Bus) Off(topic string, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.topics[topic]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		// Copy instead of shifting in place so snapshots held by an
		// in-flight Emit keep their view.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.topics, topic)
		} else {
			b.topics[topic] = next
		}
		return
	}
}

// Emit invokes every listener registered for topic at the moment of the call.
// A panicking listener does not prevent the rest from running.
func (b *Bus) Emit(topic string, err *models.PermissionError) {
	b.mu.Lock()
	snapshot := b.topics[topic]
	b.mu.Unlock()

	for _, r := range snapshot {
		b.invoke(topic, r, err)
	}
}

// Listeners returns how many listeners are registered for topic.
func (b *Bus) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Bus) invoke(topic string, r registration, err *models.PermissionError) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event listener panicked",
				zap.String("topic", topic),
				zap.Uint64("listener", uint64(r.id)),
				zap.Any("panic", rec),
			)
		}
	}()
	r.fn(err)
}
