package bus

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/common/logger"
)

// MemoryEventBus delivers events inside one process. Each subscription owns a
// queue drained by a single goroutine: handlers never block Publish, and one
// subscriber sees events in publish order.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
	logger *logger.Logger
}

type delivery struct {
	ctx     context.Context
	subject string
	event   *Event
}

type memorySubscription struct {
	bus     *MemoryEventBus
	pattern []string
	handler Handler

	mu    sync.Mutex
	queue []delivery

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subs:   make(map[*memorySubscription]struct{}),
		logger: log.Component("memory-event-bus"),
	}
}

// Publish queues event for every subscription whose pattern matches subject.
// Handlers run with a context detached from ctx's cancellation.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	tokens := strings.Split(subject, ".")
	d := delivery{ctx: context.WithoutCancel(ctx), subject: subject, event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	queued := 0
	for sub := range b.subs {
		if subjectMatches(sub.pattern, tokens) {
			sub.enqueue(d)
			queued++
		}
	}
	b.logger.WithEvent(event.Type, event.ID).Debug("Published event",
		zap.String("subject", subject),
		zap.Int("subscribers", queued))
	return nil
}

func (b *MemoryEventBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		bus:     b,
		pattern: strings.Split(subject, "."),
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.subs[sub] = struct{}{}
	go sub.run()
	return sub, nil
}

// Close stops every subscription. Events still queued are dropped.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*memorySubscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
	b.logger.Info("Memory event bus closed", zap.Int("subscriptions", len(subs)))
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySubscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *memorySubscription) enqueue(d delivery) {
	s.mu.Lock()
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		if !s.drain() {
			return
		}
	}
}

// drain handles queued deliveries until the queue is empty. It reports false
// once the subscription is stopped.
func (s *memorySubscription) drain() bool {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return true
		}

		for _, d := range batch {
			select {
			case <-s.done:
				return false
			default:
			}
			if err := s.handler(d.ctx, d.event); err != nil {
				s.bus.logger.WithEvent(d.event.Type, d.event.ID).Error("Event handler failed",
					zap.String("subject", d.subject),
					zap.Error(err))
			}
		}
	}
}

// subjectMatches applies NATS wildcard rules token by token.
func subjectMatches(pattern, tokens []string) bool {
	for i, p := range pattern {
		if p == ">" {
			return len(tokens) > i
		}
		if i >= len(tokens) {
			return false
		}
		if p != "*" && p != tokens[i] {
			return false
		}
	}
	return len(pattern) == len(tokens)
}
