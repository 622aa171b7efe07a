package store

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Message is one pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

// Subscription is the part of redis.PubSub the service relies on.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// memorySubscription is a Subscription served by PubSubHub.
type memorySubscription struct {
	channels map[string]bool
	msgChan  chan *Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemorySubscription(channels []string) *memorySubscription {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}

	return &memorySubscription{
		channels: channelMap,
		msgChan:  make(chan *Message, 100),
		closeCh:  make(chan struct{}),
	}
}

func (m *memorySubscription) Channel() <-chan *Message {
	return m.msgChan
}

func (m *memorySubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.closeCh)
		close(m.msgChan)
	}
	return nil
}

// deliver sends without blocking; a full buffer drops the message.
func (m *memorySubscription) deliver(msg *Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || !m.channels[msg.Channel] {
		return
	}

	select {
	case m.msgChan <- msg:
	default:
	}
}

// PubSubHub fans messages out to in-memory subscriptions.
type PubSubHub struct {
	subscribers map[string][]*memorySubscription
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{
		subscribers: make(map[string][]*memorySubscription),
	}
}

func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) Subscription {
	sub := newMemorySubscription(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}
		h.remove(sub, channels)
	}()

	return sub
}

func (h *PubSubHub) remove(sub *memorySubscription, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, channel := range channels {
		subs := h.subscribers[channel]
		for i, s := range subs {
			if s == sub {
				h.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[channel]) == 0 {
			delete(h.subscribers, channel)
		}
	}
}

// Publish sends payload to every subscriber of channel
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subs := make([]*memorySubscription, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	msg := &Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (h *PubSubHub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

// redisSubscription adapts redis.PubSub messages to Message.
type redisSubscription struct {
	ps   *redis.PubSub
	out  chan *Message
	once sync.Once
	done chan struct{}
}

func newRedisSubscription(ctx context.Context, ps *redis.PubSub) *redisSubscription {
	s := &redisSubscription{
		ps:   ps,
		out:  make(chan *Message, 100),
		done: make(chan struct{}),
	}
	go s.pump(ctx)
	return s
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
			}
		}
	}
}

func (s *redisSubscription) Channel() <-chan *Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
