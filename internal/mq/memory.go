package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Memory is an in-process backend. Published messages are buffered per
// channel until a subscriber takes them.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed bool
}

const memoryQueueSize = 1024

func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan Message)}
}

func (m *Memory) queue(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory backend closed")
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Message, memoryQueueSize)
		m.queues[name] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	msg := Message{ID: newMessageID(), Data: data, Attributes: attrs}
	select {
	case q <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages until ctx is done. A message whose handler
// fails is put back on the queue.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

// Drain returns and removes every buffered message of channel.
func (m *Memory) Drain(channel string) []Message {
	q, err := m.queue(channel)
	if err != nil {
		return nil
	}
	var out []Message
	for {
		select {
		case msg := <-q:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
