package transport

import (
	"context"
	"sync"
)

// MemoryChannel 进程内通道，测试与单进程部署使用。
type MemoryChannel struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewMemoryChannel 构造给定缓冲深度的进程内通道。
func NewMemoryChannel(buffer int) *MemoryChannel {
	return &MemoryChannel{ch: make(chan Message, buffer)}
}

// Send 投递一条消息。通道已关闭时返回 ErrClosed。
func (m *MemoryChannel) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()
	select {
	case m.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv 取下一条消息。关闭后先排空缓冲，再返回 ErrClosed。
func (m *MemoryChannel) Recv(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close 关闭通道。重复关闭无害。
func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
