package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSChannel 经 websocket 连接策略端的信号通道，断线自动重连。
type WSChannel struct {
	URL          string
	Dialer       *websocket.Dialer
	MaxRetries   int
	RetryBackoff time.Duration
	Log          *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// DialChannel 构造指向给定 URL 的 websocket 信号通道。
// 连接延迟到第一次 Recv 才建立。
func DialChannel(url string, log *zap.Logger) *WSChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSChannel{
		URL:          url,
		Dialer:       websocket.DefaultDialer,
		MaxRetries:   5,
		RetryBackoff: 3 * time.Second,
		Log:          log,
	}
}

// Recv 读取下一条信号消息。连接断开时在退避内重连，重连耗尽
// 或通道关闭时返回错误。
func (c *WSChannel) Recv(ctx context.Context) (Message, error) {
	for {
		conn, err := c.ensureConn(ctx)
		if err != nil {
			return Message{}, err
		}
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.conn = nil
			c.mu.Unlock()
			_ = conn.Close()
			if closed {
				return Message{}, ErrClosed
			}
			c.Log.Warn("signal channel read failed, reconnecting", zap.Error(err))
			continue
		}
		return msg, nil
	}
}

// ensureConn 返回现有连接或在退避内重拨。
func (c *WSChannel) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.RetryBackoff
			c.Log.Warn("signal channel dial failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		conn, _, err := c.Dialer.DialContext(ctx, c.URL, nil)
		if err != nil {
			lastErr = err
			continue
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, ErrClosed
		}
		c.conn = conn
		c.mu.Unlock()
		c.Log.Info("signal channel connected", zap.String("url", c.URL))
		return conn, nil
	}
	return nil, lastErr
}

// Close 关闭通道与底层连接。
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
