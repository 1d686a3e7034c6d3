package transport

import (
	"context"
	"errors"
)

// Message 一条策略信号消息。载荷即下单参数，方向由信号决定。
type Message struct {
	Signal    int     `json:"signal"` // -1 / 0 / 1
	Pair      string  `json:"pair"`
	OrderType string  `json:"ordertype"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price,omitempty"`
	Leverage  int     `json:"leverage,omitempty"`
}

// ErrClosed 通道已关闭且无剩余消息。
var ErrClosed = errors.New("transport: channel closed")

// Channel 有序信号通道。Recv 阻塞到下一条消息、上下文取消或通道
// 关闭；实现必须保持发送序。
type Channel interface {
	Recv(ctx context.Context) (Message, error)
	Close() error
}
