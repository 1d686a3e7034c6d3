package transport

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server 接受策略端 websocket 连接并把解码后的消息并入内部通道。
// 自身实现 Channel，执行引擎直接从它消费。
type Server struct {
	upgrader websocket.Upgrader
	inner    *MemoryChannel
	log      *zap.Logger
}

// NewServer 构造给定缓冲深度的信号服务端。
func NewServer(buffer int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		upgrader: websocket.Upgrader{},
		inner:    NewMemoryChannel(buffer),
		log:      log,
	}
}

// ServeHTTP 升级连接并进入读取循环，每个策略连接一个循环。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("signal upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.log.Info("strategy connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			s.log.Info("strategy disconnected", zap.Error(err))
			return
		}
		if err := s.inner.Send(r.Context(), msg); err != nil {
			s.log.Warn("signal dropped", zap.Error(err))
			return
		}
	}
}

// Recv 取下一条已入队的信号消息。
func (s *Server) Recv(ctx context.Context) (Message, error) {
	return s.inner.Recv(ctx)
}

// Close 关闭内部通道；在读循环中的连接随发送失败退出。
func (s *Server) Close() error {
	return s.inner.Close()
}
