package alert

import (
	"fmt"

	"go.uber.org/zap"
)

// ZapChannel 把告警写入结构化日志流。
type ZapChannel struct {
	log  *zap.Logger
	name string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, log *zap.Logger) *ZapChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapChannel{log: log, name: name}
}

// Send 发送告警到日志
func (c *ZapChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields,
		zap.String("level", alert.Level),
		zap.Time("at", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case "ERROR", "CRITICAL":
		c.log.Error(alert.Message, fields...)
	case "WARNING":
		c.log.Warn(alert.Message, fields...)
	default:
		c.log.Info(alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *ZapChannel) Name() string { return c.name }

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string { return c.name }

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert { return c.alerts }

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) { c.shouldErr = shouldErr }

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int { return len(c.alerts) }
