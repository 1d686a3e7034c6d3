package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/infrastructure/alert"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
	"trade-executor-go/posttrade"
	"trade-executor-go/transport"
)

// EventLogger 带字段 schema 校验的结构化事件出口。
type EventLogger interface {
	LogEvent(event string, fields map[string]interface{})
}

// Engine 单写者执行进程：逐条消费信号、整体阻塞地完成仓位迁移，
// 消息间隙对订单集合做监督巡检。所有订单与仓位变更只发生在这个
// 循环里。
type Engine struct {
	Channel  transport.Channel
	Orders   *order.Collection
	Position *position.Manager
	Log      *zap.Logger

	// 可选协作方：结构化事件、执行回报日志与告警
	Events  EventLogger
	Journal *posttrade.Journal
	Alerts  *alert.Manager

	// 持久化路径：每次变更与退出时落盘
	SnapshotPath string
	StatePath    string

	// 硬停止：非零时最多处理这么多次循环
	MaxIterations int
	// Recv 等待上限，超时转入监督巡检
	IdleTimeout time.Duration
}

func (e *Engine) defaults() {
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.IdleTimeout == 0 {
		e.IdleTimeout = 2 * time.Second
	}
}

// Restore 启动时恢复仓位状态，并立即对快照中仍 Open 的订单对账。
// 在途状态不允许悄悄丢失。
func (e *Engine) Restore(ctx context.Context) error {
	e.defaults()
	if e.StatePath != "" {
		s, err := position.LoadState(e.StatePath)
		if err != nil {
			return err
		}
		if err := e.Position.Restore(s); err != nil {
			return err
		}
	}
	if err := e.Orders.ReverifyOpen(ctx); err != nil {
		return err
	}
	e.persist()
	return nil
}

// Run 运行执行循环直到通道关闭、上下文取消或迭代数用尽。
// 退出前总是落盘。
func (e *Engine) Run(ctx context.Context) error {
	e.defaults()
	defer e.persist()

	for i := 0; e.MaxIterations == 0 || i < e.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := e.recv(ctx)
		switch {
		case errors.Is(err, transport.ErrClosed):
			e.Log.Info("signal channel closed, stopping")
			return nil
		case errors.Is(err, errIdle):
			e.supervise(ctx)
			continue
		case err != nil:
			return err
		}
		if err := e.handle(ctx, msg); err != nil {
			return err
		}
	}
	e.Log.Info("iteration budget exhausted, stopping",
		zap.Int("maxIterations", e.MaxIterations))
	return nil
}

var errIdle = errors.New("engine: no signal within idle window")

// recv 在空闲窗口内等待下一条信号。
func (e *Engine) recv(ctx context.Context) (transport.Message, error) {
	recvCtx, cancel := context.WithTimeout(ctx, e.IdleTimeout)
	defer cancel()
	msg, err := e.Channel.Recv(recvCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return transport.Message{}, errIdle
	}
	return msg, err
}

// handle 执行一次信号迁移并落盘。
func (e *Engine) handle(ctx context.Context, msg transport.Message) error {
	e.event("signal", map[string]interface{}{
		"signal": msg.Signal,
		"pair":   msg.Pair,
		"volume": msg.Volume,
	})

	records, err := e.Position.Transition(ctx, position.Signal(msg.Signal), position.Request{
		Pair:      msg.Pair,
		OrderType: msg.OrderType,
		Volume:    msg.Volume,
		Price:     msg.Price,
		Leverage:  msg.Leverage,
	})
	e.persist()
	for _, rec := range records {
		e.event("position_transition", map[string]interface{}{
			"pair":      rec.Pair,
			"position":  int(rec.Position),
			"held":      rec.Held,
			"price":     rec.Price,
			"orderID":   rec.OrderID,
			"side":      rec.Side,
			"volume":    rec.Volume,
			"synthetic": rec.Synthetic,
		})
		if e.Journal != nil {
			if jerr := e.Journal.Record(rec); jerr != nil {
				e.Log.Warn("execution journal write failed", zap.Error(jerr))
			}
		}
	}
	if err != nil {
		e.alert(err)
	}
	return err
}

// event 发出一条结构化事件。配了事件出口就走 schema 校验，
// 否则退回普通日志。
func (e *Engine) event(name string, fields map[string]interface{}) {
	if e.Events != nil {
		e.Events.LogEvent(name, fields)
		return
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	e.Log.Info(name, zf...)
}

// alert 把执行错误送往告警通道；一致性破坏升为 CRITICAL。
func (e *Engine) alert(err error) {
	if e.Alerts == nil {
		return
	}
	var consErr *order.ConsistencyError
	if errors.As(err, &consErr) {
		_ = e.Alerts.SendCritical("order state inconsistent", map[string]interface{}{
			"orderID": consErr.ID,
			"detail":  consErr.Msg,
		})
		return
	}
	_ = e.Alerts.SendError("signal execution failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// supervise 消息间隙的巡检：按优先序取一个订单，开放单补对账，
// 终态单归档出集合。
func (e *Engine) supervise(ctx context.Context) {
	id, ok := e.Orders.First()
	if !ok {
		return
	}
	o, ok := e.Orders.Get(id)
	if !ok {
		return
	}
	switch {
	case o.Status == order.StatusOpen:
		if err := o.CheckVolExec(ctx); err != nil {
			e.Log.Warn("supervisory fill poll failed",
				zap.Int32("orderID", id), zap.Error(err))
			return
		}
		if err := e.Orders.Reindex(id); err != nil {
			e.Log.Error("order index out of step",
				zap.Int32("orderID", id), zap.Error(err))
			return
		}
		e.persist()

	case o.Status.Terminal():
		if _, err := e.Orders.Remove(id); err != nil {
			e.Log.Error("archive failed", zap.Int32("orderID", id), zap.Error(err))
			return
		}
		metrics.OrdersTotal.WithLabelValues(string(o.Status)).Inc()
		e.event("order_update", map[string]interface{}{
			"orderID":   id,
			"status":    string(o.Status),
			"volExec":   o.VolExec,
			"priceExec": o.PriceExec,
		})
		e.persist()
	}
}

// persist 把订单快照与仓位状态落盘。落盘失败只告警不中断：
// 下一次变更会重试。
func (e *Engine) persist() {
	if e.SnapshotPath != "" {
		if err := e.Orders.Save(e.SnapshotPath); err != nil {
			e.Log.Error("order snapshot save failed", zap.Error(err))
		}
	}
	if e.StatePath != "" {
		if err := position.SaveState(e.StatePath, e.Position.State()); err != nil {
			e.Log.Error("position state save failed", zap.Error(err))
		}
	}
}
