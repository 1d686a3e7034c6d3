package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/gateway"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
	"trade-executor-go/position"
)

// IDAllocator 订单 id 铸币面，见 ident 包的两种实现。
type IDAllocator interface {
	NextID(strategyID int) (int32, error)
}

// Placer 把一次委托从铸 id、提交、确认一路带到结清，是仓位管理
// 与订单状态机之间的粘合层。整个过程对调用方阻塞。
type Placer struct {
	API        order.PrivateAPI
	Prices     gateway.PriceSource
	Alloc      IDAllocator
	Orders     *order.Collection
	StrategyID int
	Tolerance  float64
	// 演习模式：订单只校验不成交
	ValidateOnly bool

	// 未见挂单时的重提次数与间隔
	MaxPostAttempts int
	RepostDelay     time.Duration
	// 成交轮询间隔
	PollInterval time.Duration

	Log   *zap.Logger
	sleep func(time.Duration)
}

func (p *Placer) defaults() {
	if p.MaxPostAttempts == 0 {
		p.MaxPostAttempts = 5
	}
	if p.RepostDelay == 0 {
		p.RepostDelay = time.Second
	}
	if p.PollInterval == 0 {
		p.PollInterval = 2 * time.Second
	}
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.sleep == nil {
		p.sleep = time.Sleep
	}
}

// Place 提交一笔订单并阻塞到结清，返回成交概要。
func (p *Placer) Place(ctx context.Context, input order.Input) (position.Placement, error) {
	p.defaults()
	if p.ValidateOnly {
		input.Validate = true
	}

	id, err := p.Alloc.NextID(p.StrategyID)
	if err != nil {
		return position.Placement{}, fmt.Errorf("mint order id: %w", err)
	}
	o := order.New(id, p.API, p.Prices, input, p.Log)
	if p.Tolerance > 0 {
		o.Tolerance = p.Tolerance
	}
	if err := p.Orders.Add(o); err != nil {
		return position.Placement{}, err
	}

	if err := p.submit(ctx, o); err != nil {
		return position.Placement{}, err
	}
	if err := p.settle(ctx, o); err != nil {
		return position.Placement{}, err
	}

	placement := position.Placement{OrderID: o.ID, Price: o.PriceExec, VolExec: o.VolExec}
	if o.Input.Validate {
		metrics.OrdersTotal.WithLabelValues(string(order.StatusClosed)).Inc()
		return placement, nil
	}

	// 结清后回查全部成交，拿到量加权均价而非最近一笔
	res, err := o.ResultExec(ctx)
	if err != nil {
		return placement, err
	}
	if res.VolExec > 0 {
		placement.Price = res.Price
		placement.VolExec = res.VolExec
	}
	metrics.OrdersTotal.WithLabelValues(string(order.StatusClosed)).Inc()
	return placement, nil
}

// submit 提交并确认订单真的挂上了。交易所两个列表都不见该单时
// 原样重提，次数有界。
func (p *Placer) submit(ctx context.Context, o *order.Order) error {
	for attempt := 1; ; attempt++ {
		if err := o.Execute(ctx); err != nil {
			return err
		}
		if err := p.Orders.Reindex(o.ID); err != nil {
			return err
		}
		posted, err := o.Verify(ctx)
		if err != nil {
			return err
		}
		if posted {
			return nil
		}
		if attempt >= p.MaxPostAttempts {
			return &order.MissingOrderError{ID: o.ID}
		}
		p.Log.Warn("order not visible on exchange, resubmitting",
			zap.Int32("orderID", o.ID),
			zap.Int("attempt", attempt))
		p.sleep(p.RepostDelay)
		// 交易所不认识这笔提交，视同从未发出
		o.Status = order.StatusPending
	}
}

// settle 轮询成交量直到订单结清。
func (p *Placer) settle(ctx context.Context, o *order.Order) error {
	for o.Status == order.StatusOpen {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.CheckVolExec(ctx); err != nil {
			var apiErr *gateway.APIError
			if errors.As(err, &apiErr) && apiErr.Benign() {
				p.Log.Warn("fill poll deferred", zap.Int32("orderID", o.ID), zap.Error(err))
				p.sleep(p.PollInterval)
				continue
			}
			return err
		}
		if err := p.Orders.Reindex(o.ID); err != nil {
			return err
		}
		if o.Status == order.StatusOpen {
			p.sleep(p.PollInterval)
		}
	}
	return nil
}
