package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/gateway"
)

// PrivateAPI 订单所需的最小交易所访问面。
type PrivateAPI interface {
	QueryPrivate(ctx context.Context, method string, params map[string]string) (json.RawMessage, error)
}

// DefaultTolerance 允许未成交而仍视为结清的剩余量比例。
const DefaultTolerance = 0.001

// Order 单个订单的状态机：提交、撤销、替换、成交量对账。
// 方法不做内部加锁，约定由单写者的执行进程串行调用。
type Order struct {
	ID        int32
	Status    Status
	Input     Input
	Volume    float64 // 初始请求量，提交后不变
	VolExec   float64 // 累计成交量
	PriceExec float64 // 量加权成交均价
	Tolerance float64
	StartTime int64 // unix 秒
	LastPoll  int64 // 上次成交查询的下界
	History   []json.RawMessage

	api    PrivateAPI
	prices gateway.PriceSource
	log    *zap.Logger
	now    func() time.Time
}

// New 构造一个待提交订单。input 在此归一化（杠杆 1 → 无杠杆）。
func New(id int32, api PrivateAPI, prices gateway.PriceSource, input Input, log *zap.Logger) *Order {
	input.Normalize()
	if log == nil {
		log = zap.NewNop()
	}
	o := &Order{
		ID:        id,
		Status:    StatusPending,
		Input:     input,
		Volume:    input.Volume,
		Tolerance: DefaultTolerance,
		api:       api,
		prices:    prices,
		log:       log.With(zap.Int32("orderID", id)),
		now:       time.Now,
	}
	o.StartTime = o.now().Unix()
	return o
}

// Bind 在快照恢复后重新注入外部依赖。
func (o *Order) Bind(api PrivateAPI, prices gateway.PriceSource, log *zap.Logger) {
	o.api = api
	o.prices = prices
	if log == nil {
		log = zap.NewNop()
	}
	o.log = log.With(zap.Int32("orderID", o.ID))
	if o.now == nil {
		o.now = time.Now
	}
}

// Execute 提交订单。仅在 Pending 或 Canceled 状态合法，其余状态
// 属调用方缺陷。validate 订单立即结清，市价单取参考收盘价。
func (o *Order) Execute(ctx context.Context) error {
	if o.Status != StatusPending && o.Status != StatusCanceled {
		return &StatusError{ID: o.ID, Status: o.Status, Op: "execute"}
	}
	if err := o.Input.Check(); err != nil {
		return fmt.Errorf("order %d: %w", o.ID, err)
	}
	if o.Status == StatusCanceled {
		// 撤销后的重试先回到待提交态
		if err := o.transition(StatusPending); err != nil {
			return err
		}
	}

	o.LastPoll = o.now().Unix()
	params := o.Input.Params()
	params["userref"] = strconv.FormatInt(int64(o.ID), 10)
	if _, err := o.request(ctx, "AddOrder", params); err != nil {
		return err
	}

	if o.Input.Validate {
		if err := o.transition(StatusClosed); err != nil {
			return err
		}
		if o.Input.OrderType == "market" {
			price, err := o.prices.Close(o.Input.Pair)
			if err != nil {
				return fmt.Errorf("order %d: resolve market price: %w", o.ID, err)
			}
			o.PriceExec = price
		} else {
			o.PriceExec = o.Input.Price
		}
		o.log.Debug("validate-only order settled", zap.Float64("price", o.PriceExec))
		return nil
	}
	return o.transition(StatusOpen)
}

// Verify 确认订单确实被交易所接受：开放或关闭列表之一必须出现。
// validate 订单没有真实回报，视为已确认。
func (o *Order) Verify(ctx context.Context) (bool, error) {
	if o.Input.Validate {
		return true, nil
	}
	open, err := o.getOpen(ctx)
	if err != nil {
		return false, err
	}
	if len(open.Open) > 0 {
		return true, nil
	}
	closed, err := o.getClosed(ctx, o.StartTime)
	if err != nil {
		return false, err
	}
	return len(closed.Closed) > 0, nil
}

// Cancel 撤销订单，仅在 Open 状态合法。交易所报告零撤销视为
// 与成交竞态，以 OrderError 交回调用方处理。
func (o *Order) Cancel(ctx context.Context) error {
	if o.Status != StatusOpen {
		return &StatusError{ID: o.ID, Status: o.Status, Op: "cancel"}
	}
	raw, err := o.request(ctx, "CancelOrder", map[string]string{
		"txid": strconv.FormatInt(int64(o.ID), 10),
	})
	if err != nil {
		return err
	}
	var res struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("order %d: decode CancelOrder: %w", o.ID, err)
	}
	if res.Count == 0 {
		return &OrderError{ID: o.ID, Msg: "no order canceled"}
	}
	return o.transition(StatusCanceled)
}

// CheckVolExec 对账累计成交量并推进状态：全部成交或容差内 → Closed，
// 超量成交 → 一致性错误（状态不变），否则保持 Open 并把剩余量写回
// 下单参数，供后续替换只补挂未成交部分。
func (o *Order) CheckVolExec(ctx context.Context) error {
	if o.Status == StatusPending {
		return &StatusError{ID: o.ID, Status: o.Status, Op: "check_vol_exec"}
	}
	if err := o.updateVolExec(ctx); err != nil {
		return err
	}

	switch {
	case o.VolExec == o.Volume:
		if err := o.transition(StatusClosed); err != nil {
			return err
		}
		o.log.Debug("order closed", zap.Float64("volExec", o.VolExec))

	case o.VolExec > o.Volume:
		return &ConsistencyError{ID: o.ID, Msg: fmt.Sprintf(
			"executed volume %g exceeds requested volume %g", o.VolExec, o.Volume)}

	// 未成交余量不超过容差份额即结清。按量比较而不是按比例比较：
	// 1 - vol_exec/volume 的除法舍入会把恰在边界上的订单推出容差。
	case o.Volume-o.VolExec <= o.Tolerance*o.Volume:
		if err := o.transition(StatusClosed); err != nil {
			return err
		}
		o.log.Warn("unexecuted volume within tolerance, order settled",
			zap.Float64("unexecuted", o.Volume-o.VolExec),
			zap.Float64("tolerance", o.Tolerance))

	default:
		o.Input.Volume = o.Volume - o.VolExec
		o.log.Debug("order still open",
			zap.Float64("volExec", o.VolExec),
			zap.Float64("residual", o.Input.Volume))
	}
	return nil
}

// transition 经转换表推进状态。表外的推进说明内部状态已经乱了，
// 按一致性错误上报，状态保持不变。
func (o *Order) transition(to Status) error {
	if !o.Status.CanTransition(to) {
		return &ConsistencyError{ID: o.ID, Msg: fmt.Sprintf(
			"illegal status transition %s -> %s", o.Status, to)}
	}
	o.Status = to
	return nil
}

// updateVolExec 查询自上次轮询以来的成交并累计。新的轮询下界在
// 发出查询之前取定，避免成交落在两个窗口的缝隙中。
func (o *Order) updateVolExec(ctx context.Context) error {
	since := o.LastPoll
	next := o.now().Unix()
	res, err := o.getClosed(ctx, since)
	if err != nil {
		return err
	}
	o.LastPoll = next

	cost := o.PriceExec * o.VolExec
	for _, e := range res.Closed {
		v := e.VolExec.Value()
		o.VolExec += v
		cost += e.Price.Value() * v
	}
	if o.VolExec > 0 {
		o.PriceExec = cost / o.VolExec
	}
	return nil
}

// ReplacePrice 指定替换订单的新价格。
type ReplacePrice struct {
	Kind  string // market / best / limit
	Value float64
}

func MarketPrice() ReplacePrice { return ReplacePrice{Kind: "market"} }

func BestPrice() ReplacePrice { return ReplacePrice{Kind: "best"} }

func LimitPrice(v float64) ReplacePrice { return ReplacePrice{Kind: "limit", Value: v} }

// Replace 撤销当前订单、对账成交量，再以新价格重新下剩余量。
// 替换订单使用调用方新铸的 id（订单 id 绝不复用），原订单保持终态。
// 撤单竞态中余量已全部成交时返回 (nil, nil)。
func (o *Order) Replace(ctx context.Context, newID int32, price ReplacePrice) (*Order, error) {
	if o.Status == StatusPending || o.Status == StatusClosed {
		return nil, &StatusError{ID: o.ID, Status: o.Status, Op: "replace"}
	}
	if o.Status == StatusOpen {
		if err := o.Cancel(ctx); err != nil {
			return nil, err
		}
	}
	if err := o.CheckVolExec(ctx); err != nil {
		return nil, err
	}
	if o.Status == StatusClosed {
		return nil, nil
	}

	input := o.Input
	switch price.Kind {
	case "market":
		input.OrderType = "market"
		input.Price = 0
	case "best":
		// 对手方最优价：买单取最优买价，卖单取最优卖价
		var best float64
		var err error
		if input.Side == "buy" {
			best, err = o.prices.Bid(input.Pair)
		} else {
			best, err = o.prices.Ask(input.Pair)
		}
		if err != nil {
			return nil, fmt.Errorf("order %d: resolve best price: %w", o.ID, err)
		}
		input.Price = best
	case "limit":
		input.Price = price.Value
	default:
		return nil, fmt.Errorf("order %d: unknown replace price kind %q", o.ID, price.Kind)
	}

	repl := New(newID, o.api, o.prices, input, o.log)
	repl.Tolerance = o.Tolerance
	if err := repl.Execute(ctx); err != nil {
		return repl, err
	}
	return repl, nil
}

// ResultExec 汇总自订单起始以来的全部成交：量加权均价、费用、
// 按计价/基础货币拆分的费用。仅在 Closed 状态合法。
func (o *Order) ResultExec(ctx context.Context) (Result, error) {
	if o.Status != StatusClosed {
		return Result{}, &StatusError{ID: o.ID, Status: o.Status, Op: "result_exec"}
	}
	res, err := o.getClosed(ctx, o.StartTime)
	if err != nil {
		return Result{}, err
	}
	agg, err := aggregateFills(o.ID, res.Closed)
	if err != nil {
		return Result{}, err
	}
	agg.StartTime = o.StartTime
	return agg, nil
}

func (o *Order) getOpen(ctx context.Context) (openOrdersResult, error) {
	raw, err := o.request(ctx, "OpenOrders", map[string]string{
		"userref": strconv.FormatInt(int64(o.ID), 10),
	})
	if err != nil {
		return openOrdersResult{}, err
	}
	var res openOrdersResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return openOrdersResult{}, fmt.Errorf("order %d: decode OpenOrders: %w", o.ID, err)
	}
	return res, nil
}

func (o *Order) getClosed(ctx context.Context, start int64) (closedOrdersResult, error) {
	raw, err := o.request(ctx, "ClosedOrders", map[string]string{
		"userref": strconv.FormatInt(int64(o.ID), 10),
		"start":   strconv.FormatInt(start, 10),
	})
	if err != nil {
		return closedOrdersResult{}, err
	}
	var res closedOrdersResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return closedOrdersResult{}, fmt.Errorf("order %d: decode ClosedOrders: %w", o.ID, err)
	}
	return res, nil
}

// request 发出私有请求并把原始应答追加到订单历史（只增不改）。
func (o *Order) request(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	raw, err := o.api.QueryPrivate(ctx, method, params)
	if raw != nil {
		o.History = append(o.History, raw)
	}
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Response != nil {
			o.History = append(o.History, apiErr.Response)
		}
		return nil, err
	}
	o.log.Debug("private request", zap.String("method", method))
	return raw, nil
}
