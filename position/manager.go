package position

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/gateway"
	"trade-executor-go/metrics"
	"trade-executor-go/order"
)

// Signal 策略方向信号。
type Signal int

const (
	Short   Signal = -1
	Neutral Signal = 0
	Long    Signal = 1
)

// OrderPlacer 下单委托面。仓位管理不关心订单如何提交与对账，
// 只要求返回成交概要。
type OrderPlacer interface {
	Place(ctx context.Context, input order.Input) (Placement, error)
}

// Placement 一次委托的成交概要。
type Placement struct {
	OrderID int32
	Price   float64
	VolExec float64
}

// Request 发给仓位管理的下单参数，方向由信号推导。
type Request struct {
	Pair      string
	OrderType string // market / limit
	Volume    float64
	Price     float64 // limit 单价格
	Leverage  int     // 0 表示未指定
}

// ExecutionRecord 每个子步骤（切仓、开仓或无操作）的执行回报，
// 带步骤完成后的仓位快照。
type ExecutionRecord struct {
	Timestamp int64   `json:"timestamp"`
	OrderID   int32   `json:"order_id,omitempty"` // 合成记录无订单
	Side      string  `json:"side,omitempty"`
	Pair      string  `json:"pair"`
	OrderType string  `json:"ordertype"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Leverage  int     `json:"leverage,omitempty"`
	Fee       float64 `json:"fee"`
	Position  Signal  `json:"current_position"`
	Held      float64 `json:"current_volume"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// Manager 维护净仓位方向与持仓量，把信号翻译成先切后开的订单序列。
// 与订单状态机同属单写者执行进程，方法不加锁。
type Manager struct {
	position Signal
	volume   float64

	placer OrderPlacer
	prices gateway.PriceSource
	fees   *gateway.FeeSchedule
	log    *zap.Logger
	now    func() time.Time
}

// NewManager 以平仓状态构造仓位管理。
func NewManager(placer OrderPlacer, prices gateway.PriceSource, fees *gateway.FeeSchedule, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		placer: placer,
		prices: prices,
		fees:   fees,
		log:    log,
		now:    time.Now,
	}
	m.publish()
	return m
}

// State 返回当前仓位快照。
func (m *Manager) State() State {
	return State{Position: m.position, Volume: m.volume}
}

// Restore 从持久化状态恢复仓位。
func (m *Manager) Restore(s State) error {
	if err := s.check(); err != nil {
		return err
	}
	m.position = s.Position
	m.volume = s.Volume
	m.publish()
	return nil
}

// Transition 执行一次信号迁移，返回各子步骤的执行回报。
// 同向信号产生合成记录；换向先切旧仓再开新仓，顺序不可交换。
func (m *Manager) Transition(ctx context.Context, signal Signal, req Request) ([]ExecutionRecord, error) {
	switch signal {
	case Short, Neutral, Long:
	default:
		return nil, fmt.Errorf("position: unknown signal %d", signal)
	}
	if err := req.check(); err != nil {
		return nil, err
	}

	if signal == m.position {
		metrics.SignalsTotal.WithLabelValues("hold").Inc()
		rec, err := m.synthetic(req)
		if err != nil {
			return nil, err
		}
		return []ExecutionRecord{rec}, nil
	}

	var records []ExecutionRecord
	var err error
	switch {
	case m.position <= Neutral && signal >= Neutral:
		metrics.SignalsTotal.WithLabelValues("up").Inc()
		records, err = m.upMove(ctx, signal, req)
	case m.position >= Neutral && signal <= Neutral:
		metrics.SignalsTotal.WithLabelValues("down").Inc()
		records, err = m.downMove(ctx, signal, req)
	}
	m.publish()
	return records, err
}

// upMove 买入方向：先平空头，再视信号开多头。
func (m *Manager) upMove(ctx context.Context, signal Signal, req Request) ([]ExecutionRecord, error) {
	records := make([]ExecutionRecord, 0, 2)

	cut, err := m.cutShort(ctx, req)
	if err != nil {
		return records, err
	}
	records = append(records, cut)

	open, err := m.openLong(ctx, signal, req)
	if err != nil {
		return records, err
	}
	return append(records, open), nil
}

// downMove 卖出方向：先平多头，再视信号开空头。
func (m *Manager) downMove(ctx context.Context, signal Signal, req Request) ([]ExecutionRecord, error) {
	records := make([]ExecutionRecord, 0, 2)

	cut, err := m.cutLong(ctx, req)
	if err != nil {
		return records, err
	}
	records = append(records, cut)

	open, err := m.openShort(ctx, signal, req)
	if err != nil {
		return records, err
	}
	return append(records, open), nil
}

// cutShort 平空头仓位。平空是保证金腿：杠杆未指定取 2，否则加 1。
// 量取当前持仓而非请求量。
func (m *Manager) cutShort(ctx context.Context, req Request) (ExecutionRecord, error) {
	if m.position >= Neutral {
		return m.synthetic(req)
	}
	req.Volume = m.volume
	req.Leverage = shortLeverage(req.Leverage)
	rec, err := m.place(ctx, "buy", req)
	if err != nil {
		return rec, err
	}
	m.position = Neutral
	m.volume = 0
	rec.Position = Neutral
	rec.Held = 0
	return rec, nil
}

// openLong 开多头仓位。
func (m *Manager) openLong(ctx context.Context, signal Signal, req Request) (ExecutionRecord, error) {
	if signal <= Neutral {
		return m.synthetic(req)
	}
	rec, err := m.place(ctx, "buy", req)
	if err != nil {
		return rec, err
	}
	m.position = signal
	m.volume = req.Volume
	rec.Position = signal
	rec.Held = req.Volume
	return rec, nil
}

// cutLong 平多头仓位，量取当前持仓。
func (m *Manager) cutLong(ctx context.Context, req Request) (ExecutionRecord, error) {
	if m.position <= Neutral {
		return m.synthetic(req)
	}
	req.Volume = m.volume
	rec, err := m.place(ctx, "sell", req)
	if err != nil {
		return rec, err
	}
	m.position = Neutral
	m.volume = 0
	rec.Position = Neutral
	rec.Held = 0
	return rec, nil
}

// openShort 开空头仓位，杠杆未指定取 2，否则加 1。
func (m *Manager) openShort(ctx context.Context, signal Signal, req Request) (ExecutionRecord, error) {
	if signal >= Neutral {
		return m.synthetic(req)
	}
	req.Leverage = shortLeverage(req.Leverage)
	rec, err := m.place(ctx, "sell", req)
	if err != nil {
		return rec, err
	}
	m.position = signal
	m.volume = req.Volume
	rec.Position = signal
	rec.Held = req.Volume
	return rec, nil
}

// place 委托一笔真实订单并生成执行回报。
func (m *Manager) place(ctx context.Context, side string, req Request) (ExecutionRecord, error) {
	input := order.Input{
		Side:      side,
		Pair:      req.Pair,
		OrderType: req.OrderType,
		Volume:    req.Volume,
		Price:     req.Price,
		Leverage:  req.Leverage,
	}
	input.Normalize()

	placed, err := m.placer.Place(ctx, input)
	if err != nil {
		return ExecutionRecord{}, err
	}
	fee, err := m.fee(req)
	if err != nil {
		return ExecutionRecord{}, err
	}
	m.log.Info("position order executed",
		zap.Int32("orderID", placed.OrderID),
		zap.String("side", side),
		zap.Float64("volume", req.Volume),
		zap.Float64("price", placed.Price))
	return ExecutionRecord{
		Timestamp: m.now().Unix(),
		OrderID:   placed.OrderID,
		Side:      side,
		Pair:      req.Pair,
		OrderType: req.OrderType,
		Price:     placed.Price,
		Volume:    req.Volume,
		Leverage:  input.Leverage,
		Fee:       fee,
	}, nil
}

// synthetic 无订单可下时的合成记录，价格经参考价源解析。
func (m *Manager) synthetic(req Request) (ExecutionRecord, error) {
	price := req.Price
	if req.OrderType == "market" {
		var err error
		price, err = m.prices.Close(req.Pair)
		if err != nil {
			return ExecutionRecord{}, fmt.Errorf("position: resolve reference price: %w", err)
		}
	}
	fee, err := m.fee(req)
	if err != nil {
		return ExecutionRecord{}, err
	}
	return ExecutionRecord{
		Timestamp: m.now().Unix(),
		Pair:      req.Pair,
		OrderType: req.OrderType,
		Price:     price,
		Fee:       fee,
		Position:  m.position,
		Held:      m.volume,
		Synthetic: true,
	}, nil
}

func (m *Manager) fee(req Request) (float64, error) {
	if m.fees == nil {
		return 0, nil
	}
	return m.fees.Fee(req.Pair, req.OrderType)
}

func (m *Manager) publish() {
	metrics.PositionGauge.Set(float64(m.position))
	metrics.VolumeGauge.Set(m.volume)
}

// shortLeverage 空头保证金腿的杠杆：未指定取 2，否则加 1。
func shortLeverage(lev int) int {
	if lev <= 1 {
		return 2
	}
	return lev + 1
}

func (r Request) check() error {
	switch r.OrderType {
	case "market":
	case "limit":
		if r.Price <= 0 {
			return fmt.Errorf("position: limit request requires a positive price, got %g", r.Price)
		}
	default:
		return fmt.Errorf("position: unknown order type %q", r.OrderType)
	}
	if r.Pair == "" {
		return fmt.Errorf("position: request pair is empty")
	}
	if r.Volume <= 0 {
		return fmt.Errorf("position: request volume must be positive, got %g", r.Volume)
	}
	return nil
}
