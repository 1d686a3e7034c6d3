package ident

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// 订单 id 为 32 位有符号整数：低位固定位宽编码策略号，
// 高位编码自纪元起点以来的分钟数（或自增计数）。
const maxID = math.MaxInt32

// TimeAllocator 发放可解码的订单 id：id = 分钟数*10^k + 策略号。
// 纪元起点 T0 持久化在 store 中，高位溢出时重置 T0 并先落盘。
type TimeAllocator struct {
	store Store
	width int
	now   func() time.Time

	mu     sync.Mutex
	origin int64 // unix 秒，0 表示尚未持久化
}

// NewTimeAllocator 加载持久化的纪元起点；首次运行时以当前时间初始化。
func NewTimeAllocator(store Store, strategyWidth int) (*TimeAllocator, error) {
	if strategyWidth < 1 || strategyWidth > 4 {
		return nil, fmt.Errorf("strategy width %d out of range", strategyWidth)
	}
	a := &TimeAllocator{store: store, width: strategyWidth, now: time.Now}
	origin, exists, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !exists {
		origin = a.now().Unix()
		if err := store.Save(origin); err != nil {
			return nil, err
		}
	}
	a.origin = origin
	return a, nil
}

func (a *TimeAllocator) mod() int64 {
	m := int64(1)
	for i := 0; i < a.width; i++ {
		m *= 10
	}
	return m
}

// NextID 组合一个新的订单 id。高位分钟数超出 32 位预算时，
// 重置纪元起点为当前时间（先持久化，再发放）。
func (a *TimeAllocator) NextID(strategyID int) (int32, error) {
	mod := a.mod()
	if strategyID < 0 || int64(strategyID) >= mod {
		return 0, fmt.Errorf("strategy id %d out of range [0,%d)", strategyID, mod)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().Unix()
	user := (now - a.origin) / 60
	if user < 0 || user > maxID/mod {
		if err := a.store.Save(now); err != nil {
			return 0, err
		}
		a.origin = now
		user = 0
	}
	return int32(user*mod + int64(strategyID)), nil
}

// Decode 从订单 id 还原发放时间与策略号。起点文件丢失时
// 旧 id 不可解码，必须报错而不是猜测。
func (a *TimeAllocator) Decode(id int32) (time.Time, int, error) {
	origin, exists, err := a.store.Load()
	if err != nil {
		return time.Time{}, 0, err
	}
	if !exists {
		return time.Time{}, 0, fmt.Errorf("decode id %d: epoch origin state is missing", id)
	}
	mod := a.mod()
	issued := time.Unix(origin+(int64(id)/mod)*60, 0)
	return issued, int(int64(id) % mod), nil
}

// CounterAllocator 自增计数器变体，用于不需要可解码时间戳的 id。
// 计数器持久化后才发放 id，溢出时回绕到 0。
type CounterAllocator struct {
	store Store
	width int
	mu    sync.Mutex
}

func NewCounterAllocator(store Store, strategyWidth int) (*CounterAllocator, error) {
	if strategyWidth < 1 || strategyWidth > 4 {
		return nil, fmt.Errorf("strategy width %d out of range", strategyWidth)
	}
	return &CounterAllocator{store: store, width: strategyWidth}, nil
}

func (a *CounterAllocator) NextID(strategyID int) (int32, error) {
	mod := int64(1)
	for i := 0; i < a.width; i++ {
		mod *= 10
	}
	if strategyID < 0 || int64(strategyID) >= mod {
		return 0, fmt.Errorf("strategy id %d out of range [0,%d)", strategyID, mod)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	last, _, err := a.store.Load()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if next > maxID/mod {
		next = 0
	}
	if err := a.store.Save(next); err != nil {
		return 0, err
	}
	return int32(next*mod + int64(strategyID)), nil
}
