package order

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/gateway"
)

// Record 快照中的单个订单记录，足以在重启后重建状态机。
type Record struct {
	ID        int32   `json:"id"`
	Status    Status  `json:"status"`
	Input     Input   `json:"input"`
	Volume    float64 `json:"volume"`
	VolExec   float64 `json:"vol_exec"`
	PriceExec float64 `json:"price_exec"`
	Tolerance float64 `json:"tolerance"`
	StartTime int64   `json:"start_time"`
	LastPoll  int64   `json:"last_poll"`
}

// Deps 重建订单时注入的外部依赖。
type Deps struct {
	API    PrivateAPI
	Prices gateway.PriceSource
	Log    *zap.Logger
}

// Snapshot 按优先序导出全部订单记录。
func (c *Collection) Snapshot() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]Record, 0, len(c.orders))
	for _, bucket := range [][]int32{c.waiting, c.open, c.closed} {
		for _, id := range bucket {
			o := c.orders[id]
			records = append(records, Record{
				ID:        o.ID,
				Status:    o.Status,
				Input:     o.Input,
				Volume:    o.Volume,
				VolExec:   o.VolExec,
				PriceExec: o.PriceExec,
				Tolerance: o.Tolerance,
				StartTime: o.StartTime,
				LastPoll:  o.LastPoll,
			})
		}
	}
	return records
}

// Save 将快照写入文件（先写临时文件再改名）。
func (c *Collection) Save(path string) error {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal order snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("save order snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save order snapshot: %w", err)
	}
	return nil
}

// FromRecord 以快照记录重建订单并注入依赖。
func FromRecord(r Record, deps Deps) (*Order, error) {
	if !r.Status.Known() {
		return nil, &ConsistencyError{ID: r.ID, Msg: fmt.Sprintf("unknown status %q in snapshot", r.Status)}
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Order{
		ID:        r.ID,
		Status:    r.Status,
		Input:     r.Input,
		Volume:    r.Volume,
		VolExec:   r.VolExec,
		PriceExec: r.PriceExec,
		Tolerance: r.Tolerance,
		StartTime: r.StartTime,
		LastPoll:  r.LastPoll,
		api:       deps.API,
		prices:    deps.Prices,
		log:       log.With(zap.Int32("orderID", r.ID)),
		now:       time.Now,
	}, nil
}

// Load 从快照文件恢复容器。文件不存在时返回空容器。
// 调用方必须在使用前对 Open 订单调用 ReverifyOpen。
func Load(path string, deps Deps) (*Collection, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewCollection()
	}
	if err != nil {
		return nil, fmt.Errorf("load order snapshot: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode order snapshot: %w", err)
	}
	c, err := NewCollection()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		o, err := FromRecord(r, deps)
		if err != nil {
			return nil, err
		}
		if err := c.Add(o); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ReverifyOpen 对快照中仍为 Open 的订单立即对账成交量。
// 进程重启不允许悄悄丢失在途状态。
func (c *Collection) ReverifyOpen(ctx context.Context) error {
	_, open, _ := c.Buckets()
	for _, id := range open {
		o, ok := c.Get(id)
		if !ok {
			return &ConsistencyError{ID: id, Msg: "order id missing during reverify"}
		}
		if err := o.CheckVolExec(ctx); err != nil {
			return err
		}
		if err := c.Reindex(id); err != nil {
			return err
		}
	}
	return nil
}
