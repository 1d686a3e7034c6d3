package order

import (
	"fmt"
	"sort"
	"sync"
)

// Collection 以生命周期状态为索引的并发安全订单容器。
// 三个桶（waiting/open/closed）与底层映射在同一把锁下更新，
// 不存在只改其一的路径；桶永远是键集的一个划分。
type Collection struct {
	mu      sync.Mutex
	orders  map[int32]*Order
	waiting []int32 // pending + canceled，按插入序
	open    []int32
	closed  []int32
}

// NewCollection 以给定订单初始化容器。
func NewCollection(orders ...*Order) (*Collection, error) {
	c := &Collection{orders: make(map[int32]*Order)}
	for _, o := range orders {
		if err := c.Add(o); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add 登记一个新订单。id 已存在视为一致性错误（id 绝不复用）。
func (c *Collection) Add(o *Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.orders[o.ID]; exists {
		return &ConsistencyError{ID: o.ID, Msg: "order id already in collection"}
	}
	bucket, err := c.bucketFor(o.Status)
	if err != nil {
		return err
	}
	c.orders[o.ID] = o
	*bucket = append(*bucket, o.ID)
	return nil
}

// Get 返回指定订单。
func (c *Collection) Get(id int32) (*Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

// Remove 摘除并返回订单；桶中找不到该 id 视为索引失配。
func (c *Collection) Remove(id int32) (*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, &ConsistencyError{ID: id, Msg: "unknown order id"}
	}
	if err := c.dropFromBuckets(id); err != nil {
		return nil, err
	}
	delete(c.orders, id)
	return o, nil
}

// First 按优先序（waiting > open > closed，桶内按插入序）返回
// 下一个应处理的订单 id。
func (c *Collection) First() (int32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, bucket := range [][]int32{c.waiting, c.open, c.closed} {
		if len(bucket) > 0 {
			return bucket[0], true
		}
	}
	return 0, false
}

// PopFirst 摘除并返回优先序最高的订单。
func (c *Collection) PopFirst() (*Order, error) {
	id, ok := c.First()
	if !ok {
		return nil, fmt.Errorf("collection is empty")
	}
	return c.Remove(id)
}

// OrderedIDs 返回全部订单 id 的优先序列表（拷贝）。
func (c *Collection) OrderedIDs() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int32, 0, len(c.orders))
	ids = append(ids, c.waiting...)
	ids = append(ids, c.open...)
	ids = append(ids, c.closed...)
	return ids
}

// Len 返回订单数量。
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orders)
}

// Reindex 在订单状态变更后重新归桶。未知状态或索引失配为一致性错误。
func (c *Collection) Reindex(id int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return &ConsistencyError{ID: id, Msg: "unknown order id"}
	}
	bucket, err := c.bucketFor(o.Status)
	if err != nil {
		return err
	}
	if err := c.dropFromBuckets(id); err != nil {
		return err
	}
	*bucket = append(*bucket, id)
	return nil
}

// Update 插入或覆盖订单，然后全量重建桶索引。
// 相对调用频率，重建成本可忽略；正确性优先。
func (c *Collection) Update(orders ...*Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range orders {
		if !o.Status.Known() {
			return &ConsistencyError{ID: o.ID, Msg: fmt.Sprintf("unknown status %q", o.Status)}
		}
		c.orders[o.ID] = o
	}
	return c.rebuild()
}

// Merge 并入另一个容器的全部订单并重建索引。
func (c *Collection) Merge(other *Collection) error {
	other.mu.Lock()
	merged := make([]*Order, 0, len(other.orders))
	for _, id := range append(append(append([]int32{}, other.waiting...), other.open...), other.closed...) {
		merged = append(merged, other.orders[id])
	}
	other.mu.Unlock()
	return c.Update(merged...)
}

// Buckets 返回三个桶的拷贝，供诊断与测试。
func (c *Collection) Buckets() (waiting, open, closed []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int32{}, c.waiting...),
		append([]int32{}, c.open...),
		append([]int32{}, c.closed...)
}

func (c *Collection) bucketFor(s Status) (*[]int32, error) {
	switch s {
	case StatusPending, StatusCanceled:
		return &c.waiting, nil
	case StatusOpen:
		return &c.open, nil
	case StatusClosed:
		return &c.closed, nil
	default:
		return nil, &ConsistencyError{Msg: fmt.Sprintf("unknown status %q", s)}
	}
}

func (c *Collection) dropFromBuckets(id int32) error {
	for _, bucket := range []*[]int32{&c.waiting, &c.open, &c.closed} {
		for i, v := range *bucket {
			if v == id {
				*bucket = append((*bucket)[:i], (*bucket)[i+1:]...)
				return nil
			}
		}
	}
	return &ConsistencyError{ID: id, Msg: "order id missing from bucket index"}
}

// rebuild 全量重建桶索引，保持 id 升序以获得稳定遍历序。
func (c *Collection) rebuild() error {
	c.waiting = c.waiting[:0]
	c.open = c.open[:0]
	c.closed = c.closed[:0]
	for id, o := range c.orders {
		bucket, err := c.bucketFor(o.Status)
		if err != nil {
			return err
		}
		*bucket = append(*bucket, id)
	}
	for _, bucket := range []*[]int32{&c.waiting, &c.open, &c.closed} {
		ids := *bucket
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return nil
}
