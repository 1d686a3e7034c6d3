package order

import "fmt"

// StatusError 在非法状态下请求了订单操作。这是调用方缺陷，
// 必须上抛而不是重试。
type StatusError struct {
	ID     int32
	Status Status
	Op     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order %d: illegal %s from status %q", e.ID, e.Op, e.Status)
}

// OrderError 交易所报告的订单级异常（如撤单数量为零）。
type OrderError struct {
	ID  int32
	Msg string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %d: %s", e.ID, e.Msg)
}

// ConsistencyError 账本一致性被破坏（成交量超过请求量、未知状态、
// 桶索引失配）。进程应持久化现场后停止，而不是带病运行。
type ConsistencyError struct {
	ID  int32
	Msg string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("order %d: consistency violation: %s", e.ID, e.Msg)
}

// MissingOrderError 提交后在开放与关闭列表中都找不到订单。
type MissingOrderError struct {
	ID int32
}

func (e *MissingOrderError) Error() string {
	return fmt.Sprintf("order %d is missing from both open and closed listings", e.ID)
}
