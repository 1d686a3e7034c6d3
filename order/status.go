package order

// Status represents order lifecycle.
type Status string

const (
	StatusPending  Status = "pending"  // 从未提交，或撤单后重新武装
	StatusOpen     Status = "open"     // 已提交，未完全成交
	StatusCanceled Status = "canceled" // 已撤销
	StatusClosed   Status = "closed"   // 完全成交或容差内视为成交
)

// 合法状态转换表。Canceled -> Open 不允许：撤销后的重试必须
// 经由 Pending 重新提交。Canceled -> Closed 留给撤单与成交的竞态：
// 撤销后对账发现余量其实已全部成交。
var legalTransitions = map[Status][]Status{
	StatusPending:  {StatusOpen, StatusClosed},
	StatusOpen:     {StatusClosed, StatusCanceled},
	StatusCanceled: {StatusPending, StatusClosed},
	StatusClosed:   {},
}

// Known 判断状态值是否已知；未知状态视为一致性错误。
func (s Status) Known() bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition 验证状态转换是否合法（相同状态幂等）。
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal 判断是否为终态。
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCanceled
}
