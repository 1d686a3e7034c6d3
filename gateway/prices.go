package gateway

// PriceSource 行情协作方：市价/最优价下单时用于取参考价。
// 行情获取本身由外部模块提供，这里只约定接口。
type PriceSource interface {
	Close(pair string) (float64, error)
	Bid(pair string) (float64, error)
	Ask(pair string) (float64, error)
}
