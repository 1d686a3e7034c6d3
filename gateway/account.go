package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// FeeSchedule 按交易对保存 taker/maker 费率，用于合成回执的费用估算。
type FeeSchedule struct {
	Taker map[string]float64 // ordertype=market
	Maker map[string]float64 // ordertype=limit
}

// Fee 返回指定交易对与订单类型的费率。
func (f *FeeSchedule) Fee(pair, ordertype string) (float64, error) {
	var table map[string]float64
	switch ordertype {
	case "market":
		table = f.Taker
	case "limit":
		table = f.Maker
	default:
		return 0, fmt.Errorf("unknown order type: %s", ordertype)
	}
	fee, ok := table[pair]
	if !ok {
		return 0, fmt.Errorf("no fee for pair %s", pair)
	}
	return fee, nil
}

type feeEntry struct {
	Fee Float `json:"fee"`
}

// TradeVolume 拉取全部交易对的当前费率表。
func (c *KrakenRESTClient) TradeVolume(ctx context.Context) (*FeeSchedule, error) {
	raw, err := c.QueryPrivate(ctx, "TradeVolume", map[string]string{"pair": "all"})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Fees      map[string]feeEntry `json:"fees"`
		FeesMaker map[string]feeEntry `json:"fees_maker"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode TradeVolume: %w", err)
	}
	sched := &FeeSchedule{
		Taker: make(map[string]float64, len(decoded.Fees)),
		Maker: make(map[string]float64, len(decoded.FeesMaker)),
	}
	for pair, e := range decoded.Fees {
		sched.Taker[pair] = e.Fee.Value()
	}
	for pair, e := range decoded.FeesMaker {
		sched.Maker[pair] = e.Fee.Value()
	}
	return sched, nil
}

// Balance 拉取账户余额快照，启动时记录供人工核对。
func (c *KrakenRESTClient) Balance(ctx context.Context) (map[string]float64, error) {
	raw, err := c.QueryPrivate(ctx, "Balance", nil)
	if err != nil {
		return nil, err
	}
	var decoded map[string]Float
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode Balance: %w", err)
	}
	balance := make(map[string]float64, len(decoded))
	for asset, v := range decoded {
		balance[asset] = v.Value()
	}
	return balance, nil
}
