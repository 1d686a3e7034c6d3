package order

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trade-executor-go/gateway"
)

// 成交回报解码与费用归集。

type closedOrdersResult struct {
	Closed map[string]ClosedEntry `json:"closed"`
}

type openOrdersResult struct {
	Open map[string]json.RawMessage `json:"open"`
}

// ClosedEntry 关闭列表中的单笔回报。
type ClosedEntry struct {
	VolExec gateway.Float `json:"vol_exec"`
	Price   gateway.Float `json:"price"`
	Fee     gateway.Float `json:"fee"`
	Cost    gateway.Float `json:"cost"`
	OFlags  OFlags        `json:"oflags"`
}

// OFlags 订单标志，交易所可能编码为逗号分隔字符串或数组。
type OFlags []string

func (f *OFlags) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*f = nil
		return nil
	}
	*f = strings.Split(s, ",")
	return nil
}

func (f OFlags) Has(flag string) bool {
	for _, v := range f {
		if v == flag {
			return true
		}
	}
	return false
}

// FeeCurrency 返回费用计价标志：fcib（基础货币）优先于 fciq（计价货币）。
func (f OFlags) FeeCurrency() (string, error) {
	if f.Has("fcib") {
		return "fcib", nil
	}
	if f.Has("fciq") {
		return "fciq", nil
	}
	return "", fmt.Errorf("unknown oflags fees: %v", []string(f))
}

// Result 汇总的成交执行信息，供仓位与成本核算使用。
type Result struct {
	TxIDs     []string `json:"txid"`
	Price     float64  `json:"price_exec"`
	VolExec   float64  `json:"vol_exec"`
	Fee       float64  `json:"fee"`
	FeeQuote  float64  `json:"feeq"`
	FeeBase   float64  `json:"feeb"`
	Cost      float64  `json:"cost"`
	StartTime int64    `json:"start_time"`
}

// aggregateFills 将关闭回报归集为量加权均价与费用拆分。
func aggregateFills(id int32, closed map[string]ClosedEntry) (Result, error) {
	var r Result
	var pv float64
	for txid, e := range closed {
		if e.OFlags.Has("viqc") {
			return r, &OrderError{ID: id, Msg: "'viqc' oflags is not supported"}
		}
		cur, err := e.OFlags.FeeCurrency()
		if err != nil {
			return r, &OrderError{ID: id, Msg: err.Error()}
		}
		v := e.VolExec.Value()
		r.TxIDs = append(r.TxIDs, txid)
		r.VolExec += v
		pv += e.Price.Value() * v
		switch cur {
		case "fciq":
			r.FeeQuote += e.Fee.Value()
		case "fcib":
			r.FeeBase += e.Fee.Value() * e.Price.Value()
		}
		r.Fee += e.Fee.Value()
		r.Cost += e.Cost.Value()
	}
	if r.VolExec > 0 {
		r.Price = pv / r.VolExec
	}
	sort.Strings(r.TxIDs)
	return r, nil
}
