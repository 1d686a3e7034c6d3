package order

import (
	"fmt"
	"strconv"
)

// Input 下单参数。提交后除剩余量（部分成交后缩减）外不可变。
type Input struct {
	Side      string  `json:"type"`      // buy / sell
	Pair      string  `json:"pair"`
	OrderType string  `json:"ordertype"` // market / limit
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price,omitempty"`    // market 单无价格
	Leverage  int     `json:"leverage,omitempty"` // 0 表示无杠杆
	Validate  bool    `json:"validate,omitempty"` // 只校验不真实成交
}

// Normalize 归一化参数：杠杆 1 等价于无杠杆。
func (in *Input) Normalize() {
	if in.Leverage == 1 {
		in.Leverage = 0
	}
}

// Check 校验参数完整性，提交前调用。
func (in Input) Check() error {
	switch in.Side {
	case "buy", "sell":
	default:
		return fmt.Errorf("unknown order side: %q", in.Side)
	}
	switch in.OrderType {
	case "market":
	case "limit":
		if in.Price <= 0 {
			return fmt.Errorf("limit order requires a positive price, got %g", in.Price)
		}
	default:
		return fmt.Errorf("unknown order type: %q", in.OrderType)
	}
	if in.Pair == "" {
		return fmt.Errorf("order pair is empty")
	}
	if in.Volume <= 0 {
		return fmt.Errorf("order volume must be positive, got %g", in.Volume)
	}
	if in.Leverage < 0 {
		return fmt.Errorf("negative leverage: %d", in.Leverage)
	}
	return nil
}

// Params 将参数编码为私有请求表单字段。
func (in Input) Params() map[string]string {
	p := map[string]string{
		"type":      in.Side,
		"pair":      in.Pair,
		"ordertype": in.OrderType,
		"volume":    strconv.FormatFloat(in.Volume, 'f', -1, 64),
	}
	if in.OrderType != "market" {
		p["price"] = strconv.FormatFloat(in.Price, 'f', -1, 64)
	}
	if in.Leverage > 0 {
		p["leverage"] = strconv.Itoa(in.Leverage)
	}
	if in.Validate {
		p["validate"] = "true"
	}
	return p
}
