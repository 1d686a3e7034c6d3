package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TickerSource 经公共行情接口取参考价，实现 PriceSource。
// 公共端点无需签名与 nonce。
type TickerSource struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTickerSource 构造公共行情源。
func NewTickerSource(baseURL string) *TickerSource {
	return &TickerSource{BaseURL: baseURL, HTTPClient: NewDefaultHTTPClient()}
}

type tickerEntry struct {
	C []Float `json:"c"` // 最近成交 [price, lot volume]
	B []Float `json:"b"` // 最优买 [price, whole lot volume, lot volume]
	A []Float `json:"a"` // 最优卖
}

func (t *TickerSource) Close(pair string) (float64, error) {
	e, err := t.fetch(pair)
	if err != nil {
		return 0, err
	}
	return first(e.C, pair, "close")
}

func (t *TickerSource) Bid(pair string) (float64, error) {
	e, err := t.fetch(pair)
	if err != nil {
		return 0, err
	}
	return first(e.B, pair, "bid")
}

func (t *TickerSource) Ask(pair string) (float64, error) {
	e, err := t.fetch(pair)
	if err != nil {
		return 0, err
	}
	return first(e.A, pair, "ask")
}

func first(values []Float, pair, kind string) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("ticker %s: no %s price", pair, kind)
	}
	return values[0].Value(), nil
}

func (t *TickerSource) fetch(pair string) (tickerEntry, error) {
	endpoint := strings.TrimSuffix(t.BaseURL, "/") + "/0/public/Ticker?" +
		url.Values{"pair": {pair}}.Encode()
	resp, err := t.HTTPClient.Get(endpoint)
	if err != nil {
		return tickerEntry{}, fmt.Errorf("ticker %s: %w", pair, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tickerEntry{}, fmt.Errorf("ticker %s: read response: %w", pair, err)
	}

	var decoded struct {
		Error  []string               `json:"error"`
		Result map[string]tickerEntry `json:"result"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tickerEntry{}, fmt.Errorf("ticker %s: decode response: %w", pair, err)
	}
	if len(decoded.Error) > 0 {
		return tickerEntry{}, fmt.Errorf("ticker %s: %s", pair, strings.Join(decoded.Error, ", "))
	}
	// 应答键可能是别名（如 XETHZEUR 返回 ETHEUR），只取第一个条目
	for _, e := range decoded.Result {
		return e, nil
	}
	return tickerEntry{}, fmt.Errorf("ticker %s: empty result", pair)
}
