package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trade-executor-go/metrics"
)

// KrakenRESTClient 签名并发送私有请求；默认不发起真实网络调用，
// HTTPClient 可注入 httptest。对调用方的契约是：要么最终返回 result，
// 要么返回错误，绝不返回部分/含糊的应答。
type KrakenRESTClient struct {
	BaseURL    string
	Creds      *Credentials
	HTTPClient *http.Client
	Limiter    RateLimiter
	Policy     RetryPolicy
	Log        *zap.Logger

	nonceMu   sync.Mutex
	lastNonce int64

	// 测试可注入，避免真实等待
	sleep func(time.Duration)
}

// RetryPolicy 控制重试节奏：短退避用于传输层错误，
// 长冷却用于限流，写请求的传输层重试有界以避免重复下单。
type RetryPolicy struct {
	Backoff           time.Duration
	RateLimitCooldown time.Duration
	MaxWriteAttempts  int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Backoff:           5 * time.Second,
		RateLimitCooldown: 930 * time.Second,
		MaxWriteAttempts:  5,
	}
}

// 状态变更类请求：传输层失败时重试次数有界。
var writeMethods = map[string]bool{
	"AddOrder":    true,
	"CancelOrder": true,
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

type recovery int

const (
	recoverNone recovery = iota // 成功或交由调用方处理
	recoverBackoff
	recoverReload
	recoverCooldown
)

// QueryPrivate 执行一次认证调用并返回解码后的 result 字段。
// 限流与传输层错误在内部重试；良性 API 错误以 *APIError 返回给调用方；
// 其余 API 错误为致命错误。
func (c *KrakenRESTClient) QueryPrivate(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	policy := c.Policy.withDefaults()
	attempts := 0
	for {
		result, rec, err := c.queryOnce(ctx, method, params)
		switch rec {
		case recoverNone:
			if err == nil {
				metrics.PrivateCalls.WithLabelValues(method, "ok").Inc()
				return result, nil
			}
			return nil, err

		case recoverCooldown:
			metrics.RateLimitCooldowns.Inc()
			c.logger().Warn("rate limit exceeded, cooling down",
				zap.String("method", method),
				zap.Duration("cooldown", policy.RateLimitCooldown))
			c.wait(policy.RateLimitCooldown)

		case recoverReload:
			metrics.CredentialReloads.Inc()
			c.logger().Warn("response missing result, reloading credentials",
				zap.String("method", method), zap.Error(err))
			if c.Creds != nil {
				if rerr := c.Creds.Reload(); rerr != nil {
					return nil, fmt.Errorf("reload credentials: %w", rerr)
				}
			}
			c.wait(policy.Backoff)

		case recoverBackoff:
			metrics.TransportRetries.Inc()
			attempts++
			if writeMethods[method] && attempts >= policy.MaxWriteAttempts {
				return nil, fmt.Errorf("%s: giving up after %d transport failures: %w", method, attempts, err)
			}
			c.logger().Warn("transport failure, retrying",
				zap.String("method", method), zap.Int("attempt", attempts), zap.Error(err))
			c.wait(policy.Backoff)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (c *KrakenRESTClient) queryOnce(ctx context.Context, method string, params map[string]string) (json.RawMessage, recovery, error) {
	if c.HTTPClient == nil {
		return nil, recoverNone, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait(method)
	}

	nonce := c.nextNonce()
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("nonce", strconv.FormatInt(nonce, 10))

	path := "/0/private/" + method
	key, secret := c.Creds.Pair()
	sig := SignRequest(path, secret, nonce, form)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, recoverNone, err
	}
	req.Header.Set("API-Key", key)
	req.Header.Set("API-sign", sig)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, recoverBackoff, fmt.Errorf("%s: transport: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, recoverBackoff, fmt.Errorf("%s: read body: %w", method, err)
	}
	var decoded struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, recoverBackoff, fmt.Errorf("%s: malformed response: %w", method, err)
	}

	if isRateLimited(decoded.Error) {
		return nil, recoverCooldown, nil
	}
	if len(decoded.Error) > 0 {
		apiErr := &APIError{Method: method, Errors: decoded.Error, Response: body}
		if apiErr.Benign() {
			metrics.PrivateCalls.WithLabelValues(method, "benign").Inc()
			c.logger().Warn("benign venue error", zap.String("method", method), zap.Strings("errors", decoded.Error))
			return nil, recoverNone, apiErr
		}
		metrics.PrivateCalls.WithLabelValues(method, "fatal").Inc()
		c.logger().Error("fatal venue error",
			zap.String("method", method),
			zap.Strings("errors", decoded.Error),
			zap.Any("params", params),
			zap.ByteString("response", body))
		return nil, recoverNone, apiErr
	}
	if decoded.Result == nil {
		// 应答缺少 result 字段，可能是会话过期
		return nil, recoverReload, fmt.Errorf("%s: response missing result field", method)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, recoverNone, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	return decoded.Result, recoverNone, nil
}

// nextNonce 返回严格递增的毫秒时间戳，同一毫秒内的并发调用不会重复。
func (c *KrakenRESTClient) nextNonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := time.Now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

func (c *KrakenRESTClient) wait(d time.Duration) {
	if c.sleep != nil {
		c.sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *KrakenRESTClient) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// withDefaults 填充零值字段，允许调用方只覆盖关心的项。
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.RateLimitCooldown <= 0 {
		p.RateLimitCooldown = def.RateLimitCooldown
	}
	if p.MaxWriteAttempts <= 0 {
		p.MaxWriteAttempts = def.MaxWriteAttempts
	}
	return p
}
