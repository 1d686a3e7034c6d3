package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(baseURL string, slept *[]time.Duration) *KrakenRESTClient {
	c := &KrakenRESTClient{
		BaseURL:    baseURL,
		Creds:      NewStaticCredentials("test-key", []byte("test-secret")),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Policy: RetryPolicy{
			Backoff:           time.Second,
			RateLimitCooldown: 42 * time.Second,
			MaxWriteAttempts:  2,
		},
		Log: zap.NewNop(),
	}
	if slept != nil {
		c.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	} else {
		c.sleep = func(time.Duration) {}
	}
	return c
}

func TestQueryPrivateSignsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/private/OpenOrders" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("API-Key") != "test-key" {
			t.Errorf("API-Key = %q", r.Header.Get("API-Key"))
		}
		if r.Header.Get("API-sign") == "" {
			t.Error("API-sign header missing")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("nonce") == "" {
			t.Error("nonce missing from post body")
		}
		if r.PostForm.Get("trades") != "true" {
			t.Errorf("trades = %q", r.PostForm.Get("trades"))
		}
		fmt.Fprint(w, `{"error":[],"result":{"open":{}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	raw, err := c.QueryPrivate(context.Background(), "OpenOrders", map[string]string{"trades": "true"})
	if err != nil {
		t.Fatalf("QueryPrivate: %v", err)
	}
	if !strings.Contains(string(raw), "open") {
		t.Fatalf("result = %s", raw)
	}
}

func TestQueryPrivateBenignErrorIsReturnedNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"error":["EOrder:Unknown order"]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	_, err := c.QueryPrivate(context.Background(), "CancelOrder", map[string]string{"txid": "X"})
	if !IsBenignAPIError(err) {
		t.Fatalf("err = %v, want benign APIError", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, benign errors must not be retried", calls)
	}
}

func TestQueryPrivateFatalErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EOrder:Insufficient funds"]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	_, err := c.QueryPrivate(context.Background(), "AddOrder", map[string]string{"pair": "XETHZEUR"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.Benign() {
		t.Fatal("insufficient funds must not be benign")
	}
}

func TestQueryPrivateWriteTransportRetriesAreBounded(t *testing.T) {
	// 先拿地址再关掉，保证每次连接都失败
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	var slept []time.Duration
	c := newTestClient(url, &slept)
	_, err := c.QueryPrivate(context.Background(), "AddOrder", map[string]string{"pair": "XETHZEUR"})
	if err == nil || !strings.Contains(err.Error(), "giving up") {
		t.Fatalf("err = %v, want bounded give-up", err)
	}
	// MaxWriteAttempts=2：第一次失败后退避一次，第二次失败放弃
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("slept %v, want [1s]", slept)
	}
}

func TestQueryPrivateReadTransportRetriesUntilCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	retries := 0
	c := newTestClient(url, nil)
	c.sleep = func(time.Duration) {
		retries++
		if retries == 3 {
			cancel()
		}
	}

	_, err := c.QueryPrivate(ctx, "OpenOrders", nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if retries != 3 {
		t.Fatalf("retries = %d, read methods must keep retrying until canceled", retries)
	}
}

func TestQueryPrivateMissingResultReloadsCredentials(t *testing.T) {
	path := writeKeyFile(t, "rotated-key", []byte("rotated-secret"))
	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"error":[]}`) // 没有 result 字段
			return
		}
		fmt.Fprint(w, `{"error":[],"result":{"count":1}}`)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(srv.URL, &slept)
	c.Creds = creds
	raw, err := c.QueryPrivate(context.Background(), "CancelOrder", map[string]string{"txid": "X"})
	if err != nil {
		t.Fatalf("QueryPrivate: %v", err)
	}
	if !strings.Contains(string(raw), "count") {
		t.Fatalf("result = %s", raw)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want retry after reload", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("slept %v, want one backoff", slept)
	}
}

func TestQueryPrivateRateLimitCoolsDownThenRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"error":["EAPI:Rate limit exceeded"]}`)
			return
		}
		fmt.Fprint(w, `{"error":[],"result":{"open":{}}}`)
	}))
	defer srv.Close()

	var slept []time.Duration
	c := newTestClient(srv.URL, &slept)
	if _, err := c.QueryPrivate(context.Background(), "OpenOrders", nil); err != nil {
		t.Fatalf("QueryPrivate: %v", err)
	}
	if len(slept) != 1 || slept[0] != 42*time.Second {
		t.Fatalf("slept %v, want [42s] cooldown", slept)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want retry after cooldown", calls)
	}
}

func TestNextNonceStrictlyIncreasing(t *testing.T) {
	c := newTestClient("", nil)
	prev := c.nextNonce()
	for i := 0; i < 1000; i++ {
		n := c.nextNonce()
		if n <= prev {
			t.Fatalf("nonce %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestDefaultRetryPolicyFillsZeroFields(t *testing.T) {
	p := RetryPolicy{Backoff: 100 * time.Millisecond}.withDefaults()
	if p.Backoff != 100*time.Millisecond {
		t.Fatalf("explicit backoff overwritten: %v", p.Backoff)
	}
	if p.RateLimitCooldown != 930*time.Second {
		t.Fatalf("cooldown = %v, want 930s", p.RateLimitCooldown)
	}
	if p.MaxWriteAttempts != 5 {
		t.Fatalf("max write attempts = %v, want 5", p.MaxWriteAttempts)
	}
}
