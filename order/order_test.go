package order

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"trade-executor-go/gateway"
)

func newTestOrder(t *testing.T, api *fakeAPI, prices *fakePrices, input Input) *Order {
	t.Helper()
	o := New(101, api, prices, input, nil)
	o.now = func() time.Time { return time.Unix(1_600_000_000, 0) }
	o.StartTime = 1_600_000_000
	return o
}

func TestExecuteOpensOrder(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("AddOrder", `{"descr":{"order":"buy 1.0 XETHZEUR @ limit 200"},"txid":["TX1"]}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(1, 200))

	if err := o.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if o.Status != StatusOpen {
		t.Errorf("status = %q, want open", o.Status)
	}
	call := api.lastCall()
	if call.params["userref"] != "101" {
		t.Errorf("userref = %q, want 101", call.params["userref"])
	}
	if call.params["volume"] != "1" || call.params["price"] != "200" {
		t.Errorf("unexpected order params: %v", call.params)
	}
	if len(o.History) != 1 {
		t.Errorf("history length = %d, want 1", len(o.History))
	}
}

func TestExecuteFromOpenIsCallerBug(t *testing.T) {
	o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, limitInput(1, 200))
	o.Status = StatusOpen

	err := o.Execute(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestExecuteValidateMarketSettles(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("AddOrder", `{"descr":{"order":"buy 1.0 XETHZEUR @ market"}}`)
	input := limitInput(1, 0)
	input.OrderType = "market"
	input.Validate = true
	o := newTestOrder(t, api, &fakePrices{close: 250}, input)

	if err := o.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if o.Status != StatusClosed {
		t.Errorf("status = %q, want closed", o.Status)
	}
	if o.PriceExec != 250 {
		t.Errorf("priceExec = %g, want close price 250", o.PriceExec)
	}
}

func TestExecuteNormalizesLeverage(t *testing.T) {
	input := limitInput(1, 200)
	input.Leverage = 1
	o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, input)
	if o.Input.Leverage != 0 {
		t.Errorf("leverage 1 should normalize to 0, got %d", o.Input.Leverage)
	}
}

func TestCancel(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("CancelOrder", `{"count":1}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(1, 200))
	o.Status = StatusOpen

	if err := o.Cancel(context.Background()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCanceled {
		t.Errorf("status = %q, want canceled", o.Status)
	}
}

func TestCancelZeroCountIsRace(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("CancelOrder", `{"count":0}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(1, 200))
	o.Status = StatusOpen

	err := o.Cancel(context.Background())
	var ordErr *OrderError
	if !errors.As(err, &ordErr) {
		t.Fatalf("expected OrderError, got %v", err)
	}
	if o.Status != StatusOpen {
		t.Errorf("status must not change on failed cancel, got %q", o.Status)
	}
}

func TestCancelFromPendingIsCallerBug(t *testing.T) {
	o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, limitInput(1, 200))
	var statusErr *StatusError
	if err := o.Cancel(context.Background()); !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestCheckVolExecFullFill(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"10","price":"200","fee":"0.2","cost":"2000","oflags":"fciq"}}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	if err := o.CheckVolExec(context.Background()); err != nil {
		t.Fatalf("check_vol_exec: %v", err)
	}
	if o.Status != StatusClosed {
		t.Errorf("status = %q, want closed", o.Status)
	}
	if o.VolExec != 10 || o.PriceExec != 200 {
		t.Errorf("volExec=%g priceExec=%g, want 10/200", o.VolExec, o.PriceExec)
	}
}

func TestCheckVolExecToleranceBoundary(t *testing.T) {
	// 未成交量余量与容差份额 0.001*10 的边界两侧。9.99 恰在边界上
	// （余量 0.01 等于容差份额），必须结清，且浮点除法的舍入不能
	// 把它推出容差。
	cases := []struct {
		name    string
		volExec string
		settled bool
	}{
		{"at tolerance boundary", "9.99", true},
		{"outside tolerance", "9.98", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI(t)
			api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"`+tc.volExec+`","price":"200","fee":"0","cost":"0","oflags":"fciq"}}}`)
			o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
			o.Status = StatusOpen

			if err := o.CheckVolExec(context.Background()); err != nil {
				t.Fatalf("check_vol_exec: %v", err)
			}
			if tc.settled && o.Status != StatusClosed {
				t.Errorf("status = %q, want closed", o.Status)
			}
			if !tc.settled {
				if o.Status != StatusOpen {
					t.Errorf("status = %q, want open", o.Status)
				}
				if math.Abs(o.Input.Volume-0.02) > 1e-9 {
					t.Errorf("residual volume = %g, want 0.02", o.Input.Volume)
				}
			}
		})
	}
}

func TestCheckVolExecOverfillIsFatal(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"11","price":"200","fee":"0","cost":"0","oflags":"fciq"}}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	err := o.CheckVolExec(context.Background())
	var consErr *ConsistencyError
	if !errors.As(err, &consErr) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if o.Status != StatusOpen {
		t.Errorf("status must not mutate on consistency error, got %q", o.Status)
	}
}

func TestCheckVolExecIdempotentWithoutNewFills(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"4","price":"200","fee":"0","cost":"0","oflags":"fciq"}}}`)
	api.expect("ClosedOrders", `{"closed":{}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	if err := o.CheckVolExec(context.Background()); err != nil {
		t.Fatalf("first check: %v", err)
	}
	first := o.VolExec
	if err := o.CheckVolExec(context.Background()); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if o.VolExec != first {
		t.Errorf("volExec changed with no new fills: %g -> %g", first, o.VolExec)
	}
}

func TestCheckVolExecAdvancesPollWindowBeforeQuery(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("ClosedOrders", `{"closed":{}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen
	o.LastPoll = 1_600_000_000
	o.now = func() time.Time { return time.Unix(1_600_000_060, 0) }

	if err := o.CheckVolExec(context.Background()); err != nil {
		t.Fatalf("check_vol_exec: %v", err)
	}
	if api.lastCall().params["start"] != "1600000000" {
		t.Errorf("query start = %q, want previous poll bound", api.lastCall().params["start"])
	}
	if o.LastPoll != 1_600_000_060 {
		t.Errorf("lastPoll = %d, want new bound captured before the query", o.LastPoll)
	}
}

func TestCheckVolExecFromPendingIsCallerBug(t *testing.T) {
	o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, limitInput(10, 200))
	var statusErr *StatusError
	if err := o.CheckVolExec(context.Background()); !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestReplaceMintsNewOrderForResidual(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("CancelOrder", `{"count":1}`)
	api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"4","price":"200","fee":"0","cost":"0","oflags":"fciq"}}}`)
	api.expect("AddOrder", `{"descr":{"order":"buy 6 XETHZEUR @ limit 199"},"txid":["TX2"]}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	repl, err := o.Replace(context.Background(), 102, LimitPrice(199))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if repl == nil {
		t.Fatal("expected replacement order")
	}
	if repl.ID != 102 {
		t.Errorf("replacement id = %d, want 102", repl.ID)
	}
	if repl.Volume != 6 {
		t.Errorf("replacement volume = %g, want residual 6", repl.Volume)
	}
	if repl.Input.Price != 199 {
		t.Errorf("replacement price = %g, want 199", repl.Input.Price)
	}
	if repl.Status != StatusOpen {
		t.Errorf("replacement status = %q, want open", repl.Status)
	}
	if o.Status != StatusCanceled {
		t.Errorf("original status = %q, want canceled", o.Status)
	}
}

func TestReplaceBestUsesOppositeSideQuote(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("CancelOrder", `{"count":1}`)
	api.expect("ClosedOrders", `{"closed":{}}`)
	api.expect("AddOrder", `{"descr":{"order":"buy"},"txid":["TX2"]}`)
	o := newTestOrder(t, api, &fakePrices{bid: 198.5, ask: 201.5}, limitInput(10, 200))
	o.Status = StatusOpen

	repl, err := o.Replace(context.Background(), 102, BestPrice())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if repl.Input.Price != 198.5 {
		t.Errorf("buy replacement should take best bid, got %g", repl.Input.Price)
	}
}

func TestReplaceSettledDuringCancelRace(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("CancelOrder", `{"count":1}`)
	api.expect("ClosedOrders", `{"closed":{"TX1":{"vol_exec":"10","price":"200","fee":"0","cost":"0","oflags":"fciq"}}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	repl, err := o.Replace(context.Background(), 102, MarketPrice())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if repl != nil {
		t.Fatal("no replacement expected when the full volume filled during cancel")
	}
	if o.Status != StatusClosed {
		t.Errorf("status = %q, want closed", o.Status)
	}
}

func TestReplaceFromTerminalIsCallerBug(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusClosed} {
		o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, limitInput(10, 200))
		o.Status = status
		_, err := o.Replace(context.Background(), 102, MarketPrice())
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("replace from %q: expected StatusError, got %v", status, err)
		}
	}
}

func TestResultExecAggregatesFills(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("ClosedOrders", `{"closed":{
		"TX1":{"vol_exec":"4","price":"200","fee":"0.4","cost":"800","oflags":"fciq"},
		"TX2":{"vol_exec":"6","price":"210","fee":"0.6","cost":"1260","oflags":["fcib"]}
	}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusClosed

	res, err := o.ResultExec(context.Background())
	if err != nil {
		t.Fatalf("result_exec: %v", err)
	}
	if res.VolExec != 10 {
		t.Errorf("volExec = %g, want 10", res.VolExec)
	}
	if want := (4*200.0 + 6*210.0) / 10.0; res.Price != want {
		t.Errorf("vwap = %g, want %g", res.Price, want)
	}
	if res.FeeQuote != 0.4 {
		t.Errorf("feeQuote = %g, want 0.4", res.FeeQuote)
	}
	if want := 0.6 * 210.0; res.FeeBase != want {
		t.Errorf("feeBase = %g, want %g", res.FeeBase, want)
	}
	if res.Fee != 1.0 {
		t.Errorf("fee = %g, want 1.0", res.Fee)
	}
	if len(res.TxIDs) != 2 {
		t.Errorf("txids = %v, want 2 entries", res.TxIDs)
	}
}

func TestResultExecBeforeClosedIsCallerBug(t *testing.T) {
	o := newTestOrder(t, newFakeAPI(t), &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen
	var statusErr *StatusError
	if _, err := o.ResultExec(context.Background()); !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	api := newFakeAPI(t)
	api.expect("OpenOrders", `{"open":{"TX1":{}}}`)
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	posted, err := o.Verify(context.Background())
	if err != nil || !posted {
		t.Fatalf("verify = %v, %v; want posted", posted, err)
	}

	api.expect("OpenOrders", `{"open":{}}`)
	api.expect("ClosedOrders", `{"closed":{}}`)
	posted, err = o.Verify(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if posted {
		t.Error("order absent from both listings must not verify")
	}
}

func TestBenignCancelErrorPropagates(t *testing.T) {
	api := newFakeAPI(t)
	api.fail("CancelOrder", &gateway.APIError{Method: "CancelOrder", Errors: []string{"EOrder:Unknown order"}})
	o := newTestOrder(t, api, &fakePrices{}, limitInput(10, 200))
	o.Status = StatusOpen

	err := o.Cancel(context.Background())
	if !gateway.IsBenignAPIError(err) {
		t.Fatalf("expected benign APIError, got %v", err)
	}
	if o.Status != StatusOpen {
		t.Errorf("status must not change, got %q", o.Status)
	}
}
