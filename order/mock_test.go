package order

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeCall struct {
	method string
	params map[string]string
}

// fakeAPI 以脚本化的应答序列模拟交易所私有接口。
type fakeAPI struct {
	t       *testing.T
	replies []fakeReply
	calls   []fakeCall
}

type fakeReply struct {
	method string
	raw    string
	err    error
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{t: t}
}

func (f *fakeAPI) expect(method, raw string) {
	f.replies = append(f.replies, fakeReply{method: method, raw: raw})
}

func (f *fakeAPI) fail(method string, err error) {
	f.replies = append(f.replies, fakeReply{method: method, err: err})
}

func (f *fakeAPI) QueryPrivate(_ context.Context, method string, params map[string]string) (json.RawMessage, error) {
	f.calls = append(f.calls, fakeCall{method: method, params: params})
	if len(f.replies) == 0 {
		f.t.Fatalf("unexpected private call %s", method)
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	if next.method != method {
		f.t.Fatalf("private call %s, scripted %s", method, next.method)
	}
	if next.err != nil {
		return nil, next.err
	}
	return json.RawMessage(next.raw), nil
}

func (f *fakeAPI) lastCall() fakeCall {
	if len(f.calls) == 0 {
		f.t.Fatal("no private calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

type fakePrices struct {
	close float64
	bid   float64
	ask   float64
	err   error
}

func (p *fakePrices) Close(string) (float64, error) { return p.close, p.err }
func (p *fakePrices) Bid(string) (float64, error)   { return p.bid, p.err }
func (p *fakePrices) Ask(string) (float64, error)   { return p.ask, p.err }

func limitInput(volume, price float64) Input {
	return Input{
		Side:      "buy",
		Pair:      "XETHZEUR",
		OrderType: "limit",
		Volume:    volume,
		Price:     price,
	}
}
