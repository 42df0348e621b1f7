package responder

import (
	"context"
	"sync"

	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/protocol"
)

type modelCall struct {
	system string
	user   string
}

type fakeModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []modelCall
}

func (f *fakeModel) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCall{system: system, user: user})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type marketCall struct {
	method string
	symbol string
	arg    interface{}
}

type fakeMarket struct {
	unreachable bool
	reply       string
	bars        []protocol.HistoricalBar
	err         error
	calls       []marketCall
}

func (f *fakeMarket) Reachable() bool { return !f.unreachable }

func (f *fakeMarket) FetchStockPrice(_ context.Context, symbol, date string) (string, error) {
	f.calls = append(f.calls, marketCall{protocol.MethodFetchStockPrice, symbol, date})
	return f.reply, f.err
}

func (f *fakeMarket) FetchHistoricalData(_ context.Context, symbol, period string) ([]protocol.HistoricalBar, error) {
	f.calls = append(f.calls, marketCall{protocol.MethodFetchHistoricalData, symbol, period})
	return f.bars, f.err
}

func (f *fakeMarket) PredictStockPrice(_ context.Context, symbol string, days int) (string, error) {
	f.calls = append(f.calls, marketCall{protocol.MethodPredictStockPrice, symbol, days})
	return f.reply, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(context.Context, document.Document) (string, error) {
	return f.text, f.err
}
