package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

var _ Quoter = (*RateQuoter)(nil)

// RateQuoter answers from a static table of units of token per unit of the
// reference currency. Results are still delivered asynchronously.
type RateQuoter struct {
	rates  map[types.TokenIdentifier]decimal.Decimal
	runner asyncRunner
}

func NewRateQuoter(rates map[types.TokenIdentifier]string) (*RateQuoter, error) {
	parsed := make(map[types.TokenIdentifier]decimal.Decimal, len(rates))
	for token, raw := range rates {
		dec, err := utils.ValidateAmount(raw)
		if err != nil || dec.IsZero() {
			return nil, types.NewError(types.ErrConfigError, "invalid rate %q for %s", raw, token)
		}
		parsed[token] = *dec
	}
	return &RateQuoter{rates: parsed}, nil
}

// RequestQuote implements Quoter.
func (q *RateQuoter) RequestQuote(ctx context.Context, req types.QuoteRequest, handler QuoteHandler) error {
	if err := checkQuoteRequest(req); err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	return q.runner.goAsync(func() {
		handler(bg, q.quote(req))
	})
}

func (q *RateQuoter) quote(req types.QuoteRequest) types.QuoteResult {
	r, ok := q.rates[req.To]
	if !ok {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("no rate for %s", req.To))
	}
	amount, err := utils.ConvertAmount(req.Amount, r)
	if err != nil {
		return types.QuoteFailed(req.RequestID, err.Error())
	}
	return types.QuoteOK(req.RequestID, amount)
}

// Close implements Quoter.
func (q *RateQuoter) Close() {
	q.runner.close()
}

var _ Quoter = (*ManualQuoter)(nil)

type manualRequest struct {
	req     types.QuoteRequest
	ctx     context.Context
	handler QuoteHandler
}

// ManualQuoter holds requests until Resolve is called. It lets operators and
// tests decide when and how each quote completes.
type ManualQuoter struct {
	mu      sync.Mutex
	pending map[types.RequestID]manualRequest
	order   []types.RequestID
	fail    error
}

func NewManualQuoter() *ManualQuoter {
	return &ManualQuoter{pending: make(map[types.RequestID]manualRequest)}
}

// FailRequests makes subsequent RequestQuote calls fail with err. A nil err
// restores normal behavior.
func (q *ManualQuoter) FailRequests(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fail = err
}

// RequestQuote implements Quoter.
func (q *ManualQuoter) RequestQuote(ctx context.Context, req types.QuoteRequest, handler QuoteHandler) error {
	if err := checkQuoteRequest(req); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fail != nil {
		return q.fail
	}
	if _, dup := q.pending[req.RequestID]; dup {
		return types.NewError(types.ErrQuoteRequestFailed, "request %s already outstanding", req.RequestID)
	}
	q.pending[req.RequestID] = manualRequest{req: req, ctx: context.WithoutCancel(ctx), handler: handler}
	q.order = append(q.order, req.RequestID)
	return nil
}

// Requests lists outstanding requests in issue order
func (q *ManualQuoter) Requests() []types.QuoteRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.QuoteRequest, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.pending[id].req)
	}
	return out
}

// Resolve delivers result to the handler of its request, synchronously.
func (q *ManualQuoter) Resolve(result types.QuoteResult) error {
	q.mu.Lock()
	entry, ok := q.pending[result.RequestID]
	if ok {
		delete(q.pending, result.RequestID)
		for i, id := range q.order {
			if id == result.RequestID {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
	}
	q.mu.Unlock()

	if !ok {
		return types.NewError(types.ErrUnknownQuoteRequest, "no outstanding request %s", result.RequestID)
	}
	entry.handler(entry.ctx, result)
	return nil
}

// Close implements Quoter. Outstanding requests are resolved as failures.
func (q *ManualQuoter) Close() {
	for _, req := range q.Requests() {
		_ = q.Resolve(types.QuoteFailed(req.RequestID, "quoter closed"))
	}
}
