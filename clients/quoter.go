package clients

import (
	"sync"

	"github.com/vitwit/tokensale/types"
)

var errQuoterClosed = types.NewError(types.ErrQuoteRequestFailed, "quoter is closed")

// asyncRunner tracks the goroutines a quoter spawns so Close can wait for
// every in-flight request to deliver its result.
type asyncRunner struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (r *asyncRunner) goAsync(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errQuoterClosed
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return nil
}

func (r *asyncRunner) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}

func checkQuoteRequest(req types.QuoteRequest) error {
	if req.RequestID == "" {
		return types.NewError(types.ErrInvalidPayload, "quote request id is empty")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return types.NewError(types.ErrInvalidPayload, "quote amount must be positive")
	}
	if req.From == "" || req.To == "" {
		return types.NewError(types.ErrInvalidPayload, "quote currencies are required")
	}
	return nil
}
