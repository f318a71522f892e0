package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
	"github.com/vitwit/tokensale/utils/eip712"
)

const defaultQuoteTimeout = 10 * time.Second

type quoteRequestBody struct {
	RequestID string `json:"requestId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

type quoteResponseBody struct {
	RequestID string `json:"requestId"`
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

var _ Quoter = (*HTTPQuoter)(nil)

// HTTPQuoter asks a remote oracle service for quotes. Each oracle is
// addressed by its account under the base URL and must sign its answer.
type HTTPQuoter struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	chainID *big.Int
	logger  logger.Logger
	runner  asyncRunner
}

type HTTPQuoterOption func(*HTTPQuoter)

func WithQuoterLogger(l logger.Logger) HTTPQuoterOption {
	return func(q *HTTPQuoter) {
		q.logger = logger.OrNoop(l)
	}
}

func WithQuoterChainID(chainID *big.Int) HTTPQuoterOption {
	return func(q *HTTPQuoter) {
		if chainID != nil {
			q.chainID = chainID
		}
	}
}

func WithHTTPClient(c *http.Client) HTTPQuoterOption {
	return func(q *HTTPQuoter) {
		if c != nil {
			q.client = c
		}
	}
}

func NewHTTPQuoter(cfg types.OracleConfig, opts ...HTTPQuoterOption) (*HTTPQuoter, error) {
	if cfg.BaseURL == "" {
		return nil, types.NewError(types.ErrConfigError, "oracle base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultQuoteTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	q := &HTTPQuoter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		chainID: big.NewInt(1),
		logger:  logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// RequestQuote implements Quoter. The exchange runs in the background and
// outlives ctx cancellation; the HTTP client timeout bounds it.
func (q *HTTPQuoter) RequestQuote(ctx context.Context, req types.QuoteRequest, handler QuoteHandler) error {
	if err := checkQuoteRequest(req); err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	return q.runner.goAsync(func() {
		result := q.exchange(bg, req)
		if !result.OK() {
			q.logger.Warn("quote failed", map[string]any{
				"request_id": req.RequestID.String(),
				"oracle":     req.Oracle.Hex(),
				"reason":     result.Reason,
			})
		}
		handler(bg, result)
	})
}

func (q *HTTPQuoter) exchange(ctx context.Context, req types.QuoteRequest) types.QuoteResult {
	if err := q.limiter.Wait(ctx); err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("rate limiter: %v", err))
	}

	body, err := json.Marshal(quoteRequestBody{
		RequestID: req.RequestID.String(),
		From:      req.From.String(),
		To:        req.To.String(),
		Amount:    req.Amount.String(),
	})
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("encode request: %v", err))
	}

	url := fmt.Sprintf("%s/oracles/%s/quote", q.baseURL, req.Oracle.Hex())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("oracle unreachable: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("oracle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out quoteResponseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("decode response: %v", err))
	}
	if out.RequestID != req.RequestID.String() {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("response for request %q", out.RequestID))
	}

	quoted, err := utils.CeilAmount(out.Amount)
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("invalid quoted amount: %v", err))
	}

	digest, err := eip712.QuoteDigest(eip712.OracleDomain(req.Oracle, q.chainID), eip712.Quote{
		RequestID: req.RequestID.String(),
		From:      req.From.String(),
		To:        req.To.String(),
		Amount:    req.Amount,
		Quoted:    quoted,
	})
	if err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("quote digest: %v", err))
	}
	if err := eip712.VerifySignature(digest, out.Signature, req.Oracle); err != nil {
		return types.QuoteFailed(req.RequestID, fmt.Sprintf("invalid oracle signature: %v", err))
	}

	return types.QuoteOK(req.RequestID, quoted)
}

// Close implements Quoter. It waits for in-flight exchanges.
func (q *HTTPQuoter) Close() {
	q.runner.close()
}
