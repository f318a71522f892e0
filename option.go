package tokensale

import (
	"time"

	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/metrics"
	"github.com/vitwit/tokensale/settlement"
)

type Option func(*TokenSale)

func WithLogger(l logger.Logger) Option {
	return func(t *TokenSale) {
		t.logger = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(t *TokenSale) {
		t.metrics = metrics.OrNoop(r)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *TokenSale) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithSettlementObserver registers fn to receive every completed settlement
func WithSettlementObserver(fn settlement.Observer) Option {
	return func(t *TokenSale) {
		t.observer = fn
	}
}
