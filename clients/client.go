package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

// Ledger is the asset transfer primitive the sale settles against. Holdings
// are the balances of the sale account itself.
type Ledger interface {
	// Balance returns the sale account's holdings of asset.
	Balance(ctx context.Context, asset types.Asset) (*big.Int, error)
	// Receive takes custody of a payment sent by from.
	Receive(ctx context.Context, from common.Address, payment types.AssetAmount) error
	// Transfer sends a batch of asset amounts to one recipient. Either every
	// line moves or none does.
	Transfer(ctx context.Context, to common.Address, batch []types.AssetAmount) error
	Close()
}

// QuoteHandler receives the answer to a quote request. It is invoked exactly
// once per accepted request.
type QuoteHandler func(ctx context.Context, result types.QuoteResult)

// Quoter issues asynchronous quote requests to price oracles
type Quoter interface {
	RequestQuote(ctx context.Context, req types.QuoteRequest, handler QuoteHandler) error
	Close()
}
