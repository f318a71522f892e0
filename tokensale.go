// Package tokensale sells catalog packages for tokens. Buyers pay in the
// reference token or in any token with a bound price oracle; quoted payments
// settle once the oracle answers.
package tokensale

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/clients"
	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/metrics"
	"github.com/vitwit/tokensale/settlement"
	"github.com/vitwit/tokensale/store"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
	"github.com/vitwit/tokensale/verification"
)

// TokenSale is the main struct that provides all sale functionality
type TokenSale struct {
	config   *types.SaleConfig
	owner    common.Address
	store    *store.Store
	ledger   clients.Ledger
	quoter   clients.Quoter
	verifier *verification.VerificationService
	engine   *settlement.Engine

	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	observer settlement.Observer
}

// New creates a sale from its configuration. The reference token falls back
// to the content variant's default; a sale without one cannot start.
func New(config *types.SaleConfig, ledger clients.Ledger, quoter clients.Quoter, opts ...Option) (*TokenSale, error) {
	if config == nil {
		return nil, types.NewError(types.ErrConfigError, "config is required")
	}
	if ledger == nil || quoter == nil {
		return nil, types.NewError(types.ErrConfigError, "ledger and quoter are required")
	}

	t := &TokenSale{
		config:  config,
		ledger:  ledger,
		quoter:  quoter,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: 30 * time.Second,
	}
	if config.DefaultTimeout > 0 {
		t.timeout = config.DefaultTimeout
	}
	for _, opt := range opts {
		opt(t)
	}

	variant := config.ContentVariant
	if variant == "" {
		variant = types.ContentSingle
	}
	reference := config.ReferenceToken
	if reference == "" {
		reference = variant.DefaultReferenceToken()
	}
	if reference == "" {
		return nil, types.NewError(types.ErrConfigError, "no reference token configured for %s content", variant)
	}

	owner, err := utils.ParseAddress(config.Owner)
	if err != nil {
		return nil, types.NewError(types.ErrConfigError, "invalid owner: %v", err)
	}
	t.owner = owner

	t.store, err = store.New(variant, reference)
	if err != nil {
		return nil, err
	}
	for token, addr := range config.Proxies {
		oracle, err := utils.ParseAddress(addr)
		if err != nil {
			return nil, types.NewError(types.ErrConfigError, "invalid oracle for %s: %v", token, err)
		}
		if err := t.store.SetOracle(token, oracle); err != nil {
			return nil, types.NewError(types.ErrConfigError, "bind oracle for %s: %v", token, err)
		}
	}

	t.verifier = verification.NewVerificationService(t.store, ledger, t.timeout)
	t.engine = settlement.NewEngine(t.store, ledger, quoter, t.verifier,
		settlement.WithLogger(t.logger),
		settlement.WithMetrics(t.metrics),
		settlement.WithObserver(t.observer),
	)

	t.logger.Info("token sale initialized", map[string]any{
		"owner":           owner.Hex(),
		"reference_token": reference.String(),
		"content_variant": string(variant),
		"oracles":         len(config.Proxies),
	})
	return t, nil
}

// BuyTokens purchases package id with payment. A payment in the reference
// token settles before returning; any other token returns a pending receipt.
func (t *TokenSale) BuyTokens(
	ctx context.Context,
	buyer common.Address,
	id types.PackageID,
	payment types.AssetAmount,
) (*types.PurchaseReceipt, error) {
	return t.engine.Purchase(ctx, buyer, id, payment)
}

// OnQuoteResult delivers a quote obtained outside the configured quoter
func (t *TokenSale) OnQuoteResult(ctx context.Context, result types.QuoteResult) (*types.Settlement, error) {
	return t.engine.OnQuoteResult(ctx, result)
}

// CheckPurchasable reports whether a package can be bought right now
func (t *TokenSale) CheckPurchasable(ctx context.Context, id types.PackageID) (*types.Offer, error) {
	return t.verifier.CheckPurchasable(ctx, id)
}

func (t *TokenSale) Owner() common.Address {
	return t.owner
}

func (t *TokenSale) ReferenceToken() types.TokenIdentifier {
	return t.store.ReferenceToken()
}

func (t *TokenSale) ContentVariant() types.ContentVariant {
	return t.store.Variant()
}

func (t *TokenSale) PackagePrice(id types.PackageID) (*big.Int, bool) {
	return t.store.PackagePrice(id)
}

func (t *TokenSale) PackageContent(id types.PackageID) ([]types.AssetAmount, bool) {
	return t.store.PackageContent(id)
}

func (t *TokenSale) ProxyAddress(token types.TokenIdentifier) (common.Address, bool) {
	return t.store.Oracle(token)
}

func (t *TokenSale) ProxyAddresses() map[types.TokenIdentifier]common.Address {
	return t.store.Oracles()
}

func (t *TokenSale) Packages() []types.PackageID {
	return t.store.Packages()
}

// Offers lists every package with whatever price and content it has
func (t *TokenSale) Offers() []types.Offer {
	ids := t.store.Packages()
	out := make([]types.Offer, 0, len(ids))
	for _, id := range ids {
		price, _ := t.store.PackagePrice(id)
		content, _ := t.store.PackageContent(id)
		out = append(out, types.Offer{PackageID: id, Price: price, Content: content})
	}
	return out
}

// PendingPurchases lists purchases awaiting a quote
func (t *TokenSale) PendingPurchases() []types.PendingPurchase {
	return t.engine.PendingPurchases()
}

// Holdings returns the sale account's balance of asset
func (t *TokenSale) Holdings(ctx context.Context, asset types.Asset) (*big.Int, error) {
	return t.ledger.Balance(ctx, asset)
}

// SaveState writes the catalog and oracle bindings to path
func (t *TokenSale) SaveState(path string) error {
	return t.store.SaveFile(path)
}

// LoadState replaces the catalog and oracle bindings with the state saved at
// path. A missing file leaves the sale untouched and reports false.
func (t *TokenSale) LoadState(path string) (bool, error) {
	loaded, err := t.store.LoadFile(path)
	if err != nil {
		return false, fmt.Errorf("load state %s: %w", path, err)
	}
	if loaded {
		t.logger.Info("state restored", map[string]any{"path": path, "packages": len(t.store.Packages())})
	}
	return loaded, nil
}

// Close stops the quoter, waiting for in-flight quotes, then the ledger
func (t *TokenSale) Close() {
	t.quoter.Close()
	t.ledger.Close()
}

// Version information
const (
	Version = "1.0.0"
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":  Version,
		"content_variants": []string{string(types.ContentSingle), string(types.ContentMulti)},
		"ledgers":          []string{"memory", "evm"},
		"oracles":          []string{"http", "static"},
	}
}
