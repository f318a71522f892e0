package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/vitwit/tokensale/store"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

// Verifier gates purchases on the catalog and on the sale's own holdings
type Verifier interface {
	CheckPayment(payment types.AssetAmount) error
	CheckPurchasable(ctx context.Context, id types.PackageID) (*types.Offer, error)
}

// Holdings reports the sale account's balance of an asset
type Holdings interface {
	Balance(ctx context.Context, asset types.Asset) (*big.Int, error)
}

var _ Verifier = (*VerificationService)(nil)

// VerificationService checks packages against the catalog store and ledger
type VerificationService struct {
	store    *store.Store
	holdings Holdings
	timeout  time.Duration
}

// NewVerificationService creates a new verification service
func NewVerificationService(s *store.Store, holdings Holdings, timeout time.Duration) *VerificationService {
	return &VerificationService{
		store:    s,
		holdings: holdings,
		timeout:  timeout,
	}
}

// CheckPayment validates the shape of a single-asset payment
func (s *VerificationService) CheckPayment(payment types.AssetAmount) error {
	if err := utils.ValidateStruct(payment); err != nil {
		return err
	}
	if !payment.Token.IsValid() {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid payment token %q", payment.Token),
		}
	}
	if payment.Amount.Sign() <= 0 {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: "payment amount must be positive",
		}
	}
	return nil
}

// CheckPurchasable verifies that a package can be sold right now. Errors are
// reported most specific first: price, then content, then holdings.
func (s *VerificationService) CheckPurchasable(ctx context.Context, id types.PackageID) (*types.Offer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	price, ok := s.store.PackagePrice(id)
	if !ok {
		return nil, &types.SaleError{
			Code:    types.ErrPriceNotSet,
			Message: fmt.Sprintf("package %d has no price", id),
		}
	}

	content, ok := s.store.PackageContent(id)
	if !ok || len(content) == 0 {
		return nil, &types.SaleError{
			Code:    types.ErrContentNotSet,
			Message: fmt.Sprintf("package %d has no content", id),
		}
	}

	for _, line := range content {
		have, err := s.holdings.Balance(ctx, line.Asset())
		if err != nil {
			return nil, fmt.Errorf("holdings of %s: %w", line.Asset(), err)
		}
		if have.Cmp(line.Amount) < 0 {
			return nil, &types.SaleError{
				Code:    types.ErrInsufficientHoldings,
				Message: fmt.Sprintf("package %d needs %s, sale holds %s", id, line, have),
				Data:    line,
			}
		}
	}

	return &types.Offer{PackageID: id, Price: price, Content: content}, nil
}
