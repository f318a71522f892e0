package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vitwit/tokensale/clients"
	"github.com/vitwit/tokensale/logger"
	"github.com/vitwit/tokensale/metrics"
	"github.com/vitwit/tokensale/store"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/verification"
)

// Observer is notified of every settlement the engine completes
type Observer func(types.Settlement)

// Engine runs purchases against the catalog. A purchase paid in the reference
// token settles immediately; any other token suspends on an oracle quote and
// settles in OnQuoteResult.
type Engine struct {
	store    *store.Store
	ledger   clients.Ledger
	quoter   clients.Quoter
	verifier verification.Verifier
	pending  *PendingTable

	logger   logger.Logger
	metrics  metrics.Recorder
	observer Observer

	newRequestID func() types.RequestID
	now          func() time.Time
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = metrics.OrNoop(r)
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates a settlement engine
func NewEngine(
	s *store.Store,
	ledger clients.Ledger,
	quoter clients.Quoter,
	verifier verification.Verifier,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:    s,
		ledger:   ledger,
		quoter:   quoter,
		verifier: verifier,
		pending:  NewPendingTable(),
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		newRequestID: func() types.RequestID {
			return types.RequestID(uuid.NewString())
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Purchase buys package id for buyer with a single-asset payment.
func (e *Engine) Purchase(
	ctx context.Context,
	buyer common.Address,
	id types.PackageID,
	payment types.AssetAmount,
) (*types.PurchaseReceipt, error) {
	start := e.now()

	if err := e.verifier.CheckPayment(payment); err != nil {
		return nil, e.reject(id, payment, err)
	}

	offer, err := e.verifier.CheckPurchasable(ctx, id)
	if err != nil {
		return nil, e.reject(id, payment, err)
	}

	if payment.Token == e.store.ReferenceToken() {
		receipt, err := e.purchaseDirect(ctx, buyer, offer, payment)
		if err != nil {
			return nil, err
		}
		e.metrics.ObserveLatency(metrics.LatencyPurchase, e.now().Sub(start), map[string]string{"token": payment.Token.String()})
		return receipt, nil
	}

	return e.purchaseQuoted(ctx, buyer, offer, payment)
}

func (e *Engine) purchaseDirect(
	ctx context.Context,
	buyer common.Address,
	offer *types.Offer,
	payment types.AssetAmount,
) (*types.PurchaseReceipt, error) {
	if payment.Amount.Cmp(offer.Price) != 0 {
		return nil, e.reject(offer.PackageID, payment, &types.SaleError{
			Code:    types.ErrInvalidPaymentAmount,
			Message: fmt.Sprintf("package %d costs %s %s, got %s", offer.PackageID, offer.Price, payment.Token, payment.Amount),
		})
	}

	if err := e.ledger.Receive(ctx, buyer, payment); err != nil {
		return nil, e.reject(offer.PackageID, payment, err)
	}

	if err := e.ledger.Transfer(ctx, buyer, offer.Content); err != nil {
		e.returnCustody(ctx, buyer, payment)
		e.metrics.IncCounter(metrics.TransferFailed, map[string]string{"token": payment.Token.String()})
		e.logger.Error("content delivery failed", map[string]any{
			"package": offer.PackageID,
			"buyer":   buyer.Hex(),
			"error":   err,
		})
		return nil, types.NewError(types.ErrTransferFailed, "deliver package %d: %v", offer.PackageID, err)
	}

	e.metrics.IncCounter(metrics.PurchaseDirect, map[string]string{"token": payment.Token.String()})
	e.logger.Info("package delivered", map[string]any{
		"package": offer.PackageID,
		"buyer":   buyer.Hex(),
		"paid":    payment.String(),
	})

	return &types.PurchaseReceipt{
		Status:    types.StatusDelivered,
		PackageID: offer.PackageID,
		Buyer:     buyer,
		Paid:      payment.Clone(),
		Delivered: types.CloneAmounts(offer.Content),
	}, nil
}

func (e *Engine) purchaseQuoted(
	ctx context.Context,
	buyer common.Address,
	offer *types.Offer,
	payment types.AssetAmount,
) (*types.PurchaseReceipt, error) {
	oracle, ok := e.store.Oracle(payment.Token)
	if !ok {
		return nil, e.reject(offer.PackageID, payment, &types.SaleError{
			Code:    types.ErrUnsupportedPaymentToken,
			Message: fmt.Sprintf("no oracle bound for %s", payment.Token),
		})
	}

	if err := e.ledger.Receive(ctx, buyer, payment); err != nil {
		return nil, e.reject(offer.PackageID, payment, err)
	}

	p := types.PendingPurchase{
		RequestID:  e.newRequestID(),
		PackageID:  offer.PackageID,
		Buyer:      buyer,
		PaidToken:  payment.Token,
		PaidNonce:  payment.Nonce,
		PaidAmount: new(big.Int).Set(payment.Amount),
		IssuedAt:   e.now(),
	}
	if err := e.pending.Put(p); err != nil {
		e.returnCustody(ctx, buyer, payment)
		return nil, err
	}

	req := types.QuoteRequest{
		RequestID: p.RequestID,
		Oracle:    oracle,
		From:      e.store.ReferenceToken(),
		To:        payment.Token,
		Amount:    new(big.Int).Set(offer.Price),
	}
	if err := e.quoter.RequestQuote(ctx, req, e.handleQuote); err != nil {
		e.pending.Take(p.RequestID)
		e.returnCustody(ctx, buyer, payment)
		e.metrics.IncCounter(metrics.QuoteFailed, map[string]string{"token": payment.Token.String()})
		e.logger.Warn("quote request failed", map[string]any{
			"request_id": p.RequestID.String(),
			"oracle":     oracle.Hex(),
			"error":      err,
		})
		return nil, types.NewError(types.ErrQuoteRequestFailed, "request quote for %s: %v", payment.Token, err)
	}

	e.metrics.IncCounter(metrics.QuoteRequested, map[string]string{"token": payment.Token.String()})
	e.logger.Info("quote requested", map[string]any{
		"request_id": p.RequestID.String(),
		"package":    offer.PackageID,
		"buyer":      buyer.Hex(),
		"paid":       payment.String(),
		"oracle":     oracle.Hex(),
	})

	return &types.PurchaseReceipt{
		Status:    types.StatusPending,
		RequestID: p.RequestID,
		PackageID: offer.PackageID,
		Buyer:     buyer,
		Paid:      payment.Clone(),
	}, nil
}

func (e *Engine) handleQuote(ctx context.Context, result types.QuoteResult) {
	// failures are logged and counted by OnQuoteResult
	_, _ = e.OnQuoteResult(ctx, result)
}

// OnQuoteResult resumes the purchase suspended on result.RequestID. The
// buyer either receives the package content plus any overpayment, or the
// full payment back.
func (e *Engine) OnQuoteResult(ctx context.Context, result types.QuoteResult) (*types.Settlement, error) {
	p, ok, err := e.pending.Take(result.RequestID)
	if err != nil {
		e.logger.Error("pending purchase is unreadable", map[string]any{
			"request_id": result.RequestID.String(),
			"error":      err,
		})
		return nil, err
	}
	if !ok {
		e.metrics.IncCounter(metrics.UnknownQuote, nil)
		e.logger.Warn("quote for unknown request", map[string]any{"request_id": result.RequestID.String()})
		return nil, types.NewError(types.ErrUnknownQuoteRequest, "no pending purchase for request %s", result.RequestID)
	}

	paid := p.Payment()
	settlement := types.Settlement{
		RequestID: p.RequestID,
		PackageID: p.PackageID,
		Buyer:     p.Buyer,
		Latency:   e.now().Sub(p.IssuedAt),
	}

	var batch []types.AssetAmount
	switch {
	case !result.OK():
		reason := result.Reason
		if reason == "" {
			reason = fmt.Sprintf("invalid quote amount %v", result.Amount)
		}
		batch = e.refundAll(&settlement, paid, reason)
	case paid.Amount.Cmp(result.Amount) < 0:
		batch = e.refundAll(&settlement, paid, fmt.Sprintf("paid %s, quote requires %s", paid.Amount, result.Amount))
	default:
		offer, err := e.verifier.CheckPurchasable(ctx, p.PackageID)
		if err != nil {
			batch = e.refundAll(&settlement, paid, err.Error())
			break
		}
		batch = types.CloneAmounts(offer.Content)
		settlement.Outcome = types.OutcomeDelivered
		settlement.Delivered = types.CloneAmounts(offer.Content)
		if change := new(big.Int).Sub(paid.Amount, result.Amount); change.Sign() > 0 {
			refund := types.AssetAmount{Token: paid.Token, Nonce: paid.Nonce, Amount: change}
			settlement.Refund = &refund
			batch = append(batch, refund.Clone())
		}
	}

	labels := map[string]string{"token": paid.Token.String()}
	if err := e.ledger.Transfer(ctx, p.Buyer, batch); err != nil {
		e.metrics.IncCounter(metrics.TransferFailed, labels)
		e.logger.Error("settlement transfer failed", map[string]any{
			"request_id": p.RequestID.String(),
			"package":    p.PackageID,
			"buyer":      p.Buyer.Hex(),
			"outcome":    string(settlement.Outcome),
			"error":      err,
		})
		return nil, types.NewError(types.ErrTransferFailed, "settle request %s: %v", p.RequestID, err)
	}

	e.metrics.ObserveLatency(metrics.LatencyRoundTrip, settlement.Latency, labels)
	if settlement.Outcome == types.OutcomeDelivered {
		e.metrics.IncCounter(metrics.SettlementDelivered, labels)
	} else {
		e.metrics.IncCounter(metrics.SettlementRefunded, labels)
	}
	e.logger.Info("purchase settled", map[string]any{
		"request_id": p.RequestID.String(),
		"package":    p.PackageID,
		"buyer":      p.Buyer.Hex(),
		"outcome":    string(settlement.Outcome),
		"reason":     settlement.Reason,
	})

	if e.observer != nil {
		e.observer(settlement)
	}
	return &settlement, nil
}

func (e *Engine) refundAll(s *types.Settlement, paid types.AssetAmount, reason string) []types.AssetAmount {
	refund := paid.Clone()
	s.Outcome = types.OutcomeRefunded
	s.Refund = &refund
	s.Reason = reason
	return []types.AssetAmount{paid.Clone()}
}

// PendingPurchases lists purchases awaiting a quote
func (e *Engine) PendingPurchases() []types.PendingPurchase {
	return e.pending.List()
}

func (e *Engine) returnCustody(ctx context.Context, buyer common.Address, payment types.AssetAmount) {
	if err := e.ledger.Transfer(ctx, buyer, []types.AssetAmount{payment}); err != nil {
		e.metrics.IncCounter(metrics.TransferFailed, map[string]string{"token": payment.Token.String()})
		e.logger.Error("failed to return payment", map[string]any{
			"buyer":   buyer.Hex(),
			"payment": payment.String(),
			"error":   err,
		})
	}
}

func (e *Engine) reject(id types.PackageID, payment types.AssetAmount, err error) error {
	e.metrics.IncCounter(metrics.PurchaseRejected, map[string]string{"token": payment.Token.String()})
	e.logger.Debug("purchase rejected", map[string]any{
		"package": id,
		"code":    types.ErrorCode(err),
		"error":   err,
	})
	return err
}
