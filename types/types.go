package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PackageID identifies a catalog entry
type PackageID uint8

// RequestID correlates an outstanding quote request with its continuation
type RequestID string

func (r RequestID) String() string {
	return string(r)
}

// ContentVariant selects the shape of package content bundles
type ContentVariant string

const (
	// ContentSingle keeps exactly one asset line per package.
	ContentSingle ContentVariant = "single"
	// ContentMulti keeps a set of distinct asset lines keyed by token and nonce.
	ContentMulti ContentVariant = "multi"
)

// DefaultReferenceToken returns the compiled-in reference token for a variant.
// The multi variant has no default and must be configured explicitly.
func (v ContentVariant) DefaultReferenceToken() TokenIdentifier {
	if v == ContentSingle {
		return "USDC-c76f1f"
	}
	return ""
}

func (v ContentVariant) IsValid() bool {
	return v == ContentSingle || v == ContentMulti
}

// PurchaseStatus is the synchronous outcome of a purchase call
type PurchaseStatus string

const (
	StatusDelivered PurchaseStatus = "delivered"
	StatusPending   PurchaseStatus = "pending"
)

// SettlementOutcome is the terminal outcome of a quoted purchase
type SettlementOutcome string

const (
	OutcomeDelivered SettlementOutcome = "delivered"
	OutcomeRefunded  SettlementOutcome = "refunded"
)

// PendingPurchase is the purchase context carried across the quote request.
// It is consumed exactly once by the continuation.
type PendingPurchase struct {
	RequestID  RequestID       `json:"requestId"`
	PackageID  PackageID       `json:"packageId"`
	Buyer      common.Address  `json:"buyer"`
	PaidToken  TokenIdentifier `json:"paidToken"`
	PaidNonce  uint64          `json:"paidNonce"`
	PaidAmount *big.Int        `json:"paidAmount"`
	IssuedAt   time.Time       `json:"issuedAt"`
}

// Payment returns the captured payment as an asset amount
func (p PendingPurchase) Payment() AssetAmount {
	return AssetAmount{
		Token:  p.PaidToken,
		Nonce:  p.PaidNonce,
		Amount: new(big.Int).Set(p.PaidAmount),
	}
}

// Encode serializes the pending purchase
func (p PendingPurchase) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePendingPurchase restores a pending purchase produced by Encode
func DecodePendingPurchase(data []byte) (PendingPurchase, error) {
	var p PendingPurchase
	if err := json.Unmarshal(data, &p); err != nil {
		return PendingPurchase{}, &SaleError{
			Code:    ErrInvalidPayload,
			Message: fmt.Sprintf("failed to decode pending purchase: %v", err),
		}
	}
	if p.RequestID == "" || p.PaidAmount == nil {
		return PendingPurchase{}, &SaleError{
			Code:    ErrInvalidPayload,
			Message: "pending purchase is missing request id or paid amount",
		}
	}
	return p, nil
}

// QuoteRequest asks an oracle how much of To equals Amount units of From
type QuoteRequest struct {
	RequestID RequestID       `json:"requestId"`
	Oracle    common.Address  `json:"oracle"`
	From      TokenIdentifier `json:"from"`
	To        TokenIdentifier `json:"to"`
	Amount    *big.Int        `json:"amount"`
}

// QuoteResult is the oracle's answer to a QuoteRequest. A non-empty Reason
// or a negative Amount marks a failed quote.
type QuoteResult struct {
	RequestID RequestID `json:"requestId"`
	Amount    *big.Int  `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// QuoteOK builds a successful quote result
func QuoteOK(id RequestID, amount *big.Int) QuoteResult {
	return QuoteResult{RequestID: id, Amount: amount}
}

// QuoteFailed builds a failed quote result
func QuoteFailed(id RequestID, reason string) QuoteResult {
	if reason == "" {
		reason = "quote failed"
	}
	return QuoteResult{RequestID: id, Reason: reason}
}

func (q QuoteResult) OK() bool {
	return q.Reason == "" && q.Amount != nil && q.Amount.Sign() >= 0
}

// PurchaseReceipt is returned by a purchase call
type PurchaseReceipt struct {
	Status    PurchaseStatus `json:"status"`
	RequestID RequestID      `json:"requestId,omitempty"`
	PackageID PackageID      `json:"packageId"`
	Buyer     common.Address `json:"buyer"`
	Paid      AssetAmount    `json:"paid"`
	Delivered []AssetAmount  `json:"delivered,omitempty"`
}

// Settlement records how the continuation resolved a quoted purchase
type Settlement struct {
	RequestID RequestID         `json:"requestId"`
	PackageID PackageID         `json:"packageId"`
	Buyer     common.Address    `json:"buyer"`
	Outcome   SettlementOutcome `json:"outcome"`
	Delivered []AssetAmount     `json:"delivered,omitempty"`
	Refund    *AssetAmount      `json:"refund,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Latency   time.Duration     `json:"latency"`
}

// Offer is a purchasable package as seen by the validation gate
type Offer struct {
	PackageID PackageID
	Price     *big.Int
	Content   []AssetAmount
}

// OracleConfig configures the outbound quote client. Rates are only used by
// the static quoter and hold units of token per unit of reference.
type OracleConfig struct {
	Mode      string                     `yaml:"mode" json:"mode" validate:"oneof=http static"`
	BaseURL   string                     `yaml:"baseUrl" json:"baseUrl,omitempty" validate:"required_if=Mode http"`
	Timeout   time.Duration              `yaml:"timeout" json:"timeout,omitempty"`
	RateLimit float64                    `yaml:"rateLimit" json:"rateLimit,omitempty" validate:"gte=0"`
	Burst     int                        `yaml:"burst" json:"burst,omitempty" validate:"gte=0"`
	Rates     map[TokenIdentifier]string `yaml:"rates" json:"rates,omitempty"`
}

// LedgerConfig configures the asset transfer primitive
type LedgerConfig struct {
	Mode         string                     `yaml:"mode" json:"mode" validate:"oneof=memory evm"`
	RPCUrl       string                     `yaml:"rpcUrl" json:"rpcUrl,omitempty" validate:"required_if=Mode evm"`
	ChainID      int64                      `yaml:"chainId" json:"chainId,omitempty"`
	SignerKeyHex string                     `yaml:"signerKey" json:"-" validate:"required_if=Mode evm"`
	NativeToken  TokenIdentifier            `yaml:"nativeToken" json:"nativeToken,omitempty"`
	Tokens       map[TokenIdentifier]string `yaml:"tokens" json:"tokens,omitempty"`
	InitialFunds map[TokenIdentifier]string `yaml:"initialFunds" json:"initialFunds,omitempty"`
}

// SaleConfig contains the deployment configuration of a token sale
type SaleConfig struct {
	Owner          string                     `yaml:"owner" json:"owner" validate:"required,eth_addr"`
	ReferenceToken TokenIdentifier            `yaml:"referenceToken" json:"referenceToken,omitempty"`
	ContentVariant ContentVariant             `yaml:"contentVariant" json:"contentVariant" validate:"oneof=single multi"`
	Proxies        map[TokenIdentifier]string `yaml:"proxies" json:"proxies,omitempty"`
	DefaultTimeout time.Duration              `yaml:"defaultTimeout" json:"defaultTimeout,omitempty"`
	LogLevel       string                     `yaml:"logLevel" json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics  bool                       `yaml:"enableMetrics" json:"enableMetrics,omitempty"`
	ListenAddr     string                     `yaml:"listenAddr" json:"listenAddr,omitempty"`
	StateFile      string                     `yaml:"stateFile" json:"stateFile,omitempty"`
	Oracle         OracleConfig               `yaml:"oracle" json:"oracle"`
	Ledger         LedgerConfig               `yaml:"ledger" json:"ledger"`
}
