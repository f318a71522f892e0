package types

import (
	"errors"
	"fmt"
)

// Error types
type SaleError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e SaleError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrPriceNotSet             = "PRICE_NOT_SET"
	ErrContentNotSet           = "CONTENT_NOT_SET"
	ErrInsufficientHoldings    = "INSUFFICIENT_CONTRACT_HOLDINGS"
	ErrInvalidPaymentAmount    = "INVALID_PAYMENT_AMOUNT"
	ErrUnsupportedPaymentToken = "UNSUPPORTED_PAYMENT_TOKEN"
	ErrUnauthorized            = "UNAUTHORIZED"
	ErrInvalidPayload          = "INVALID_PAYLOAD"
	ErrConfigError             = "CONFIG_ERROR"
	ErrQuoteRequestFailed      = "QUOTE_REQUEST_FAILED"
	ErrUnknownQuoteRequest     = "UNKNOWN_QUOTE_REQUEST"
	ErrTransferFailed          = "TRANSFER_FAILED"
	ErrInsufficientFunds       = "INSUFFICIENT_FUNDS"
	ErrContentLineNotFound     = "CONTENT_LINE_NOT_FOUND"
	ErrNothingToWithdraw       = "NOTHING_TO_WITHDRAW"
	ErrUnsupportedAsset        = "UNSUPPORTED_ASSET"
	ErrPaymentNotVerified      = "PAYMENT_NOT_VERIFIED"
)

// NewError builds a SaleError with a formatted message
func NewError(code string, format string, args ...interface{}) *SaleError {
	return &SaleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the code of a SaleError anywhere in err's chain
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *SaleError
	if errors.As(err, &se) {
		return se.Code
	}
	var sv SaleError
	if errors.As(err, &sv) {
		return sv.Code
	}
	return ""
}

// HasCode reports whether err carries the given error code
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// IsCatalogError reports whether err rejects a package as not purchasable
func IsCatalogError(err error) bool {
	switch ErrorCode(err) {
	case ErrPriceNotSet, ErrContentNotSet, ErrInsufficientHoldings:
		return true
	default:
		return false
	}
}
