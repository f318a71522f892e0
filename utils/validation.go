package utils

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/tokensale/types"
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ParsePositiveAmount parses a base-10 integer amount that must be > 0
func ParsePositiveAmount(value string) (*big.Int, error) {
	if value == "" {
		return nil, &types.SaleError{Code: types.ErrInvalidPayload, Message: "amount cannot be empty"}
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid integer amount %q", value),
		}
	}
	if n.Sign() <= 0 {
		return nil, &types.SaleError{Code: types.ErrInvalidPayload, Message: "amount must be positive"}
	}

	return n, nil
}

// CeilAmount parses a decimal amount and rounds it up to an integer number of
// minor units. Rounding up keeps a quote from undercharging.
func CeilAmount(amount string) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return dec.Ceil().BigInt(), nil
}

// ConvertAmount converts amount with a decimal rate, rounding up
func ConvertAmount(amount *big.Int, rate decimal.Decimal) (*big.Int, error) {
	if rate.IsNegative() || rate.IsZero() {
		return nil, fmt.Errorf("rate must be positive")
	}
	return decimal.NewFromBigInt(amount, 0).Mul(rate).Ceil().BigInt(), nil
}

// ParseAddress validates a 0x-prefixed hex account address
func ParseAddress(address string) (common.Address, error) {
	if address == "" {
		return common.Address{}, &types.SaleError{Code: types.ErrInvalidPayload, Message: "address cannot be empty"}
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid address %q", address),
		}
	}
	return common.HexToAddress(address), nil
}

// ParseTokenIdentifier validates a token identifier
func ParseTokenIdentifier(token string) (types.TokenIdentifier, error) {
	id := types.TokenIdentifier(token)
	if !id.IsValid() {
		return "", &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("invalid token identifier %q", token),
		}
	}
	return id, nil
}
