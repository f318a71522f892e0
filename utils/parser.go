package utils

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/tokensale/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("token", validateTokenTag)
	_ = validate.RegisterValidation("uintstr", validateUintStringTag)
}

func validateTokenTag(fl validator.FieldLevel) bool {
	return types.TokenIdentifier(fl.Field().String()).IsValid()
}

func validateUintStringTag(fl validator.FieldLevel) bool {
	_, ok := new(big.Int).SetString(fl.Field().String(), 10)
	return ok
}

// ValidateStruct runs struct-tag validation and reports failures as an
// INVALID_PAYLOAD error.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}
	return nil
}

// Validator exposes the shared validator for packages that validate their
// own configuration structs.
func Validator() *validator.Validate {
	return validate
}

// DecodeJSON parses data into dst and validates it using struct tags
func DecodeJSON(data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &types.SaleError{
			Code:    types.ErrInvalidPayload,
			Message: fmt.Sprintf("failed to parse request: %v", err),
		}
	}
	return ValidateStruct(dst)
}

// ToAssetAmount converts a payment body to a domain payment
func ToAssetAmount(body types.PaymentBody) (types.AssetAmount, error) {
	amount, err := ParsePositiveAmount(body.Amount)
	if err != nil {
		return types.AssetAmount{}, err
	}
	return types.AssetAmount{
		Token:  types.TokenIdentifier(body.Token),
		Nonce:  body.Nonce,
		Amount: amount,
		TxHash: body.TxHash,
	}, nil
}
