package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitwit/tokensale/types"
)

// statusFor maps sale error codes to HTTP statuses
func statusFor(code string) int {
	switch code {
	case types.ErrInvalidPayload, types.ErrInvalidPaymentAmount, types.ErrUnsupportedPaymentToken,
		types.ErrUnsupportedAsset, types.ErrInsufficientFunds:
		return http.StatusBadRequest
	case types.ErrPaymentNotVerified:
		return http.StatusPaymentRequired
	case types.ErrUnauthorized:
		return http.StatusForbidden
	case types.ErrContentLineNotFound, types.ErrUnknownQuoteRequest:
		return http.StatusNotFound
	case types.ErrPriceNotSet, types.ErrContentNotSet, types.ErrInsufficientHoldings, types.ErrNothingToWithdraw:
		return http.StatusConflict
	case types.ErrQuoteRequestFailed, types.ErrTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var se *types.SaleError
	if !errors.As(err, &se) {
		var sv types.SaleError
		if errors.As(err, &sv) {
			se = &sv
		} else {
			se = &types.SaleError{Code: "INTERNAL", Message: err.Error()}
		}
	}
	writeJSON(w, statusFor(se.Code), se)
}
