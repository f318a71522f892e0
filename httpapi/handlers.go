package httpapi

import (
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vitwit/tokensale"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils"
)

const maxBodyBytes = 1 << 20

type packageView struct {
	PackageID types.PackageID     `json:"packageId"`
	Price     *big.Int            `json:"price,omitempty"`
	Content   []types.AssetAmount `json:"content,omitempty"`
}

type availabilityView struct {
	Purchasable bool             `json:"purchasable"`
	Reason      *types.SaleError `json:"reason,omitempty"`
	Offer       *packageView     `json:"offer,omitempty"`
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return types.NewError(types.ErrInvalidPayload, "read body: %v", err)
	}
	return utils.DecodeJSON(data, dst)
}

func packageIDParam(r *http.Request) (types.PackageID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, types.NewError(types.ErrInvalidPayload, "invalid package id %q", raw)
	}
	return types.PackageID(id), nil
}

func tokenParam(r *http.Request) (types.TokenIdentifier, error) {
	return utils.ParseTokenIdentifier(chi.URLParam(r, "token"))
}

func callerFrom(r *http.Request) common.Address {
	caller, _ := r.Context().Value(callerKey).(common.Address)
	return caller
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tokensale.GetVersion())
}

func (s *Server) handleOwner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"owner": s.sale.Owner().Hex()})
}

func (s *Server) handleReferenceToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"referenceToken": s.sale.ReferenceToken().String(),
		"contentVariant": string(s.sale.ContentVariant()),
	})
}

func (s *Server) handlePackages(w http.ResponseWriter, _ *http.Request) {
	offers := s.sale.Offers()
	out := make([]packageView, 0, len(offers))
	for _, o := range offers {
		out = append(out, packageView{PackageID: o.PackageID, Price: o.Price, Content: o.Content})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	price, hasPrice := s.sale.PackagePrice(id)
	content, hasContent := s.sale.PackageContent(id)
	if !hasPrice && !hasContent {
		writeJSON(w, http.StatusNotFound, types.NewError(types.ErrPriceNotSet, "package %d is not listed", id))
		return
	}
	writeJSON(w, http.StatusOK, packageView{PackageID: id, Price: price, Content: content})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	offer, err := s.sale.CheckPurchasable(r.Context(), id)
	if err != nil {
		var se *types.SaleError
		if !types.IsCatalogError(err) || !errors.As(err, &se) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, availabilityView{Purchasable: false, Reason: se})
		return
	}
	writeJSON(w, http.StatusOK, availabilityView{
		Purchasable: true,
		Offer:       &packageView{PackageID: offer.PackageID, Price: offer.Price, Content: offer.Content},
	})
}

func (s *Server) handleProxies(w http.ResponseWriter, _ *http.Request) {
	out := make(map[types.TokenIdentifier]string)
	for token, addr := range s.sale.ProxyAddresses() {
		out[token] = addr.Hex()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addr, ok := s.sale.ProxyAddress(token)
	if !ok {
		writeJSON(w, http.StatusNotFound, types.NewError(types.ErrUnsupportedPaymentToken, "no oracle bound for %s", token))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token.String(), "address": addr.Hex()})
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sale.PendingPurchases())
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req types.PurchaseRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := utils.ToAssetAmount(req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.sale.BuyTokens(r.Context(), callerFrom(r), types.PackageID(req.PackageID), payment)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Status == types.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, receipt)
}

func (s *Server) handleSetProxy(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.ProxyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.SetProxyAddress(callerFrom(r), token, common.HexToAddress(req.Address)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearProxy(w http.ResponseWriter, r *http.Request) {
	token, err := tokenParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.ClearProxyAddress(callerFrom(r), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.SetPriceRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := utils.ParsePositiveAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.SetPackagePrice(callerFrom(r), id, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearPrice(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.ClearPackagePrice(callerFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddContent(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req types.ContentLineRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	line, err := utils.ToAssetAmount(types.PaymentBody{Token: req.Token, Nonce: req.Nonce, Amount: req.Amount})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.AddPackageContent(callerFrom(r), id, line); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveContent(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := tokenParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nonce, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		writeError(w, types.NewError(types.ErrInvalidPayload, "invalid nonce"))
		return
	}
	if err := s.sale.RemovePackageContent(callerFrom(r), id, types.Asset{Token: token, Nonce: nonce}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePackage(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.RemovePackage(callerFrom(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req types.DepositRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := utils.ToAssetAmount(req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.sale.Deposit(r.Context(), callerFrom(r), payment); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req types.WithdrawRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var receiver *common.Address
	if req.Receiver != "" {
		addr := common.HexToAddress(req.Receiver)
		receiver = &addr
	}

	amount, err := s.sale.Withdraw(r.Context(), callerFrom(r), types.TokenIdentifier(req.Token), req.Nonce, receiver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amount)
}
