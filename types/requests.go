package types

// Wire-level request bodies accepted by the HTTP surface. Amounts travel as
// decimal strings because JSON numbers cannot carry arbitrary precision.

// PaymentBody is a payment as submitted by its payer. TxHash references the
// on-chain transfer when the sale settles against a chain.
type PaymentBody struct {
	Token  string `json:"token" validate:"required,token"`
	Nonce  uint64 `json:"nonce"`
	Amount string `json:"amount" validate:"required,uintstr"`
	TxHash string `json:"txHash,omitempty" validate:"omitempty,hexadecimal,len=66"`
}

// PurchaseRequest is paid by the authenticated caller
type PurchaseRequest struct {
	PackageID uint8       `json:"packageId"`
	Payment   PaymentBody `json:"payment" validate:"required"`
}

type SetPriceRequest struct {
	Amount string `json:"amount" validate:"required,uintstr"`
}

type ContentLineRequest struct {
	Token  string `json:"token" validate:"required,token"`
	Nonce  uint64 `json:"nonce"`
	Amount string `json:"amount" validate:"required,uintstr"`
}

type ProxyRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type DepositRequest struct {
	Payment PaymentBody `json:"payment" validate:"required"`
}

type WithdrawRequest struct {
	Token    string `json:"token" validate:"required,token"`
	Nonce    uint64 `json:"nonce"`
	Receiver string `json:"receiver,omitempty" validate:"omitempty,eth_addr"`
}
