package types

import (
	"fmt"
	"math/big"
	"regexp"
)

// TokenIdentifier names a fungible token, a semi-fungible collection or the
// native currency of the ledger.
type TokenIdentifier string

var tokenIdentifierPattern = regexp.MustCompile(`^[A-Z0-9]{3,10}(-[a-f0-9]{6})?$`)

func (t TokenIdentifier) IsValid() bool {
	return tokenIdentifierPattern.MatchString(string(t))
}

func (t TokenIdentifier) String() string {
	return string(t)
}

// Asset is a token together with the nonce of a specific unit. Fungible
// tokens use nonce 0.
type Asset struct {
	Token TokenIdentifier `json:"token"`
	Nonce uint64          `json:"nonce"`
}

func (a Asset) String() string {
	if a.Nonce == 0 {
		return a.Token.String()
	}
	return fmt.Sprintf("%s-%x", a.Token, a.Nonce)
}

// AssetAmount is an asset-payment record: an amount of one asset. TxHash
// names the ledger transaction that carried a payment; content lines and
// in-process payments leave it empty.
type AssetAmount struct {
	Token  TokenIdentifier `json:"token" validate:"required"`
	Nonce  uint64          `json:"nonce"`
	Amount *big.Int        `json:"amount" validate:"required"`
	TxHash string          `json:"txHash,omitempty"`
}

// NewAssetAmount is a shorthand for fungible amounts
func NewAssetAmount(token TokenIdentifier, nonce uint64, amount int64) AssetAmount {
	return AssetAmount{Token: token, Nonce: nonce, Amount: big.NewInt(amount)}
}

func (a AssetAmount) Asset() Asset {
	return Asset{Token: a.Token, Nonce: a.Nonce}
}

// Clone returns a copy that does not share the amount
func (a AssetAmount) Clone() AssetAmount {
	out := a
	if a.Amount != nil {
		out.Amount = new(big.Int).Set(a.Amount)
	}
	return out
}

func (a AssetAmount) String() string {
	amount := "<nil>"
	if a.Amount != nil {
		amount = a.Amount.String()
	}
	return fmt.Sprintf("%s %s", amount, a.Asset())
}

// CloneAmounts deep-copies a list of asset amounts
func CloneAmounts(in []AssetAmount) []AssetAmount {
	if in == nil {
		return nil
	}
	out := make([]AssetAmount, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
