package tokensale

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale/types"
)

func (t *TokenSale) requireOwner(caller common.Address) error {
	if caller != t.owner {
		return &types.SaleError{
			Code:    types.ErrUnauthorized,
			Message: fmt.Sprintf("%s is not the sale owner", caller.Hex()),
		}
	}
	return nil
}

func (t *TokenSale) audit(action string, caller common.Address, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["action"] = action
	fields["caller"] = caller.Hex()
	t.logger.Info("admin operation", fields)
}

// SetProxyAddress binds the price oracle consulted for payments in token
func (t *TokenSale) SetProxyAddress(caller common.Address, token types.TokenIdentifier, oracle common.Address) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if err := t.store.SetOracle(token, oracle); err != nil {
		return err
	}
	t.audit("set_proxy_address", caller, map[string]any{"token": token.String(), "oracle": oracle.Hex()})
	return nil
}

func (t *TokenSale) ClearProxyAddress(caller common.Address, token types.TokenIdentifier) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	t.store.ClearOracle(token)
	t.audit("clear_proxy_address", caller, map[string]any{"token": token.String()})
	return nil
}

func (t *TokenSale) SetPackagePrice(caller common.Address, id types.PackageID, amount *big.Int) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if err := t.store.SetPackagePrice(id, amount); err != nil {
		return err
	}
	t.audit("set_package_price", caller, map[string]any{"package": id, "amount": amount.String()})
	return nil
}

func (t *TokenSale) ClearPackagePrice(caller common.Address, id types.PackageID) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	t.store.ClearPackagePrice(id)
	t.audit("clear_package_price", caller, map[string]any{"package": id})
	return nil
}

// AddPackageContent adds a line to the package bundle. Single-line sales
// replace the existing line.
func (t *TokenSale) AddPackageContent(caller common.Address, id types.PackageID, line types.AssetAmount) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if err := t.store.AddPackageContent(id, line); err != nil {
		return err
	}
	t.audit("add_package_content", caller, map[string]any{"package": id, "line": line.String()})
	return nil
}

func (t *TokenSale) RemovePackageContent(caller common.Address, id types.PackageID, asset types.Asset) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if err := t.store.RemovePackageContent(id, asset); err != nil {
		return err
	}
	t.audit("remove_package_content", caller, map[string]any{"package": id, "asset": asset.String()})
	return nil
}

// RemovePackage clears both the price and the content of a package
func (t *TokenSale) RemovePackage(caller common.Address, id types.PackageID) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	t.store.RemovePackage(id)
	t.audit("remove_package", caller, map[string]any{"package": id})
	return nil
}

// Deposit moves payment from the owner into the sale's holdings
func (t *TokenSale) Deposit(ctx context.Context, caller common.Address, payment types.AssetAmount) error {
	if err := t.requireOwner(caller); err != nil {
		return err
	}
	if err := t.verifier.CheckPayment(payment); err != nil {
		return err
	}
	if err := t.ledger.Receive(ctx, caller, payment); err != nil {
		return err
	}
	t.audit("deposit", caller, map[string]any{"payment": payment.String()})
	return nil
}

// Withdraw sends the sale's full holdings of one asset to receiver, or to
// the caller when receiver is nil.
func (t *TokenSale) Withdraw(
	ctx context.Context,
	caller common.Address,
	token types.TokenIdentifier,
	nonce uint64,
	receiver *common.Address,
) (*types.AssetAmount, error) {
	if err := t.requireOwner(caller); err != nil {
		return nil, err
	}

	asset := types.Asset{Token: token, Nonce: nonce}
	balance, err := t.ledger.Balance(ctx, asset)
	if err != nil {
		return nil, err
	}
	if balance.Sign() <= 0 {
		return nil, types.NewError(types.ErrNothingToWithdraw, "sale holds no %s", asset)
	}

	to := caller
	if receiver != nil {
		to = *receiver
	}
	amount := types.AssetAmount{Token: token, Nonce: nonce, Amount: balance}
	if err := t.ledger.Transfer(ctx, to, []types.AssetAmount{amount}); err != nil {
		return nil, types.NewError(types.ErrTransferFailed, "withdraw %s: %v", amount, err)
	}

	t.audit("withdraw", caller, map[string]any{"amount": amount.String(), "receiver": to.Hex()})
	return &amount, nil
}
