package clients

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/tokensale/types"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const nativeTransferGas = uint64(21000)

var erc20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// evmBackend is the subset of *ethclient.Client the ledger needs
type evmBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

var _ Ledger = (*EVMLedger)(nil)

// EVMLedger settles against an EVM chain. The sale account is the signer key;
// the native currency and ERC-20 tokens are supported, nonce-bearing assets
// are not.
type EVMLedger struct {
	eth      evmBackend
	signer   *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	native   types.TokenIdentifier
	tokens   map[types.TokenIdentifier]common.Address
	tokenABI abi.ABI

	// serializes account nonces across concurrent settlements
	sendMu sync.Mutex

	mu       sync.Mutex
	consumed map[common.Hash]struct{}
}

// NewEVMLedger dials the configured RPC endpoint
func NewEVMLedger(ctx context.Context, cfg types.LedgerConfig) (*EVMLedger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKeyHex, "0x"))
	if err != nil {
		return nil, types.NewError(types.ErrConfigError, "invalid signer key: %v", err)
	}

	tokens := make(map[types.TokenIdentifier]common.Address, len(cfg.Tokens))
	for id, addr := range cfg.Tokens {
		if !common.IsHexAddress(addr) {
			return nil, types.NewError(types.ErrConfigError, "token %s has invalid contract address %q", id, addr)
		}
		tokens[id] = common.HexToAddress(addr)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("ethereum rpc dial: %w", err)
	}

	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	} else {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("chain id fetch failed: %w", err)
		}
	}

	return newEVMLedger(eth, key, chainID, cfg.NativeToken, tokens)
}

func newEVMLedger(
	eth evmBackend,
	key *ecdsa.PrivateKey,
	chainID *big.Int,
	native types.TokenIdentifier,
	tokens map[types.TokenIdentifier]common.Address,
) (*EVMLedger, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi failed: %w", err)
	}
	if native == "" {
		native = "ETH"
	}

	return &EVMLedger{
		eth:      eth,
		signer:   key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		native:   native,
		tokens:   tokens,
		tokenABI: parsedABI,
		consumed: make(map[common.Hash]struct{}),
	}, nil
}

// Address returns the sale account
func (e *EVMLedger) Address() common.Address {
	return e.address
}

// Balance implements Ledger.
func (e *EVMLedger) Balance(ctx context.Context, asset types.Asset) (*big.Int, error) {
	if err := e.supported(asset); err != nil {
		return nil, err
	}

	if asset.Token == e.native {
		return e.eth.BalanceAt(ctx, e.address, nil)
	}

	tokenAddr := e.tokens[asset.Token]
	callData, err := e.tokenABI.Pack("balanceOf", e.address)
	if err != nil {
		return nil, fmt.Errorf("pack call data failed: %w", err)
	}
	out, err := e.eth.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", asset.Token, err)
	}
	values, err := e.tokenABI.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unpack balanceOf %s: %v", asset.Token, err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}
	return bal, nil
}

// Receive implements Ledger. The payment must name the transaction that
// moved it from the payer to the sale account; each transaction pays for
// one call only.
func (e *EVMLedger) Receive(ctx context.Context, from common.Address, payment types.AssetAmount) error {
	if err := e.supported(payment.Asset()); err != nil {
		return err
	}
	if !isTxHash(payment.TxHash) {
		return types.NewError(types.ErrPaymentNotVerified, "payment of %s does not reference a transaction", payment)
	}
	hash := common.HexToHash(payment.TxHash)

	e.mu.Lock()
	if _, used := e.consumed[hash]; used {
		e.mu.Unlock()
		return types.NewError(types.ErrPaymentNotVerified, "transaction %s was already used", hash.Hex())
	}
	e.consumed[hash] = struct{}{}
	e.mu.Unlock()

	if err := e.verifyPayment(ctx, hash, from, payment); err != nil {
		e.mu.Lock()
		delete(e.consumed, hash)
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *EVMLedger) verifyPayment(ctx context.Context, hash common.Hash, from common.Address, payment types.AssetAmount) error {
	receipt, err := e.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return types.NewError(types.ErrPaymentNotVerified, "receipt of %s: %v", hash.Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return types.NewError(types.ErrPaymentNotVerified, "transaction %s failed on chain", hash.Hex())
	}

	var paid *big.Int
	if payment.Token == e.native {
		paid, err = e.nativePaid(ctx, hash, from)
		if err != nil {
			return err
		}
	} else {
		paid = e.tokenPaid(receipt, e.tokens[payment.Token], from)
	}

	if paid.Cmp(payment.Amount) < 0 {
		return types.NewError(types.ErrPaymentNotVerified,
			"transaction %s moved %s %s from %s to the sale account, payment claims %s",
			hash.Hex(), paid, payment.Token, from.Hex(), payment.Amount)
	}
	return nil
}

func (e *EVMLedger) nativePaid(ctx context.Context, hash common.Hash, from common.Address) (*big.Int, error) {
	tx, pending, err := e.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, types.NewError(types.ErrPaymentNotVerified, "transaction %s: %v", hash.Hex(), err)
	}
	if pending {
		return nil, types.NewError(types.ErrPaymentNotVerified, "transaction %s is still pending", hash.Hex())
	}
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(e.chainID), tx)
	if err != nil {
		return nil, types.NewError(types.ErrPaymentNotVerified, "sender of %s: %v", hash.Hex(), err)
	}
	if sender != from || tx.To() == nil || *tx.To() != e.address {
		return new(big.Int), nil
	}
	return new(big.Int).Set(tx.Value()), nil
}

// tokenPaid sums the ERC-20 Transfer events of contract from payer to the
// sale account.
func (e *EVMLedger) tokenPaid(receipt *ethtypes.Receipt, contract, from common.Address) *big.Int {
	sum := new(big.Int)
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract || len(log.Topics) != 3 || log.Topics[0] != erc20TransferTopic {
			continue
		}
		if common.BytesToAddress(log.Topics[1].Bytes()) != from || common.BytesToAddress(log.Topics[2].Bytes()) != e.address {
			continue
		}
		sum.Add(sum, new(big.Int).SetBytes(log.Data))
	}
	return sum
}

func isTxHash(s string) bool {
	if len(s) != 2+2*common.HashLength || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// Transfer implements Ledger. Every line is checked against holdings before
// the first transaction is broadcast.
func (e *EVMLedger) Transfer(ctx context.Context, to common.Address, batch []types.AssetAmount) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	need := make(map[types.Asset]*big.Int)
	for _, line := range batch {
		if err := e.supported(line.Asset()); err != nil {
			return err
		}
		sum, ok := need[line.Asset()]
		if !ok {
			sum = new(big.Int)
			need[line.Asset()] = sum
		}
		sum.Add(sum, line.Amount)
	}
	for asset, amount := range need {
		have, err := e.Balance(ctx, asset)
		if err != nil {
			return err
		}
		if have.Cmp(amount) < 0 {
			return &types.SaleError{
				Code:    types.ErrInsufficientFunds,
				Message: fmt.Sprintf("sale account holds %s of %s, needs %s", have, asset, amount),
			}
		}
	}

	for _, line := range batch {
		if line.Amount.Sign() == 0 {
			continue
		}
		if _, err := e.send(ctx, to, line); err != nil {
			return err
		}
	}
	return nil
}

func (e *EVMLedger) send(ctx context.Context, to common.Address, line types.AssetAmount) (common.Hash, error) {
	var (
		target   common.Address
		value    = new(big.Int)
		callData []byte
		gasLimit = nativeTransferGas
		err      error
	)

	if line.Token == e.native {
		target = to
		value.Set(line.Amount)
	} else {
		target = e.tokens[line.Token]
		callData, err = e.tokenABI.Pack("transfer", to, line.Amount)
		if err != nil {
			return common.Hash{}, fmt.Errorf("pack call data failed: %w", err)
		}
		gasLimit, err = e.eth.EstimateGas(ctx, ethereum.CallMsg{From: e.address, To: &target, Data: callData})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas failed: %w", err)
		}
	}

	gasPrice, err := e.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price failed: %w", err)
	}

	nonce, err := e.eth.PendingNonceAt(ctx, e.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce failed: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, target, value, gasLimit, gasPrice, callData)

	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.chainID), e.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx failed: %w", err)
	}

	if err := e.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx failed: %w", err)
	}
	return signed.Hash(), nil
}

func (e *EVMLedger) supported(asset types.Asset) error {
	if asset.Nonce != 0 {
		return types.NewError(types.ErrUnsupportedAsset, "nonce-bearing asset %s cannot move on an EVM ledger", asset)
	}
	if asset.Token == e.native {
		return nil
	}
	if _, ok := e.tokens[asset.Token]; !ok {
		return types.NewError(types.ErrUnsupportedAsset, "no contract configured for token %s", asset.Token)
	}
	return nil
}

// Close implements Ledger.
func (e *EVMLedger) Close() {
	e.eth.Close()
}
