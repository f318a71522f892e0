// Package eip712 builds the EIP-712 digest an oracle signs over a price quote
// and recovers the signer from a quote signature.
package eip712

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DomainName    = "TokenSaleOracle"
	DomainVersion = "1"

	QuoteType = "Quote(string requestId,string from,string to,uint256 amount,uint256 quoted)"
)

var (
	quoteTypeHash  = crypto.Keccak256Hash([]byte(QuoteType))
	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// Domain is the EIP-712 domain of an oracle. VerifyingContract is the oracle
// address bound in the sale.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// OracleDomain returns the quote domain for an oracle on a chain
func OracleDomain(oracle common.Address, chainID *big.Int) Domain {
	return Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           chainID,
		VerifyingContract: oracle,
	}
}

// Quote is the signed statement "Quoted units of To equal Amount units of From"
type Quote struct {
	RequestID string
	From      string
	To        string
	Amount    *big.Int
	Quoted    *big.Int
}

// padLeft32 returns a 32-byte right-aligned representation of i
func padLeft32(i *big.Int) []byte {
	return common.LeftPadBytes(i.Bytes(), 32)
}

func addressTo32(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// DomainSeparator computes
// keccak256(abi.encode(domainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == nil {
		return common.Hash{}, errors.New("incomplete domain")
	}
	if d.ChainID.Sign() < 0 {
		return common.Hash{}, errors.New("negative chain id")
	}

	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		padLeft32(d.ChainID),
		addressTo32(d.VerifyingContract),
	), nil
}

// HashQuoteStruct computes keccak256(abi.encode(QUOTE_TYPEHASH, ...)) with
// strings hashed per EIP-712.
func HashQuoteStruct(q Quote) (common.Hash, error) {
	if q.Amount == nil || q.Quoted == nil {
		return common.Hash{}, errors.New("quote amounts are required")
	}
	if q.Amount.Sign() < 0 || q.Quoted.Sign() < 0 {
		return common.Hash{}, errors.New("quote amounts must not be negative")
	}

	return crypto.Keccak256Hash(
		quoteTypeHash.Bytes(),
		crypto.Keccak256([]byte(q.RequestID)),
		crypto.Keccak256([]byte(q.From)),
		crypto.Keccak256([]byte(q.To)),
		padLeft32(q.Amount),
		padLeft32(q.Quoted),
	), nil
}

// TypedDataHash returns keccak256("\x19\x01" || domainSeparator || structHash)
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

// QuoteDigest is the digest an oracle signs for q
func QuoteDigest(d Domain, q Quote) (common.Hash, error) {
	domainSep, err := DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}
	structHash, err := HashQuoteStruct(q)
	if err != nil {
		return common.Hash{}, err
	}
	return TypedDataHash(domainSep, structHash), nil
}

// Sign signs digest and returns the 65-byte R||S||V signature with V in 27/28
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner recovers the address that signed digest.
// V may be 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("sig to pub failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature checks that the hex signature over digest was produced by expected
func VerifySignature(digest common.Hash, signatureHex string, expected common.Address) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("quote signed by %s, expected %s", signer.Hex(), expected.Hex())
	}
	return nil
}
