package clients

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tokensale/types"
	"github.com/vitwit/tokensale/utils/eip712"
)

func collect() (QuoteHandler, <-chan types.QuoteResult) {
	ch := make(chan types.QuoteResult, 1)
	return func(_ context.Context, r types.QuoteResult) { ch <- r }, ch
}

func await(t *testing.T, ch <-chan types.QuoteResult) types.QuoteResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("quote result not delivered")
		return types.QuoteResult{}
	}
}

// oracleServer signs every quote with key, answering amount*2 plus a
// fractional part so rounding is exercised.
func oracleServer(key *ecdsa.PrivateKey, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "oracle down", status)
			return
		}
		var body quoteRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		segment := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/oracles/"), "/quote")
		if !common.IsHexAddress(segment) {
			http.NotFound(w, r)
			return
		}
		oracle := common.HexToAddress(segment)

		amount, _ := new(big.Int).SetString(body.Amount, 10)
		quoted := new(big.Int).Mul(amount, big.NewInt(2))
		quoted.Add(quoted, big.NewInt(1))

		digest, err := eip712.QuoteDigest(eip712.OracleDomain(oracle, big.NewInt(1)), eip712.Quote{
			RequestID: body.RequestID,
			From:      body.From,
			To:        body.To,
			Amount:    amount,
			Quoted:    quoted,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sig, err := eip712.Sign(digest, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_ = json.NewEncoder(w).Encode(quoteResponseBody{
			RequestID: body.RequestID,
			Amount:    new(big.Int).Sub(quoted, big.NewInt(1)).String() + ".4",
			Signature: "0x" + hex.EncodeToString(sig),
		})
	}))
}

func quoteRequest(oracle common.Address) types.QuoteRequest {
	return types.QuoteRequest{
		RequestID: "req-1",
		Oracle:    oracle,
		From:      "USDC-c76f1f",
		To:        "EGLD",
		Amount:    big.NewInt(100),
	}
}

func TestHTTPQuoterVerifiedQuote(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	srv := oracleServer(key, http.StatusOK)
	defer srv.Close()

	q, err := NewHTTPQuoter(types.OracleConfig{Mode: "http", BaseURL: srv.URL, RateLimit: 100, Burst: 1})
	require.NoError(t, err)
	defer q.Close()

	handler, ch := collect()
	require.NoError(t, q.RequestQuote(context.Background(), quoteRequest(crypto.PubkeyToAddress(key.PublicKey)), handler))

	res := await(t, ch)
	require.True(t, res.OK(), res.Reason)
	assert.Equal(t, types.RequestID("req-1"), res.RequestID)
	assert.Equal(t, "201", res.Amount.String())
}

func TestHTTPQuoterRejectsForeignSignature(t *testing.T) {
	signingKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	srv := oracleServer(signingKey, http.StatusOK)
	defer srv.Close()

	q, err := NewHTTPQuoter(types.OracleConfig{Mode: "http", BaseURL: srv.URL})
	require.NoError(t, err)
	defer q.Close()

	boundKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := quoteRequest(crypto.PubkeyToAddress(boundKey.PublicKey))

	handler, ch := collect()
	require.NoError(t, q.RequestQuote(context.Background(), req, handler))
	res := await(t, ch)
	assert.False(t, res.OK())
	assert.Contains(t, res.Reason, "signature")
}

func TestHTTPQuoterOracleError(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	srv := oracleServer(key, http.StatusServiceUnavailable)
	defer srv.Close()

	q, err := NewHTTPQuoter(types.OracleConfig{Mode: "http", BaseURL: srv.URL})
	require.NoError(t, err)
	defer q.Close()

	handler, ch := collect()
	require.NoError(t, q.RequestQuote(context.Background(), quoteRequest(crypto.PubkeyToAddress(key.PublicKey)), handler))
	res := await(t, ch)
	assert.False(t, res.OK())
	assert.Contains(t, res.Reason, "503")
}

func TestHTTPQuoterRejectsAfterClose(t *testing.T) {
	q, err := NewHTTPQuoter(types.OracleConfig{Mode: "http", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	q.Close()

	handler, _ := collect()
	err = q.RequestQuote(context.Background(), quoteRequest(common.HexToAddress("0x01")), handler)
	assert.True(t, types.HasCode(err, types.ErrQuoteRequestFailed))
}

func TestHTTPQuoterValidatesRequest(t *testing.T) {
	q, err := NewHTTPQuoter(types.OracleConfig{Mode: "http", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer q.Close()

	req := quoteRequest(common.HexToAddress("0x01"))
	req.Amount = big.NewInt(0)
	handler, _ := collect()
	assert.True(t, types.HasCode(q.RequestQuote(context.Background(), req, handler), types.ErrInvalidPayload))
}

func TestRateQuoter(t *testing.T) {
	q, err := NewRateQuoter(map[types.TokenIdentifier]string{"EGLD": "1.5"})
	require.NoError(t, err)
	defer q.Close()

	req := quoteRequest(common.HexToAddress("0x01"))
	req.Amount = big.NewInt(3)

	handler, ch := collect()
	require.NoError(t, q.RequestQuote(context.Background(), req, handler))
	res := await(t, ch)
	require.True(t, res.OK())
	assert.Equal(t, "5", res.Amount.String())

	req.RequestID = "req-2"
	req.To = "WBTC-aaaaaa"
	require.NoError(t, q.RequestQuote(context.Background(), req, handler))
	res = await(t, ch)
	assert.False(t, res.OK())
	assert.Contains(t, res.Reason, "no rate")
}

func TestRateQuoterRejectsBadRates(t *testing.T) {
	_, err := NewRateQuoter(map[types.TokenIdentifier]string{"EGLD": "0"})
	assert.True(t, types.HasCode(err, types.ErrConfigError))

	_, err = NewRateQuoter(map[types.TokenIdentifier]string{"EGLD": "abc"})
	assert.True(t, types.HasCode(err, types.ErrConfigError))
}

func TestManualQuoter(t *testing.T) {
	q := NewManualQuoter()
	handler, ch := collect()

	require.NoError(t, q.RequestQuote(context.Background(), quoteRequest(common.HexToAddress("0x01")), handler))
	require.Len(t, q.Requests(), 1)

	err := q.RequestQuote(context.Background(), quoteRequest(common.HexToAddress("0x01")), handler)
	assert.True(t, types.HasCode(err, types.ErrQuoteRequestFailed))

	require.NoError(t, q.Resolve(types.QuoteOK("req-1", big.NewInt(9))))
	res := await(t, ch)
	assert.Equal(t, "9", res.Amount.String())
	assert.Empty(t, q.Requests())

	err = q.Resolve(types.QuoteOK("req-1", big.NewInt(9)))
	assert.True(t, types.HasCode(err, types.ErrUnknownQuoteRequest))
}

func TestManualQuoterCloseFailsOutstanding(t *testing.T) {
	q := NewManualQuoter()
	handler, ch := collect()
	require.NoError(t, q.RequestQuote(context.Background(), quoteRequest(common.HexToAddress("0x01")), handler))

	q.Close()
	res := await(t, ch)
	assert.False(t, res.OK())
}
