package features

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/cucumber/godog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tokensale"
	"github.com/vitwit/tokensale/clients"
	"github.com/vitwit/tokensale/types"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	saleAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type saleTestContext struct {
	sale       *tokensale.TokenSale
	ledger     *clients.MemoryLedger
	quoter     *clients.ManualQuoter
	receipt    *types.PurchaseReceipt
	settlement *types.Settlement
	err        error
	initErr    error
}

func (c *saleTestContext) reset() {
	if c.sale != nil {
		c.sale.Close()
	}
	c.sale = nil
	c.ledger = clients.NewMemoryLedger(saleAddr)
	c.quoter = clients.NewManualQuoter()
	c.receipt = nil
	c.settlement = nil
	c.err = nil
	c.initErr = nil
}

func (c *saleTestContext) start(cfg *types.SaleConfig) {
	c.sale, c.initErr = tokensale.New(cfg, c.ledger, c.quoter,
		tokensale.WithSettlementObserver(func(s types.Settlement) {
			c.settlement = &s
		}),
	)
}

func fungible(token string, amount int64) types.AssetAmount {
	return types.NewAssetAmount(types.TokenIdentifier(token), 0, amount)
}

func (c *saleTestContext) aTokenSaleWithReferenceToken(token string) error {
	c.start(&types.SaleConfig{
		Owner:          owner.Hex(),
		ReferenceToken: types.TokenIdentifier(token),
		ContentVariant: types.ContentSingle,
	})
	return c.initErr
}

func (c *saleTestContext) aContentSaleWithoutAReferenceToken(variant string) error {
	c.start(&types.SaleConfig{Owner: owner.Hex(), ContentVariant: types.ContentVariant(variant)})
	return nil
}

func (c *saleTestContext) aContentSaleWithReferenceToken(variant, token string) error {
	c.start(&types.SaleConfig{
		Owner:          owner.Hex(),
		ReferenceToken: types.TokenIdentifier(token),
		ContentVariant: types.ContentVariant(variant),
	})
	return c.initErr
}

func (c *saleTestContext) packageIsPricedAt(id int, price int64) error {
	return c.sale.SetPackagePrice(owner, types.PackageID(id), big.NewInt(price))
}

func (c *saleTestContext) packageIsPricedAtWithContent(id int, price, amount int64, token string) error {
	if err := c.packageIsPricedAt(id, price); err != nil {
		return err
	}
	return c.sale.AddPackageContent(owner, types.PackageID(id), fungible(token, amount))
}

func (c *saleTestContext) theSaleHolds(amount int64, token string) error {
	c.ledger.Mint(saleAddr, fungible(token, amount))
	return nil
}

func (c *saleTestContext) oracleIsBoundTo(oracle, token string) error {
	return c.sale.SetProxyAddress(owner, types.TokenIdentifier(token), common.HexToAddress(oracle))
}

func (c *saleTestContext) theBuyerHolds(amount int64, token string) error {
	c.ledger.Mint(buyer, fungible(token, amount))
	return nil
}

func (c *saleTestContext) theBuyerPaysForPackage(amount int64, token string, id int) error {
	c.receipt, c.err = c.sale.BuyTokens(context.Background(), buyer, types.PackageID(id), fungible(token, amount))
	return nil
}

func (c *saleTestContext) lastRequest() (types.QuoteRequest, error) {
	requests := c.quoter.Requests()
	if len(requests) == 0 {
		return types.QuoteRequest{}, fmt.Errorf("no quote request outstanding")
	}
	return requests[len(requests)-1], nil
}

func (c *saleTestContext) theOracleQuotes(amount int64) error {
	req, err := c.lastRequest()
	if err != nil {
		return err
	}
	return c.quoter.Resolve(types.QuoteOK(req.RequestID, big.NewInt(amount)))
}

func (c *saleTestContext) theOracleFailsWith(reason string) error {
	req, err := c.lastRequest()
	if err != nil {
		return err
	}
	return c.quoter.Resolve(types.QuoteFailed(req.RequestID, reason))
}

func (c *saleTestContext) aQuoteArrivesForRequest(amount int64, id string) error {
	c.settlement, c.err = c.sale.OnQuoteResult(context.Background(), types.QuoteOK(types.RequestID(id), big.NewInt(amount)))
	return nil
}

func (c *saleTestContext) theOwnerRemovesPackage(id int) error {
	return c.sale.RemovePackage(owner, types.PackageID(id))
}

func (c *saleTestContext) aStrangerSetsThePriceOfPackage(id int, price int64) error {
	c.err = c.sale.SetPackagePrice(stranger, types.PackageID(id), big.NewInt(price))
	return nil
}

func (c *saleTestContext) thePurchaseIs(status string) error {
	if c.err != nil {
		return fmt.Errorf("purchase failed: %v", c.err)
	}
	if c.receipt == nil || string(c.receipt.Status) != status {
		return fmt.Errorf("expected %s receipt, got %+v", status, c.receipt)
	}
	return nil
}

func (c *saleTestContext) theCallFailsWith(code string) error {
	if c.err == nil {
		return fmt.Errorf("expected error %s, got success", code)
	}
	if got := types.ErrorCode(c.err); got != code {
		return fmt.Errorf("expected error %s, got %s (%v)", code, got, c.err)
	}
	return nil
}

func (c *saleTestContext) theBuyerHoldsExactly(amount int64, token string) error {
	got := c.ledger.BalanceOf(buyer, types.Asset{Token: types.TokenIdentifier(token)})
	if got.Cmp(big.NewInt(amount)) != 0 {
		return fmt.Errorf("buyer holds %s %s, expected %d", got, token, amount)
	}
	return nil
}

func (c *saleTestContext) theSettlementOutcomeIs(outcome string) error {
	if c.settlement == nil {
		return fmt.Errorf("no settlement recorded")
	}
	if string(c.settlement.Outcome) != outcome {
		return fmt.Errorf("settlement outcome %s (%s), expected %s", c.settlement.Outcome, c.settlement.Reason, outcome)
	}
	return nil
}

func (c *saleTestContext) theSettlementRefunds(amount int64, token string) error {
	if c.settlement == nil || c.settlement.Refund == nil {
		return fmt.Errorf("no refund recorded")
	}
	refund := c.settlement.Refund
	if string(refund.Token) != token || refund.Amount.Cmp(big.NewInt(amount)) != 0 {
		return fmt.Errorf("refund is %s, expected %d %s", refund, amount, token)
	}
	return nil
}

func (c *saleTestContext) theSettlementHasNoRefund() error {
	if c.settlement == nil {
		return fmt.Errorf("no settlement recorded")
	}
	if c.settlement.Refund != nil {
		return fmt.Errorf("unexpected refund %s", c.settlement.Refund)
	}
	return nil
}

func (c *saleTestContext) noQuoteIsOutstanding() error {
	if n := len(c.quoter.Requests()); n != 0 {
		return fmt.Errorf("%d quote requests outstanding", n)
	}
	if n := len(c.sale.PendingPurchases()); n != 0 {
		return fmt.Errorf("%d purchases pending", n)
	}
	return nil
}

func (c *saleTestContext) packageIsPricedAtExactly(id int, price int64) error {
	got, ok := c.sale.PackagePrice(types.PackageID(id))
	if !ok || got.Cmp(big.NewInt(price)) != 0 {
		return fmt.Errorf("package %d price is %v, expected %d", id, got, price)
	}
	return nil
}

func (c *saleTestContext) theReferenceTokenIs(token string) error {
	if c.initErr != nil {
		return fmt.Errorf("initialization failed: %v", c.initErr)
	}
	if got := c.sale.ReferenceToken(); string(got) != token {
		return fmt.Errorf("reference token %s, expected %s", got, token)
	}
	return nil
}

func (c *saleTestContext) initializationFailsWith(code string) error {
	if c.initErr == nil {
		return fmt.Errorf("expected %s, initialization succeeded", code)
	}
	if got := types.ErrorCode(c.initErr); got != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, c.initErr)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &saleTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a token sale with reference token "([^"]*)"$`, tc.aTokenSaleWithReferenceToken)
	ctx.Step(`^a "([^"]*)" content sale without a reference token$`, tc.aContentSaleWithoutAReferenceToken)
	ctx.Step(`^a "([^"]*)" content sale with reference token "([^"]*)"$`, tc.aContentSaleWithReferenceToken)
	ctx.Step(`^package (\d+) is priced at (\d+)$`, tc.packageIsPricedAt)
	ctx.Step(`^package (\d+) is priced at (\d+) with content (\d+) "([^"]*)"$`, tc.packageIsPricedAtWithContent)
	ctx.Step(`^the sale holds (\d+) "([^"]*)"$`, tc.theSaleHolds)
	ctx.Step(`^oracle "([^"]*)" is bound to "([^"]*)"$`, tc.oracleIsBoundTo)
	ctx.Step(`^the buyer holds (\d+) "([^"]*)"$`, tc.theBuyerHolds)

	// When steps
	ctx.Step(`^the buyer pays (\d+) "([^"]*)" for package (\d+)$`, tc.theBuyerPaysForPackage)
	ctx.Step(`^the oracle quotes (\d+)$`, tc.theOracleQuotes)
	ctx.Step(`^the oracle fails with "([^"]*)"$`, tc.theOracleFailsWith)
	ctx.Step(`^a quote of (\d+) arrives for request "([^"]*)"$`, tc.aQuoteArrivesForRequest)
	ctx.Step(`^the owner removes package (\d+)$`, tc.theOwnerRemovesPackage)
	ctx.Step(`^a stranger sets the price of package (\d+) to (\d+)$`, tc.aStrangerSetsThePriceOfPackage)

	// Then steps
	ctx.Step(`^the purchase is (delivered|pending)$`, tc.thePurchaseIs)
	ctx.Step(`^the (?:purchase|call) fails with "([^"]*)"$`, tc.theCallFailsWith)
	ctx.Step(`^the buyer holds exactly (\d+) "([^"]*)"$`, tc.theBuyerHoldsExactly)
	ctx.Step(`^the settlement outcome is "([^"]*)"$`, tc.theSettlementOutcomeIs)
	ctx.Step(`^the settlement refunds (\d+) "([^"]*)"$`, tc.theSettlementRefunds)
	ctx.Step(`^the settlement has no refund$`, tc.theSettlementHasNoRefund)
	ctx.Step(`^no quote is outstanding$`, tc.noQuoteIsOutstanding)
	ctx.Step(`^package (\d+) is priced at exactly (\d+)$`, tc.packageIsPricedAtExactly)
	ctx.Step(`^the reference token is "([^"]*)"$`, tc.theReferenceTokenIs)
	ctx.Step(`^initialization fails with "([^"]*)"$`, tc.initializationFailsWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"purchase.feature", "init.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
