package escrow

import (
	"testing"
)

func TestListingIDsAreSequentialAndNeverReused(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	first := mustListing(t, e, coin("X", 1), coin("Y", 1))
	if first.ID != 1 {
		t.Fatalf("first listing id = %d, want 1", first.ID)
	}
	if _, err := e.RemoveListing(testSeller, first.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	second := mustListing(t, e, coin("X", 1), coin("Y", 1))
	if second.ID != 2 {
		t.Fatalf("second listing id = %d, want 2", second.ID)
	}
}

func TestCreateListingValidation(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	cases := map[string]struct {
		deposit GenericBalance
		ask     GenericBalance
	}{
		"empty deposit":        {GenericBalance{}, coin("Y", 1)},
		"empty ask":            {coin("X", 1), GenericBalance{}},
		"zero deposit":         {coin("X", 0), coin("Y", 1)},
		"unlisted deposit":     {coin("Q", 1), coin("Y", 1)},
		"unlisted ask":         {coin("X", 1), coin("Q", 1)},
		"unlisted token":       {FromToken(testOther, uint256One()), coin("Y", 1)},
		"duplicate ask denoms": {coin("X", 1), FromCoins(NewCoin("Y", 1), NewCoin("Y", 2))},
	}
	for name, tc := range cases {
		_, err := e.CreateListing(testSeller, tc.deposit, CreateListingMsg{Ask: tc.ask})
		if KindOf(err) != KindValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestPreparationIsCreatorOnly(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))

	_, err := e.AddFundsToSale(testOther, l.ID, coin("X", 1))
	requireKind(t, err, KindUnauthorized)
	_, err = e.ChangeAsk(testOther, l.ID, coin("Y", 1))
	requireKind(t, err, KindUnauthorized)
	_, err = e.RemoveListing(testOther, l.ID)
	requireKind(t, err, KindUnauthorized)
	_, err = e.Finalize(testOther, l.ID, 10, GenericBalance{})
	requireKind(t, err, KindUnauthorized)
	_, err = e.AddFundsToSale(testSeller, 99, coin("X", 1))
	requireKind(t, err, KindNotFound)
}

func TestAddFundsMergesIntoForSale(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	l, err := e.AddFundsToSale(testSeller, l.ID, coin("X", 20))
	if err != nil {
		t.Fatalf("add funds: %v", err)
	}
	if len(l.ForSale.Native) != 1 || l.ForSale.Native[0].Amount.Uint64() != 120 {
		t.Fatalf("expected a single 120 X entry, got %+v", l.ForSale.Native)
	}
	l, err = e.ChangeAsk(testSeller, l.ID, coin("Y", 70))
	if err != nil {
		t.Fatalf("change ask: %v", err)
	}
	if err := Compare(l.Ask, coin("Y", 70)); err != nil {
		t.Fatalf("ask not replaced: %v", err)
	}
}

func TestFinalizeFreezesListing(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := finalized(t, e, 500)
	if l.Status != StatusFinalizedReady || l.FinalizedTime != 1_000 || l.ExpirationTime != 1_500 {
		t.Fatalf("unexpected finalized listing %+v", l)
	}
	_, err := e.AddFundsToSale(testSeller, l.ID, coin("X", 1))
	requireKind(t, err, KindInvalidState)
	_, err = e.ChangeAsk(testSeller, l.ID, coin("Y", 1))
	requireKind(t, err, KindInvalidState)
	_, err = e.RemoveListing(testSeller, l.ID)
	requireKind(t, err, KindInvalidState)
	_, err = e.Finalize(testSeller, l.ID, 10, GenericBalance{})
	requireKind(t, err, KindInvalidState)
}

func TestFinalizeDurationBounds(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	_, err := e.Finalize(testSeller, l.ID, 0, GenericBalance{})
	requireKind(t, err, KindValidation)
	_, err = e.Finalize(testSeller, l.ID, DefaultMaxDuration+1, GenericBalance{})
	requireKind(t, err, KindValidation)
	if _, err := e.Finalize(testSeller, l.ID, DefaultMaxDuration, GenericBalance{}); err != nil {
		t.Fatalf("maximum duration should be accepted: %v", err)
	}
}

func TestFinalizeOverflowIsReported(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxDuration = ^uint64(0)
	e := newTestEngine(t, cfg)
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	_, err := e.Finalize(testSeller, l.ID, ^uint64(0), GenericBalance{})
	requireKind(t, err, KindOverflow)
}

func TestFinalizeRejectsUnexpectedFee(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	_, err := e.Finalize(testSeller, l.ID, 10, coin("X", 1))
	requireKind(t, err, KindValidation)
}

func TestRemoveListingRefundsCreator(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	transfers, err := e.RemoveListing(testSeller, l.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Recipient != testSeller {
		t.Fatalf("unexpected transfers %+v", transfers)
	}
	_, err = e.Listing(l.ID)
	requireKind(t, err, KindNotFound)
}

func TestBuyGuards(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	prepared := mustListing(t, e, coin("X", 100), coin("Y", 50))
	_, _, err := e.BuyListing(testBuyer, prepared.ID, coin("Y", 50), 0)
	requireKind(t, err, KindInvalidState)

	_, _, err = e.BuyListing(testBuyer, 42, coin("Y", 50), 0)
	requireKind(t, err, KindNotFound)

	open := finalized(t, e, 100)
	_, _, err = e.BuyListing(testBuyer, open.ID, coin("Y", 49), 0)
	requireKind(t, err, KindValidation)
	_, _, err = e.BuyListing(testBuyer, open.ID, FromCoins(NewCoin("Y", 50), NewCoin("X", 1)), 0)
	requireKind(t, err, KindValidation)
	_, _, err = e.BuyListing(testBuyer, open.ID, coin("Y", 50), 7)
	requireKind(t, err, KindNotFound)

	e.at(1_100)
	_, _, err = e.BuyListing(testBuyer, open.ID, coin("Y", 50), 0)
	requireKind(t, err, KindInvalidState)
}

func TestBuyReservedListing(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l, err := e.CreateListing(testSeller, coin("X", 100), CreateListingMsg{Ask: coin("Y", 50), WhitelistedBuyer: testBuyer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.Finalize(testSeller, l.ID, 100, GenericBalance{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	_, _, err = e.BuyListing(testOther, l.ID, coin("Y", 50), 0)
	requireKind(t, err, KindUnauthorized)
	bought, _, err := e.BuyListing(testBuyer, l.ID, coin("Y", 50), 0)
	if err != nil {
		t.Fatalf("reserved buyer should succeed: %v", err)
	}
	if bought.Claimant != testBuyer || bought.Status != StatusClosed {
		t.Fatalf("unexpected listing %+v", bought)
	}
}

func TestBuyOrderInsensitivePayment(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 100), FromCoins(NewCoin("X", 5), NewCoin("Y", 50)))
	if _, err := e.Finalize(testSeller, l.ID, 100, GenericBalance{}); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, _, err := e.BuyListing(testBuyer, l.ID, FromCoins(NewCoin("Y", 50), NewCoin("X", 5)), 0); err != nil {
		t.Fatalf("reordered payment should match: %v", err)
	}
}

func TestBuyDrawsOnBucket(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := finalized(t, e, 100)
	bucket, err := e.CreateBucket(testBuyer, 0, coin("Y", 30))
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	if _, _, err := e.BuyListing(testBuyer, l.ID, coin("Y", 20), bucket.ID); err != nil {
		t.Fatalf("buy: %v", err)
	}
	left, err := e.Buckets(testBuyer)
	if err != nil {
		t.Fatalf("buckets: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("bucket should be consumed")
	}
	proceeds, _ := e.Buckets(testSeller)
	if len(proceeds) != 1 || proceeds[0].Funds.Coin("Y").Uint64() != 50 {
		t.Fatalf("seller should receive a 50 Y bucket, got %+v", proceeds)
	}
}

func TestWithdrawIsClaimantOnly(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := finalized(t, e, 100)
	_, err := e.WithdrawPurchased(testBuyer, l.ID)
	requireKind(t, err, KindInvalidState)
	if _, _, err := e.BuyListing(testBuyer, l.ID, coin("Y", 50), 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err = e.WithdrawPurchased(testSeller, l.ID)
	requireKind(t, err, KindUnauthorized)
	transfers, err := e.WithdrawPurchased(testBuyer, l.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Recipient != testBuyer || transfers[0].Asset.Coin.Amount.Uint64() != 100 {
		t.Fatalf("unexpected transfers %+v", transfers)
	}
	_, err = e.WithdrawPurchased(testBuyer, l.ID)
	requireKind(t, err, KindNotFound)
}

func TestRefundExpired(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := finalized(t, e, 10)
	_, err := e.RefundExpired(testOther, l.ID)
	requireKind(t, err, KindInvalidState)

	e.at(1_010)
	transfers, err := e.RefundExpired(testOther, l.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Recipient != testSeller {
		t.Fatalf("refund must pay the creator: %+v", transfers)
	}
	_, _, err = e.BuyListing(testBuyer, l.ID, coin("Y", 50), 0)
	requireKind(t, err, KindNotFound)
}

func TestRefundReturnsListingFee(t *testing.T) {
	cfg := defaultConfig()
	cfg.ListingFee = uint256Of(3)
	e := newTestEngine(t, cfg)
	l := mustListing(t, e, coin("X", 100), coin("Y", 50))
	if _, err := e.Finalize(testSeller, l.ID, 10, coin(DefaultFeeDenom, 2)); KindOf(err) != KindValidation {
		t.Fatalf("wrong fee amount should fail, got %v", err)
	}
	if _, err := e.Finalize(testSeller, l.ID, 10, coin(DefaultFeeDenom, 3)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	e.at(2_000)
	transfers, err := e.RefundExpired(testSeller, l.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("expected asset and fee refund, got %+v", transfers)
	}
}

func TestListingEventsAreEmitted(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	finalized(t, e, 100)
	got := e.buffer.Events()
	if len(got) != 2 {
		t.Fatalf("expected two events, got %d", len(got))
	}
	if got[0].EventType() != EventTypeListingCreated || got[1].EventType() != EventTypeListingFinalized {
		t.Fatalf("unexpected events %v", got)
	}
}
