package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"cyberswap/core/events"
	"cyberswap/core/types"
	"cyberswap/native/common"
	"cyberswap/native/escrow"
	"cyberswap/native/registry"
	"cyberswap/storage"
)

var (
	admin  = types.DeriveAddress("test/admin")
	seller = types.DeriveAddress("test/seller")
	buyer  = types.DeriveAddress("test/buyer")
	other  = types.DeriveAddress("test/other")
	usdc   = registry.TokenAddress("USDC")
	punks  = registry.CollectionAddress("punks")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	host   *Host
	clock  *fakeClock
	events *recorder
}

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func coins(denom string, v uint64) []escrow.Coin {
	return []escrow.Coin{escrow.NewCoin(denom, v)}
}

func newFixture(t *testing.T, opts Options, mutate func(*Genesis)) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rec := &recorder{}
	opts.Clock = clock.Now
	opts.Emitter = rec
	h := New(storage.NewMemDB(), opts)
	genesis := Genesis{
		Escrow: escrow.Config{
			Admin: admin,
			WhitelistNative: []escrow.NativeEntry{
				{Label: "x", Denom: "X"},
				{Label: "y", Denom: "Y"},
				{Label: "z", Denom: "Z"},
			},
			WhitelistFungible: []escrow.FungibleEntry{{Label: "usdc", Contract: usdc}},
		},
		Balances: []CoinGrant{
			{Address: seller, Denom: "X", Amount: amount(100)},
			{Address: buyer, Denom: "Y", Amount: amount(50)},
			{Address: buyer, Denom: "Z", Amount: amount(100)},
		},
		Tokens: []Token{{Symbol: "USDC", Balances: []TokenGrant{{Holder: buyer, Amount: amount(500)}}}},
		NFTs:   []NFTGrant{{Collection: "punks", TokenID: "1", Owner: seller}},
	}
	if mutate != nil {
		mutate(&genesis)
	}
	if err := h.InitGenesis(context.Background(), genesis); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return &fixture{host: h, clock: clock, events: rec}
}

func (f *fixture) exec(t *testing.T, sender types.Address, funds []escrow.Coin, msg escrow.ExecuteMsg) *Result {
	t.Helper()
	res, err := f.host.Execute(context.Background(), escrow.Info{Sender: sender, Funds: funds}, msg)
	if err != nil {
		t.Fatalf("%s: %v", msg.Name(), err)
	}
	return res
}

func (f *fixture) listing(t *testing.T, id uint64) (*escrow.Listing, error) {
	t.Helper()
	out, err := f.host.Query(context.Background(), escrow.QueryMsg{Listing: &escrow.ListingRef{ListingID: id}})
	if err != nil {
		return nil, err
	}
	return out.(*escrow.Listing), nil
}

func (f *fixture) balance(t *testing.T, addr types.Address, denom string) uint64 {
	t.Helper()
	bal, err := f.host.Balance(context.Background(), addr, denom)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Uint64()
}

// openListing creates and finalizes a listing of 100 X asking 50 Y.
func (f *fixture) openListing(t *testing.T, seconds uint64) uint64 {
	t.Helper()
	res := f.exec(t, seller, coins("X", 100), escrow.ExecuteMsg{CreateListing: &escrow.CreateListingMsg{
		Ask: escrow.FromCoins(escrow.NewCoin("Y", 50)),
	}})
	id := res.Data.(*escrow.Listing).ID
	f.exec(t, seller, nil, escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: id, Seconds: seconds}})
	return id
}

func TestScenarioBuyAndWithdraw(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	id := f.openListing(t, 1000)

	res := f.exec(t, buyer, coins("Y", 50), escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id}})
	if len(res.Transfers) != 0 {
		t.Fatalf("buy must not move assets, got %v", res.Transfers)
	}
	listing, err := f.listing(t, id)
	if err != nil {
		t.Fatalf("query listing: %v", err)
	}
	if listing.Status != escrow.StatusClosed || listing.Claimant != buyer {
		t.Fatalf("unexpected listing after buy: %+v", listing)
	}

	res = f.exec(t, buyer, nil, escrow.ExecuteMsg{WithdrawPurchased: &escrow.ListingRef{ListingID: id}})
	if len(res.Transfers) != 1 {
		t.Fatalf("expected one transfer, got %d", len(res.Transfers))
	}
	tr := res.Transfers[0]
	if tr.Recipient != buyer || tr.Asset.Coin == nil || tr.Asset.Coin.Denom != "X" || tr.Asset.Coin.Amount.Uint64() != 100 {
		t.Fatalf("unexpected transfer %+v", tr)
	}
	if got := f.balance(t, buyer, "X"); got != 100 {
		t.Fatalf("buyer should hold 100 X, got %d", got)
	}
	if _, err := f.listing(t, id); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("withdrawn listing should be gone, got %v", err)
	}

	// The payment sits in a proceeds bucket owned by the seller.
	out, err := f.host.Query(context.Background(), escrow.QueryMsg{Buckets: &escrow.OwnerRef{Owner: seller}})
	if err != nil {
		t.Fatalf("query buckets: %v", err)
	}
	buckets := out.(escrow.BucketsResponse).Buckets
	if len(buckets) != 1 {
		t.Fatalf("expected one proceeds bucket, got %d", len(buckets))
	}
	f.exec(t, seller, nil, escrow.ExecuteMsg{RemoveBucket: &escrow.BucketRef{BucketID: buckets[0].ID}})
	if got := f.balance(t, seller, "Y"); got != 50 {
		t.Fatalf("seller should hold 50 Y, got %d", got)
	}
}

func TestScenarioUnderpaymentRollsBack(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	id := f.openListing(t, 1000)
	before := f.events.count()

	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: buyer, Funds: coins("Y", 49)},
		escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id}})
	if !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	listing, err := f.listing(t, id)
	if err != nil {
		t.Fatalf("query listing: %v", err)
	}
	if listing.Status != escrow.StatusFinalizedReady || !listing.Claimant.IsZero() {
		t.Fatalf("listing changed by failed buy: %+v", listing)
	}
	if got := f.balance(t, buyer, "Y"); got != 50 {
		t.Fatalf("attached funds must be returned on failure, buyer holds %d Y", got)
	}
	if f.events.count() != before {
		t.Fatalf("failed invocation emitted events")
	}
}

func TestScenarioRefundExpired(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	id := f.openListing(t, 10)

	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: other},
		escrow.ExecuteMsg{RefundExpired: &escrow.ListingRef{ListingID: id}})
	if !errors.Is(err, escrow.ErrInvalidState) {
		t.Fatalf("refund before expiry should fail with invalid state, got %v", err)
	}

	f.clock.Advance(11 * time.Second)
	res := f.exec(t, other, nil, escrow.ExecuteMsg{RefundExpired: &escrow.ListingRef{ListingID: id}})
	if len(res.Transfers) != 1 || res.Transfers[0].Recipient != seller {
		t.Fatalf("refund must go to the creator: %+v", res.Transfers)
	}
	if got := f.balance(t, seller, "X"); got != 100 {
		t.Fatalf("seller should hold 100 X again, got %d", got)
	}
	_, err = f.host.Execute(context.Background(), escrow.Info{Sender: buyer, Funds: coins("Y", 50)},
		escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id}})
	if !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("buying a refunded listing should fail with not found, got %v", err)
	}
}

func TestScenarioBucketMergesDenominations(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	res := f.exec(t, buyer, coins("Z", 10), escrow.ExecuteMsg{CreateBucket: &escrow.BucketRef{}})
	id := res.Data.(*escrow.Bucket).ID
	res = f.exec(t, buyer, coins("Z", 10), escrow.ExecuteMsg{AddToBucket: &escrow.BucketRef{BucketID: id}})

	bucket := res.Data.(*escrow.Bucket)
	if len(bucket.Funds.Native) != 1 {
		t.Fatalf("expected one native entry, got %v", bucket.Funds.Native)
	}
	if got := bucket.Funds.Native[0].Amount.Uint64(); got != 20 {
		t.Fatalf("expected 20 Z, got %d", got)
	}
}

func TestExecuteRejectsForgedHooks(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	hook, _ := json.Marshal(escrow.TokenHook{CreateBucket: &escrow.BucketRef{}})
	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: usdc}, escrow.ExecuteMsg{
		Receive: &escrow.ReceiveMsg{Sender: buyer, Amount: amount(500), Msg: hook},
	})
	if !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestTokenBucketPaysForListing(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	res := f.exec(t, seller, coins("X", 100), escrow.ExecuteMsg{CreateListing: &escrow.CreateListingMsg{
		Ask: escrow.FromToken(usdc, amount(75)),
	}})
	id := res.Data.(*escrow.Listing).ID
	f.exec(t, seller, nil, escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: id, Seconds: 60}})

	hook, _ := json.Marshal(escrow.TokenHook{CreateBucket: &escrow.BucketRef{}})
	res, err := f.host.SendToken(context.Background(), buyer, usdc, amount(75), hook)
	if err != nil {
		t.Fatalf("send token: %v", err)
	}
	bucketID := res.Data.(*escrow.Bucket).ID

	f.exec(t, buyer, nil, escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id, BucketID: bucketID}})
	held, err := f.host.TokenBalance(context.Background(), usdc, escrow.ModuleAddress)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if held.Uint64() != 75 {
		t.Fatalf("escrow should hold the payment, got %d", held.Uint64())
	}
	out, err := f.host.Query(context.Background(), escrow.QueryMsg{Buckets: &escrow.OwnerRef{Owner: buyer}})
	if err != nil {
		t.Fatalf("query buckets: %v", err)
	}
	if n := len(out.(escrow.BucketsResponse).Buckets); n != 0 {
		t.Fatalf("buyer bucket should be consumed, %d left", n)
	}
}

func TestSendTokenWithoutBalanceFails(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	hook, _ := json.Marshal(escrow.TokenHook{CreateBucket: &escrow.BucketRef{}})
	if _, err := f.host.SendToken(context.Background(), seller, usdc, amount(1), hook); !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNFTAdmissionFollowsApprovals(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	hook, _ := json.Marshal(escrow.NFTHook{CreateListing: &escrow.CreateListingMsg{
		Ask: escrow.FromCoins(escrow.NewCoin("Y", 50)),
	}})

	if _, err := f.host.Approve(ctx, seller, punks, "1", other, escrow.Never()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.host.SendNFT(ctx, seller, punks, "1", hook); !errors.Is(err, escrow.ErrUnauthorized) {
		t.Fatalf("live approval must block admission, got %v", err)
	}
	access, err := f.host.NFT(ctx, punks, "1")
	if err != nil {
		t.Fatalf("nft: %v", err)
	}
	if access.Owner != seller {
		t.Fatalf("rejected send must not move the nft")
	}

	if _, err := f.host.Revoke(ctx, seller, punks, "1", other); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	res, err := f.host.SendNFT(ctx, seller, punks, "1", hook)
	if err != nil {
		t.Fatalf("send nft: %v", err)
	}
	listing := res.Data.(*escrow.Listing)
	if len(listing.ForSale.NFTs) != 1 || listing.ForSale.NFTs[0].TokenID != "1" {
		t.Fatalf("listing should hold the nft: %+v", listing.ForSale)
	}
	access, err = f.host.NFT(ctx, punks, "1")
	if err != nil {
		t.Fatalf("nft: %v", err)
	}
	if access.Owner != escrow.ModuleAddress {
		t.Fatalf("nft should be escrowed, owner %s", access.Owner)
	}
}

func TestExpiredApprovalDoesNotBlockAdmission(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	height, err := f.host.Height(ctx)
	if err != nil {
		t.Fatalf("height: %v", err)
	}
	// The approval lapses at the next block, which is the one SendNFT runs in.
	if _, err := f.host.Approve(ctx, seller, punks, "1", other, escrow.AtHeight(height+2)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	hook, _ := json.Marshal(escrow.NFTHook{CreateBucket: &escrow.BucketRef{}})
	if _, err := f.host.SendNFT(ctx, seller, punks, "1", hook); err != nil {
		t.Fatalf("expired approval should not block: %v", err)
	}
}

func TestTreasuryReceivesListingFee(t *testing.T) {
	treasury := types.DeriveAddress("test/treasury")
	f := newFixture(t, Options{Router: escrow.Treasury{Address: treasury, Denom: "ucswap"}}, func(g *Genesis) {
		g.Escrow.ListingFee = amount(5)
		g.Balances = append(g.Balances, CoinGrant{Address: seller, Denom: "ucswap", Amount: amount(5)})
	})
	res := f.exec(t, seller, coins("X", 100), escrow.ExecuteMsg{CreateListing: &escrow.CreateListingMsg{
		Ask: escrow.FromCoins(escrow.NewCoin("Y", 50)),
	}})
	id := res.Data.(*escrow.Listing).ID

	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: seller},
		escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: id, Seconds: 60}})
	if !errors.Is(err, escrow.ErrValidation) {
		t.Fatalf("finalize without fee should fail, got %v", err)
	}
	f.exec(t, seller, coins("ucswap", 5), escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: id, Seconds: 60}})
	f.exec(t, buyer, coins("Y", 50), escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id}})
	res = f.exec(t, buyer, nil, escrow.ExecuteMsg{WithdrawPurchased: &escrow.ListingRef{ListingID: id}})
	if len(res.Transfers) != 2 {
		t.Fatalf("expected asset and fee transfers, got %d", len(res.Transfers))
	}
	if got := f.balance(t, treasury, "ucswap"); got != 5 {
		t.Fatalf("treasury should hold the fee, got %d", got)
	}
}

func TestCommunityPoolFeeAbortsWithdraw(t *testing.T) {
	f := newFixture(t, Options{}, func(g *Genesis) {
		g.Escrow.ListingFee = amount(5)
		g.Balances = append(g.Balances, CoinGrant{Address: seller, Denom: "ucswap", Amount: amount(5)})
	})
	res := f.exec(t, seller, coins("X", 100), escrow.ExecuteMsg{CreateListing: &escrow.CreateListingMsg{
		Ask: escrow.FromCoins(escrow.NewCoin("Y", 50)),
	}})
	id := res.Data.(*escrow.Listing).ID
	f.exec(t, seller, coins("ucswap", 5), escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: id, Seconds: 60}})
	f.exec(t, buyer, coins("Y", 50), escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: id}})

	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: buyer},
		escrow.ExecuteMsg{WithdrawPurchased: &escrow.ListingRef{ListingID: id}})
	if !errors.Is(err, escrow.ErrGeneric) {
		t.Fatalf("expected generic routing failure, got %v", err)
	}
	listing, err := f.listing(t, id)
	if err != nil || listing.Status != escrow.StatusClosed {
		t.Fatalf("listing must survive the failed withdraw: %v %+v", err, listing)
	}
}

func TestPausedModuleRejectsInvocations(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.host.pauses = common.NewPauses(ModuleName)
	_, err := f.host.Execute(context.Background(), escrow.Info{Sender: buyer, Funds: coins("Z", 10)},
		escrow.ExecuteMsg{CreateBucket: &escrow.BucketRef{}})
	if !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
}

func TestGenesisOnlyOnce(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	err := f.host.InitGenesis(context.Background(), Genesis{Escrow: escrow.Config{Admin: admin}})
	if !errors.Is(err, escrow.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	ok, err := f.host.Initialised(context.Background())
	if err != nil || !ok {
		t.Fatalf("host should report initialised: %v", err)
	}
}

func TestCommittedEventsReachEmitter(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	before := f.events.count()
	res := f.exec(t, buyer, coins("Z", 10), escrow.ExecuteMsg{CreateBucket: &escrow.BucketRef{}})
	if len(res.Events) != 1 || res.Events[0].Type != escrow.EventTypeBucketCreated {
		t.Fatalf("unexpected result events %+v", res.Events)
	}
	if f.events.count() != before+1 {
		t.Fatalf("emitter should receive the committed event")
	}
	if res.InvocationID == "" || res.Height == 0 {
		t.Fatalf("result should carry invocation metadata: %+v", res)
	}
}
