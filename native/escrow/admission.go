package escrow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
)

// ExpirationKind selects how an approval expires.
type ExpirationKind uint8

const (
	ExpiresNever ExpirationKind = iota
	ExpiresAtHeight
	ExpiresAtTime
)

// Expiration bounds an approval by block height or block time, or never.
type Expiration struct {
	Kind  ExpirationKind `json:"kind"`
	Value uint64         `json:"value,omitempty"`
}

// Never returns an expiration that never passes.
func Never() Expiration { return Expiration{Kind: ExpiresNever} }

// AtHeight returns an expiration at the given block height.
func AtHeight(h uint64) Expiration { return Expiration{Kind: ExpiresAtHeight, Value: h} }

// AtTime returns an expiration at the given unix time.
func AtTime(t uint64) Expiration { return Expiration{Kind: ExpiresAtTime, Value: t} }

// Live reports whether the expiration has not yet passed at env.
func (x Expiration) Live(env Env) bool {
	switch x.Kind {
	case ExpiresAtHeight:
		return x.Value > env.Height
	case ExpiresAtTime:
		return x.Value > env.Time
	default:
		return true
	}
}

// Approval grants spender the right to transfer an NFT until it expires.
type Approval struct {
	Spender types.Address `json:"spender"`
	Expires Expiration    `json:"expires"`
}

// NFTAccess is the registry's view of an NFT's owner and approvals.
type NFTAccess struct {
	Owner     types.Address `json:"owner"`
	Approvals []Approval    `json:"approvals"`
}

// AssetQuerier answers the admission queries made against external asset
// registries.
type AssetQuerier interface {
	NFTAccess(collection types.Address, tokenID string) (NFTAccess, error)
	TokenBalance(contract, holder types.Address) (*uint256.Int, error)
}

// ReceiveMsg notifies the escrow that a fungible token contract moved Amount
// from Sender into escrow. Msg carries a TokenHook.
type ReceiveMsg struct {
	Sender types.Address   `json:"sender"`
	Amount *uint256.Int    `json:"amount"`
	Msg    json.RawMessage `json:"msg"`
}

// TokenHook selects what to do with received tokens.
type TokenHook struct {
	CreateListing  *CreateListingMsg `json:"create_listing,omitempty"`
	AddFundsToSale *ListingRef       `json:"add_funds_to_sale,omitempty"`
	CreateBucket   *BucketRef        `json:"create_bucket,omitempty"`
	AddToBucket    *BucketRef        `json:"add_to_bucket,omitempty"`
}

// ReceiveNFTMsg notifies the escrow that an NFT collection moved TokenID from
// Sender into escrow. Msg carries an NFTHook.
type ReceiveNFTMsg struct {
	Sender  types.Address   `json:"sender"`
	TokenID string          `json:"token_id"`
	Msg     json.RawMessage `json:"msg"`
}

// NFTHook selects what to do with a received NFT.
type NFTHook struct {
	CreateListing *CreateListingMsg `json:"create_listing,omitempty"`
	AddToListing  *ListingRef       `json:"add_to_listing,omitempty"`
	CreateBucket  *BucketRef        `json:"create_bucket,omitempty"`
	AddToBucket   *BucketRef        `json:"add_to_bucket,omitempty"`
}

// ListingRef names a listing by global id.
type ListingRef struct {
	ListingID uint64 `json:"listing_id"`
}

// BucketRef names one of the caller's buckets. Zero asks for a fresh id when
// creating.
type BucketRef struct {
	BucketID uint64 `json:"bucket_id"`
}

func countSet(ptrs ...bool) int {
	n := 0
	for _, set := range ptrs {
		if set {
			n++
		}
	}
	return n
}

func decodeHook(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return invalid("hook message missing")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return invalid("decode hook message: %v", err)
	}
	return nil
}

// AdmitNFT checks that sender owns the NFT according to its collection and
// that no approval on it is still live.
func (e *Engine) AdmitNFT(collection types.Address, sender types.Address, tokenID string) (NFT, error) {
	if e.assets == nil {
		return NFT{}, errNilAssets
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return NFT{}, invalid("token id must not be empty")
	}
	access, err := e.assets.NFTAccess(collection, tokenID)
	if err != nil {
		return NFT{}, wrapGeneric(err, "query nft")
	}
	if access.Owner != sender {
		return NFT{}, unauthorized("sender does not own %s/%s", collection, tokenID)
	}
	for _, approval := range access.Approvals {
		if approval.Expires.Live(e.env) {
			return NFT{}, unauthorized("%s/%s has a live approval for %s", collection, tokenID, approval.Spender)
		}
	}
	return NFT{Collection: collection, TokenID: tokenID}, nil
}

// AdmitToken checks that contract is a whitelisted issuer and that escrow
// holds at least amount of it.
func (e *Engine) AdmitToken(contract types.Address, amount *uint256.Int) (GenericBalance, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return GenericBalance{}, err
	}
	if !cfg.FungibleAllowed(contract) {
		return GenericBalance{}, invalid("token %s is not whitelisted", contract)
	}
	if amount == nil || amount.IsZero() {
		return GenericBalance{}, invalid("received zero tokens")
	}
	if e.assets == nil {
		return GenericBalance{}, errNilAssets
	}
	held, err := e.assets.TokenBalance(contract, ModuleAddress)
	if err != nil {
		return GenericBalance{}, wrapGeneric(err, "query token balance")
	}
	if held.Lt(amount) {
		return GenericBalance{}, unauthorized("token %s reported %s but escrow holds %s", contract, amount.Dec(), held.Dec())
	}
	return FromToken(contract, amount), nil
}

// ReceiveToken handles a fungible deposit notification sent by contract.
func (e *Engine) ReceiveToken(contract types.Address, msg ReceiveMsg) (*Response, error) {
	deposit, err := e.AdmitToken(contract, msg.Amount)
	if err != nil {
		return nil, err
	}
	var hook TokenHook
	if err := decodeHook(msg.Msg, &hook); err != nil {
		return nil, err
	}
	if countSet(hook.CreateListing != nil, hook.AddFundsToSale != nil, hook.CreateBucket != nil, hook.AddToBucket != nil) != 1 {
		return nil, invalid("hook must select exactly one action")
	}
	switch {
	case hook.CreateListing != nil:
		listing, err := e.CreateListing(msg.Sender, deposit, *hook.CreateListing)
		return listingResponse(listing, err)
	case hook.AddFundsToSale != nil:
		listing, err := e.AddFundsToSale(msg.Sender, hook.AddFundsToSale.ListingID, deposit)
		return listingResponse(listing, err)
	case hook.CreateBucket != nil:
		bucket, err := e.CreateBucket(msg.Sender, hook.CreateBucket.BucketID, deposit)
		return bucketResponse(bucket, err)
	default:
		bucket, err := e.AddToBucket(msg.Sender, hook.AddToBucket.BucketID, deposit)
		return bucketResponse(bucket, err)
	}
}

// ReceiveNFT handles a non-fungible deposit notification sent by collection.
func (e *Engine) ReceiveNFT(collection types.Address, msg ReceiveNFTMsg) (*Response, error) {
	nft, err := e.AdmitNFT(collection, msg.Sender, msg.TokenID)
	if err != nil {
		return nil, err
	}
	var hook NFTHook
	if err := decodeHook(msg.Msg, &hook); err != nil {
		return nil, err
	}
	if countSet(hook.CreateListing != nil, hook.AddToListing != nil, hook.CreateBucket != nil, hook.AddToBucket != nil) != 1 {
		return nil, invalid("hook must select exactly one action")
	}
	deposit := GenericBalance{}
	deposit.AddNFT(nft)
	switch {
	case hook.CreateListing != nil:
		listing, err := e.CreateListing(msg.Sender, deposit, *hook.CreateListing)
		return listingResponse(listing, err)
	case hook.AddToListing != nil:
		listing, err := e.AddFundsToSale(msg.Sender, hook.AddToListing.ListingID, deposit)
		return listingResponse(listing, err)
	case hook.CreateBucket != nil:
		bucket, err := e.CreateBucket(msg.Sender, hook.CreateBucket.BucketID, deposit)
		return bucketResponse(bucket, err)
	default:
		bucket, err := e.AddToBucket(msg.Sender, hook.AddToBucket.BucketID, deposit)
		return bucketResponse(bucket, err)
	}
}

func (x Expiration) String() string {
	switch x.Kind {
	case ExpiresAtHeight:
		return fmt.Sprintf("height %d", x.Value)
	case ExpiresAtTime:
		return fmt.Sprintf("time %d", x.Value)
	default:
		return "never"
	}
}
