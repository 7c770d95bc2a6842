package escrow

import (
	"cyberswap/core/types"
)

// Info identifies who invoked the module and which native funds they attached.
type Info struct {
	Sender types.Address `json:"sender"`
	Funds  []Coin        `json:"funds,omitempty"`
}

// ChangeAskMsg replaces a listing's ask.
type ChangeAskMsg struct {
	ListingID uint64         `json:"listing_id"`
	Ask       GenericBalance `json:"ask"`
}

// FinalizeMsg opens a listing for purchase for Seconds seconds.
type FinalizeMsg struct {
	ListingID uint64 `json:"listing_id"`
	Seconds   uint64 `json:"seconds"`
}

// BuyListingMsg buys a listing, optionally drawing on one of the buyer's
// buckets.
type BuyListingMsg struct {
	ListingID uint64 `json:"listing_id"`
	BucketID  uint64 `json:"bucket_id,omitempty"`
}

// ExecuteMsg is a state-changing request. Exactly one field is set.
type ExecuteMsg struct {
	CreateListing     *CreateListingMsg `json:"create_listing,omitempty"`
	AddFundsToSale    *ListingRef       `json:"add_funds_to_sale,omitempty"`
	ChangeAsk         *ChangeAskMsg     `json:"change_ask,omitempty"`
	RemoveListing     *ListingRef       `json:"remove_listing,omitempty"`
	Finalize          *FinalizeMsg      `json:"finalize,omitempty"`
	RefundExpired     *ListingRef       `json:"refund_expired,omitempty"`
	CreateBucket      *BucketRef        `json:"create_bucket,omitempty"`
	AddToBucket       *BucketRef        `json:"add_to_bucket,omitempty"`
	RemoveBucket      *BucketRef        `json:"remove_bucket,omitempty"`
	BuyListing        *BuyListingMsg    `json:"buy_listing,omitempty"`
	WithdrawPurchased *ListingRef       `json:"withdraw_purchased,omitempty"`
	Receive           *ReceiveMsg       `json:"receive,omitempty"`
	ReceiveNFT        *ReceiveNFTMsg    `json:"receive_nft,omitempty"`
	AddToWhitelist    *WhitelistMsg     `json:"add_to_whitelist,omitempty"`
	AddToRemovalQueue *WhitelistMsg     `json:"add_to_removal_queue,omitempty"`
	ClearRemovalQueue *struct{}         `json:"clear_removal_queue,omitempty"`
}

// Name returns the selected action, or "" when the message is malformed.
func (m ExecuteMsg) Name() string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(m.CreateListing != nil, "create_listing")
	add(m.AddFundsToSale != nil, "add_funds_to_sale")
	add(m.ChangeAsk != nil, "change_ask")
	add(m.RemoveListing != nil, "remove_listing")
	add(m.Finalize != nil, "finalize")
	add(m.RefundExpired != nil, "refund_expired")
	add(m.CreateBucket != nil, "create_bucket")
	add(m.AddToBucket != nil, "add_to_bucket")
	add(m.RemoveBucket != nil, "remove_bucket")
	add(m.BuyListing != nil, "buy_listing")
	add(m.WithdrawPurchased != nil, "withdraw_purchased")
	add(m.Receive != nil, "receive")
	add(m.ReceiveNFT != nil, "receive_nft")
	add(m.AddToWhitelist != nil, "add_to_whitelist")
	add(m.AddToRemovalQueue != nil, "add_to_removal_queue")
	add(m.ClearRemovalQueue != nil, "clear_removal_queue")
	if len(names) != 1 {
		return ""
	}
	return names[0]
}

// IsHook reports whether the message is an asset contract notification.
func (m ExecuteMsg) IsHook() bool { return m.Receive != nil || m.ReceiveNFT != nil }

// Response is the outcome of a successful invocation. Transfers are executed
// by the host; the module never moves assets itself.
type Response struct {
	Transfers []Transfer `json:"transfers,omitempty"`
	Data      any        `json:"data,omitempty"`
}

func listingResponse(l *Listing, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{Data: l}, nil
}

func bucketResponse(b *Bucket, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{Data: b}, nil
}

func transferResponse(transfers []Transfer, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{Transfers: transfers}, nil
}

func emptyResponse(err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	return &Response{}, nil
}

func rejectFunds(funds GenericBalance) error {
	if !funds.IsEmpty() {
		return invalid("action does not accept funds")
	}
	return nil
}

// Execute routes msg to its handler. Native funds in info are treated as the
// deposit or payment of actions that accept them and rejected otherwise.
func (e *Engine) Execute(info Info, msg ExecuteMsg) (*Response, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if msg.Name() == "" {
		return nil, invalid("message must select exactly one action")
	}
	if info.Sender.IsZero() {
		return nil, unauthorized("sender not set")
	}
	funds := FromCoins(info.Funds...)
	if !funds.IsEmpty() {
		if err := funds.CheckValid(); err != nil {
			return nil, err
		}
	}

	switch {
	case msg.CreateListing != nil:
		listing, err := e.CreateListing(info.Sender, funds, *msg.CreateListing)
		return listingResponse(listing, err)
	case msg.AddFundsToSale != nil:
		listing, err := e.AddFundsToSale(info.Sender, msg.AddFundsToSale.ListingID, funds)
		return listingResponse(listing, err)
	case msg.Finalize != nil:
		listing, err := e.Finalize(info.Sender, msg.Finalize.ListingID, msg.Finalize.Seconds, funds)
		return listingResponse(listing, err)
	case msg.CreateBucket != nil:
		bucket, err := e.CreateBucket(info.Sender, msg.CreateBucket.BucketID, funds)
		return bucketResponse(bucket, err)
	case msg.AddToBucket != nil:
		bucket, err := e.AddToBucket(info.Sender, msg.AddToBucket.BucketID, funds)
		return bucketResponse(bucket, err)
	case msg.BuyListing != nil:
		listing, transfers, err := e.BuyListing(info.Sender, msg.BuyListing.ListingID, funds, msg.BuyListing.BucketID)
		if err != nil {
			return nil, err
		}
		return &Response{Transfers: transfers, Data: listing}, nil
	}

	if err := rejectFunds(funds); err != nil {
		return nil, err
	}
	switch {
	case msg.ChangeAsk != nil:
		listing, err := e.ChangeAsk(info.Sender, msg.ChangeAsk.ListingID, msg.ChangeAsk.Ask)
		return listingResponse(listing, err)
	case msg.RemoveListing != nil:
		return transferResponse(e.RemoveListing(info.Sender, msg.RemoveListing.ListingID))
	case msg.RefundExpired != nil:
		return transferResponse(e.RefundExpired(info.Sender, msg.RefundExpired.ListingID))
	case msg.RemoveBucket != nil:
		return transferResponse(e.RemoveBucket(info.Sender, msg.RemoveBucket.BucketID))
	case msg.WithdrawPurchased != nil:
		return transferResponse(e.WithdrawPurchased(info.Sender, msg.WithdrawPurchased.ListingID))
	case msg.Receive != nil:
		return e.ReceiveToken(info.Sender, *msg.Receive)
	case msg.ReceiveNFT != nil:
		return e.ReceiveNFT(info.Sender, *msg.ReceiveNFT)
	case msg.AddToWhitelist != nil:
		return emptyResponse(e.AddToWhitelist(info.Sender, *msg.AddToWhitelist))
	case msg.AddToRemovalQueue != nil:
		return emptyResponse(e.AddToRemovalQueue(info.Sender, *msg.AddToRemovalQueue))
	default:
		return emptyResponse(e.ClearRemovalQueue(info.Sender))
	}
}
