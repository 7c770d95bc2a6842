package escrow

import (
	"strconv"
	"strings"

	"cyberswap/core/types"
)

const (
	EventTypeListingCreated    = "escrow.listing.created"
	EventTypeListingFunded     = "escrow.listing.funded"
	EventTypeListingAskChanged = "escrow.listing.ask_changed"
	EventTypeListingRemoved    = "escrow.listing.removed"
	EventTypeListingFinalized  = "escrow.listing.finalized"
	EventTypeListingExpired    = "escrow.listing.expired"
	EventTypeListingPurchased  = "escrow.listing.purchased"
	EventTypeListingWithdrawn  = "escrow.listing.withdrawn"
	EventTypeBucketCreated     = "escrow.bucket.created"
	EventTypeBucketFunded      = "escrow.bucket.funded"
	EventTypeBucketRemoved     = "escrow.bucket.removed"
	EventTypeBucketConsumed    = "escrow.bucket.consumed"
	EventTypeWhitelistAdded    = "escrow.whitelist.added"
	EventTypeRemovalQueued     = "escrow.whitelist.removal_queued"
	EventTypeRemovalCleared    = "escrow.whitelist.removal_cleared"
)

func describeBalance(b GenericBalance) string {
	assets := b.Assets()
	parts := make([]string, len(assets))
	for i, asset := range assets {
		parts[i] = asset.String()
	}
	return strings.Join(parts, ",")
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["listingId"] = strconv.FormatUint(l.ID, 10)
	attrs["creator"] = l.Creator.String()
	attrs["status"] = l.Status.String()
	attrs["forSale"] = describeBalance(l.ForSale)
	attrs["ask"] = describeBalance(l.Ask)
	if l.FinalizedTime != 0 {
		attrs["finalizedAt"] = strconv.FormatUint(l.FinalizedTime, 10)
		attrs["expiresAt"] = strconv.FormatUint(l.ExpirationTime, 10)
	}
	if !l.Claimant.IsZero() {
		attrs["claimant"] = l.Claimant.String()
	}
	if !l.WhitelistedBuyer.IsZero() {
		attrs["whitelistedBuyer"] = l.WhitelistedBuyer.String()
	}
	if l.Fee != nil {
		attrs["fee"] = l.Fee.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBucketEvent(eventType string, b *Bucket) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["bucketId"] = strconv.FormatUint(b.ID, 10)
	attrs["owner"] = b.Owner.String()
	attrs["funds"] = describeBalance(b.Funds)
	if b.Fee != nil {
		attrs["fee"] = b.Fee.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newWhitelistEvent(eventType string, msg WhitelistMsg) *types.Event {
	attrs := make(map[string]string)
	if msg.Native != nil {
		attrs["kind"] = AssetNative.String()
		attrs["denom"] = strings.TrimSpace(msg.Native.Denom)
		attrs["label"] = msg.Native.Label
	}
	if msg.Fungible != nil {
		attrs["kind"] = AssetFungible.String()
		attrs["contract"] = msg.Fungible.Contract.String()
		attrs["label"] = msg.Fungible.Label
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newRemovalClearedEvent(removed int) *types.Event {
	return &types.Event{
		Type:       EventTypeRemovalCleared,
		Attributes: map[string]string{"removed": strconv.Itoa(removed)},
	}
}
