package escrow

import (
	"fmt"
	"log/slog"
	"strings"

	"cyberswap/core/types"
)

// ListingStatus is a listing's lifecycle position. Listings only move
// forward: BeingPrepared, FinalizedReady, Closed.
type ListingStatus uint8

const (
	StatusBeingPrepared ListingStatus = iota
	StatusFinalizedReady
	StatusClosed
)

func (s ListingStatus) String() string {
	switch s {
	case StatusBeingPrepared:
		return "being_prepared"
	case StatusFinalizedReady:
		return "finalized_ready"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ListingStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ListingStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "being_prepared":
		*s = StatusBeingPrepared
	case "finalized_ready":
		*s = StatusFinalizedReady
	case "closed":
		*s = StatusClosed
	default:
		return fmt.Errorf("escrow: unknown listing status %q", text)
	}
	return nil
}

// Listing is an escrowed sale offer. Zero timestamps and zero addresses mean
// unset.
type Listing struct {
	Creator          types.Address  `json:"creator"`
	ID               uint64         `json:"id"`
	FinalizedTime    uint64         `json:"finalized_time,omitempty"`
	ExpirationTime   uint64         `json:"expiration_time,omitempty"`
	Status           ListingStatus  `json:"status"`
	Claimant         types.Address  `json:"claimant"`
	WhitelistedBuyer types.Address  `json:"whitelisted_buyer"`
	ForSale          GenericBalance `json:"for_sale"`
	Ask              GenericBalance `json:"ask"`
	Fee              *Coin          `json:"fee,omitempty"`
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.ForSale = l.ForSale.Clone()
	clone.Ask = l.Ask.Clone()
	if l.Fee != nil {
		fee := l.Fee.clone()
		clone.Fee = &fee
	}
	return &clone
}

// CreateListingMsg carries the terms of a new listing.
type CreateListingMsg struct {
	Ask              GenericBalance `json:"ask"`
	WhitelistedBuyer types.Address  `json:"whitelisted_buyer,omitempty"`
}

func (e *Engine) checkAsk(cfg Config, ask GenericBalance) error {
	if ask.IsEmpty() {
		return invalid("ask must not be empty")
	}
	if err := ask.CheckValid(); err != nil {
		return err
	}
	return cfg.checkWhitelisted(ask)
}

// CreateListing escrows deposit as the opening for-sale balance of a new
// listing owned by creator.
func (e *Engine) CreateListing(creator types.Address, deposit GenericBalance, msg CreateListingMsg) (*Listing, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := e.checkDeposit(cfg, deposit); err != nil {
		return nil, err
	}
	if err := e.checkAsk(cfg, msg.Ask); err != nil {
		return nil, err
	}
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	id, err := e.state.NextCounter(listingCountKey)
	if err != nil {
		return nil, wrapGeneric(err, "listing counter")
	}
	listing := &Listing{
		Creator:          creator,
		ID:               id,
		Status:           StatusBeingPrepared,
		WhitelistedBuyer: msg.WhitelistedBuyer,
		ForSale:          deposit.Clone(),
		Ask:              msg.Ask.Clone(),
	}
	if err := store.insert(listing); err != nil {
		return nil, err
	}
	e.logger.Debug("listing created", slog.Uint64("id", id), slog.String("creator", creator.String()))
	e.emit(newListingEvent(EventTypeListingCreated, listing))
	return listing.Clone(), nil
}

// loadOwned resolves a listing by global id and checks the caller created it.
func (e *Engine) loadOwned(caller types.Address, id uint64) (listingStore, *Listing, error) {
	store, err := e.listings()
	if err != nil {
		return listingStore{}, nil, err
	}
	listing, err := store.byID(id)
	if err != nil {
		return listingStore{}, nil, err
	}
	if listing.Creator != caller {
		return listingStore{}, nil, unauthorized("listing %d belongs to another creator", id)
	}
	return store, listing, nil
}

func requireStatus(l *Listing, want ListingStatus) error {
	if l.Status != want {
		return invalidState("listing %d is %s, expected %s", l.ID, l.Status, want)
	}
	return nil
}

// AddFundsToSale merges deposit into a listing that is still being prepared.
func (e *Engine) AddFundsToSale(caller types.Address, id uint64, deposit GenericBalance) (*Listing, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	store, listing, err := e.loadOwned(caller, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusBeingPrepared); err != nil {
		return nil, err
	}
	if err := e.checkDeposit(cfg, deposit); err != nil {
		return nil, err
	}
	if err := listing.ForSale.AddTokens(deposit); err != nil {
		return nil, err
	}
	if err := listing.ForSale.CheckValid(); err != nil {
		return nil, err
	}
	if err := store.save(listing); err != nil {
		return nil, err
	}
	e.emit(newListingEvent(EventTypeListingFunded, listing))
	return listing.Clone(), nil
}

// ChangeAsk replaces the ask of a listing that is still being prepared.
func (e *Engine) ChangeAsk(caller types.Address, id uint64, ask GenericBalance) (*Listing, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	store, listing, err := e.loadOwned(caller, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusBeingPrepared); err != nil {
		return nil, err
	}
	if err := e.checkAsk(cfg, ask); err != nil {
		return nil, err
	}
	listing.Ask = ask.Clone()
	if err := store.save(listing); err != nil {
		return nil, err
	}
	e.emit(newListingEvent(EventTypeListingAskChanged, listing))
	return listing.Clone(), nil
}

// RemoveListing cancels a listing that is still being prepared, returning its
// for-sale balance to the creator.
func (e *Engine) RemoveListing(caller types.Address, id uint64) ([]Transfer, error) {
	store, listing, err := e.loadOwned(caller, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusBeingPrepared); err != nil {
		return nil, err
	}
	transfers, err := Settle(listing.Creator, listing.ForSale, nil, e.router)
	if err != nil {
		return nil, err
	}
	if err := store.remove(listing); err != nil {
		return nil, err
	}
	e.emit(newListingEvent(EventTypeListingRemoved, listing))
	return transfers, nil
}

// Finalize freezes a listing and opens it for purchase for the given number of
// seconds. When a listing fee is configured, fee must carry exactly that fee.
func (e *Engine) Finalize(caller types.Address, id uint64, seconds uint64, fee GenericBalance) (*Listing, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	store, listing, err := e.loadOwned(caller, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusBeingPrepared); err != nil {
		return nil, err
	}
	if seconds == 0 {
		return nil, invalid("duration must be positive")
	}
	if seconds > cfg.MaxDuration {
		return nil, invalid("duration %d exceeds maximum %d", seconds, cfg.MaxDuration)
	}
	expiration := e.env.Time + seconds
	if expiration < e.env.Time {
		return nil, newError(KindOverflow, "expiration overflows")
	}
	required := cfg.listingFee()
	switch {
	case required == nil && !fee.IsEmpty():
		return nil, invalid("no listing fee is due")
	case required != nil:
		if err := Compare(fee, FromCoins(*required)); err != nil {
			return nil, invalid("listing fee of %s required", required)
		}
		listing.Fee = required
	}
	listing.Status = StatusFinalizedReady
	listing.FinalizedTime = e.env.Time
	listing.ExpirationTime = expiration
	if err := store.save(listing); err != nil {
		return nil, err
	}
	e.emit(newListingEvent(EventTypeListingFinalized, listing))
	return listing.Clone(), nil
}

// refundBalance is the listing's for-sale balance plus any fee it paid.
func refundBalance(l *Listing) (GenericBalance, error) {
	refund := l.ForSale.Clone()
	if l.Fee != nil {
		if err := refund.AddTokens(FromCoins(*l.Fee)); err != nil {
			return GenericBalance{}, err
		}
	}
	return refund, nil
}

// RefundExpired returns an expired, unsold listing to its creator. Any caller
// may trigger it.
func (e *Engine) RefundExpired(caller types.Address, id uint64) ([]Transfer, error) {
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	listing, err := store.byID(id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusFinalizedReady); err != nil {
		return nil, err
	}
	if e.env.Time < listing.ExpirationTime {
		return nil, invalidState("listing %d has not expired", id)
	}
	refund, err := refundBalance(listing)
	if err != nil {
		return nil, err
	}
	transfers, err := Settle(listing.Creator, refund, nil, e.router)
	if err != nil {
		return nil, err
	}
	if err := store.remove(listing); err != nil {
		return nil, err
	}
	e.logger.Debug("expired listing refunded", slog.Uint64("id", id), slog.String("caller", caller.String()))
	e.emit(newListingEvent(EventTypeListingExpired, listing))
	return transfers, nil
}

// BuyListing claims a finalized listing for buyer. The payment is the
// attached balance merged with the funds of the buyer's bucket bucketID, when
// non-zero; it must equal the ask exactly. The payment is escrowed in a new
// bucket owned by the seller.
func (e *Engine) BuyListing(buyer types.Address, id uint64, payment GenericBalance, bucketID uint64) (*Listing, []Transfer, error) {
	store, err := e.listings()
	if err != nil {
		return nil, nil, err
	}
	listing, err := store.byID(id)
	if err != nil {
		return nil, nil, err
	}
	if err := requireStatus(listing, StatusFinalizedReady); err != nil {
		return nil, nil, err
	}
	if e.env.Time >= listing.ExpirationTime {
		return nil, nil, invalidState("listing %d expired", id)
	}
	if !listing.WhitelistedBuyer.IsZero() && listing.WhitelistedBuyer != buyer {
		return nil, nil, unauthorized("listing %d is reserved for another buyer", id)
	}

	total := payment.Clone()
	var transfers []Transfer
	if bucketID != 0 {
		bucketTable, err := e.buckets()
		if err != nil {
			return nil, nil, err
		}
		bucket, err := bucketTable.load(buyer, bucketID)
		if err != nil {
			return nil, nil, err
		}
		if err := total.AddTokens(bucket.Funds); err != nil {
			return nil, nil, err
		}
		if bucket.Fee != nil {
			routed, err := Settle(buyer, GenericBalance{}, bucket.Fee, e.router)
			if err != nil {
				return nil, nil, err
			}
			transfers = routed
		}
		if err := bucketTable.remove(bucket); err != nil {
			return nil, nil, err
		}
		e.emit(newBucketEvent(EventTypeBucketConsumed, bucket))
	}
	if err := total.CheckValid(); err != nil {
		return nil, nil, err
	}
	if err := Compare(total, listing.Ask); err != nil {
		return nil, nil, err
	}

	proceeds, err := e.openBucket(listing.Creator, 0, total, nil)
	if err != nil {
		return nil, nil, err
	}
	listing.Claimant = buyer
	listing.Status = StatusClosed
	if err := store.save(listing); err != nil {
		return nil, nil, err
	}
	e.emit(newListingEvent(EventTypeListingPurchased, listing))
	e.emit(newBucketEvent(EventTypeBucketCreated, proceeds))
	return listing.Clone(), transfers, nil
}

// WithdrawPurchased releases a closed listing's for-sale balance to its
// claimant and deletes the listing.
func (e *Engine) WithdrawPurchased(caller types.Address, id uint64) ([]Transfer, error) {
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	listing, err := store.byID(id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(listing, StatusClosed); err != nil {
		return nil, err
	}
	if listing.Claimant != caller {
		return nil, unauthorized("only the claimant may withdraw listing %d", id)
	}
	transfers, err := Settle(listing.Claimant, listing.ForSale, listing.Fee, e.router)
	if err != nil {
		return nil, err
	}
	if err := store.remove(listing); err != nil {
		return nil, err
	}
	e.emit(newListingEvent(EventTypeListingWithdrawn, listing))
	return transfers, nil
}
