package escrow

import (
	"cyberswap/core/types"
)

const (
	// MarketWindow is how far back the market view looks for finalized
	// listings.
	MarketWindow uint64 = 14 * 24 * 60 * 60
	// MarketPageSize is the number of listings per market page.
	MarketPageSize = 20
	// AllListingsLimit caps the all-listings view.
	AllListingsLimit = 100
)

// OwnerRef names an account in queries.
type OwnerRef struct {
	Owner types.Address `json:"owner"`
}

// PageRef selects a 1-based market page.
type PageRef struct {
	Page uint64 `json:"page"`
}

// QueryMsg is a read-only request. Exactly one field is set.
type QueryMsg struct {
	Admin           *struct{}   `json:"admin,omitempty"`
	Config          *struct{}   `json:"config,omitempty"`
	Listing         *ListingRef `json:"listing,omitempty"`
	ListingsByOwner *OwnerRef   `json:"listings_by_owner,omitempty"`
	AllListings     *struct{}   `json:"all_listings,omitempty"`
	Buckets         *OwnerRef   `json:"buckets,omitempty"`
	Market          *PageRef    `json:"market,omitempty"`
}

// AdminResponse answers the admin query.
type AdminResponse struct {
	Admin types.Address `json:"admin"`
}

// ListingsResponse wraps a page of listings.
type ListingsResponse struct {
	Listings []*Listing `json:"listings"`
}

// BucketsResponse wraps an owner's buckets.
type BucketsResponse struct {
	Buckets []*Bucket `json:"buckets"`
}

// Query answers msg from committed state.
func (e *Engine) Query(msg QueryMsg) (any, error) {
	set := countSet(msg.Admin != nil, msg.Config != nil, msg.Listing != nil, msg.ListingsByOwner != nil,
		msg.AllListings != nil, msg.Buckets != nil, msg.Market != nil)
	if set != 1 {
		return nil, invalid("query must select exactly one view")
	}
	switch {
	case msg.Admin != nil:
		cfg, err := e.loadConfig()
		if err != nil {
			return nil, err
		}
		return AdminResponse{Admin: cfg.Admin}, nil
	case msg.Config != nil:
		return e.loadConfig()
	case msg.Listing != nil:
		return e.Listing(msg.Listing.ListingID)
	case msg.ListingsByOwner != nil:
		listings, err := e.ListingsByOwner(msg.ListingsByOwner.Owner)
		return ListingsResponse{Listings: listings}, err
	case msg.AllListings != nil:
		listings, err := e.AllListings()
		return ListingsResponse{Listings: listings}, err
	case msg.Buckets != nil:
		buckets, err := e.Buckets(msg.Buckets.Owner)
		return BucketsResponse{Buckets: buckets}, err
	default:
		listings, err := e.Market(msg.Market.Page)
		return ListingsResponse{Listings: listings}, err
	}
}

// Listing returns the listing with the given global id.
func (e *Engine) Listing(id uint64) (*Listing, error) {
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	return store.byID(id)
}

// ListingsByOwner returns every listing created by owner in id order.
func (e *Engine) ListingsByOwner(owner types.Address) ([]*Listing, error) {
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	return store.byCreator(owner)
}

// AllListings returns up to AllListingsLimit listings in id order.
func (e *Engine) AllListings() ([]*Listing, error) {
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	var out []*Listing
	err = store.all(func(l *Listing) bool {
		out = append(out, l)
		return len(out) < AllListingsLimit
	})
	return out, err
}

// Buckets returns owner's buckets in id order.
func (e *Engine) Buckets(owner types.Address) ([]*Bucket, error) {
	store, err := e.buckets()
	if err != nil {
		return nil, err
	}
	return store.byOwner(owner)
}

// Market returns one page of listings that are open for purchase, newest
// finalization first. Only listings finalized within MarketWindow of the
// current block time are considered.
func (e *Engine) Market(page uint64) ([]*Listing, error) {
	if page == 0 {
		return nil, invalid("page numbers start at 1")
	}
	store, err := e.listings()
	if err != nil {
		return nil, err
	}
	var since uint64
	if e.env.Time > MarketWindow {
		since = e.env.Time - MarketWindow
	}
	skip := (page - 1) * MarketPageSize
	out := make([]*Listing, 0, MarketPageSize)
	err = store.byFinalized(since, func(l *Listing) bool {
		if l.ExpirationTime <= e.env.Time {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, l)
		return len(out) < MarketPageSize
	})
	return out, err
}
