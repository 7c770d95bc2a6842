package escrow

import (
	"cyberswap/core/types"
)

// Transfer instructs the host to move one asset out of escrow.
type Transfer struct {
	Recipient types.Address `json:"recipient"`
	Asset     Asset         `json:"asset"`
}

// FeeRouter decides where a settlement fee is sent.
type FeeRouter interface {
	Route(fee Coin) (Transfer, error)
}

// CommunityPool routes fees to the chain's community pool. The pool is not
// reachable from this module, so routing always fails.
type CommunityPool struct{}

// Route implements FeeRouter.
func (CommunityPool) Route(Coin) (Transfer, error) {
	return Transfer{}, newError(KindGeneric, "fee routing to the community pool is unimplemented")
}

// Treasury routes fees of a single denomination to a fixed account.
type Treasury struct {
	Address types.Address
	Denom   string
}

// Route implements FeeRouter.
func (t Treasury) Route(fee Coin) (Transfer, error) {
	if t.Address.IsZero() {
		return Transfer{}, newError(KindGeneric, "fee treasury not configured")
	}
	if fee.Denom != t.Denom {
		return Transfer{}, newError(KindGeneric, "no fee route for %s", fee.Denom)
	}
	return Transfer{Recipient: t.Address, Asset: NativeAsset(fee)}, nil
}

// Settle converts balance into transfers to beneficiary, followed by the fee
// transfer chosen by router when fee is set. Any routing failure aborts the
// whole settlement.
func Settle(beneficiary types.Address, balance GenericBalance, fee *Coin, router FeeRouter) ([]Transfer, error) {
	if beneficiary.IsZero() {
		return nil, invalid("settlement beneficiary not set")
	}
	assets := balance.Assets()
	transfers := make([]Transfer, 0, len(assets)+1)
	for _, asset := range assets {
		transfers = append(transfers, Transfer{Recipient: beneficiary, Asset: asset})
	}
	if fee == nil || fee.Amount == nil || fee.Amount.IsZero() {
		return transfers, nil
	}
	if router == nil {
		return nil, newError(KindGeneric, "fee router not configured")
	}
	routed, err := router.Route(fee.clone())
	if err != nil {
		return nil, wrapGeneric(err, "route fee")
	}
	return append(transfers, routed), nil
}
