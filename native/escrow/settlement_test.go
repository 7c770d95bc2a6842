package escrow

import (
	"testing"

	"cyberswap/core/types"
)

func TestSettleEmitsOneTransferPerAsset(t *testing.T) {
	transfers, err := Settle(testBuyer, mixedBalance(), nil, CommunityPool{})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(transfers) != 5 {
		t.Fatalf("expected 5 transfers, got %d", len(transfers))
	}
	for _, tr := range transfers {
		if tr.Recipient != testBuyer {
			t.Fatalf("transfer to %s", tr.Recipient)
		}
	}
}

func TestSettleRequiresBeneficiary(t *testing.T) {
	_, err := Settle(types.Address{}, coin("X", 1), nil, nil)
	requireKind(t, err, KindValidation)
}

func TestCommunityPoolRoutingFails(t *testing.T) {
	fee := NewCoin(DefaultFeeDenom, 1)
	_, err := Settle(testBuyer, coin("X", 1), &fee, CommunityPool{})
	requireKind(t, err, KindGeneric)
}

func TestTreasuryRouting(t *testing.T) {
	fee := NewCoin(DefaultFeeDenom, 4)
	transfers, err := Settle(testBuyer, coin("X", 1), &fee, Treasury{Address: testAdmin, Denom: DefaultFeeDenom})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(transfers) != 2 || transfers[1].Recipient != testAdmin {
		t.Fatalf("unexpected transfers %+v", transfers)
	}
	_, err = Treasury{Address: testAdmin, Denom: "other"}.Route(fee)
	requireKind(t, err, KindGeneric)
	_, err = Treasury{Denom: DefaultFeeDenom}.Route(fee)
	requireKind(t, err, KindGeneric)
}
