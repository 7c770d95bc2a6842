package registry

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"cyberswap/core/state"
	"cyberswap/core/types"
	"cyberswap/native/escrow"
	"cyberswap/storage"
)

func newRegistry() *Registry {
	return New(state.NewManager(storage.NewStaged(storage.NewMemDB())))
}

func TestTokenLedger(t *testing.T) {
	reg := newRegistry()
	alice := types.DeriveAddress("alice")
	bob := types.DeriveAddress("bob")

	contract, err := reg.RegisterToken("USDX")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if contract != TokenAddress("usdx") {
		t.Fatalf("unexpected contract address %s", contract)
	}
	if _, err := reg.RegisterToken("usdx"); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if err := reg.MintToken(contract, alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.TransferToken(contract, alice, bob, uint256.NewInt(11)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := reg.Deliver(alice, escrow.Transfer{Recipient: bob, Asset: escrow.FungibleAsset(escrow.TokenAmount{Contract: contract, Amount: uint256.NewInt(4)})}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	bobBal, err := reg.TokenBalance(contract, bob)
	if err != nil || bobBal.Uint64() != 4 {
		t.Fatalf("unexpected bob balance %v err=%v", bobBal, err)
	}
	if _, err := reg.TokenBalance(TokenAddress("nope"), bob); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
}

func TestNFTTransferClearsApprovals(t *testing.T) {
	reg := newRegistry()
	collection := CollectionAddress("punks")
	alice := types.DeriveAddress("alice")
	bob := types.DeriveAddress("bob")
	market := types.DeriveAddress("market")

	if err := reg.MintNFT(collection, "7", alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Approve(collection, "7", bob, market, escrow.Never()); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := reg.Approve(collection, "7", alice, market, escrow.AtHeight(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	access, err := reg.NFTAccess(collection, "7")
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if access.Owner != alice || len(access.Approvals) != 1 || access.Approvals[0].Expires != escrow.AtHeight(50) {
		t.Fatalf("unexpected access %+v", access)
	}
	if err := reg.TransferNFT(collection, "7", alice, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	access, err = reg.NFTAccess(collection, "7")
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if access.Owner != bob || len(access.Approvals) != 0 {
		t.Fatalf("approvals survived transfer: %+v", access)
	}
	if _, err := reg.NFTAccess(collection, "8"); !errors.Is(err, ErrNFTNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
