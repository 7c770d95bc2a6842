// Package registry tracks fungible token ledgers and NFT collections and
// answers the ownership queries the escrow module relies on.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
	"cyberswap/native/bank"
	"cyberswap/native/escrow"
)

var (
	ErrUnknownToken      = errors.New("registry: unknown token")
	ErrTokenExists       = errors.New("registry: token already registered")
	ErrInsufficientFunds = errors.New("registry: insufficient token balance")
	ErrNFTNotFound       = errors.New("registry: nft not found")
	ErrNFTExists         = errors.New("registry: nft already minted")
	ErrNotOwner          = errors.New("registry: caller does not own nft")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry is bound to one invocation's state.
type Registry struct {
	state registryState
	bank  *bank.Keeper
}

// New returns a registry over state, sharing it with a bank keeper.
func New(state registryState) *Registry {
	return &Registry{state: state, bank: bank.NewKeeper(state)}
}

// Bank exposes the native coin keeper.
func (r *Registry) Bank() *bank.Keeper { return r.bank }

type storedToken struct {
	Symbol string
	Supply *uint256.Int
}

type storedApproval struct {
	Spender [20]byte
	Kind    uint8
	Value   uint64
}

type storedNFT struct {
	Owner     [20]byte
	Approvals []storedApproval
}

func tokenKey(contract types.Address) []byte {
	return append([]byte("registry/token/meta/"), contract[:]...)
}

func tokenBalanceKey(contract, holder types.Address) []byte {
	key := append([]byte("registry/token/balance/"), contract[:]...)
	return append(key, holder[:]...)
}

func nftKey(collection types.Address, tokenID string) []byte {
	key := append([]byte("registry/nft/"), collection[:]...)
	return append(key, tokenID...)
}

// TokenAddress derives the contract address of a token symbol.
func TokenAddress(symbol string) types.Address {
	return types.DeriveAddress("token/" + strings.ToLower(strings.TrimSpace(symbol)))
}

// CollectionAddress derives the address of an NFT collection name.
func CollectionAddress(name string) types.Address {
	return types.DeriveAddress("nft/" + strings.ToLower(strings.TrimSpace(name)))
}

// RegisterToken creates a token ledger and returns its contract address.
func (r *Registry) RegisterToken(symbol string) (types.Address, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return types.Address{}, fmt.Errorf("registry: token symbol required")
	}
	contract := TokenAddress(symbol)
	exists, err := r.state.KVGet(tokenKey(contract), nil)
	if err != nil {
		return types.Address{}, err
	}
	if exists {
		return types.Address{}, ErrTokenExists
	}
	if err := r.state.KVPut(tokenKey(contract), storedToken{Symbol: symbol, Supply: new(uint256.Int)}); err != nil {
		return types.Address{}, err
	}
	return contract, nil
}

func (r *Registry) loadToken(contract types.Address) (*storedToken, error) {
	var token storedToken
	ok, err := r.state.KVGet(tokenKey(contract), &token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, contract)
	}
	return &token, nil
}

// TokenBalance returns holder's balance of contract.
func (r *Registry) TokenBalance(contract, holder types.Address) (*uint256.Int, error) {
	if _, err := r.loadToken(contract); err != nil {
		return nil, err
	}
	amount := new(uint256.Int)
	if _, err := r.state.KVGet(tokenBalanceKey(contract, holder), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (r *Registry) setTokenBalance(contract, holder types.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return r.state.KVDelete(tokenBalanceKey(contract, holder))
	}
	return r.state.KVPut(tokenBalanceKey(contract, holder), amount)
}

// MintToken credits newly issued tokens to holder.
func (r *Registry) MintToken(contract, holder types.Address, amount *uint256.Int) error {
	token, err := r.loadToken(contract)
	if err != nil {
		return err
	}
	supply, overflow := new(uint256.Int).AddOverflow(token.Supply, amount)
	if overflow {
		return fmt.Errorf("registry: %s supply overflows", token.Symbol)
	}
	current, err := r.TokenBalance(contract, holder)
	if err != nil {
		return err
	}
	// Balances never exceed supply, so this cannot overflow.
	next := new(uint256.Int).Add(current, amount)
	token.Supply = supply
	if err := r.state.KVPut(tokenKey(contract), token); err != nil {
		return err
	}
	return r.setTokenBalance(contract, holder, next)
}

// TransferToken moves tokens between holders.
func (r *Registry) TransferToken(contract, from, to types.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("registry: transfer amount must be positive")
	}
	fromBal, err := r.TokenBalance(contract, from)
	if err != nil {
		return err
	}
	remaining, underflow := new(uint256.Int).SubOverflow(fromBal, amount)
	if underflow {
		return fmt.Errorf("%w: %s holds %s", ErrInsufficientFunds, from, fromBal.Dec())
	}
	if err := r.setTokenBalance(contract, from, remaining); err != nil {
		return err
	}
	toBal, err := r.TokenBalance(contract, to)
	if err != nil {
		return err
	}
	return r.setTokenBalance(contract, to, new(uint256.Int).Add(toBal, amount))
}

func (r *Registry) loadNFT(collection types.Address, tokenID string) (*storedNFT, error) {
	var nft storedNFT
	ok, err := r.state.KVGet(nftKey(collection, tokenID), &nft)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNFTNotFound, collection, tokenID)
	}
	return &nft, nil
}

// MintNFT creates tokenID in collection owned by owner.
func (r *Registry) MintNFT(collection types.Address, tokenID string, owner types.Address) error {
	if strings.TrimSpace(tokenID) == "" {
		return fmt.Errorf("registry: token id required")
	}
	exists, err := r.state.KVGet(nftKey(collection, tokenID), nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrNFTExists
	}
	return r.state.KVPut(nftKey(collection, tokenID), storedNFT{Owner: owner})
}

// Approve lets spender move the NFT until expires. Only the owner may approve.
func (r *Registry) Approve(collection types.Address, tokenID string, caller, spender types.Address, expires escrow.Expiration) error {
	nft, err := r.loadNFT(collection, tokenID)
	if err != nil {
		return err
	}
	if nft.Owner != caller {
		return ErrNotOwner
	}
	approvals := nft.Approvals[:0]
	for _, existing := range nft.Approvals {
		if existing.Spender != spender {
			approvals = append(approvals, existing)
		}
	}
	nft.Approvals = append(approvals, storedApproval{Spender: spender, Kind: uint8(expires.Kind), Value: expires.Value})
	return r.state.KVPut(nftKey(collection, tokenID), nft)
}

// Revoke removes spender's approval.
func (r *Registry) Revoke(collection types.Address, tokenID string, caller, spender types.Address) error {
	nft, err := r.loadNFT(collection, tokenID)
	if err != nil {
		return err
	}
	if nft.Owner != caller {
		return ErrNotOwner
	}
	approvals := nft.Approvals[:0]
	for _, existing := range nft.Approvals {
		if existing.Spender != spender {
			approvals = append(approvals, existing)
		}
	}
	nft.Approvals = approvals
	return r.state.KVPut(nftKey(collection, tokenID), nft)
}

// NFTAccess reports the owner and approvals of an NFT.
func (r *Registry) NFTAccess(collection types.Address, tokenID string) (escrow.NFTAccess, error) {
	nft, err := r.loadNFT(collection, tokenID)
	if err != nil {
		return escrow.NFTAccess{}, err
	}
	access := escrow.NFTAccess{Owner: nft.Owner}
	for _, approval := range nft.Approvals {
		access.Approvals = append(access.Approvals, escrow.Approval{
			Spender: approval.Spender,
			Expires: escrow.Expiration{Kind: escrow.ExpirationKind(approval.Kind), Value: approval.Value},
		})
	}
	return access, nil
}

// TransferNFT moves an NFT and clears its approvals.
func (r *Registry) TransferNFT(collection types.Address, tokenID string, from, to types.Address) error {
	nft, err := r.loadNFT(collection, tokenID)
	if err != nil {
		return err
	}
	if nft.Owner != from {
		return ErrNotOwner
	}
	return r.state.KVPut(nftKey(collection, tokenID), storedNFT{Owner: to})
}

// Deliver executes an escrow transfer instruction out of from.
func (r *Registry) Deliver(from types.Address, transfer escrow.Transfer) error {
	asset := transfer.Asset
	switch asset.Kind {
	case escrow.AssetNative:
		if asset.Coin == nil {
			return fmt.Errorf("registry: native transfer without coin")
		}
		return r.bank.Send(from, transfer.Recipient, asset.Coin.Denom, asset.Coin.Amount)
	case escrow.AssetFungible:
		if asset.Token == nil {
			return fmt.Errorf("registry: token transfer without amount")
		}
		return r.TransferToken(asset.Token.Contract, from, transfer.Recipient, asset.Token.Amount)
	case escrow.AssetNonFungible:
		if asset.NFT == nil {
			return fmt.Errorf("registry: nft transfer without token")
		}
		return r.TransferNFT(asset.NFT.Collection, asset.NFT.TokenID, from, transfer.Recipient)
	default:
		return fmt.Errorf("registry: unknown asset kind %d", asset.Kind)
	}
}

var _ escrow.AssetQuerier = (*Registry)(nil)
