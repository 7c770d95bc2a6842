// Package bank keeps native coin balances for every account.
package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidDenom      = errors.New("bank: denom required")
)

type bankState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Keeper reads and moves native coins.
type Keeper struct {
	state bankState
}

// NewKeeper wraps state.
func NewKeeper(state bankState) *Keeper {
	return &Keeper{state: state}
}

func balanceKey(addr types.Address, denom string) []byte {
	key := append([]byte("bank/balance/"), addr[:]...)
	return append(key, denom...)
}

func normalizeDenom(denom string) (string, error) {
	trimmed := strings.TrimSpace(denom)
	if trimmed == "" {
		return "", ErrInvalidDenom
	}
	return trimmed, nil
}

// Balance returns the amount of denom held by addr.
func (k *Keeper) Balance(addr types.Address, denom string) (*uint256.Int, error) {
	denom, err := normalizeDenom(denom)
	if err != nil {
		return nil, err
	}
	amount := new(uint256.Int)
	if _, err := k.state.KVGet(balanceKey(addr, denom), amount); err != nil {
		return nil, fmt.Errorf("bank: load balance: %w", err)
	}
	return amount, nil
}

func (k *Keeper) setBalance(addr types.Address, denom string, amount *uint256.Int) error {
	if amount.IsZero() {
		return k.state.KVDelete(balanceKey(addr, denom))
	}
	return k.state.KVPut(balanceKey(addr, denom), amount)
}

// Mint credits new coins to addr.
func (k *Keeper) Mint(addr types.Address, denom string, amount *uint256.Int) error {
	denom, err := normalizeDenom(denom)
	if err != nil {
		return err
	}
	current, err := k.Balance(addr, denom)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return fmt.Errorf("bank: balance of %s overflows", denom)
	}
	return k.setBalance(addr, denom, next)
}

// Send moves amount of denom from one account to another.
func (k *Keeper) Send(from, to types.Address, denom string, amount *uint256.Int) error {
	denom, err := normalizeDenom(denom)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal, err := k.Balance(from, denom)
	if err != nil {
		return err
	}
	remaining, underflow := new(uint256.Int).SubOverflow(fromBal, amount)
	if underflow {
		return fmt.Errorf("%w: %s holds %s%s", ErrInsufficientFunds, from, fromBal.Dec(), denom)
	}
	if err := k.setBalance(from, denom, remaining); err != nil {
		return err
	}
	return k.Mint(to, denom, amount)
}
