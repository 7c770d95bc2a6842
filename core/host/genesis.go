package host

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
	"cyberswap/native/escrow"
	"cyberswap/native/registry"
)

// CoinGrant credits a native balance at genesis.
type CoinGrant struct {
	Address types.Address
	Denom   string
	Amount  *uint256.Int
}

// TokenGrant credits a token balance at genesis.
type TokenGrant struct {
	Holder types.Address
	Amount *uint256.Int
}

// Token registers a token ledger at genesis.
type Token struct {
	Symbol   string
	Balances []TokenGrant
}

// NFTGrant mints one NFT at genesis.
type NFTGrant struct {
	Collection string
	TokenID    string
	Owner      types.Address
}

// Genesis is the initial state of a fresh database.
type Genesis struct {
	Escrow   escrow.Config
	Balances []CoinGrant
	Tokens   []Token
	NFTs     []NFTGrant
}

// InitGenesis seeds an empty database. It fails, changing nothing, when the
// escrow module is already initialised.
func (h *Host) InitGenesis(ctx context.Context, g Genesis) error {
	_, err := h.run(ctx, "genesis", func(inv *invocation) (*escrow.Response, error) {
		reg := inv.registry
		for _, token := range g.Tokens {
			contract, err := reg.RegisterToken(token.Symbol)
			if err != nil {
				return nil, fmt.Errorf("genesis token %s: %w", token.Symbol, err)
			}
			for _, grant := range token.Balances {
				if err := reg.MintToken(contract, grant.Holder, grant.Amount); err != nil {
					return nil, fmt.Errorf("genesis token %s: %w", token.Symbol, err)
				}
			}
		}
		for _, grant := range g.Balances {
			if err := reg.Bank().Mint(grant.Address, grant.Denom, grant.Amount); err != nil {
				return nil, fmt.Errorf("genesis balance %s: %w", grant.Address, err)
			}
		}
		for _, nft := range g.NFTs {
			if err := reg.MintNFT(registry.CollectionAddress(nft.Collection), nft.TokenID, nft.Owner); err != nil {
				return nil, fmt.Errorf("genesis nft %s/%s: %w", nft.Collection, nft.TokenID, err)
			}
		}
		if err := inv.engine.Init(g.Escrow); err != nil {
			return nil, err
		}
		return &escrow.Response{}, nil
	})
	return err
}

// Initialised reports whether genesis has been applied.
func (h *Host) Initialised(ctx context.Context) (bool, error) {
	var ok bool
	err := h.view(ctx, func(inv *invocation) error {
		_, err := inv.engine.Config()
		ok = err == nil
		return nil
	})
	return ok, err
}
