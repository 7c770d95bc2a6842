package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"cyberswap/core/host"
	"cyberswap/core/types"
	"cyberswap/native/escrow"
	"cyberswap/native/registry"
)

// Genesis is the YAML document seeding a fresh node. Amounts are decimal
// strings so that values beyond 64 bits survive the round trip.
type Genesis struct {
	Escrow   EscrowGenesis    `yaml:"escrow"`
	Balances []BalanceGenesis `yaml:"balances"`
	Tokens   []TokenGenesis   `yaml:"tokens"`
	NFTs     []NFTGenesis     `yaml:"nfts"`
}

type EscrowGenesis struct {
	Admin           string               `yaml:"admin"`
	FeeDenom        string               `yaml:"fee_denom"`
	ListingFee      string               `yaml:"listing_fee"`
	BucketFee       string               `yaml:"bucket_fee"`
	MaxDuration     uint64               `yaml:"max_duration"`
	WhitelistNative []escrow.NativeEntry `yaml:"whitelist_native"`
	WhitelistTokens []TokenWhitelist     `yaml:"whitelist_tokens"`
}

// TokenWhitelist names a token issuer either by registered symbol or by
// contract address.
type TokenWhitelist struct {
	Label    string `yaml:"label"`
	Symbol   string `yaml:"symbol"`
	Contract string `yaml:"contract"`
}

type BalanceGenesis struct {
	Address string `yaml:"address"`
	Denom   string `yaml:"denom"`
	Amount  string `yaml:"amount"`
}

type TokenGenesis struct {
	Symbol   string          `yaml:"symbol"`
	Balances []HolderGenesis `yaml:"balances"`
}

type HolderGenesis struct {
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

type NFTGenesis struct {
	Collection string `yaml:"collection"`
	TokenID    string `yaml:"token_id"`
	Owner      string `yaml:"owner"`
}

// LoadGenesis reads and converts the genesis file at path.
func LoadGenesis(path string) (host.Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return host.Genesis{}, err
	}
	return ParseGenesis(raw)
}

// ParseGenesis decodes a YAML genesis document.
func ParseGenesis(raw []byte) (host.Genesis, error) {
	var doc Genesis
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return host.Genesis{}, fmt.Errorf("genesis: %w", err)
	}
	return doc.Build()
}

func parseAmount(field, value string, allowZero bool) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if allowZero {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("genesis: %s: amount required", field)
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("genesis: %s: %w", field, err)
	}
	if !allowZero && amount.IsZero() {
		return nil, fmt.Errorf("genesis: %s: amount must be positive", field)
	}
	return amount, nil
}

func parseAddress(field, value string) (types.Address, error) {
	addr, err := types.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return types.Address{}, fmt.Errorf("genesis: %s: %w", field, err)
	}
	return addr, nil
}

// Build validates the document and converts it to the host's genesis.
func (g Genesis) Build() (host.Genesis, error) {
	var out host.Genesis
	admin, err := parseAddress("escrow.admin", g.Escrow.Admin)
	if err != nil {
		return out, err
	}
	listingFee, err := parseAmount("escrow.listing_fee", g.Escrow.ListingFee, true)
	if err != nil {
		return out, err
	}
	bucketFee, err := parseAmount("escrow.bucket_fee", g.Escrow.BucketFee, true)
	if err != nil {
		return out, err
	}
	cfg := escrow.Config{
		Admin:           admin,
		FeeDenom:        g.Escrow.FeeDenom,
		ListingFee:      listingFee,
		BucketFee:       bucketFee,
		MaxDuration:     g.Escrow.MaxDuration,
		WhitelistNative: append([]escrow.NativeEntry(nil), g.Escrow.WhitelistNative...),
	}
	for i, entry := range g.Escrow.WhitelistTokens {
		field := fmt.Sprintf("escrow.whitelist_tokens[%d]", i)
		var contract types.Address
		switch {
		case entry.Symbol != "" && entry.Contract == "":
			contract = registry.TokenAddress(entry.Symbol)
		case entry.Contract != "" && entry.Symbol == "":
			if contract, err = parseAddress(field, entry.Contract); err != nil {
				return out, err
			}
		default:
			return out, fmt.Errorf("genesis: %s: exactly one of symbol or contract is required", field)
		}
		label := entry.Label
		if label == "" {
			label = entry.Symbol
		}
		cfg.WhitelistFungible = append(cfg.WhitelistFungible, escrow.FungibleEntry{Label: label, Contract: contract})
	}
	if out.Escrow, err = escrow.SanitizeConfig(cfg); err != nil {
		return out, fmt.Errorf("genesis: escrow: %w", err)
	}

	for i, b := range g.Balances {
		field := fmt.Sprintf("balances[%d]", i)
		addr, err := parseAddress(field, b.Address)
		if err != nil {
			return out, err
		}
		amount, err := parseAmount(field, b.Amount, false)
		if err != nil {
			return out, err
		}
		if strings.TrimSpace(b.Denom) == "" {
			return out, fmt.Errorf("genesis: %s: denom required", field)
		}
		out.Balances = append(out.Balances, host.CoinGrant{Address: addr, Denom: strings.TrimSpace(b.Denom), Amount: amount})
	}
	for i, tok := range g.Tokens {
		token := host.Token{Symbol: strings.TrimSpace(tok.Symbol)}
		if token.Symbol == "" {
			return out, fmt.Errorf("genesis: tokens[%d]: symbol required", i)
		}
		for j, holder := range tok.Balances {
			field := fmt.Sprintf("tokens[%d].balances[%d]", i, j)
			addr, err := parseAddress(field, holder.Holder)
			if err != nil {
				return out, err
			}
			amount, err := parseAmount(field, holder.Amount, false)
			if err != nil {
				return out, err
			}
			token.Balances = append(token.Balances, host.TokenGrant{Holder: addr, Amount: amount})
		}
		out.Tokens = append(out.Tokens, token)
	}
	for i, nft := range g.NFTs {
		field := fmt.Sprintf("nfts[%d]", i)
		owner, err := parseAddress(field, nft.Owner)
		if err != nil {
			return out, err
		}
		if strings.TrimSpace(nft.Collection) == "" || strings.TrimSpace(nft.TokenID) == "" {
			return out, fmt.Errorf("genesis: %s: collection and token_id required", field)
		}
		out.NFTs = append(out.NFTs, host.NFTGrant{Collection: nft.Collection, TokenID: strings.TrimSpace(nft.TokenID), Owner: owner})
	}
	return out, nil
}
