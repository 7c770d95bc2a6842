package escrow

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
)

// AssetKind tags the payload carried by an Asset.
type AssetKind uint8

const (
	AssetNative AssetKind = iota + 1
	AssetFungible
	AssetNonFungible
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetFungible:
		return "fungible"
	case AssetNonFungible:
		return "nft"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k AssetKind) MarshalText() ([]byte, error) {
	if k < AssetNative || k > AssetNonFungible {
		return nil, fmt.Errorf("escrow: unknown asset kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AssetKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "native":
		*k = AssetNative
	case "fungible":
		*k = AssetFungible
	case "nft":
		*k = AssetNonFungible
	default:
		return fmt.Errorf("escrow: unknown asset kind %q", text)
	}
	return nil
}

// Coin is an amount of a native denomination.
type Coin struct {
	Denom  string       `json:"denom"`
	Amount *uint256.Int `json:"amount"`
}

// NewCoin returns a coin of amount units of denom.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

func (c Coin) clone() Coin {
	return Coin{Denom: c.Denom, Amount: cloneAmount(c.Amount)}
}

func (c Coin) String() string { return cloneAmount(c.Amount).Dec() + c.Denom }

// TokenAmount is an amount of a fungible token identified by its issuer.
type TokenAmount struct {
	Contract types.Address `json:"contract"`
	Amount   *uint256.Int  `json:"amount"`
}

func (t TokenAmount) clone() TokenAmount {
	return TokenAmount{Contract: t.Contract, Amount: cloneAmount(t.Amount)}
}

// NFT identifies a single non-fungible asset.
type NFT struct {
	Collection types.Address `json:"collection"`
	TokenID    string        `json:"token_id"`
}

// Asset is one entry of a balance: exactly one payload, selected by Kind.
type Asset struct {
	Kind  AssetKind    `json:"kind"`
	Coin  *Coin        `json:"coin,omitempty"`
	Token *TokenAmount `json:"token,omitempty"`
	NFT   *NFT         `json:"nft,omitempty"`
}

// NativeAsset wraps a coin.
func NativeAsset(c Coin) Asset {
	c = c.clone()
	return Asset{Kind: AssetNative, Coin: &c}
}

// FungibleAsset wraps a token amount.
func FungibleAsset(t TokenAmount) Asset {
	t = t.clone()
	return Asset{Kind: AssetFungible, Token: &t}
}

// NFTAsset wraps a non-fungible asset.
func NFTAsset(n NFT) Asset {
	return Asset{Kind: AssetNonFungible, NFT: &n}
}

func (a Asset) String() string {
	switch a.Kind {
	case AssetNative:
		if a.Coin != nil {
			return a.Coin.String()
		}
	case AssetFungible:
		if a.Token != nil {
			return cloneAmount(a.Token.Amount).Dec() + "@" + a.Token.Contract.String()
		}
	case AssetNonFungible:
		if a.NFT != nil {
			return a.NFT.Collection.String() + "/" + a.NFT.TokenID
		}
	}
	return "<invalid asset>"
}

// GenericBalance is a bundle of native coins, fungible tokens and NFTs held in
// escrow or demanded in exchange.
type GenericBalance struct {
	Native   []Coin        `json:"native"`
	Fungible []TokenAmount `json:"fungible"`
	NFTs     []NFT         `json:"nfts"`
}

// FromCoins builds a balance from native coins without merging.
func FromCoins(coins ...Coin) GenericBalance {
	var b GenericBalance
	for _, c := range coins {
		b.Native = append(b.Native, c.clone())
	}
	return b
}

// FromToken builds a balance holding a single fungible token amount.
func FromToken(contract types.Address, amount *uint256.Int) GenericBalance {
	return GenericBalance{Fungible: []TokenAmount{{Contract: contract, Amount: cloneAmount(amount)}}}
}

// FromNFT builds a balance holding a single NFT.
func FromNFT(collection types.Address, tokenID string) GenericBalance {
	return GenericBalance{NFTs: []NFT{{Collection: collection, TokenID: tokenID}}}
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func addAmounts(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(cloneAmount(a), cloneAmount(b))
	if overflow {
		return nil, newError(KindOverflow, "amount addition overflows")
	}
	return sum, nil
}

// Clone returns a deep copy.
func (b GenericBalance) Clone() GenericBalance {
	var out GenericBalance
	if b.Native != nil {
		out.Native = make([]Coin, len(b.Native))
		for i, c := range b.Native {
			out.Native[i] = c.clone()
		}
	}
	if b.Fungible != nil {
		out.Fungible = make([]TokenAmount, len(b.Fungible))
		for i, t := range b.Fungible {
			out.Fungible[i] = t.clone()
		}
	}
	if b.NFTs != nil {
		out.NFTs = append([]NFT(nil), b.NFTs...)
	}
	return out
}

// IsEmpty reports whether the balance holds nothing.
func (b GenericBalance) IsEmpty() bool {
	return len(b.Native) == 0 && len(b.Fungible) == 0 && len(b.NFTs) == 0
}

func (b *GenericBalance) addCoin(c Coin) error {
	for i := range b.Native {
		if b.Native[i].Denom == c.Denom {
			sum, err := addAmounts(b.Native[i].Amount, c.Amount)
			if err != nil {
				return err
			}
			b.Native[i].Amount = sum
			return nil
		}
	}
	b.Native = append(b.Native, c.clone())
	return nil
}

func (b *GenericBalance) addToken(t TokenAmount) error {
	for i := range b.Fungible {
		if b.Fungible[i].Contract == t.Contract {
			sum, err := addAmounts(b.Fungible[i].Amount, t.Amount)
			if err != nil {
				return err
			}
			b.Fungible[i].Amount = sum
			return nil
		}
	}
	b.Fungible = append(b.Fungible, t.clone())
	return nil
}

// AddTokens merges delta into the balance: native coins and fungible tokens
// are summed per denomination or issuer, NFTs are appended. The receiver is
// left untouched when an addition overflows.
func (b *GenericBalance) AddTokens(delta GenericBalance) error {
	next := b.Clone()
	for _, c := range delta.Native {
		if err := next.addCoin(c); err != nil {
			return err
		}
	}
	for _, t := range delta.Fungible {
		if err := next.addToken(t); err != nil {
			return err
		}
	}
	next.NFTs = append(next.NFTs, delta.NFTs...)
	*b = next
	return nil
}

// AddNFT appends a non-fungible asset. Duplicates are reported by CheckValid.
func (b *GenericBalance) AddNFT(n NFT) {
	b.NFTs = append(b.NFTs, n)
}

// AddAsset merges a single asset of any kind.
func (b *GenericBalance) AddAsset(a Asset) error {
	switch a.Kind {
	case AssetNative:
		if a.Coin == nil {
			return invalid("native asset without coin")
		}
		return b.AddTokens(GenericBalance{Native: []Coin{*a.Coin}})
	case AssetFungible:
		if a.Token == nil {
			return invalid("fungible asset without token")
		}
		return b.AddTokens(GenericBalance{Fungible: []TokenAmount{*a.Token}})
	case AssetNonFungible:
		if a.NFT == nil {
			return invalid("nft asset without token id")
		}
		b.AddNFT(*a.NFT)
		return nil
	default:
		return invalid("unknown asset kind %d", a.Kind)
	}
}

// subCoin removes amount of denom, dropping the entry when it reaches zero.
func (b *GenericBalance) subCoin(c Coin) error {
	for i := range b.Native {
		if b.Native[i].Denom != c.Denom {
			continue
		}
		diff, underflow := new(uint256.Int).SubOverflow(cloneAmount(b.Native[i].Amount), cloneAmount(c.Amount))
		if underflow {
			return invalid("insufficient %s: need %s", c.Denom, cloneAmount(c.Amount).Dec())
		}
		if diff.IsZero() {
			b.Native = append(b.Native[:i:i], b.Native[i+1:]...)
			return nil
		}
		b.Native[i].Amount = diff
		return nil
	}
	return invalid("missing %s", c.Denom)
}

// CheckValid fails when any amount is zero or any identity repeats within its
// class.
func (b GenericBalance) CheckValid() error {
	denoms := make(map[string]struct{}, len(b.Native))
	for _, c := range b.Native {
		if strings.TrimSpace(c.Denom) == "" {
			return invalid("empty denomination")
		}
		if c.Amount == nil || c.Amount.IsZero() {
			return invalid("zero amount of %s", c.Denom)
		}
		if _, dup := denoms[c.Denom]; dup {
			return invalid("duplicate denomination %s", c.Denom)
		}
		denoms[c.Denom] = struct{}{}
	}
	issuers := make(map[types.Address]struct{}, len(b.Fungible))
	for _, t := range b.Fungible {
		if t.Contract.IsZero() {
			return invalid("empty token contract")
		}
		if t.Amount == nil || t.Amount.IsZero() {
			return invalid("zero amount of token %s", t.Contract)
		}
		if _, dup := issuers[t.Contract]; dup {
			return invalid("duplicate token %s", t.Contract)
		}
		issuers[t.Contract] = struct{}{}
	}
	nfts := make(map[NFT]struct{}, len(b.NFTs))
	for _, n := range b.NFTs {
		if n.Collection.IsZero() || n.TokenID == "" {
			return invalid("incomplete nft identity")
		}
		if _, dup := nfts[n]; dup {
			return invalid("duplicate nft %s/%s", n.Collection, n.TokenID)
		}
		nfts[n] = struct{}{}
	}
	return nil
}

// Compare succeeds when a and b hold the same assets, ignoring order within
// each class. Duplicates are counted, so [x, x] never equals [x].
func Compare(a, b GenericBalance) error {
	if len(a.Native) != len(b.Native) || len(a.Fungible) != len(b.Fungible) || len(a.NFTs) != len(b.NFTs) {
		return invalid("balance mismatch")
	}
	native := make(map[string]int, len(a.Native))
	for _, c := range a.Native {
		native[c.Denom+"/"+cloneAmount(c.Amount).Hex()]++
	}
	for _, c := range b.Native {
		key := c.Denom + "/" + cloneAmount(c.Amount).Hex()
		if native[key] == 0 {
			return invalid("balance mismatch")
		}
		native[key]--
	}
	fungible := make(map[string]int, len(a.Fungible))
	for _, t := range a.Fungible {
		fungible[t.Contract.Hex()+"/"+cloneAmount(t.Amount).Hex()]++
	}
	for _, t := range b.Fungible {
		key := t.Contract.Hex() + "/" + cloneAmount(t.Amount).Hex()
		if fungible[key] == 0 {
			return invalid("balance mismatch")
		}
		fungible[key]--
	}
	nfts := make(map[NFT]int, len(a.NFTs))
	for _, n := range a.NFTs {
		nfts[n]++
	}
	for _, n := range b.NFTs {
		if nfts[n] == 0 {
			return invalid("balance mismatch")
		}
		nfts[n]--
	}
	return nil
}

// Assets flattens the balance into tagged entries: native coins first, then
// fungible tokens, then NFTs, each in stored order.
func (b GenericBalance) Assets() []Asset {
	out := make([]Asset, 0, len(b.Native)+len(b.Fungible)+len(b.NFTs))
	for _, c := range b.Native {
		out = append(out, NativeAsset(c))
	}
	for _, t := range b.Fungible {
		out = append(out, FungibleAsset(t))
	}
	for _, n := range b.NFTs {
		out = append(out, NFTAsset(n))
	}
	return out
}

// Coin returns the native amount held in denom, or zero.
func (b GenericBalance) Coin(denom string) *uint256.Int {
	for _, c := range b.Native {
		if c.Denom == denom {
			return cloneAmount(c.Amount)
		}
	}
	return new(uint256.Int)
}
