package escrow

import (
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
)

const (
	// DefaultMaxDuration bounds how long a finalized listing stays on sale.
	DefaultMaxDuration uint64 = 14 * 24 * 60 * 60
	// DefaultFeeDenom is used when genesis leaves the fee denomination unset.
	DefaultFeeDenom = "ucswap"
)

// NativeEntry whitelists a native denomination.
type NativeEntry struct {
	Label string `json:"label" yaml:"label"`
	Denom string `json:"denom" yaml:"denom"`
}

// FungibleEntry whitelists a fungible token issuer.
type FungibleEntry struct {
	Label    string        `json:"label" yaml:"label"`
	Contract types.Address `json:"contract" yaml:"contract"`
}

// Config is the module's persisted configuration record.
type Config struct {
	Admin                types.Address   `json:"admin"`
	FeeDenom             string          `json:"fee_denom"`
	WhitelistNative      []NativeEntry   `json:"whitelist_native"`
	WhitelistFungible    []FungibleEntry `json:"whitelist_fungible"`
	RemovalQueueNative   []NativeEntry   `json:"removal_queue_native"`
	RemovalQueueFungible []FungibleEntry `json:"removal_queue_fungible"`
	// ListingFee is charged when a listing is finalized. Zero disables it.
	ListingFee *uint256.Int `json:"listing_fee"`
	// BucketFee is withheld from the native deposit creating a bucket. Zero
	// disables it.
	BucketFee   *uint256.Int `json:"bucket_fee"`
	MaxDuration uint64       `json:"max_duration"`
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.WhitelistNative = append([]NativeEntry(nil), c.WhitelistNative...)
	out.WhitelistFungible = append([]FungibleEntry(nil), c.WhitelistFungible...)
	out.RemovalQueueNative = append([]NativeEntry(nil), c.RemovalQueueNative...)
	out.RemovalQueueFungible = append([]FungibleEntry(nil), c.RemovalQueueFungible...)
	out.ListingFee = cloneAmount(c.ListingFee)
	out.BucketFee = cloneAmount(c.BucketFee)
	return out
}

// SanitizeConfig validates cfg and fills defaults, returning a copy.
func SanitizeConfig(cfg Config) (Config, error) {
	out := cfg.Clone()
	if out.Admin.IsZero() {
		return Config{}, invalid("admin must be set")
	}
	out.FeeDenom = strings.TrimSpace(out.FeeDenom)
	if out.FeeDenom == "" {
		out.FeeDenom = DefaultFeeDenom
	}
	if out.MaxDuration == 0 {
		out.MaxDuration = DefaultMaxDuration
	}
	seenDenoms := make(map[string]struct{})
	for i, entry := range out.WhitelistNative {
		entry.Denom = strings.TrimSpace(entry.Denom)
		if entry.Denom == "" {
			return Config{}, invalid("whitelist entry %d has empty denom", i)
		}
		if _, dup := seenDenoms[entry.Denom]; dup {
			return Config{}, invalid("denom %s whitelisted twice", entry.Denom)
		}
		seenDenoms[entry.Denom] = struct{}{}
		out.WhitelistNative[i] = entry
	}
	seenTokens := make(map[types.Address]struct{})
	for i, entry := range out.WhitelistFungible {
		if entry.Contract.IsZero() {
			return Config{}, invalid("whitelist entry %d has empty contract", i)
		}
		if _, dup := seenTokens[entry.Contract]; dup {
			return Config{}, invalid("token %s whitelisted twice", entry.Contract)
		}
		seenTokens[entry.Contract] = struct{}{}
	}
	return out, nil
}

// NativeAllowed reports whether denom is whitelisted.
func (c Config) NativeAllowed(denom string) bool {
	for _, entry := range c.WhitelistNative {
		if entry.Denom == denom {
			return true
		}
	}
	return false
}

// FungibleAllowed reports whether contract is a whitelisted issuer.
func (c Config) FungibleAllowed(contract types.Address) bool {
	for _, entry := range c.WhitelistFungible {
		if entry.Contract == contract {
			return true
		}
	}
	return false
}

// checkWhitelisted fails unless every native denomination and fungible issuer
// in b is accepted. NFTs are accepted from any collection.
func (c Config) checkWhitelisted(b GenericBalance) error {
	for _, coin := range b.Native {
		if !c.NativeAllowed(coin.Denom) {
			return invalid("denomination %s is not whitelisted", coin.Denom)
		}
	}
	for _, token := range b.Fungible {
		if !c.FungibleAllowed(token.Contract) {
			return invalid("token %s is not whitelisted", token.Contract)
		}
	}
	return nil
}

func (c Config) listingFee() *Coin {
	if c.ListingFee == nil || c.ListingFee.IsZero() {
		return nil
	}
	return &Coin{Denom: c.FeeDenom, Amount: cloneAmount(c.ListingFee)}
}

func (c Config) bucketFee() *Coin {
	if c.BucketFee == nil || c.BucketFee.IsZero() {
		return nil
	}
	return &Coin{Denom: c.FeeDenom, Amount: cloneAmount(c.BucketFee)}
}

// WhitelistMsg names exactly one native or fungible whitelist entry.
type WhitelistMsg struct {
	Native   *NativeEntry   `json:"native,omitempty"`
	Fungible *FungibleEntry `json:"fungible,omitempty"`
}

func (m WhitelistMsg) validate() error {
	switch {
	case m.Native != nil && m.Fungible == nil:
		if strings.TrimSpace(m.Native.Denom) == "" {
			return invalid("denom must not be empty")
		}
	case m.Fungible != nil && m.Native == nil:
		if m.Fungible.Contract.IsZero() {
			return invalid("contract must not be empty")
		}
	default:
		return invalid("exactly one of native or fungible must be set")
	}
	return nil
}

func (e *Engine) requireAdmin(caller types.Address) (Config, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return Config{}, err
	}
	if caller != cfg.Admin {
		return Config{}, unauthorized("admin only")
	}
	return cfg, nil
}

// AddToWhitelist accepts a new native denomination or token issuer.
func (e *Engine) AddToWhitelist(caller types.Address, msg WhitelistMsg) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.Native != nil {
		entry := NativeEntry{Label: msg.Native.Label, Denom: strings.TrimSpace(msg.Native.Denom)}
		if cfg.NativeAllowed(entry.Denom) {
			return invalid("denomination %s already whitelisted", entry.Denom)
		}
		cfg.WhitelistNative = append(cfg.WhitelistNative, entry)
	} else {
		if cfg.FungibleAllowed(msg.Fungible.Contract) {
			return invalid("token %s already whitelisted", msg.Fungible.Contract)
		}
		cfg.WhitelistFungible = append(cfg.WhitelistFungible, *msg.Fungible)
	}
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(newWhitelistEvent(EventTypeWhitelistAdded, msg))
	return nil
}

// AddToRemovalQueue stages a whitelisted entry for removal. The entry stays
// accepted until the queue is cleared.
func (e *Engine) AddToRemovalQueue(caller types.Address, msg WhitelistMsg) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.Native != nil {
		denom := strings.TrimSpace(msg.Native.Denom)
		if !cfg.NativeAllowed(denom) {
			return notFound("denomination %s is not whitelisted", denom)
		}
		for _, queued := range cfg.RemovalQueueNative {
			if queued.Denom == denom {
				return invalid("denomination %s already queued", denom)
			}
		}
		cfg.RemovalQueueNative = append(cfg.RemovalQueueNative, NativeEntry{Label: msg.Native.Label, Denom: denom})
	} else {
		if !cfg.FungibleAllowed(msg.Fungible.Contract) {
			return notFound("token %s is not whitelisted", msg.Fungible.Contract)
		}
		for _, queued := range cfg.RemovalQueueFungible {
			if queued.Contract == msg.Fungible.Contract {
				return invalid("token %s already queued", msg.Fungible.Contract)
			}
		}
		cfg.RemovalQueueFungible = append(cfg.RemovalQueueFungible, *msg.Fungible)
	}
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(newWhitelistEvent(EventTypeRemovalQueued, msg))
	return nil
}

// ClearRemovalQueue drops every queued entry from the whitelists and empties
// both queues.
func (e *Engine) ClearRemovalQueue(caller types.Address) error {
	cfg, err := e.requireAdmin(caller)
	if err != nil {
		return err
	}
	removed := len(cfg.RemovalQueueNative) + len(cfg.RemovalQueueFungible)
	for _, queued := range cfg.RemovalQueueNative {
		kept := cfg.WhitelistNative[:0]
		for _, entry := range cfg.WhitelistNative {
			if entry.Denom != queued.Denom {
				kept = append(kept, entry)
			}
		}
		cfg.WhitelistNative = kept
	}
	for _, queued := range cfg.RemovalQueueFungible {
		kept := cfg.WhitelistFungible[:0]
		for _, entry := range cfg.WhitelistFungible {
			if entry.Contract != queued.Contract {
				kept = append(kept, entry)
			}
		}
		cfg.WhitelistFungible = kept
	}
	cfg.RemovalQueueNative = nil
	cfg.RemovalQueueFungible = nil
	if err := e.storeConfig(cfg); err != nil {
		return err
	}
	e.emit(newRemovalClearedEvent(removed))
	return nil
}
