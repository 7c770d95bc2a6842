package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part used for account strings.
const AddressPrefix = "cswap"

// AddressLength is the byte length of an account address.
const AddressLength = 20

// Address identifies an account, token contract or NFT collection. The zero
// value means "unset".
type Address [AddressLength]byte

// BytesToAddress copies b into an address, panicking when the length is wrong.
func BytesToAddress(b []byte) Address {
	if len(b) != AddressLength {
		panic(fmt.Sprintf("address must be %d bytes long", AddressLength))
	}
	var a Address
	copy(a[:], b)
	return a
}

// DeriveAddress returns the address owned by a named module account.
func DeriveAddress(label string) Address {
	return BytesToAddress(crypto.Keccak256([]byte("module/" + label))[12:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == Address{} }

// Bytes returns a copy of the raw address.
func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Hex returns the 0x-prefixed hexadecimal form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// ParseAddress accepts the bech32 form or a 0x-prefixed hex string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return Address{}, fmt.Errorf("invalid hex address %q", s)
		}
		return Address(common.HexToAddress(s)), nil
	}
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long", AddressLength)
	}
	return BytesToAddress(conv), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalText encodes the bech32 form; the zero address encodes as "".
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes either textual form; "" yields the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
