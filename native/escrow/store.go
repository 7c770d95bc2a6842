package escrow

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"cyberswap/core/types"
	"cyberswap/storage"
	"cyberswap/storage/table"
)

var (
	configKey       = []byte("escrow/config")
	listingCountKey = []byte("escrow/count/listing")
	bucketCountKey  = []byte("escrow/count/bucket")

	// defaultBuyerSlot keys the buyer index for listings open to anyone.
	defaultBuyerSlot = []byte("1")
)

type storedListing struct {
	Creator          [20]byte
	ID               uint64
	FinalizedTime    uint64
	ExpirationTime   uint64
	Status           uint8
	Claimant         [20]byte
	WhitelistedBuyer [20]byte
	ForSale          GenericBalance
	Ask              GenericBalance
	FeeDenom         string
	FeeAmount        *uint256.Int
}

type storedBucket struct {
	Owner     [20]byte
	ID        uint64
	Funds     GenericBalance
	FeeDenom  string
	FeeAmount *uint256.Int
}

func feeFields(fee *Coin) (string, *uint256.Int) {
	if fee == nil {
		return "", new(uint256.Int)
	}
	return fee.Denom, cloneAmount(fee.Amount)
}

func feeFromFields(denom string, amount *uint256.Int) *Coin {
	if denom == "" || amount == nil || amount.IsZero() {
		return nil
	}
	return &Coin{Denom: denom, Amount: cloneAmount(amount)}
}

var listingCodec = table.Codec[*Listing]{
	Encode: func(l *Listing) ([]byte, error) {
		denom, amount := feeFields(l.Fee)
		return rlp.EncodeToBytes(&storedListing{
			Creator:          l.Creator,
			ID:               l.ID,
			FinalizedTime:    l.FinalizedTime,
			ExpirationTime:   l.ExpirationTime,
			Status:           uint8(l.Status),
			Claimant:         l.Claimant,
			WhitelistedBuyer: l.WhitelistedBuyer,
			ForSale:          l.ForSale,
			Ask:              l.Ask,
			FeeDenom:         denom,
			FeeAmount:        amount,
		})
	},
	Decode: func(raw []byte) (*Listing, error) {
		var stored storedListing
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, err
		}
		return &Listing{
			Creator:          stored.Creator,
			ID:               stored.ID,
			FinalizedTime:    stored.FinalizedTime,
			ExpirationTime:   stored.ExpirationTime,
			Status:           ListingStatus(stored.Status),
			Claimant:         stored.Claimant,
			WhitelistedBuyer: stored.WhitelistedBuyer,
			ForSale:          stored.ForSale,
			Ask:              stored.Ask,
			Fee:              feeFromFields(stored.FeeDenom, stored.FeeAmount),
		}, nil
	},
}

var bucketCodec = table.Codec[*Bucket]{
	Encode: func(b *Bucket) ([]byte, error) {
		denom, amount := feeFields(b.Fee)
		return rlp.EncodeToBytes(&storedBucket{
			Owner:     b.Owner,
			ID:        b.ID,
			Funds:     b.Funds,
			FeeDenom:  denom,
			FeeAmount: amount,
		})
	},
	Decode: func(raw []byte) (*Bucket, error) {
		var stored storedBucket
		if err := rlp.DecodeBytes(raw, &stored); err != nil {
			return nil, err
		}
		return &Bucket{
			Owner: stored.Owner,
			ID:    stored.ID,
			Funds: stored.Funds,
			Fee:   feeFromFields(stored.FeeDenom, stored.FeeAmount),
		}, nil
	},
}

func be64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func recordKey(owner types.Address, id uint64) []byte {
	return append(owner.Bytes(), be64(id)...)
}

var (
	listingsByID = table.Unique("id", func(l *Listing) []byte { return be64(l.ID) })
	// listingsByFinalized only holds finalized listings.
	listingsByFinalized = table.Multi("finalized", func(l *Listing) []byte {
		if l.Status != StatusFinalizedReady {
			return nil
		}
		return be64(l.FinalizedTime)
	})
	listingsByBuyer = table.Unique("buyer", func(l *Listing) []byte {
		slot := defaultBuyerSlot
		if !l.WhitelistedBuyer.IsZero() {
			slot = l.WhitelistedBuyer.Bytes()
		}
		return append(append([]byte(nil), slot...), be64(l.ID)...)
	})

	listingRecords = table.New[*Listing]("escrow/listing/", listingCodec, listingsByID, listingsByFinalized, listingsByBuyer)
	bucketRecords  = table.New[*Bucket]("escrow/bucket/", bucketCodec)
)

func storeError(err error, context string) error {
	if errors.Is(err, table.ErrIndexConflict) || errors.Is(err, table.ErrExists) {
		return invalid("%s: %v", context, err)
	}
	if errors.Is(err, table.ErrNotFound) {
		return notFound("%s", context)
	}
	return wrapGeneric(err, context)
}

// listingStore is the indexed listing table bound to one invocation.
type listingStore struct {
	kv storage.KV
}

func (s listingStore) insert(l *Listing) error {
	return storeError(listingRecords.Insert(s.kv, recordKey(l.Creator, l.ID), l), "insert listing")
}

func (s listingStore) load(creator types.Address, id uint64) (*Listing, error) {
	l, ok, err := listingRecords.Load(s.kv, recordKey(creator, id))
	if err != nil {
		return nil, wrapGeneric(err, "load listing")
	}
	if !ok {
		return nil, notFound("listing %d", id)
	}
	return l, nil
}

func (s listingStore) save(l *Listing) error {
	return storeError(listingRecords.Save(s.kv, recordKey(l.Creator, l.ID), l), "save listing")
}

func (s listingStore) remove(l *Listing) error {
	return storeError(listingRecords.Remove(s.kv, recordKey(l.Creator, l.ID)), "remove listing")
}

func (s listingStore) byID(id uint64) (*Listing, error) {
	pk, ok, err := listingsByID.Lookup(s.kv, be64(id))
	if err != nil {
		return nil, wrapGeneric(err, "lookup listing")
	}
	if !ok {
		return nil, notFound("listing %d", id)
	}
	l, ok, err := listingRecords.Load(s.kv, pk)
	if err != nil {
		return nil, wrapGeneric(err, "load listing")
	}
	if !ok {
		return nil, notFound("listing %d", id)
	}
	return l, nil
}

func (s listingStore) byCreator(creator types.Address) ([]*Listing, error) {
	var out []*Listing
	err := listingRecords.Scan(s.kv, creator.Bytes(), func(_ []byte, l *Listing) (bool, error) {
		out = append(out, l)
		return true, nil
	})
	return out, wrapGeneric(err, "scan listings")
}

// byFinalized visits finalized listings newest first while fn returns true.
// Listings finalized before since are not visited.
func (s listingStore) byFinalized(since uint64, fn func(*Listing) bool) error {
	err := listingsByFinalized.Each(s.kv, nil, true, func(entry, pk []byte) (bool, error) {
		if binary.BigEndian.Uint64(entry[:8]) < since {
			return false, nil
		}
		l, ok, err := listingRecords.Load(s.kv, pk)
		if err != nil || !ok {
			return false, err
		}
		return fn(l), nil
	})
	return wrapGeneric(err, "scan finalized listings")
}

// all visits listings in id order while fn returns true.
func (s listingStore) all(fn func(*Listing) bool) error {
	err := listingsByID.Each(s.kv, nil, false, func(_, pk []byte) (bool, error) {
		l, ok, err := listingRecords.Load(s.kv, pk)
		if err != nil || !ok {
			return false, err
		}
		return fn(l), nil
	})
	return wrapGeneric(err, "scan listings")
}

// bucketStore is the bucket table bound to one invocation.
type bucketStore struct {
	kv storage.KV
}

func (s bucketStore) insert(b *Bucket) error {
	return storeError(bucketRecords.Insert(s.kv, recordKey(b.Owner, b.ID), b), "create bucket")
}

func (s bucketStore) exists(owner types.Address, id uint64) (bool, error) {
	ok, err := bucketRecords.Has(s.kv, recordKey(owner, id))
	return ok, wrapGeneric(err, "lookup bucket")
}

func (s bucketStore) load(owner types.Address, id uint64) (*Bucket, error) {
	b, ok, err := bucketRecords.Load(s.kv, recordKey(owner, id))
	if err != nil {
		return nil, wrapGeneric(err, "load bucket")
	}
	if !ok {
		return nil, notFound("bucket %d", id)
	}
	return b, nil
}

func (s bucketStore) save(b *Bucket) error {
	return storeError(bucketRecords.Save(s.kv, recordKey(b.Owner, b.ID), b), "save bucket")
}

func (s bucketStore) remove(b *Bucket) error {
	return storeError(bucketRecords.Remove(s.kv, recordKey(b.Owner, b.ID)), "remove bucket")
}

func (s bucketStore) byOwner(owner types.Address) ([]*Bucket, error) {
	var out []*Bucket
	err := bucketRecords.Scan(s.kv, owner.Bytes(), func(_ []byte, b *Bucket) (bool, error) {
		out = append(out, b)
		return true, nil
	})
	return out, wrapGeneric(err, "scan buckets")
}
