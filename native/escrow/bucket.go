package escrow

import (
	"cyberswap/core/types"
)

// Bucket is a pool of escrowed funds owned by one account.
type Bucket struct {
	Owner types.Address  `json:"owner"`
	ID    uint64         `json:"id"`
	Funds GenericBalance `json:"funds"`
	Fee   *Coin          `json:"fee,omitempty"`
}

// Clone returns a deep copy of the bucket.
func (b *Bucket) Clone() *Bucket {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Funds = b.Funds.Clone()
	if b.Fee != nil {
		fee := b.Fee.clone()
		clone.Fee = &fee
	}
	return &clone
}

// openBucket inserts a bucket for owner. A zero id allocates the next free id
// from the bucket counter.
func (e *Engine) openBucket(owner types.Address, id uint64, funds GenericBalance, fee *Coin) (*Bucket, error) {
	store, err := e.buckets()
	if err != nil {
		return nil, err
	}
	if id == 0 {
		for {
			next, err := e.state.NextCounter(bucketCountKey)
			if err != nil {
				return nil, wrapGeneric(err, "bucket counter")
			}
			taken, err := store.exists(owner, next)
			if err != nil {
				return nil, err
			}
			if !taken {
				id = next
				break
			}
		}
	}
	bucket := &Bucket{Owner: owner, ID: id, Funds: funds.Clone(), Fee: fee}
	if err := store.insert(bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

// CreateBucket escrows deposit in a new bucket. When a bucket fee is
// configured it is withheld from the native part of the deposit, so buckets
// funded only by tokens or NFTs cannot be opened while the fee is active.
func (e *Engine) CreateBucket(owner types.Address, id uint64, deposit GenericBalance) (*Bucket, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := e.checkDeposit(cfg, deposit); err != nil {
		return nil, err
	}
	store, err := e.buckets()
	if err != nil {
		return nil, err
	}
	if id != 0 {
		taken, err := store.exists(owner, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, invalid("bucket %d already exists", id)
		}
	}
	funds := deposit.Clone()
	fee := cfg.bucketFee()
	if fee != nil {
		if err := funds.subCoin(*fee); err != nil {
			return nil, invalid("bucket fee of %s required", fee)
		}
		if funds.IsEmpty() {
			return nil, invalid("deposit only covers the bucket fee")
		}
	}
	bucket, err := e.openBucket(owner, id, funds, fee)
	if err != nil {
		return nil, err
	}
	e.emit(newBucketEvent(EventTypeBucketCreated, bucket))
	return bucket.Clone(), nil
}

// AddToBucket merges deposit into an existing bucket of owner.
func (e *Engine) AddToBucket(owner types.Address, id uint64, deposit GenericBalance) (*Bucket, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := e.checkDeposit(cfg, deposit); err != nil {
		return nil, err
	}
	store, err := e.buckets()
	if err != nil {
		return nil, err
	}
	bucket, err := store.load(owner, id)
	if err != nil {
		return nil, err
	}
	if err := bucket.Funds.AddTokens(deposit); err != nil {
		return nil, err
	}
	if err := bucket.Funds.CheckValid(); err != nil {
		return nil, err
	}
	if err := store.save(bucket); err != nil {
		return nil, err
	}
	e.emit(newBucketEvent(EventTypeBucketFunded, bucket))
	return bucket.Clone(), nil
}

// RemoveBucket settles a bucket's funds to its owner and deletes it.
func (e *Engine) RemoveBucket(owner types.Address, id uint64) ([]Transfer, error) {
	store, err := e.buckets()
	if err != nil {
		return nil, err
	}
	bucket, err := store.load(owner, id)
	if err != nil {
		return nil, err
	}
	transfers, err := Settle(bucket.Owner, bucket.Funds, bucket.Fee, e.router)
	if err != nil {
		return nil, err
	}
	if err := store.remove(bucket); err != nil {
		return nil, err
	}
	e.emit(newBucketEvent(EventTypeBucketRemoved, bucket))
	return transfers, nil
}
