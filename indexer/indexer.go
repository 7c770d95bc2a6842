// Package indexer keeps a relational journal of committed escrow events so
// that listing and bucket history can be searched without replaying state.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cyberswap/core/events"
	"cyberswap/core/types"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultLimit bounds Find when no limit is given.
const DefaultLimit = 100

// Record is one journaled event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"index"`
	Type       string    `gorm:"index"`
	ListingID  *uint64   `gorm:"index"`
	BucketID   *uint64   `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the journal schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Open connects to the journal database for driver and migrates it.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Journal writes committed events into the database. It satisfies
// events.Emitter; write failures are logged and never reach the caller.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewJournal wraps db. The sequence continues from the newest stored record.
func NewJournal(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger.With("component", "indexer"), clock: time.Now}
	var last Record
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	j.seq = last.Seq
	return j, nil
}

var _ events.Emitter = (*Journal)(nil)

// Emit stores evt. Events that are not types.Event are recorded by type only.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, err := j.record(evt)
	if err != nil {
		j.logger.Error("encode event", "type", evt.EventType(), "error", err)
		return
	}
	if err := j.db.Create(rec).Error; err != nil {
		j.logger.Error("journal event", "type", rec.Type, "error", err)
		return
	}
	j.seq = rec.Seq
}

func (j *Journal) record(evt events.Event) (*Record, error) {
	rec := &Record{
		ID:        uuid.New(),
		Seq:       j.seq + 1,
		Type:      evt.EventType(),
		CreatedAt: j.clock().UTC(),
	}
	attrs := map[string]string{}
	switch typed := evt.(type) {
	case types.Event:
		attrs = typed.Attributes
	case *types.Event:
		attrs = typed.Attributes
	}
	rec.ListingID = parseID(attrs["listingId"])
	rec.BucketID = parseID(attrs["bucketId"])
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	rec.Attributes = string(raw)
	return rec, nil
}

func parseID(v string) *uint64 {
	if v == "" {
		return nil
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// Filter narrows Find. Zero fields match everything.
type Filter struct {
	Type      string
	ListingID *uint64
	BucketID  *uint64
	AfterSeq  uint64
	Limit     int
}

// Find returns matching events in journal order.
func (j *Journal) Find(ctx context.Context, f Filter) ([]types.Event, error) {
	q := j.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", f.AfterSeq)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.ListingID != nil {
		q = q.Where("listing_id = ?", *f.ListingID)
	}
	if f.BucketID != nil {
		q = q.Where("bucket_id = ?", *f.BucketID)
	}
	limit := f.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	var rows []Record
	if err := q.Order("seq asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("indexer: find: %w", err)
	}
	out := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("indexer: decode event %s: %w", row.ID, err)
			}
		}
		out = append(out, types.Event{Type: row.Type, Attributes: attrs})
	}
	return out, nil
}
