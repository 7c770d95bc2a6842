package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"cyberswap/core/events"
	"cyberswap/core/types"
)

func setupJournal(t *testing.T) (*gorm.DB, *Journal) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	j, err := NewJournal(db, nil)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	return db, j
}

func listingEvent(kind string, id uint64) types.Event {
	return types.Event{Type: kind, Attributes: map[string]string{"listingId": fmt.Sprint(id), "status": "finalized"}}
}

func TestJournalFindsByListing(t *testing.T) {
	_, j := setupJournal(t)
	j.Emit(listingEvent("escrow.listing.created", 1))
	j.Emit(listingEvent("escrow.listing.created", 2))
	j.Emit(listingEvent("escrow.listing.purchased", 1))

	id := uint64(1)
	got, err := j.Find(context.Background(), Filter{ListingID: &id})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "escrow.listing.created" || got[1].Type != "escrow.listing.purchased" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Attr("status") != "finalized" {
		t.Fatalf("attributes not restored: %+v", got[1].Attributes)
	}
}

func TestJournalFiltersByTypeAndSeq(t *testing.T) {
	_, j := setupJournal(t)
	for i := uint64(1); i <= 5; i++ {
		j.Emit(listingEvent("escrow.listing.created", i))
	}
	j.Emit(types.Event{Type: "escrow.bucket.created", Attributes: map[string]string{"bucketId": "7"}})

	got, err := j.Find(context.Background(), Filter{Type: "escrow.listing.created", AfterSeq: 3})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events after seq 3, got %d", len(got))
	}
	bucket := uint64(7)
	got, err = j.Find(context.Background(), Filter{BucketID: &bucket})
	if err != nil {
		t.Fatalf("find bucket: %v", err)
	}
	if len(got) != 1 || got[0].Attr("bucketId") != "7" {
		t.Fatalf("unexpected bucket events: %+v", got)
	}
}

func TestJournalSequenceResumes(t *testing.T) {
	db, j := setupJournal(t)
	j.Emit(listingEvent("escrow.listing.created", 1))
	j.Emit(listingEvent("escrow.listing.created", 2))

	resumed, err := NewJournal(db, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if resumed.seq != 2 {
		t.Fatalf("expected sequence 2, got %d", resumed.seq)
	}
	events.Fanout{resumed}.Emit(listingEvent("escrow.listing.removed", 2))
	var count int64
	if err := db.Model(&Record{}).Where("seq = ?", 3).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected record with seq 3, got %d", count)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
