package escrow

import (
	"testing"
)

func TestListingIDIndexIsUnique(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := mustListing(t, e, coin("X", 1), coin("Y", 1))
	store, err := e.listings()
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	clash := l.Clone()
	clash.Creator = testOther
	requireKind(t, store.insert(clash), KindValidation)
	if owned, _ := store.byCreator(testOther); len(owned) != 0 {
		t.Fatalf("rejected insert left a record behind")
	}
}

func TestFinalizedIndexTracksStatus(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	l := finalized(t, e, 100)
	store, _ := e.listings()
	count := func() int {
		n := 0
		if err := store.byFinalized(0, func(*Listing) bool { n++; return true }); err != nil {
			t.Fatalf("scan: %v", err)
		}
		return n
	}
	if count() != 1 {
		t.Fatalf("finalized listing missing from index")
	}
	if _, _, err := e.BuyListing(testBuyer, l.ID, coin("Y", 50), 0); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if count() != 0 {
		t.Fatalf("closed listing still indexed as finalized")
	}
}

func TestListingRecordRoundTrip(t *testing.T) {
	e := newTestEngine(t, defaultConfig())
	created, err := e.CreateListing(testSeller, mixedBalance(), CreateListingMsg{Ask: coin("Y", 3), WhitelistedBuyer: testBuyer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := e.Listing(created.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.WhitelistedBuyer != testBuyer || loaded.Fee != nil {
		t.Fatalf("unexpected record %+v", loaded)
	}
	if err := Compare(loaded.ForSale, created.ForSale); err != nil {
		t.Fatalf("for-sale balance changed in storage: %v", err)
	}
}
