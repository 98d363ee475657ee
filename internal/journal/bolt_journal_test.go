package journal

import (
	"testing"
	"time"
)

func TestBoltStoreRecentNewestFirst(t *testing.T) {
	storeRaw, err := openBolt(t.TempDir()+"/journal.db", normalizeOptions(Options{}))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	for _, path := range []string{"/me/payments", "/me/refunds", "/me/items"} {
		if err := store.Record(Entry{Method: "GET", Path: path, StatusCode: 200}); err != nil {
			t.Fatalf("Record %s: %v", path, err)
		}
	}

	got, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Path != "/me/items" || got[1].Path != "/me/refunds" {
		t.Fatalf("unexpected order %#v", got)
	}
	if got[0].ID == "" || got[0].RecordedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled, got %#v", got[0])
	}

	all, err := store.Recent(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d err=%v", len(all), err)
	}
}

func TestBoltStoreExpiresEntries(t *testing.T) {
	opts := Options{
		EntryTTL:        1 * time.Second,
		CleanupInterval: 1 * time.Second,
	}
	storeRaw, err := openBolt(t.TempDir()+"/journal.db", opts)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	if err := store.Record(Entry{Method: "POST", Path: "/me/payments", ErrorKind: "transport"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Fast-forward cleanup cadence and trigger expiry.
	store.lastCleanup.Store(time.Now().Add(-2 * time.Second).Unix())
	time.Sleep(1100 * time.Millisecond)

	got, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent after expiry: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected entry to expire, got %#v", got)
	}
}

func TestNewStoreSupportsNoop(t *testing.T) {
	store, err := NewStore("none", "", Options{})
	if err != nil {
		t.Fatalf("NewStore none: %v", err)
	}
	if err := store.Record(Entry{Path: "/x"}); err != nil {
		t.Fatalf("noop store Record: %v", err)
	}
	if _, err := NewStore("redis", "", Options{}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
