package storage

import (
	"testing"
	"time"

	"wisp/internal/logging"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestResponseRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if _, ok, err := db.GetResponse("completion:abc", 1); err != nil || ok {
		t.Fatalf("empty db Get = (%v, %v)", ok, err)
	}

	if err := db.PutResponse("completion:abc", 1, []byte(`{"items":[]}`), time.Minute); err != nil {
		t.Fatalf("PutResponse: %v", err)
	}

	got, ok, err := db.GetResponse("completion:abc", 1)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if !ok || string(got) != `{"items":[]}` {
		t.Errorf("GetResponse = (%q, %v)", got, ok)
	}
}

func TestVersionKeying(t *testing.T) {
	db := openTestDB(t)

	db.PutResponse("rename:fp", 3, []byte("old"), time.Minute)

	if _, ok, _ := db.GetResponse("rename:fp", 4); ok {
		t.Error("newer version must miss")
	}
}

func TestExpiredEntryDeletedOnLookup(t *testing.T) {
	db := openTestDB(t)

	db.PutResponse("k", 1, []byte("v"), -time.Second)

	if _, ok, err := db.GetResponse("k", 1); err != nil || ok {
		t.Errorf("expired Get = (%v, %v), want miss", ok, err)
	}
}

func TestSweepExpired(t *testing.T) {
	db := openTestDB(t)

	db.PutResponse("stale", 1, []byte("v"), -time.Second)
	db.PutResponse("old-version", 2, []byte("v"), time.Hour)
	db.PutResponse("live", 9, []byte("v"), time.Hour)

	n, err := db.SweepExpired(5)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d rows, want 2", n)
	}

	if _, ok, _ := db.GetResponse("live", 9); !ok {
		t.Error("live entry should survive the sweep")
	}
}

func TestCounters(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.LoadCounter("requests"); err != nil || v != 0 {
		t.Fatalf("LoadCounter fresh = (%d, %v)", v, err)
	}

	if err := db.SaveCounter("requests", 42); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}
	if err := db.SaveCounter("requests", 43); err != nil {
		t.Fatalf("SaveCounter overwrite: %v", err)
	}
	if err := db.SaveCounter("cache_hits", 7); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}

	all, err := db.LoadCounters()
	if err != nil {
		t.Fatalf("LoadCounters: %v", err)
	}
	if all["requests"] != 43 || all["cache_hits"] != 7 {
		t.Errorf("LoadCounters = %v", all)
	}
}
