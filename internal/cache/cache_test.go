package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type listingItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestListingRoundTrip(t *testing.T) {
	t.Setenv(CacheDirEnvVar, t.TempDir())

	in := []listingItem{{ID: "B0001", Title: "First"}, {ID: "B0002", Title: "Second"}}
	if err := WriteListing("audible", in); err != nil {
		t.Fatalf("WriteListing: %v", err)
	}

	var out []listingItem
	fresh, err := ReadListing("audible", time.Hour, &out)
	if err != nil {
		t.Fatalf("ReadListing: %v", err)
	}
	if !fresh {
		t.Fatal("expected fresh listing")
	}
	if len(out) != 2 || out[1].Title != "Second" {
		t.Fatalf("unexpected listing: %+v", out)
	}
}

func TestReadListing_MissingIsNotAnError(t *testing.T) {
	t.Setenv(CacheDirEnvVar, t.TempDir())

	var out []listingItem
	fresh, err := ReadListing("nothing", time.Hour, &out)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if fresh {
		t.Fatal("expected no listing")
	}
}

func TestAcquireLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	first, err := AcquireLock(path, 0)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	if _, err := AcquireLock(path, 0); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := AcquireLock(path, 0)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = second.Release()
}
