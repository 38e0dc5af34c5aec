package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CacheDirEnvVar overrides the cache directory location.
const CacheDirEnvVar = "UDL_CACHE_DIR"

// GetCacheDir returns the cache directory path, creating it if needed.
func GetCacheDir() (string, error) {
	cacheDir := os.Getenv(CacheDirEnvVar)
	if cacheDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, ".cache", "udl")
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return cacheDir, nil
}

// listingEnvelope wraps a cached listing with the time it was fetched.
type listingEnvelope struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Items     json.RawMessage `json:"items"`
}

func listingPath(name string) (string, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, name+"_listing.json"), nil
}

// WriteListing stores a provider listing (library titles, search results) under name.
func WriteListing(name string, items any) error {
	path, err := listingPath(name)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode %s listing: %w", name, err)
	}
	data, err := json.MarshalIndent(listingEnvelope{FetchedAt: time.Now().UTC(), Items: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s listing: %w", name, err)
	}
	return WithLock(name, func() error {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s listing: %w", name, err)
		}
		return os.Rename(tmp, path)
	})
}

// ReadListing decodes the cached listing into out. It returns false without
// error when there is no cache or the cache is older than maxAge.
func ReadListing(name string, maxAge time.Duration, out any) (bool, error) {
	path, err := listingPath(name)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s listing: %w", name, err)
	}
	var env listingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("failed to parse %s listing: %w", name, err)
	}
	if maxAge > 0 && time.Since(env.FetchedAt) > maxAge {
		return false, nil
	}
	if err := json.Unmarshal(env.Items, out); err != nil {
		return false, fmt.Errorf("failed to parse %s listing items: %w", name, err)
	}
	return true, nil
}

// WithLock executes fn while holding the cache lock for name.
func WithLock(name string, fn func() error) error {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return err
	}
	lock, err := AcquireLock(filepath.Join(cacheDir, "."+name+".lock"), 50)
	if err != nil {
		return fmt.Errorf("failed to acquire %s cache lock: %w", name, err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to release lock: %v\n", releaseErr)
		}
	}()
	return fn()
}
