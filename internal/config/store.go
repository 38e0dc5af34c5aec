package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msebastian100/universal-downloader/internal/model"
)

// ConfigDirEnvVar overrides where provider session files live.
const ConfigDirEnvVar = "UDL_CONFIG_DIR"

// Store reads and writes per-provider session files. Each file is rewritten
// in full on every save.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// DefaultStore returns the store in $UDL_CONFIG_DIR or ~/.config/udl.
func DefaultStore() (*Store, error) {
	if dir := os.Getenv(ConfigDirEnvVar); dir != "" {
		return NewStore(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewStore(filepath.Join(homeDir, ".config", "udl")), nil
}

// FileName maps a provider to its session file name. Audible and Deezer keep
// their dot-file names; other providers use <provider>_config.json.
func FileName(provider string) string {
	switch provider {
	case model.ProviderAudible, model.ProviderDeezer:
		return "." + provider + "_config.json"
	default:
		return provider + "_config.json"
	}
}

// Path returns the full path of provider's session file.
func (s *Store) Path(provider string) string {
	return filepath.Join(s.Dir, FileName(provider))
}

// Load decodes provider's session into v. A missing file leaves v untouched
// and returns false.
func (s *Store) Load(provider string, v any) (bool, error) {
	data, err := os.ReadFile(s.Path(provider))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s config: %w", provider, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s config: %w", provider, err)
	}
	return true, nil
}

// Save writes v as provider's session with 0600 permissions.
func (s *Store) Save(provider string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s config: %w", provider, err)
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", s.Dir, err)
	}
	if err := writeFileAtomic(s.Path(provider), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s config: %w", provider, err)
	}
	return nil
}

// Delete removes provider's session file.
func (s *Store) Delete(provider string) error {
	err := os.Remove(s.Path(provider))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s config: %w", provider, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
