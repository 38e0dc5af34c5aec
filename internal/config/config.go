package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// ErrConfigNotFound is returned by ReadConfig when no config.json exists in
// any search location.
var ErrConfigNotFound = errors.New("config file not found")

// LoadedConfigPath tracks which config file was loaded so WriteConfig can save to the same location.
var LoadedConfigPath string

// SearchPaths returns the config.json locations in lookup order.
func SearchPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		"config.json",
		filepath.Join(homeDir, ".udl", "config.json"),
		filepath.Join(homeDir, ".config", "udl", "config.json"),
	}, nil
}

// ReadConfig reads config.json from the first search path that has one.
func ReadConfig() (*model.Config, error) {
	paths, err := SearchPaths()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var obj model.Config
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse config at %s: %w", path, err)
		}
		LoadedConfigPath = path
		checkPermissions(path)
		return &obj, nil
	}
	return nil, fmt.Errorf("%w (./config.json, ~/.udl/config.json, ~/.config/udl/config.json)", ErrConfigNotFound)
}

// checkPermissions warns about and tightens a config readable by others. The
// file can hold the Gotify token.
func checkPermissions(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm()&0077 == 0 {
		return
	}
	ui.PrintWarning(fmt.Sprintf("Config file has insecure permissions (%04o): %s", info.Mode().Perm(), path))
	if runtime.GOOS == "windows" {
		ui.PrintInfo("Windows ACLs in use; skipping chmod auto-fix")
		return
	}
	if err := os.Chmod(path, 0600); err != nil {
		ui.PrintWarning(fmt.Sprintf("Auto-fix failed: %v (fix manually: chmod 600 %s)", err, path))
		return
	}
	ui.PrintInfo("Auto-fix applied: chmod 600 " + path)
}

// WriteConfig writes the config to the file ReadConfig loaded, or to
// ./config.json when nothing was loaded.
func WriteConfig(cfg *model.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	target := LoadedConfigPath
	if target == "" {
		target = "config.json"
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	if err := writeFileAtomic(target, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", target, err)
	}
	return nil
}

// ApplyDefaults fills empty fields and normalises values.
func ApplyDefaults(cfg *model.Config) error {
	cfg.OutPath = strings.TrimSpace(cfg.OutPath)
	cfg.VideoOutPath = strings.TrimSpace(cfg.VideoOutPath)
	cfg.RclonePath = strings.TrimSpace(cfg.RclonePath)
	if cfg.OutPath == "" {
		cfg.OutPath = model.DefaultOutPath
	}
	if cfg.VideoOutPath == "" {
		cfg.VideoOutPath = cfg.OutPath
	}
	cfg.Marketplace = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.Marketplace)), ".")
	if cfg.Marketplace == "" {
		cfg.Marketplace = model.DefaultMarketplace
	}
	cfg.AudibleFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.AudibleFormat)), ".")
	switch cfg.AudibleFormat {
	case "":
		cfg.AudibleFormat = model.DefaultAudibleFormat
	case "m4b", "m4a", "mp3":
	default:
		return fmt.Errorf("invalid audibleFormat: %q (must be m4b, m4a or mp3)", cfg.AudibleFormat)
	}
	if cfg.VideoMaxHeight < 0 {
		return fmt.Errorf("invalid videoMaxHeight: %d", cfg.VideoMaxHeight)
	}
	if cfg.RcloneEnabled && cfg.RcloneTransfers <= 0 {
		cfg.RcloneTransfers = 4
	}
	return nil
}

// ParseCfg reads config.json (defaults when absent), applies CLI overrides and
// resolves ffmpeg. A missing ffmpeg is not fatal here; commands that need it
// report the error.
func ParseCfg(args *model.Args) (*model.Config, error) {
	cfg, err := ReadConfig()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, err
		}
		cfg = &model.Config{}
	}
	if args != nil {
		if args.OutPath != "" {
			cfg.OutPath = args.OutPath
		}
		if args.Debug {
			cfg.Headless = false
		}
		if args.Audible != nil && args.Audible.Download != nil && args.Audible.Download.Format != "" {
			cfg.AudibleFormat = args.Audible.Download.Format
		}
		if args.Video != nil {
			if args.Video.MaxHeight > 0 {
				cfg.VideoMaxHeight = args.Video.MaxHeight
			}
			if args.Video.AudioOnly {
				cfg.VideoAudioOnly = true
			}
		}
		if args.Record != nil && args.Record.Source != "" {
			cfg.RecordSource = args.Record.Source
		}
	}
	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if ffmpeg, err := ResolveFfmpegBinary(cfg); err == nil {
		cfg.FfmpegNameStr = ffmpeg
	} else {
		ui.Debugf("ffmpeg: %v", err)
	}
	return cfg, nil
}

// ResolveFfmpegBinary locates the ffmpeg binary based on config settings.
func ResolveFfmpegBinary(cfg *model.Config) (string, error) {
	preferred := strings.TrimSpace(cfg.FfmpegNameStr)

	if preferred != "" && preferred != "./ffmpeg" && preferred != "ffmpeg" {
		if resolved, err := exec.LookPath(preferred); err == nil {
			return resolved, nil
		}
		if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
			return preferred, nil
		}
		return "", fmt.Errorf("configured ffmpeg binary not found: %s", preferred)
	}

	if cfg.UseFfmpegEnvVar || preferred == "ffmpeg" {
		if resolved, err := exec.LookPath("ffmpeg"); err == nil {
			return resolved, nil
		}
		return "", errors.New("ffmpeg not found in PATH (install ffmpeg or set ffmpegNameStr to a binary path)")
	}

	candidates := []string{"./ffmpeg"}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "ffmpeg"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	if resolved, err := exec.LookPath("ffmpeg"); err == nil {
		return resolved, nil
	}
	return "", errors.New("ffmpeg binary not found (checked ./ffmpeg and PATH)")
}

// ParseArgs parses CLI arguments using go-arg.
func ParseArgs() *model.Args {
	var args model.Args
	arg.MustParse(&args)
	return &args
}
