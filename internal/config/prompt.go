package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
	"golang.org/x/term"
)

func ask(scanner *bufio.Scanner, prompt string) string {
	fmt.Printf("%s%s%s %s", ui.ColorCyan, ui.BulletArrow, ui.ColorReset, prompt)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func askYesNo(scanner *bufio.Scanner, prompt string, def bool) bool {
	answer := strings.ToLower(ask(scanner, prompt))
	switch answer {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

// ReadSecret prompts for a value without echo when stdin is a terminal.
func ReadSecret(prompt string) (string, error) {
	fmt.Printf("%s%s%s %s", ui.ColorCyan, ui.BulletArrow, ui.ColorReset, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptConfig asks the setup questions on r. Secrets are requested through
// readSecret so tests can feed them.
func promptConfig(r io.Reader, readSecret func(string) (string, error)) (*model.Config, error) {
	scanner := bufio.NewScanner(r)
	cfg := &model.Config{}

	cfg.OutPath = ask(scanner, fmt.Sprintf("Download directory (default: %s): ", model.DefaultOutPath))
	cfg.VideoOutPath = ask(scanner, "Video download directory (default: same as download directory): ")

	fmt.Println()
	ui.PrintSection("Audible")
	ui.PrintList([]string{"de (default)", "com", "co.uk", "fr", "it", "es", "ca", "com.au", "co.jp", "in"}, ui.ColorYellow)
	cfg.Marketplace = ask(scanner, "Marketplace: ")
	cfg.AudibleFormat = ask(scanner, "Convert AAX to [m4b/mp3] (default: m4b): ")

	fmt.Println()
	ui.PrintSection("Tools")
	cfg.UseFfmpegEnvVar = askYesNo(scanner, "Use FFmpeg from system PATH? [y/N]: ", false)
	cfg.Headless = askYesNo(scanner, "Run the automation browser headless? [Y/n]: ", true)
	if h := ask(scanner, "Maximum video height, 0 for best (default: 0): "); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n < 0 {
			return nil, errors.New("video height must be a non-negative integer")
		}
		cfg.VideoMaxHeight = n
	}

	fmt.Println()
	ui.PrintSection("After download")
	cfg.RcloneEnabled = askYesNo(scanner, "Upload to remote using rclone? [y/N]: ", false)
	if cfg.RcloneEnabled {
		cfg.RcloneRemote = ask(scanner, "rclone remote name: ")
		if cfg.RcloneRemote == "" {
			return nil, errors.New("rclone remote name is required")
		}
		cfg.RclonePath = ask(scanner, "Remote path: ")
		if cfg.RclonePath == "" {
			return nil, errors.New("rclone remote path is required")
		}
		cfg.DeleteAfterUpload = askYesNo(scanner, "Delete local files after upload? [y/N]: ", false)
	}
	cfg.GotifyURL = ask(scanner, "Gotify server URL (empty to skip): ")
	if cfg.GotifyURL != "" {
		token, err := readSecret("Gotify app token: ")
		if err != nil {
			return nil, err
		}
		cfg.GotifyToken = token
	}

	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PromptForConfig runs the interactive first-time setup and writes the result
// to ~/.config/udl/config.json unless a config was already loaded elsewhere.
func PromptForConfig() (*model.Config, error) {
	ui.PrintHeader("First Time Setup")
	ui.PrintInfo("Answer a few questions to create config.json. Press enter to keep a default.")
	fmt.Println()

	cfg, err := promptConfig(os.Stdin, ReadSecret)
	if err != nil {
		return nil, err
	}
	if LoadedConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		LoadedConfigPath = filepath.Join(homeDir, ".config", "udl", "config.json")
	}
	if err := WriteConfig(cfg); err != nil {
		return nil, err
	}
	fmt.Println()
	ui.PrintSuccess("Config written to " + LoadedConfigPath)
	return cfg, nil
}
