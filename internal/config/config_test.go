package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/testutil"
)

func TestReadConfig_NotFound(t *testing.T) {
	testutil.Isolate(t)
	LoadedConfigPath = ""

	_, err := ReadConfig()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestReadConfig_SearchOrder(t *testing.T) {
	home := testutil.Isolate(t)
	LoadedConfigPath = ""

	homePath := filepath.Join(home, ".config", "udl", "config.json")
	if err := os.MkdirAll(filepath.Dir(homePath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(homePath, []byte(`{"outPath":"from-home"}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.OutPath != "from-home" || LoadedConfigPath != homePath {
		t.Fatalf("got outPath=%q path=%q", cfg.OutPath, LoadedConfigPath)
	}

	if err := os.WriteFile("config.json", []byte(`{"outPath":"from-cwd"}`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.OutPath != "from-cwd" {
		t.Fatalf("cwd config should win, got %q", cfg.OutPath)
	}
}

func TestReadConfig_TightensPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	testutil.Isolate(t)
	if err := os.WriteFile("config.json", []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod("config.json", 0644); err != nil {
		t.Fatal(err)
	}

	testutil.CaptureStdout(t, func() {
		if _, err := ReadConfig(); err != nil {
			t.Errorf("ReadConfig: %v", err)
		}
	})

	info, err := os.Stat("config.json")
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("perm = %04o, want 0600", perm)
	}
}

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		in      model.Config
		want    model.Config
		wantErr bool
	}{
		{
			name: "empty",
			in:   model.Config{},
			want: model.Config{OutPath: "Downloads", VideoOutPath: "Downloads", Marketplace: "de", AudibleFormat: "m4b"},
		},
		{
			name: "normalises marketplace and format",
			in:   model.Config{OutPath: " books ", Marketplace: ".CO.UK", AudibleFormat: ".MP3"},
			want: model.Config{OutPath: "books", VideoOutPath: "books", Marketplace: "co.uk", AudibleFormat: "mp3"},
		},
		{
			name:    "bad format",
			in:      model.Config{AudibleFormat: "flac"},
			wantErr: true,
		},
		{
			name: "rclone transfers default",
			in:   model.Config{RcloneEnabled: true},
			want: model.Config{OutPath: "Downloads", VideoOutPath: "Downloads", Marketplace: "de", AudibleFormat: "m4b", RcloneEnabled: true, RcloneTransfers: 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			err := ApplyDefaults(&cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg != tt.want {
				t.Fatalf("got %+v\nwant %+v", cfg, tt.want)
			}
		})
	}
}

func TestParseCfg_CLIOverrides(t *testing.T) {
	testutil.Isolate(t)
	LoadedConfigPath = ""
	if err := os.WriteFile("config.json", []byte(`{"outPath":"cfg","audibleFormat":"m4b","headless":true}`), 0600); err != nil {
		t.Fatal(err)
	}

	args := &model.Args{
		OutPath: "cli",
		Debug:   true,
		Audible: &model.AudibleCmd{Download: &model.AudibleDownloadCmd{Format: "mp3"}},
	}
	cfg, err := ParseCfg(args)
	if err != nil {
		t.Fatalf("ParseCfg: %v", err)
	}
	if cfg.OutPath != "cli" || cfg.AudibleFormat != "mp3" || cfg.Headless {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestResolveFfmpegBinary_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "my-ffmpeg", "exit 0")

	got, err := ResolveFfmpegBinary(&model.Config{FfmpegNameStr: bin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != bin {
		t.Fatalf("got %q, want %q", got, bin)
	}

	if _, err := ResolveFfmpegBinary(&model.Config{FfmpegNameStr: filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing configured binary")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cfg"))

	var empty model.AudibleConfig
	found, err := store.Load(model.ProviderAudible, &empty)
	if err != nil || found {
		t.Fatalf("Load on empty store = %v, %v", found, err)
	}

	in := model.AudibleConfig{
		Email:           "reader@example.com",
		Cookies:         []model.Cookie{{Name: "session-token", Value: "abc", Domain: ".audible.de"}},
		IsAuthenticated: true,
		ActivationBytes: "1a2b3c4d",
	}
	if err := store.Save(model.ProviderAudible, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := store.Path(model.ProviderAudible)
	if filepath.Base(path) != ".audible_config.json" {
		t.Fatalf("unexpected file name %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"is_authenticated"`, `"activation_bytes"`, `"cookies"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("saved file lacks %s", key)
		}
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0600 {
			t.Errorf("perm = %04o, want 0600", info.Mode().Perm())
		}
	}

	var out model.AudibleConfig
	found, err = store.Load(model.ProviderAudible, &out)
	if err != nil || !found {
		t.Fatalf("Load = %v, %v", found, err)
	}
	if out.ActivationBytes != "1a2b3c4d" || len(out.Cookies) != 1 || out.Cookies[0].Value != "abc" {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	if err := store.Delete(model.ProviderAudible); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(model.ProviderAudible); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		model.ProviderAudible: ".audible_config.json",
		model.ProviderDeezer:  ".deezer_config.json",
		"storytel":            "storytel_config.json",
	}
	for provider, want := range tests {
		if got := FileName(provider); got != want {
			t.Errorf("FileName(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestPromptConfig(t *testing.T) {
	input := strings.Join([]string{
		"/srv/media", // out path
		"",           // video out path
		"com",        // marketplace
		"mp3",        // format
		"y",          // ffmpeg from PATH
		"n",          // headless
		"720",        // max height
		"y",          // rclone
		"nas",        // remote
		"/audio",     // remote path
		"",           // delete after upload
		"https://gotify.example",
	}, "\n") + "\n"

	var out *model.Config
	testutil.CaptureStdout(t, func() {
		var err error
		out, err = promptConfig(strings.NewReader(input), func(string) (string, error) { return "tok", nil })
		if err != nil {
			t.Errorf("promptConfig: %v", err)
		}
	})
	if out == nil {
		t.Fatal("no config returned")
	}
	want := model.Config{
		OutPath:         "/srv/media",
		VideoOutPath:    "/srv/media",
		Marketplace:     "com",
		AudibleFormat:   "mp3",
		UseFfmpegEnvVar: true,
		Headless:        false,
		VideoMaxHeight:  720,
		RcloneEnabled:   true,
		RcloneRemote:    "nas",
		RclonePath:      "/audio",
		RcloneTransfers: 4,
		GotifyURL:       "https://gotify.example",
		GotifyToken:     "tok",
	}
	if *out != want {
		t.Fatalf("got %+v\nwant %+v", *out, want)
	}
}
