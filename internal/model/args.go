package model

// ArgsDescriptionFunc is set by package main to provide colored help text.
// If nil, Description() returns an empty string and go-arg uses its default.
var ArgsDescriptionFunc func() string

// Args holds CLI arguments parsed by go-arg.
type Args struct {
	Setup   *SetupCmd   `arg:"subcommand:setup" help:"interactive first-time setup"`
	Audible *AudibleCmd `arg:"subcommand:audible" help:"Audible session, library, activation and conversion"`
	Deezer  *DeezerCmd  `arg:"subcommand:deezer" help:"Deezer session and track capture"`
	Video   *VideoCmd   `arg:"subcommand:video" help:"download a video or mediathek page via yt-dlp"`
	Queue   *QueueCmd   `arg:"subcommand:queue" help:"run a list of URLs through the download queue"`
	Record  *RecordCmd  `arg:"subcommand:record" help:"record system audio to a file"`
	Tags    *TagsCmd    `arg:"subcommand:tags" help:"print embedded tags of an audio file"`
	Status  *StatusCmd  `arg:"subcommand:status" help:"show the status of a running queue"`
	Cancel  *CancelCmd  `arg:"subcommand:cancel" help:"cancel a running queue"`

	Completion *CompletionCmd `arg:"subcommand:completion" help:"print a shell completion script"`

	OutPath string `arg:"-o,--out" help:"Where to download to. Path will be made if it doesn't already exist."`
	Debug   bool   `arg:"--debug" help:"show browser windows and verbose diagnostics"`
}

// Description provides custom help text for go-arg.
func (Args) Description() string {
	if ArgsDescriptionFunc != nil {
		return ArgsDescriptionFunc()
	}
	return ""
}

// SetupCmd runs the interactive config wizard.
type SetupCmd struct{}

// AudibleCmd groups the Audible subcommands.
type AudibleCmd struct {
	Login      *AudibleLoginCmd      `arg:"subcommand:login" help:"sign in through a browser window and store cookies"`
	Import     *AudibleImportCmd     `arg:"subcommand:import" help:"import cookies from a JSON export or Cookie header"`
	Status     *EmptyCmd             `arg:"subcommand:status" help:"verify the stored session"`
	Logout     *EmptyCmd             `arg:"subcommand:logout" help:"forget stored cookies"`
	Library    *AudibleLibraryCmd    `arg:"subcommand:library" help:"list library titles"`
	Download   *AudibleDownloadCmd   `arg:"subcommand:download" help:"download AAX files and convert them"`
	Activation *AudibleActivationCmd `arg:"subcommand:activation" help:"extract or set activation bytes"`
	Convert    *AudibleConvertCmd    `arg:"subcommand:convert" help:"convert a local AAX file"`
}

// EmptyCmd is a subcommand without arguments.
type EmptyCmd struct{}

// AudibleLoginCmd opens a browser for sign-in.
type AudibleLoginCmd struct {
	Email string `arg:"--email" help:"account email stored alongside the session"`
}

// AudibleImportCmd imports cookies from a file or header string.
type AudibleImportCmd struct {
	Source string `arg:"positional,required" help:"path to a cookie JSON export, or a raw Cookie header"`
}

// AudibleLibraryCmd lists the library.
type AudibleLibraryCmd struct {
	Refresh bool `arg:"--refresh" help:"ignore the cached listing"`
	JSON    bool `arg:"--json" help:"print JSON instead of a table"`
}

// AudibleDownloadCmd downloads titles by ASIN.
type AudibleDownloadCmd struct {
	ASINs     []string `arg:"positional,required" help:"ASINs to download (or 'all')"`
	NoConvert bool     `arg:"--no-convert" help:"keep the AAX file only"`
	Format    string   `arg:"-f,--format" help:"conversion target: m4b or mp3"`
}

// AudibleActivationCmd extracts or sets activation bytes.
type AudibleActivationCmd struct {
	Set        string `arg:"--set" help:"store activation bytes entered manually (8 hex chars)"`
	NoBrowser  bool   `arg:"--no-browser" help:"skip the browser replay fallback"`
	ShowStored bool   `arg:"--show" help:"print the stored activation bytes"`
}

// AudibleConvertCmd converts a local AAX file.
type AudibleConvertCmd struct {
	Input  string `arg:"positional,required" help:"input .aax file"`
	Output string `arg:"positional" help:"output file (.m4b, .m4a or .mp3)"`
}

// DeezerCmd groups the Deezer subcommands.
type DeezerCmd struct {
	Login   *EmptyCmd        `arg:"subcommand:login" help:"capture the ARL cookie through a browser window"`
	SetARL  *DeezerSetARLCmd `arg:"subcommand:arl" help:"store an ARL token"`
	Status  *EmptyCmd        `arg:"subcommand:status" help:"verify the stored ARL"`
	Get     *DeezerGetCmd    `arg:"subcommand:get" help:"capture tracks, albums or playlists"`
	Search  *DeezerSearchCmd `arg:"subcommand:search" help:"search the public catalog"`
	Preview bool             `arg:"--preview" help:"download 30 second previews instead of capturing playback"`
}

// DeezerSetARLCmd stores an ARL token.
type DeezerSetARLCmd struct {
	ARL string `arg:"positional" help:"ARL token (prompted without echo when omitted)"`
}

// DeezerGetCmd captures items by URL or id.
type DeezerGetCmd struct {
	URLs []string `arg:"positional,required" help:"deezer URLs, track:<id>/album:<id>/playlist:<id>, or .txt files"`
}

// DeezerSearchCmd searches tracks.
type DeezerSearchCmd struct {
	Query string `arg:"positional,required"`
	Limit int    `arg:"--limit" default:"10"`
}

// VideoCmd downloads videos.
type VideoCmd struct {
	URLs      []string `arg:"positional,required" help:"video URLs or .txt files"`
	AudioOnly bool     `arg:"--audio-only" help:"extract audio to mp3"`
	MaxHeight int      `arg:"--max-height" help:"maximum vertical resolution"`
	HLS       bool     `arg:"--hls" help:"force the native HLS downloader"`
}

// QueueCmd runs URLs through the queue.
type QueueCmd struct {
	Items []string `arg:"positional,required" help:"URLs, audible:<ASIN>, or .txt files"`
}

// RecordCmd records system audio.
type RecordCmd struct {
	Output   string `arg:"positional,required" help:"output audio file"`
	Duration string `arg:"-d,--duration" help:"duration like 3m30s; records until cancelled when empty"`
	Source   string `arg:"--source" help:"capture device or pulse source"`
}

// TagsCmd prints tags.
type TagsCmd struct {
	Files []string `arg:"positional,required"`
}

// StatusCmd prints runtime status.
type StatusCmd struct{}

// CancelCmd requests cancellation of the running queue.
type CancelCmd struct{}

// CompletionCmd prints a shell completion script.
type CompletionCmd struct {
	Shell string `arg:"positional" help:"bash, zsh or fish"`
}
