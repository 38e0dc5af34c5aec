package model

import "time"

// Config holds the user's application configuration (config.json).
type Config struct {
	OutPath           string `json:"outPath"`
	VideoOutPath      string `json:"videoOutPath,omitempty"`
	FfmpegNameStr     string `json:"ffmpegNameStr,omitempty"`
	UseFfmpegEnvVar   bool   `json:"useFfmpegEnvVar"`
	AudibleFormat     string `json:"audibleFormat,omitempty"`
	Marketplace       string `json:"marketplace,omitempty"`
	BrowserPath       string `json:"browserPath,omitempty"`
	Headless          bool   `json:"headless,omitempty"`
	RecordSource      string `json:"recordSource,omitempty"`
	VideoMaxHeight    int    `json:"videoMaxHeight,omitempty"`
	VideoAudioOnly    bool   `json:"videoAudioOnly,omitempty"`
	YtdlpCookiesFile  string `json:"ytdlpCookiesFile,omitempty"`
	RcloneEnabled     bool   `json:"rcloneEnabled,omitempty"`
	RcloneRemote      string `json:"rcloneRemote,omitempty"`
	RclonePath        string `json:"rclonePath,omitempty"`
	RcloneTransfers   int    `json:"rcloneTransfers,omitempty"`
	DeleteAfterUpload bool   `json:"deleteAfterUpload,omitempty"`
	GotifyURL         string `json:"gotifyUrl,omitempty"`
	GotifyToken       string `json:"gotifyToken,omitempty"`
}

// RuntimeStatus tracks the state of a running queue.
type RuntimeStatus struct {
	PID        int    `json:"pid"`
	State      string `json:"state"`
	StartedAt  string `json:"startedAt"`
	UpdatedAt  string `json:"updatedAt"`
	Label      string `json:"label,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
	Speed      string `json:"speed,omitempty"`
	Current    string `json:"current,omitempty"`
	Total      string `json:"total,omitempty"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
}

// RuntimeControl holds cancel signals written by a second udl process.
type RuntimeControl struct {
	Cancel    bool   `json:"cancel"`
	UpdatedAt string `json:"updatedAt"`
}

// WriteCounter tracks bytes written during a download.
type WriteCounter struct {
	Total      int64
	TotalStr   string
	Downloaded int64
	Percentage int
	StartTime  int64
	OnProgress func(downloaded, total, speed int64)
}

// Cookie is the persisted form of an HTTP cookie. The JSON field names follow
// the common browser-extension export format so exports can be imported as-is.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
}
