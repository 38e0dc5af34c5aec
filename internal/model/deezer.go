package model

// DeezerConfig is the persisted Deezer session (.deezer_config.json).
type DeezerConfig struct {
	ARL             string `json:"arl"`
	UserID          int64  `json:"user_id,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

// Track is a Deezer track with the metadata needed for tagging.
type Track struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	DiscNumber  int    `json:"discNumber,omitempty"`
	Duration    int    `json:"duration"`
	PreviewURL  string `json:"preview,omitempty"`
	CoverURL    string `json:"cover,omitempty"`
	Link        string `json:"link,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

// TrackTags is the tag subset written to and read back from audio files.
type TrackTags struct {
	Title       string
	Artist      string
	Album       string
	Composer    string
	Genre       string
	Year        string
	TrackNumber int
	Cover       []byte
	CoverMIME   string
}
