package model

// AudibleConfig is the persisted Audible session (.audible_config.json).
type AudibleConfig struct {
	Email           string   `json:"email"`
	Cookies         []Cookie `json:"cookies"`
	IsAuthenticated bool     `json:"is_authenticated"`
	ActivationBytes string   `json:"activation_bytes"`
	Marketplace     string   `json:"marketplace,omitempty"`
}

// Book is one title scraped from the Audible library.
type Book struct {
	ASIN     string `json:"asin"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Narrator string `json:"narrator,omitempty"`
	Runtime  string `json:"runtime,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}
