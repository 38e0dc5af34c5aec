package model

// Progress and unit constants shared by download code.
const (
	MaxProgressPercent    = 100
	KBpsDivisor           = 1000
	UnknownSizeLabelLower = "unknown"
)

// Defaults applied by config parsing when a field is empty.
const (
	DefaultOutPath       = "Downloads"
	DefaultMarketplace   = "de"
	DefaultAudibleFormat = "m4b"
)

// Provider names used for config file naming and queue routing.
const (
	ProviderAudible = "audible"
	ProviderDeezer  = "deezer"
	ProviderVideo   = "video"
)
