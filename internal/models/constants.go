package models

// Import defaults and limits.
const (
	DefaultGroupTitle  = "Uncategorized"
	DefaultChannelName = "Unknown Channel"
	DefaultSortOrder   = 0

	// MaxChannels is the most candidates a single playlist may yield.
	MaxChannels = 3000
	// MaxNameLength is measured in runes.
	MaxNameLength = 255

	// MaxStoredErrors bounds the error messages persisted with a run,
	// MaxReturnedErrors the ones handed back to the caller.
	MaxStoredErrors   = 100
	MaxReturnedErrors = 20
)
