package config

import "time"

// Default paths for local state
const (
	// DefaultDatabasePath is the SQLite file holding sessions and the audit trail
	DefaultDatabasePath = "./bookshelf.db"

	// DefaultBookAPIURL is where the remote Book API is expected during local development
	DefaultBookAPIURL = "http://localhost:5000"

	// DefaultSearchDebounce is the quiet interval before a search settles
	DefaultSearchDebounce = 500 * time.Millisecond
)
