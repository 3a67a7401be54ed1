package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath string

	// Cache bridge configuration
	Origin        string
	FeedProxyPath string
	CacheVersion  string
	SnapshotCache string
	AppAssets     []string
	SkipPrecache  bool

	// Sync configuration
	FeedsDir          string
	StalenessWindow   time.Duration
	SchedulerInterval time.Duration
	WorkerCount       int
	SyncConcurrency   int

	// Network configuration
	FetchTimeout  time.Duration
	MaxBodyBytes  int64
	MinTLSVersion string

	// Server configuration
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
