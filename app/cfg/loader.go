package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/rss-stash.db" description:"SQLite database file"`

	// Cache bridge configuration
	Origin        string   `long:"origin" env:"ORIGIN" default:"http://localhost:3000" description:"Origin of the application served through the cache bridge"`
	FeedProxyPath string   `long:"feed-proxy-path" env:"FEED_PROXY_PATH" default:"/news.php" description:"Path of the feed proxy endpoint, always served network-first"`
	CacheVersion  string   `long:"cache-version" env:"CACHE_VERSION" default:"tech-news-dashboard-v1" description:"Name of the current cache generation"`
	SnapshotCache string   `long:"snapshot-cache" env:"SNAPSHOT_CACHE" default:"feeds-cache" description:"Name of the cache holding pushed feed snapshots"`
	AppAssets     []string `long:"app-asset" env:"APP_ASSETS" env-delim:"," default:"./" default:"./index.html" default:"./manifest.webmanifest" default:"./icons/icon-192x192.png" default:"./icons/icon-512x512.png" description:"App shell asset precached on startup (repeatable)"`
	SkipPrecache  bool     `long:"skip-precache" env:"SKIP_PRECACHE" description:"Do not precache app shell assets on startup"`

	// Sync configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing subscription files"`
	StalenessWindow   int    `long:"staleness-window" env:"STALENESS_WINDOW" default:"3600" description:"Seconds after which a synced feed is due again"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	SyncConcurrency   int    `long:"sync-concurrency" env:"SYNC_CONCURRENCY" default:"0" description:"Maximum feeds fetched at once during a sync (0 = unlimited)"`

	// Network configuration
	FetchTimeout  int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"HTTP fetch timeout in seconds"`
	MaxBodyBytes  int64  `long:"max-body-bytes" env:"MAX_BODY_BYTES" default:"10485760" description:"Maximum response body size read from the network"`
	MinTLSVersion string `long:"min-tls-version" env:"MIN_TLS_VERSION" default:"TLS 1.2" description:"Minimum TLS version for outgoing requests"`

	// Server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Stash/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command line flags and environment. It returns nil, nil when
// help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validate(&raw); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		Origin:            strings.TrimSuffix(raw.Origin, "/"),
		FeedProxyPath:     raw.FeedProxyPath,
		CacheVersion:      raw.CacheVersion,
		SnapshotCache:     raw.SnapshotCache,
		AppAssets:         raw.AppAssets,
		SkipPrecache:      raw.SkipPrecache,
		FeedsDir:          raw.FeedsDir,
		StalenessWindow:   time.Duration(raw.StalenessWindow) * time.Second,
		SchedulerInterval: time.Duration(raw.SchedulerInterval) * time.Second,
		WorkerCount:       raw.WorkerCount,
		SyncConcurrency:   raw.SyncConcurrency,
		FetchTimeout:      time.Duration(raw.FetchTimeout) * time.Second,
		MaxBodyBytes:      raw.MaxBodyBytes,
		MinTLSVersion:     raw.MinTLSVersion,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func validate(raw *rawCfg) error {
	positive := map[string]int{
		"staleness window":   raw.StalenessWindow,
		"scheduler interval": raw.SchedulerInterval,
		"worker count":       raw.WorkerCount,
		"fetch timeout":      raw.FetchTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if raw.SyncConcurrency < 0 {
		return fmt.Errorf("sync concurrency must be non-negative")
	}
	if raw.CacheVersion == raw.SnapshotCache {
		return fmt.Errorf("cache version and snapshot cache must differ")
	}
	if !strings.HasPrefix(raw.Origin, "http://") && !strings.HasPrefix(raw.Origin, "https://") {
		return fmt.Errorf("origin must be an http(s) URL: %s", raw.Origin)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
		slog.Debug("Timezone configured", "timezone", timezone)
	}
	return nil
}
