package config

import (
	"net"
	"strconv"
	"time"
)

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (JSON file, defaults)
// and keeps the app layer independent of how settings are loaded.
type Config interface {
	// Core settings
	Home() string           // Base directory holding notes, attachments, setting.json
	NotesDir() string       // Directory of per-day note files
	AttachmentsDir() string // Directory of captured artifacts and uploads

	// Network boundary
	Listen() string // Listen address (host)
	Port() int      // Listen port
	Addr() string   // "host:port"

	// Capture tools
	ArchiverBin() string          // Page-archiver binary (monolith)
	DownloaderBin() string        // Media-downloader binary (yt-dlp)
	PageTimeout() time.Duration   // Timeout budget for page snapshots
	MediaTimeout() time.Duration  // Timeout budget for media downloads
	Workers() int                 // Capture worker pool size C
	MaxAttempts() int             // Retry ceiling per capture job
	BackoffBase() time.Duration   // Base of the exponential retry backoff
	ShutdownGrace() time.Duration // Grace period for in-flight jobs at shutdown

	// Capture rules
	RulesPath() string // Path to capture.yaml (empty means built-in defaults)

	// S3 artifact mirror (disabled when bucket is empty)
	MirrorBucket() string
	MirrorPrefix() string
	MirrorRegion() string

	// Metadata
	ConfigSource() string // Source of configuration: "json" or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// AppConfig is an immutable implementation of Config, built by the
// infrastructure layer after loading and defaulting settings.
type AppConfig struct {
	home           string
	notesDir       string
	attachmentsDir string

	listen string
	port   int

	archiverBin      string
	downloaderBin    string
	pageTimeoutSec   int
	mediaTimeoutSec  int
	workers          int
	maxAttempts      int
	backoffBaseMs    int
	shutdownGraceSec int

	rulesPath string

	mirrorBucket string
	mirrorPrefix string
	mirrorRegion string

	configSource string
	settingPath  string
}

// Home returns the base directory
func (c *AppConfig) Home() string { return c.home }

// NotesDir returns the directory of per-day note files
func (c *AppConfig) NotesDir() string { return c.notesDir }

// AttachmentsDir returns the directory of captured artifacts
func (c *AppConfig) AttachmentsDir() string { return c.attachmentsDir }

// Listen returns the listen address
func (c *AppConfig) Listen() string { return c.listen }

// Port returns the listen port
func (c *AppConfig) Port() int { return c.port }

// Addr returns the listen address and port joined
func (c *AppConfig) Addr() string {
	return joinHostPort(c.listen, c.port)
}

// ArchiverBin returns the page-archiver binary
func (c *AppConfig) ArchiverBin() string { return c.archiverBin }

// DownloaderBin returns the media-downloader binary
func (c *AppConfig) DownloaderBin() string { return c.downloaderBin }

// PageTimeout returns the page snapshot timeout as a Duration
func (c *AppConfig) PageTimeout() time.Duration {
	return time.Duration(c.pageTimeoutSec) * time.Second
}

// MediaTimeout returns the media download timeout as a Duration
func (c *AppConfig) MediaTimeout() time.Duration {
	return time.Duration(c.mediaTimeoutSec) * time.Second
}

// Workers returns the capture worker pool size
func (c *AppConfig) Workers() int { return c.workers }

// MaxAttempts returns the retry ceiling per capture job
func (c *AppConfig) MaxAttempts() int { return c.maxAttempts }

// BackoffBase returns the base of the exponential retry backoff
func (c *AppConfig) BackoffBase() time.Duration {
	return time.Duration(c.backoffBaseMs) * time.Millisecond
}

// ShutdownGrace returns the shutdown grace period
func (c *AppConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.shutdownGraceSec) * time.Second
}

// RulesPath returns the capture rules file path
func (c *AppConfig) RulesPath() string { return c.rulesPath }

// MirrorBucket returns the S3 mirror bucket name
func (c *AppConfig) MirrorBucket() string { return c.mirrorBucket }

// MirrorPrefix returns the S3 mirror key prefix
func (c *AppConfig) MirrorPrefix() string { return c.mirrorPrefix }

// MirrorRegion returns the S3 mirror region
func (c *AppConfig) MirrorRegion() string { return c.mirrorRegion }

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string { return c.configSource }

// SettingPath returns the path to setting.json if loaded from file
func (c *AppConfig) SettingPath() string { return c.settingPath }

// NewAppConfig creates a new AppConfig with the given values.
// Called by the infrastructure layer after loading and merging settings.
func NewAppConfig(
	home, notesDir, attachmentsDir string,
	listen string, port int,
	archiverBin, downloaderBin string,
	pageTimeoutSec, mediaTimeoutSec int,
	workers, maxAttempts, backoffBaseMs, shutdownGraceSec int,
	rulesPath string,
	mirrorBucket, mirrorPrefix, mirrorRegion string,
	configSource, settingPath string,
) *AppConfig {
	return &AppConfig{
		home:             home,
		notesDir:         notesDir,
		attachmentsDir:   attachmentsDir,
		listen:           listen,
		port:             port,
		archiverBin:      archiverBin,
		downloaderBin:    downloaderBin,
		pageTimeoutSec:   pageTimeoutSec,
		mediaTimeoutSec:  mediaTimeoutSec,
		workers:          workers,
		maxAttempts:      maxAttempts,
		backoffBaseMs:    backoffBaseMs,
		shutdownGraceSec: shutdownGraceSec,
		rulesPath:        rulesPath,
		mirrorBucket:     mirrorBucket,
		mirrorPrefix:     mirrorPrefix,
		mirrorRegion:     mirrorRegion,
		configSource:     configSource,
		settingPath:      settingPath,
	}
}

func joinHostPort(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
