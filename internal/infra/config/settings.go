package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/wassup-/textpod/internal/app/config"
)

// RawSettings represents the structure of the setting.json file.
// Pointer fields distinguish "absent" from zero values so defaults only fill
// what the file left out.
type RawSettings struct {
	// Core paths
	NotesDir       *string `json:"notes_dir"`
	AttachmentsDir *string `json:"attachments_dir"`

	// Network boundary
	Listen *string `json:"listen"`
	Port   *int    `json:"port"`

	// Capture tools
	ArchiverBin     *string `json:"archiver_bin"`
	DownloaderBin   *string `json:"downloader_bin"`
	PageTimeoutSec  *int    `json:"page_timeout_sec"`
	MediaTimeoutSec *int    `json:"media_timeout_sec"`

	// Capture pipeline
	Workers          *int `json:"workers"`
	MaxAttempts      *int `json:"max_attempts"`
	BackoffBaseMs    *int `json:"backoff_base_ms"`
	ShutdownGraceSec *int `json:"shutdown_grace_sec"`

	// Capture rules file
	RulesPath *string `json:"rules_path"`

	// S3 artifact mirror (disabled when bucket is empty)
	MirrorBucket *string `json:"mirror_bucket"`
	MirrorPrefix *string `json:"mirror_prefix"`
	MirrorRegion *string `json:"mirror_region"`
}

// LoadSettings loads configuration from setting.json under baseDir.
// Priority: setting.json > defaults.
func LoadSettings(fsys afero.Fs, baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := afero.ReadFile(fsys, jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	applyDefaults(settings, baseDir)

	return buildAppConfig(settings, baseDir, configSource, settingPath), nil
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings, baseDir string) {
	if settings.NotesDir == nil {
		v := filepath.Join(baseDir, "notes")
		settings.NotesDir = &v
	}
	if settings.AttachmentsDir == nil {
		v := filepath.Join(baseDir, "attachments")
		settings.AttachmentsDir = &v
	}

	if settings.Listen == nil {
		v := "127.0.0.1"
		settings.Listen = &v
	}
	if settings.Port == nil {
		v := 3000
		settings.Port = &v
	}

	if settings.ArchiverBin == nil {
		v := "monolith"
		settings.ArchiverBin = &v
	}
	if settings.DownloaderBin == nil {
		v := "yt-dlp"
		settings.DownloaderBin = &v
	}
	if settings.PageTimeoutSec == nil {
		v := 60
		settings.PageTimeoutSec = &v
	}
	if settings.MediaTimeoutSec == nil {
		v := 900 // 15 minutes for large media files
		settings.MediaTimeoutSec = &v
	}

	if settings.Workers == nil || *settings.Workers < 1 {
		v := 2
		settings.Workers = &v
	}
	if settings.MaxAttempts == nil || *settings.MaxAttempts < 1 {
		v := 3
		settings.MaxAttempts = &v
	}
	if settings.BackoffBaseMs == nil || *settings.BackoffBaseMs < 1 {
		v := 500
		settings.BackoffBaseMs = &v
	}
	if settings.ShutdownGraceSec == nil || *settings.ShutdownGraceSec < 0 {
		v := 10
		settings.ShutdownGraceSec = &v
	}

	if settings.RulesPath == nil {
		v := ""
		settings.RulesPath = &v
	}

	if settings.MirrorBucket == nil {
		v := ""
		settings.MirrorBucket = &v
	}
	if settings.MirrorPrefix == nil {
		v := ""
		settings.MirrorPrefix = &v
	}
	if settings.MirrorRegion == nil {
		v := ""
		settings.MirrorRegion = &v
	}
}

// buildAppConfig converts defaulted RawSettings into an immutable AppConfig
func buildAppConfig(s *RawSettings, baseDir, configSource, settingPath string) *config.AppConfig {
	return config.NewAppConfig(
		baseDir, *s.NotesDir, *s.AttachmentsDir,
		*s.Listen, *s.Port,
		*s.ArchiverBin, *s.DownloaderBin,
		*s.PageTimeoutSec, *s.MediaTimeoutSec,
		*s.Workers, *s.MaxAttempts, *s.BackoffBaseMs, *s.ShutdownGraceSec,
		*s.RulesPath,
		*s.MirrorBucket, *s.MirrorPrefix, *s.MirrorRegion,
		configSource, settingPath,
	)
}
