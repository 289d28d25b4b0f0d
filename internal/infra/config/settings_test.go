package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	fsys := afero.NewMemMapFs()

	cfg, err := LoadSettings(fsys, "/home/textpod")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Equal(t, "/home/textpod/notes", cfg.NotesDir())
	assert.Equal(t, "/home/textpod/attachments", cfg.AttachmentsDir())
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
	assert.Equal(t, "monolith", cfg.ArchiverBin())
	assert.Equal(t, "yt-dlp", cfg.DownloaderBin())
	assert.Equal(t, 2, cfg.Workers())
	assert.Equal(t, 3, cfg.MaxAttempts())
	assert.Equal(t, "", cfg.MirrorBucket())
}

func TestLoadSettings_FromFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	settingJSON := `{
		"listen": "0.0.0.0",
		"port": 8080,
		"workers": 4,
		"page_timeout_sec": 30,
		"mirror_bucket": "my-archive"
	}`
	require.NoError(t, afero.WriteFile(fsys, "/home/textpod/setting.json", []byte(settingJSON), 0o644))

	cfg, err := LoadSettings(fsys, "/home/textpod")
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.ConfigSource())
	assert.Equal(t, "/home/textpod/setting.json", cfg.SettingPath())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 4, cfg.Workers())
	assert.Equal(t, int64(30), int64(cfg.PageTimeout().Seconds()))
	assert.Equal(t, "my-archive", cfg.MirrorBucket())
	// Unset keys still get defaults
	assert.Equal(t, "yt-dlp", cfg.DownloaderBin())
	assert.Equal(t, int64(900), int64(cfg.MediaTimeout().Seconds()))
}

func TestLoadSettings_InvalidJSON(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/h/setting.json", []byte("{not json"), 0o644))

	_, err := LoadSettings(fsys, "/h")
	assert.Error(t, err)
}

func TestLoadSettings_ClampsNonsenseValues(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/h/setting.json",
		[]byte(`{"workers": 0, "max_attempts": -1}`), 0o644))

	cfg, err := LoadSettings(fsys, "/h")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers())
	assert.Equal(t, 3, cfg.MaxAttempts())
}

func TestLoadCaptureRules_Defaults(t *testing.T) {
	fsys := afero.NewMemMapFs()

	rules, err := LoadCaptureRules(fsys, "")
	require.NoError(t, err)

	assert.True(t, rules.IsMediaHost("youtube.com"))
	assert.True(t, rules.IsMediaHost("www.youtube.com"))
	assert.True(t, rules.IsMediaHost("youtu.be"))
	assert.False(t, rules.IsMediaHost("example.com"))
	assert.False(t, rules.IsMediaHost("notyoutube.com"))
}

func TestLoadCaptureRules_FromFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	rulesYAML := "media_hosts:\n  - media.example\n"
	require.NoError(t, afero.WriteFile(fsys, "/h/capture.yaml", []byte(rulesYAML), 0o644))

	rules, err := LoadCaptureRules(fsys, "/h/capture.yaml")
	require.NoError(t, err)

	assert.True(t, rules.IsMediaHost("media.example"))
	assert.True(t, rules.IsMediaHost("cdn.media.example"))
	assert.False(t, rules.IsMediaHost("youtube.com"))
}

func TestLoadCaptureRules_HostWithPort(t *testing.T) {
	rules := DefaultCaptureRules()
	assert.True(t, rules.IsMediaHost("youtube.com:443"))
}

func TestLoadCaptureRules_MissingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_, err := LoadCaptureRules(fsys, "/nope/capture.yaml")
	assert.Error(t, err)
}
