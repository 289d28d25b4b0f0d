package config

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// CaptureRules decides which capture kind a URL host routes to. Hosts that
// match a media suffix go to the media-downloader; everything else falls back
// to the page-archiver.
type CaptureRules struct {
	// MediaHosts are host suffixes handled by the media-downloader
	// (e.g. "youtube.com" matches "www.youtube.com").
	MediaHosts []string `yaml:"media_hosts"`
}

// defaultMediaHosts covers the sources the bundled downloader handles well.
var defaultMediaHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"soundcloud.com",
	"twitch.tv",
	"dailymotion.com",
	"bandcamp.com",
}

// DefaultCaptureRules returns the built-in classification rules.
func DefaultCaptureRules() *CaptureRules {
	hosts := make([]string, len(defaultMediaHosts))
	copy(hosts, defaultMediaHosts)
	return &CaptureRules{MediaHosts: hosts}
}

// LoadCaptureRules reads a capture.yaml rules file. An empty path yields the
// built-in defaults; a file with no media_hosts entry keeps them too.
func LoadCaptureRules(fsys afero.Fs, path string) (*CaptureRules, error) {
	if path == "" {
		return DefaultCaptureRules(), nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture rules %s: %w", path, err)
	}

	rules := &CaptureRules{}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse capture rules %s: %w", path, err)
	}

	if len(rules.MediaHosts) == 0 {
		rules.MediaHosts = DefaultCaptureRules().MediaHosts
	}
	return rules, nil
}

// IsMediaHost reports whether host (lowercased, port ignored) matches one of
// the media host suffixes.
func (r *CaptureRules) IsMediaHost(host string) bool {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, suffix := range r.MediaHosts {
		suffix = strings.ToLower(suffix)
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
