// Package config loads the parser configuration options §6.3 enumerates
// (availabilityWindowOverride, dash.*, hls.*, disable{Audio,Video,Text,
// Thumbnails}) from a YAML file and the environment, via Viper, layering
// file defaults under explicit file values under environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the mutable configuration a Parser.configure(config) call
// installs (§6.3). Zero values are valid: an unset AvailabilityWindowOverride
// means "use the parsed window", an unset ClockSyncURI means "rely on the
// MPD's own UTCTiming elements only".
type Config struct {
	// AvailabilityWindowOverride replaces the parsed segment availability
	// window with a fixed number of seconds when > 0.
	AvailabilityWindowOverride float64 `mapstructure:"availability_window_override"`

	DASH DASHConfig `mapstructure:"dash"`
	HLS  HLSConfig  `mapstructure:"hls"`

	DisableAudio      bool `mapstructure:"disable_audio"`
	DisableVideo      bool `mapstructure:"disable_video"`
	DisableText       bool `mapstructure:"disable_text"`
	DisableThumbnails bool `mapstructure:"disable_thumbnails"`
}

// DASHConfig holds DASH-only parser options.
type DASHConfig struct {
	// ClockSyncURI is a fallback UTC-timing source tried after every
	// MPD-declared UTCTiming element fails (§4.4.3).
	ClockSyncURI string `mapstructure:"clock_sync_uri"`
	// IgnoreMinBufferTime is loaded and stored only; no parser code reads
	// it, so it has no effect on startup.
	IgnoreMinBufferTime bool `mapstructure:"ignore_min_buffer_time"`
	// AutoCorrectDrift is loaded (default true) and stored only; no parser
	// code reads it, so no drift correction is applied to the timeline.
	AutoCorrectDrift bool `mapstructure:"auto_correct_drift"`
	// InitialSegmentLimit is loaded (default 1000) and stored only; no
	// parser code reads it, so SegmentTimeline expansion is not bounded by it.
	InitialSegmentLimit int `mapstructure:"initial_segment_limit"`
}

// HLSConfig holds HLS-only parser options.
type HLSConfig struct {
	IgnoreTextStreamFailures      bool   `mapstructure:"ignore_text_stream_failures"`
	IgnoreImageStreamFailures     bool   `mapstructure:"ignore_image_stream_failures"`
	IgnoreManifestProgramDateTime bool   `mapstructure:"ignore_manifest_program_date_time"`
	MediaPlaylistFullMimeType     string `mapstructure:"media_playlist_full_mime_type"`
	SequenceMode                  bool   `mapstructure:"sequence_mode"`
}

const defaultInitialSegmentLimit = 1000

// Load reads configuration from an optional YAML file plus the environment,
// layering defaults under the file under the environment.
// Environment variables are prefixed MANIFESTD_ and use underscores for
// nesting (e.g. MANIFESTD_DASH_CLOCK_SYNC_URI).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("manifestd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/manifestd")
	}

	v.SetEnvPrefix("MANIFESTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}

// SetDefaults installs every option's zero-risk default before the config
// file and environment are layered on top.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("availability_window_override", 0.0)

	v.SetDefault("dash.clock_sync_uri", "")
	v.SetDefault("dash.ignore_min_buffer_time", false)
	v.SetDefault("dash.auto_correct_drift", true)
	v.SetDefault("dash.initial_segment_limit", defaultInitialSegmentLimit)

	v.SetDefault("hls.ignore_text_stream_failures", false)
	v.SetDefault("hls.ignore_image_stream_failures", false)
	v.SetDefault("hls.ignore_manifest_program_date_time", false)
	v.SetDefault("hls.media_playlist_full_mime_type", "")
	v.SetDefault("hls.sequence_mode", false)

	v.SetDefault("disable_audio", false)
	v.SetDefault("disable_video", false)
	v.SetDefault("disable_text", false)
	v.SetDefault("disable_thumbnails", false)
}
