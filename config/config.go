// Package config loads the player's tunables (clock anchor fluctuation
// threshold, rescan retry intervals, duration-poll interval, request-buffer
// tick interval, playback audio buffer size) from layered sources.
//
// Grounded on tomtom215-lyrebirdaudio-go/internal/config/koanf.go: koanf as
// the merge engine, YAML file as the base layer, environment variables
// (HPCPLAYER_*) as the override layer, defaults supplied in code.
package config

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable named or implied by the specification.
type Config struct {
	// ClockFluctuationThreshold suppresses anchor noise in MediaClock.updateAnchor
	// (spec.md §4.C; tunability was an open question, resolved in DESIGN.md).
	ClockFluctuationThreshold time.Duration `koanf:"clock_fluctuation_threshold"`

	// SourceRescanRetryInterval is how long Engine.scanSources waits before
	// retrying a WouldBlock decoder instantiation (spec.md §4.G "Scan sources").
	SourceRescanRetryInterval time.Duration `koanf:"source_rescan_retry_interval"`

	// DurationPollInterval is the cadence for polling a DynamicDuration source
	// while playing (spec.md §4.G "Prepare").
	DurationPollInterval time.Duration `koanf:"duration_poll_interval"`

	// RequestBuffersTickInterval is the self-tick interval for
	// DecoderBase.doRequestBuffers (spec.md §4.E).
	RequestBuffersTickInterval time.Duration `koanf:"request_buffers_tick_interval"`

	// AudioPlaybackBufferSize is the audio sink ring-buffer depth (teacher's
	// playerBufferSize in controller_yes_audio.go).
	AudioPlaybackBufferSize time.Duration `koanf:"audio_playback_buffer_size"`

	// BufferingLowWatermarkPct/HighWatermarkPct are loaded and defaulted but
	// not read by any package: BufferingUpdate reports plain queue occupancy
	// (see source.DefaultSource).
	BufferingLowWatermarkPct  int `koanf:"buffering_low_watermark_pct"`
	BufferingHighWatermarkPct int `koanf:"buffering_high_watermark_pct"`
}

// Default returns the built-in tunables, matching the values the
// specification calls out explicitly (10ms fluctuation threshold, 100ms
// rescan retry, 1s duration poll, 10ms request-buffers tick).
func Default() Config {
	return Config{
		ClockFluctuationThreshold:  10 * time.Millisecond,
		SourceRescanRetryInterval:  100 * time.Millisecond,
		DurationPollInterval:       time.Second,
		RequestBuffersTickInterval: 10 * time.Millisecond,
		AudioPlaybackBufferSize:    200 * time.Millisecond,
		BufferingLowWatermarkPct:   10,
		BufferingHighWatermarkPct:  90,
	}
}

// Option configures Load.
type Option func(*loadState)

type loadState struct {
	yamlPath  string
	envPrefix string
}

// WithYAMLFile sets an optional YAML file to layer over the defaults.
func WithYAMLFile(path string) Option {
	return func(s *loadState) { s.yamlPath = path }
}

// WithEnvPrefix overrides the environment variable prefix (default
// "HPCPLAYER_").
func WithEnvPrefix(prefix string) Option {
	return func(s *loadState) { s.envPrefix = prefix }
}

// Load merges Default(), an optional YAML file and environment variables
// (highest precedence) into a Config.
func Load(opts ...Option) (Config, error) {
	state := &loadState{envPrefix: "HPCPLAYER_"}
	for _, opt := range opts {
		opt(state)
	}

	k := koanf.New(".")
	def := Default()
	if err := k.Load(structProvider{def}, nil); err != nil {
		return Config{}, err
	}

	if state.yamlPath != "" {
		if err := k.Load(file.Provider(state.yamlPath), yaml.Parser()); err != nil {
			return Config{}, err
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: state.envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, state.envPrefix))
			key = strings.ReplaceAll(key, "_", "_")
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, err
	}

	out := def
	unmarshalConf := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &out,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &out, unmarshalConf); err != nil {
		return Config{}, err
	}
	return out, nil
}

// structProvider adapts an already-populated struct as a koanf.Provider so
// Default() becomes the first, lowest-precedence layer.
type structProvider struct{ v Config }

func (p structProvider) ReadBytes() ([]byte, error) { return nil, nil }

func (p structProvider) Read() (map[string]any, error) {
	return map[string]any{
		"clock_fluctuation_threshold":   p.v.ClockFluctuationThreshold,
		"source_rescan_retry_interval":  p.v.SourceRescanRetryInterval,
		"duration_poll_interval":        p.v.DurationPollInterval,
		"request_buffers_tick_interval": p.v.RequestBuffersTickInterval,
		"audio_playback_buffer_size":    p.v.AudioPlaybackBufferSize,
		"buffering_low_watermark_pct":   p.v.BufferingLowWatermarkPct,
		"buffering_high_watermark_pct":  p.v.BufferingHighWatermarkPct,
	}, nil
}
