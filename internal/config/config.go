package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/framecast/framecast/internal/logger"
)

// Box describes a single annotation rectangle drawn onto each frame.
// Coordinates are absolute pixels unless UsePercentage is set, in which
// case they are fractions of the frame dimensions in [0,1].
type Box struct {
	X1            float64 `mapstructure:"x1"`
	Y1            float64 `mapstructure:"y1"`
	X2            float64 `mapstructure:"x2"`
	Y2            float64 `mapstructure:"y2"`
	UsePercentage bool    `mapstructure:"use_percentage"`
	Color         string  `mapstructure:"color"`
	Thickness     int     `mapstructure:"thickness"`
	Label         string  `mapstructure:"label"`
	LabelColor    string  `mapstructure:"label_color"`
	FontScale     float64 `mapstructure:"font_scale"`
}

// RandomBoxes configures the randomly generated box overlay. Sizes are
// fractions of the frame dimensions.
type RandomBoxes struct {
	Enabled bool    `mapstructure:"enabled"`
	Count   int     `mapstructure:"count"`
	MinSize float64 `mapstructure:"min_size"`
	MaxSize float64 `mapstructure:"max_size"`
}

// OverlayConfig configures the frame annotation pass
type OverlayConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Boxes   []Box       `mapstructure:"boxes"`
	Random  RandomBoxes `mapstructure:"random"`
}

// EncodeConfig configures the per-frame encoder
type EncodeConfig struct {
	Format   string `mapstructure:"format"`
	Quality  int    `mapstructure:"quality"`
	MaxWidth int    `mapstructure:"max_width"`
}

// Config is the resolved producer configuration
type Config struct {
	SourceURL string `mapstructure:"source_url"`
	BrokerURL string `mapstructure:"broker_url"`
	StreamID  string `mapstructure:"stream_id"`
	TargetFPS int    `mapstructure:"target_fps"`
	Transport string `mapstructure:"transport"`
	VerifyTLS bool   `mapstructure:"verify_tls"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	Encode  EncodeConfig  `mapstructure:"encode"`
	Overlay OverlayConfig `mapstructure:"overlay"`
}

// Transport mode names accepted by Config.Transport
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// SetDefaults registers the default value for every config key on the
// given viper instance. Precedence: defaults < config file < FRAMECAST_*
// environment variables < flags.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source_url", "rtsp://localhost:8554/stream")
	v.SetDefault("broker_url", "http://localhost:3091")
	v.SetDefault("stream_id", "stream1")
	v.SetDefault("target_fps", 30)
	v.SetDefault("transport", TransportHTTP)
	v.SetDefault("verify_tls", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetDefault("encode.format", "jpeg")
	v.SetDefault("encode.quality", 80)
	v.SetDefault("encode.max_width", 0)

	v.SetDefault("overlay.enabled", false)
	v.SetDefault("overlay.random.enabled", false)
	v.SetDefault("overlay.random.count", 3)
	v.SetDefault("overlay.random.min_size", 0.05)
	v.SetDefault("overlay.random.max_size", 0.3)
}

// Load resolves the configuration from defaults, an optional YAML config
// file, and FRAMECAST_* environment variables
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("FRAMECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		logger.WithComponent("config").Info().
			Str("path", v.ConfigFileUsed()).
			Msg("Config file loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the resolved configuration for values the pipeline
// cannot work with
func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return fmt.Errorf("source_url must not be empty")
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("broker_url must not be empty")
	}
	if c.StreamID == "" {
		return fmt.Errorf("stream_id must not be empty")
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target_fps must be positive, got %d", c.TargetFPS)
	}
	if c.Transport != TransportHTTP && c.Transport != TransportWebSocket {
		return fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportWebSocket, c.Transport)
	}
	if c.Encode.Quality < 0 || c.Encode.Quality > 100 {
		return fmt.Errorf("encode.quality must be in [0,100], got %d", c.Encode.Quality)
	}
	if c.Encode.MaxWidth < 0 {
		return fmt.Errorf("encode.max_width must not be negative, got %d", c.Encode.MaxWidth)
	}
	if r := c.Overlay.Random; r.Enabled {
		if r.Count <= 0 {
			return fmt.Errorf("overlay.random.count must be positive, got %d", r.Count)
		}
		if r.MinSize <= 0 || r.MaxSize > 1 || r.MinSize > r.MaxSize {
			return fmt.Errorf("overlay.random size range must satisfy 0 < min_size <= max_size <= 1, got [%v,%v]", r.MinSize, r.MaxSize)
		}
	}
	return nil
}
