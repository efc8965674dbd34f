package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	// WSRateLimit caps inbound websocket frames per connection per minute.
	// Zero disables the limit.
	WSRateLimit int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`

	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Match   MatchConfig   `mapstructure:"match" yaml:"match"`
	Media   MediaConfig   `mapstructure:"media" yaml:"media"`
	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// MatchConfig tunes the partner resolver and the waiting pool.
type MatchConfig struct {
	// PoolLimit caps how many available entries one search considers.
	PoolLimit int `mapstructure:"pool_limit" yaml:"pool_limit"`
	// SyntheticDelay is how long the resolver keeps searching before
	// producing a synthetic partner.
	SyntheticDelay time.Duration `mapstructure:"synthetic_delay" yaml:"synthetic_delay"`
	// ReplyDelayMin/Max bound the canned-reply delay for synthetic partners.
	ReplyDelayMin time.Duration `mapstructure:"reply_delay_min" yaml:"reply_delay_min"`
	ReplyDelayMax time.Duration `mapstructure:"reply_delay_max" yaml:"reply_delay_max"`
	// HeartbeatInterval is how often presence refreshes the pool row.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	// EntryTTL is the age past which a pool entry counts as stale.
	EntryTTL time.Duration `mapstructure:"entry_ttl" yaml:"entry_ttl"`
}

// MediaConfig tunes local stream acquisition.
type MediaConfig struct {
	AcquireRetries int           `mapstructure:"acquire_retries" yaml:"acquire_retries"`
	AcquireBackoff time.Duration `mapstructure:"acquire_backoff" yaml:"acquire_backoff"`
}

// LiveKitConfig holds media backend credentials.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "driftchat.db",
		WSRateLimit:       120,
		Auth: AuthConfig{
			JWTIssuer:   "driftchat",
			JWTAudience: "driftchat-clients",
			TokenTTL:    24 * time.Hour,
		},
		Match: MatchConfig{
			PoolLimit:         10,
			SyntheticDelay:    2 * time.Second,
			ReplyDelayMin:     time.Second,
			ReplyDelayMax:     3 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			EntryTTL:          time.Minute,
		},
		Media: MediaConfig{
			AcquireRetries: 3,
			AcquireBackoff: time.Second,
		},
		LiveKit: LiveKitConfig{
			WSURL: "ws://localhost:7880",
		},
	}
}
