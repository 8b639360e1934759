package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Mode         string        `mapstructure:"mode"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	// Identity holds everything needed to verify tokens minted by the
	// external identity provider.
	Identity struct {
		JWKSURL          string        `mapstructure:"jwks_url"`
		Issuer           string        `mapstructure:"issuer"`
		Audience         string        `mapstructure:"audience"`
		TokenHeader      string        `mapstructure:"token_header"`
		KeySetTTL        time.Duration `mapstructure:"keyset_ttl"`
		FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
		IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
	} `mapstructure:"identity"`

	// Engine describes the downstream data engine the proxy fronts.
	Engine struct {
		URL          string        `mapstructure:"url"`
		ServiceKey   string        `mapstructure:"service_key"`
		Timeout      time.Duration `mapstructure:"timeout"`
		OwnerColumn  string        `mapstructure:"owner_column"`
		RPCArgument  string        `mapstructure:"rpc_argument"`
		PublicTables []string      `mapstructure:"public_tables"`
	} `mapstructure:"engine"`

	Redis struct {
		URL      string `mapstructure:"url"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Observability struct {
		TraceEnabled       bool   `mapstructure:"trace_enabled"`
		TracingEndpointURL string `mapstructure:"tracing_endpoint_url"`
		LogLevel           string `mapstructure:"log_level"`
		Format             string `mapstructure:"log_format"`
		LogSource          bool   `mapstructure:"log_source"`
	} `mapstructure:"observability"`

	CORS struct {
		AllowedOrigin string `mapstructure:"allowed_origin"`
	} `mapstructure:"cors"`
}

const (
	defaultTokenHeader  = "X-Identity-Token"
	defaultOwnerColumn  = "user_id"
	defaultRPCArgument  = "user_id"
	defaultKeySetTTL    = time.Hour
	defaultFetchTimeout = 10 * time.Second
)

func MustLoad() *Config {
	v := viper.New()

	logger := slog.Default()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("DATAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Error("Failed to read config", slog.Any("error", err))
		os.Exit(1)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			logger.Info("No environment-specific config (optional)", slog.String("env", env))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Error("Failed to unmarshal config", slog.Any("error", err))
		os.Exit(1)
	}

	cfg.applyDefaults()

	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Identity.TokenHeader == "" {
		c.Identity.TokenHeader = defaultTokenHeader
	}
	if c.Identity.KeySetTTL <= 0 {
		c.Identity.KeySetTTL = defaultKeySetTTL
	}
	if c.Identity.FetchTimeout <= 0 {
		c.Identity.FetchTimeout = defaultFetchTimeout
	}
	if c.Engine.OwnerColumn == "" {
		c.Engine.OwnerColumn = defaultOwnerColumn
	}
	if c.Engine.RPCArgument == "" {
		c.Engine.RPCArgument = defaultRPCArgument
	}
	if c.CORS.AllowedOrigin == "" {
		c.CORS.AllowedOrigin = "*"
	}
}
