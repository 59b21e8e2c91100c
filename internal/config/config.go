package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	Log   struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	N8N struct {
		BaseURL           string        `mapstructure:"base_url"`
		APIKey            string        `mapstructure:"api_key"`
		Timeout           time.Duration `mapstructure:"timeout"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	} `mapstructure:"n8n"`
	Monitor struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxWait      time.Duration `mapstructure:"max_wait"`
	} `mapstructure:"monitor"`
	Cache struct {
		Backend string        `mapstructure:"backend"`
		Size    int           `mapstructure:"size"`
		TTL     time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Auth struct {
		Enabled  bool   `mapstructure:"enabled"`
		Issuer   string `mapstructure:"issuer"`
		Audience string `mapstructure:"audience"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("n8n.base_url", "http://n8n-app:5678")
	v.SetDefault("n8n.api_key", "")
	v.SetDefault("n8n.timeout", 30*time.Second)
	v.SetDefault("n8n.requests_per_second", 0)
	v.SetDefault("monitor.poll_interval", time.Second)
	v.SetDefault("monitor.max_wait", 30*time.Second)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "n8n_mcp")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("tls.enable", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.hostnames", []string{})
}

// LoadConfig loads the configuration from a file and the environment. When
// path is empty, config.yaml is searched in . and ./config and may be absent.
func LoadConfig(path string) (*Config, error) {
	return Load(viper.GetViper(), path)
}

// Load reads configuration into v and decodes it.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Plain names used by existing deployments.
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("n8n.base_url", "N8N_BASE_URL")
	_ = v.BindEnv("n8n.api_key", "N8N_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.N8N.BaseURL = normalizeBaseURL(config.N8N.BaseURL)
	return &config, nil
}

// Warnings lists presence problems that degrade behavior without stopping
// the process.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.N8N.APIKey == "" {
		warnings = append(warnings, "n8n API key is not configured; engine calls will be unauthenticated")
	}
	if c.Auth.Enabled && c.Auth.Issuer == "" {
		warnings = append(warnings, "auth is enabled but no issuer is configured")
	}
	if c.Cache.Backend == "postgres" && c.DB.Host == "" {
		warnings = append(warnings, "postgres cache selected without a database host")
	}
	return warnings
}

// normalizeBaseURL strips surrounding space and trailing slashes so endpoint
// paths can be appended directly.
func normalizeBaseURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
