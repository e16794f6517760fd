package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"capowatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Networks  []NetworkConfig `mapstructure:"networks"`
	Sources   []SourceConfig  `mapstructure:"sources"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Collector CollectorConfig `mapstructure:"collector"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs the cadence of the three periodic jobs.
type SchedulerConfig struct {
	CollectInterval   time.Duration `mapstructure:"collect_interval"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval"`
	DailyOffset       time.Duration `mapstructure:"daily_offset"`
	AdvisoryLockKey   int64         `mapstructure:"advisory_lock_key"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
}

// ChainConfig tunes every RPC connection.
type ChainConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_open_delay"`
}

// NetworkConfig describes one EVM network.
type NetworkConfig struct {
	Name    string `mapstructure:"name"`
	ChainID uint64 `mapstructure:"chain_id"`
	RPCURL  string `mapstructure:"rpc_url"`
}

// SourceConfig is one market contract entry of the static source registry.
type SourceConfig struct {
	Address   string `mapstructure:"address"`
	Network   string `mapstructure:"network"`
	Algorithm string `mapstructure:"algorithm"`
}

// DiscoveryConfig controls oracle discovery.
type DiscoveryConfig struct {
	Algorithms       []string `mapstructure:"algorithms"`
	ProbeConcurrency int      `mapstructure:"probe_concurrency"`
}

// CollectorConfig holds alert thresholds evaluated per snapshot.
type CollectorConfig struct {
	RapidGrowthUtilization float64       `mapstructure:"rapid_growth_utilization"`
	SlowGrowthUtilization  float64       `mapstructure:"slow_growth_utilization"`
	PriceSpikePct          float64       `mapstructure:"price_spike_pct"`
	PriceSpikeWindow       time.Duration `mapstructure:"price_spike_window"`
}

// AlertingConfig defines dedup and routing.
type AlertingConfig struct {
	Cooldown      time.Duration  `mapstructure:"cooldown"`
	RedisURL      string         `mapstructure:"redis_url"`
	RedisPassword string         `mapstructure:"redis_password"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
	Mail          MailConfig     `mapstructure:"mail"`
}

// TelegramConfig describes the Telegram transport.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MailConfig describes the SMTP transport.
type MailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	To       []string      `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig configures the metrics/health listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAPOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "capowatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.collect_interval", "1m")
	v.SetDefault("scheduler.discovery_interval", "4h")
	v.SetDefault("scheduler.daily_offset", "5m")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6361706f))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.rate_limit", 10.0)
	v.SetDefault("chain.rate_burst", 5)
	v.SetDefault("chain.breaker_failures", 5)
	v.SetDefault("chain.breaker_open_delay", "30s")

	v.SetDefault("discovery.algorithms", []string{"comet"})
	v.SetDefault("discovery.probe_concurrency", 1)

	v.SetDefault("collector.rapid_growth_utilization", 90.0)
	v.SetDefault("collector.slow_growth_utilization", 10.0)
	v.SetDefault("collector.price_spike_pct", 10.0)
	v.SetDefault("collector.price_spike_window", "24h")

	v.SetDefault("alerting.cooldown", "1m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.mail.enabled", false)
	v.SetDefault("alerting.mail.port", 587)
	v.SetDefault("alerting.mail.timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9102")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.CollectInterval <= 0 {
		return fmt.Errorf("scheduler.collect_interval must be greater than zero")
	}
	if c.Scheduler.DiscoveryInterval <= 0 {
		return fmt.Errorf("scheduler.discovery_interval must be greater than zero")
	}
	if c.Scheduler.DailyOffset < 0 || c.Scheduler.DailyOffset >= 24*time.Hour {
		return fmt.Errorf("scheduler.daily_offset must be within [0, 24h)")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Discovery.ProbeConcurrency <= 0 {
		return fmt.Errorf("discovery.probe_concurrency must be greater than zero")
	}

	seen := make(map[string]struct{}, len(c.Networks))
	for _, n := range c.Networks {
		if n.Name == "" || n.ChainID == 0 {
			return fmt.Errorf("networks entries require name and chain_id")
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("network %q configured twice", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	for _, s := range c.Sources {
		if _, ok := seen[s.Network]; !ok {
			return fmt.Errorf("source %s references unknown network %q", s.Address, s.Network)
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	if c.Alerting.Mail.Enabled {
		if c.Alerting.Mail.Host == "" || c.Alerting.Mail.From == "" || len(c.Alerting.Mail.To) == 0 {
			return fmt.Errorf("alerting.mail requires host, from and to")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Network looks up a configured network by name.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}
