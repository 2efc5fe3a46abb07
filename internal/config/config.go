package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	GW2      GW2      `mapstructure:"gw2"`
	Scout    Scout    `mapstructure:"scout"`
	Market   Market   `mapstructure:"market"`
	Sim      Sim      `mapstructure:"sim"`
	Advisor  Advisor  `mapstructure:"advisor"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// GW2 holds the configuration for the GW2 REST API client.
type GW2 struct {
	BaseURL        string  `mapstructure:"base_url"`
	AccessToken    string  `mapstructure:"access_token"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// Scout holds the configuration for the background scan scheduler.
type Scout struct {
	PriorityIntervalSeconds int   `mapstructure:"priority_interval_seconds"`
	FullIntervalMinutes     int   `mapstructure:"full_interval_minutes"`
	SyncIntervalSeconds     int   `mapstructure:"sync_interval_seconds"`
	ChunkSize               int   `mapstructure:"chunk_size"`
	ChunkDelayMillis        int   `mapstructure:"chunk_delay_millis"`
	FlushIntervalSeconds    int   `mapstructure:"flush_interval_seconds"`
	PopularItemIDs          []int `mapstructure:"popular_item_ids"`
	HistoryBootstrapLimit   int   `mapstructure:"history_bootstrap_limit"`
}

// Market holds tunables for price normalization and manipulation detection.
// The thresholds are empirical constants, not load-bearing business rules;
// the transaction fee rates are fixed by the game and live in the market
// package.
type Market struct {
	BuyDepthLogWeight    float64 `mapstructure:"buy_depth_log_weight"`
	SellDepthLogWeight   float64 `mapstructure:"sell_depth_log_weight"`
	ManipSpreadThreshold float64 `mapstructure:"manip_spread_threshold"`
	ManipThinSupplyQty   int64   `mapstructure:"manip_thin_supply_qty"`
}

// Sim holds the configuration for the shadow simulation engine.
type Sim struct {
	PoolCapacity   int      `mapstructure:"pool_capacity"`
	PoolHardCap    int      `mapstructure:"pool_hard_cap"`
	CaptureRatio   float64  `mapstructure:"capture_ratio"`
	MinROI         float64  `mapstructure:"min_roi"`
	MaxROI         float64  `mapstructure:"max_roi"`
	MinBuyDepth    int64    `mapstructure:"min_buy_depth"`
	MinSellDepth   int64    `mapstructure:"min_sell_depth"`
	MinLiquidity   int      `mapstructure:"min_liquidity"`
	UndercutChance float64  `mapstructure:"undercut_chance"`
	Seed           int64    `mapstructure:"seed"`
	CategoryOrder  []string `mapstructure:"category_order"`
	TargetROILow   float64  `mapstructure:"target_roi_low"`
	TargetROIHigh  float64  `mapstructure:"target_roi_high"`
}

// Advisor holds the configuration for the external analysis collaborator.
type Advisor struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Server holds the configuration for the dashboard status API.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("gw2.base_url", "https://api.guildwars2.com/v2")
	viper.SetDefault("gw2.rate_limit", 8) // requests per second, survives concurrent gameplay
	viper.SetDefault("gw2.rate_limit_burst", 1)
	viper.SetDefault("gw2.timeout_seconds", 30)
	viper.SetDefault("gw2.max_retries", 3)

	viper.SetDefault("scout.priority_interval_seconds", 60)
	viper.SetDefault("scout.full_interval_minutes", 15)
	viper.SetDefault("scout.sync_interval_seconds", 60)
	viper.SetDefault("scout.chunk_size", 120)
	viper.SetDefault("scout.chunk_delay_millis", 300)
	viper.SetDefault("scout.flush_interval_seconds", 4)
	viper.SetDefault("scout.history_bootstrap_limit", 200)
	// High-volume seeds: ectos, mystic coins, T6 mats, refined mats.
	viper.SetDefault("scout.popular_item_ids", []int{
		19721, 19976, 19684, 19722, 24358, 46738, 46739, 46740, 46741,
		24295, 24289, 24283, 24277, 24329, 72339, 89103, 95995, 96347,
	})

	viper.SetDefault("market.buy_depth_log_weight", 15)
	viper.SetDefault("market.sell_depth_log_weight", 10)
	viper.SetDefault("market.manip_spread_threshold", 1.5)
	viper.SetDefault("market.manip_thin_supply_qty", 100)

	viper.SetDefault("sim.pool_capacity", 12)
	viper.SetDefault("sim.pool_hard_cap", 20)
	viper.SetDefault("sim.capture_ratio", 0.02)
	viper.SetDefault("sim.min_roi", 15)
	viper.SetDefault("sim.max_roi", 150)
	viper.SetDefault("sim.min_buy_depth", 200)
	viper.SetDefault("sim.min_sell_depth", 10)
	viper.SetDefault("sim.min_liquidity", 40)
	viper.SetDefault("sim.undercut_chance", 0.1)
	viper.SetDefault("sim.seed", 0) // 0 means time-seeded
	viper.SetDefault("sim.category_order", []string{"CraftingMaterial", "Consumable", "UpgradeComponent"})
	viper.SetDefault("sim.target_roi_low", 15)
	viper.SetDefault("sim.target_roi_high", 60)

	viper.SetDefault("advisor.enabled", false)
	viper.SetDefault("advisor.timeout_seconds", 10)

	viper.SetDefault("server.port", 8787)
	viper.SetDefault("database.dsn", "scout.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
}
