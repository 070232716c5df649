package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the engine.
type Config struct {
	// Mode
	Debug bool

	// Venue
	VenueWSURL string

	// Signal detector
	PriceSpikeThresholdPct decimal.Decimal
	PriceSpikeWindow       time.Duration
	VolumeSpikeMultiplier  decimal.Decimal
	VolumeSpikeBaselineWin time.Duration
	SpreadCompThresholdPct decimal.Decimal
	SpreadCompMinSpread    decimal.Decimal
	SweepWindow            time.Duration
	SweepMinTradeCount     int
	SweepMinTotalSize      decimal.Decimal
	SweepMinPriceImpactPct decimal.Decimal
	DepthPullThresholdPct  decimal.Decimal
	DepthPullMinDepth      decimal.Decimal
	SignalWarmup           time.Duration
	SignalCooldown         time.Duration

	// Linker
	LinkerRefresh time.Duration
	TruthMapPath  string

	// Edge detector
	EdgeCacheTTL       time.Duration
	EdgeSignalCooldown time.Duration

	// Arbitrage
	ArbMinEdge   decimal.Decimal
	ArbCheckTick time.Duration

	// Alert engine
	AlertDedupeWindow  time.Duration
	AlertRatePerMinute int
	AlertFilePath      string
	WebhookURL         string
	TelegramToken      string
	TelegramChatID     int64

	// Market quality tiers
	QualityHighVolume   decimal.Decimal
	QualityHighSpread   decimal.Decimal
	QualityHighTrades   int
	QualityMediumVolume decimal.Decimal
	QualityMediumSpread decimal.Decimal
	QualityMediumTrades int
	QualityLowVolume    decimal.Decimal
	QualityLowSpread    decimal.Decimal
	QualityLowTrades    int

	// Whale universe
	WhaleMinVolume decimal.Decimal
	WhaleMinTrades int
	WhaleRebuild   time.Duration
	WhaleBootstrap []string

	// API / health
	ListenAddr string

	// Trade archive
	ArchivePath string
}

// Load reads configuration from environment variables with engine defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		VenueWSURL: getEnv("VENUE_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		PriceSpikeThresholdPct: getEnvDecimal("PRICE_SPIKE_THRESHOLD_PCT", decimal.NewFromInt(3)),
		PriceSpikeWindow:       getEnvDuration("PRICE_SPIKE_WINDOW", 5*time.Minute),
		VolumeSpikeMultiplier:  getEnvDecimal("VOLUME_SPIKE_MULTIPLIER", decimal.NewFromInt(3)),
		VolumeSpikeBaselineWin: getEnvDuration("VOLUME_SPIKE_BASELINE_WINDOW", 30*time.Minute),
		SpreadCompThresholdPct: getEnvDecimal("SPREAD_COMPRESSION_THRESHOLD_PCT", decimal.NewFromInt(40)),
		SpreadCompMinSpread:    getEnvDecimal("SPREAD_COMPRESSION_MIN_SPREAD", decimal.NewFromFloat(0.02)),
		SweepWindow:            getEnvDuration("AGGRESSIVE_SWEEP_WINDOW", 30*time.Second),
		SweepMinTradeCount:     getEnvInt("AGGRESSIVE_SWEEP_MIN_TRADES", 3),
		SweepMinTotalSize:      getEnvDecimal("AGGRESSIVE_SWEEP_MIN_TOTAL_SIZE", decimal.NewFromInt(50)),
		SweepMinPriceImpactPct: getEnvDecimal("AGGRESSIVE_SWEEP_MIN_PRICE_IMPACT_PCT", decimal.NewFromInt(1)),
		DepthPullThresholdPct:  getEnvDecimal("DEPTH_PULL_THRESHOLD_PCT", decimal.NewFromInt(50)),
		DepthPullMinDepth:      getEnvDecimal("DEPTH_PULL_MIN_DEPTH", decimal.NewFromInt(100)),
		SignalWarmup:           getEnvDuration("SIGNAL_WARMUP", 30*time.Second),
		SignalCooldown:         getEnvDuration("SIGNAL_COOLDOWN", 60*time.Second),

		LinkerRefresh: getEnvDuration("LINKER_REFRESH", 10*time.Minute),
		TruthMapPath:  getEnv("TRUTHMAP_PATH", "config/truthmap.yaml"),

		EdgeCacheTTL:       getEnvDuration("EDGE_CACHE_TTL", 60*time.Second),
		EdgeSignalCooldown: getEnvDuration("EDGE_SIGNAL_COOLDOWN", 5*time.Minute),

		ArbMinEdge:   getEnvDecimal("ARB_MIN_EDGE", decimal.NewFromFloat(0.02)),
		ArbCheckTick: getEnvDuration("ARB_CHECK_TICK", 30*time.Second),

		AlertDedupeWindow:  getEnvDuration("ALERT_DEDUPE_WINDOW", 60*time.Second),
		AlertRatePerMinute: getEnvInt("ALERT_RATE_PER_MINUTE", 60),
		AlertFilePath:      getEnv("ALERT_FILE_PATH", ""),
		WebhookURL:         getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),

		QualityHighVolume:   getEnvDecimal("QUALITY_HIGH_VOLUME", decimal.NewFromInt(100000)),
		QualityHighSpread:   getEnvDecimal("QUALITY_HIGH_SPREAD", decimal.NewFromFloat(0.02)),
		QualityHighTrades:   getEnvInt("QUALITY_HIGH_TRADES", 100),
		QualityMediumVolume: getEnvDecimal("QUALITY_MEDIUM_VOLUME", decimal.NewFromInt(25000)),
		QualityMediumSpread: getEnvDecimal("QUALITY_MEDIUM_SPREAD", decimal.NewFromFloat(0.05)),
		QualityMediumTrades: getEnvInt("QUALITY_MEDIUM_TRADES", 25),
		QualityLowVolume:    getEnvDecimal("QUALITY_LOW_VOLUME", decimal.NewFromInt(5000)),
		QualityLowSpread:    getEnvDecimal("QUALITY_LOW_SPREAD", decimal.NewFromFloat(0.10)),
		QualityLowTrades:    getEnvInt("QUALITY_LOW_TRADES", 10),

		WhaleMinVolume: getEnvDecimal("WHALE_UNIVERSE_MIN_VOLUME", decimal.NewFromInt(10000)),
		WhaleMinTrades: getEnvInt("WHALE_UNIVERSE_MIN_TRADES", 10),
		WhaleRebuild:   getEnvDuration("WHALE_UNIVERSE_REBUILD", time.Hour),
		WhaleBootstrap: getEnvList("WHALE_BOOTSTRAP_WALLETS"),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		ArchivePath: getEnv("ARCHIVE_PATH", ""),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are milliseconds, matching the *_MS knobs older
		// deployments exported.
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
