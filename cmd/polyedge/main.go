// Polyedge - Trading Intelligence Engine for Polymarket
//
// Watches the venue in real time and surfaces tradable information
// before the market absorbs it:
//  1. Micro-structure signals (spikes, sweeps, depth pulls) per market
//  2. Truth-source events (Congress, weather, Fed, sports) linked to
//     the markets they move
//  3. Whale flow: a tracked cohort of high-performance wallets with
//     positions and behavior labels
//  4. Edge detection joining truth events and whale flow against
//     current prices
//  5. Cross-market arbitrage constraints
//
// Everything converges on the alert engine, which de-duplicates,
// rate-limits and fans out to console, file, webhook and Telegram.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polyedge/internal/alerts"
	"github.com/web3guy0/polyedge/internal/api"
	"github.com/web3guy0/polyedge/internal/arb"
	"github.com/web3guy0/polyedge/internal/archive"
	"github.com/web3guy0/polyedge/internal/config"
	"github.com/web3guy0/polyedge/internal/edge"
	"github.com/web3guy0/polyedge/internal/health"
	"github.com/web3guy0/polyedge/internal/signals"
	"github.com/web3guy0/polyedge/internal/truthlink"
	"github.com/web3guy0/polyedge/internal/types"
	"github.com/web3guy0/polyedge/internal/venue"
	"github.com/web3guy0/polyedge/internal/whales"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Msg("🚀 Polyedge starting")

	// Venue surfaces
	marketClient := venue.NewMarketClient()
	ws := venue.NewWSClient(cfg.VenueWSURL)
	if err := ws.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Venue stream connection failed")
	}

	// Signal detector
	detector := signals.NewDetector(signals.OptionsFromConfig(cfg))
	detector.Attach(ws)

	// Subscribe the stream to the active universe.
	if markets, err := marketClient.ListActiveMarkets(); err != nil {
		log.Warn().Err(err).Msg("Initial market fetch failed, stream stays idle until retry")
	} else {
		assetIDs := make([]string, 0, len(markets))
		for _, m := range markets {
			assetIDs = append(assetIDs, m.AssetID)
			detector.SetMarketQuestion(m.AssetID, m.Question)
		}
		if err := ws.SubscribeAssets(assetIDs...); err != nil {
			log.Warn().Err(err).Msg("Stream subscription failed")
		}
	}

	// Truth-market linker
	rules := truthlink.LoadRules(cfg.TruthMapPath)
	linker := truthlink.NewLinker(rules, cfg.LinkerRefresh)
	linker.Attach(truthlink.Sources{Venue: marketClient})

	// Whale tracker over the venue trade feed
	bootstrap := make([]common.Address, 0, len(cfg.WhaleBootstrap))
	for _, addr := range cfg.WhaleBootstrap {
		bootstrap = append(bootstrap, common.HexToAddress(addr))
	}
	tracker := whales.NewTracker(whales.UniverseOptions{
		MinTrades: cfg.WhaleMinTrades,
		MinVolume: cfg.WhaleMinVolume,
		Bootstrap: bootstrap,
	}, cfg.WhaleRebuild)

	tradeFeed := venue.NewTradeFeed(10 * time.Second)

	// Trade archive, optional
	var recorder *archive.Recorder
	var arch *archive.Archive
	if cfg.ArchivePath != "" {
		arch, err = archive.New(cfg.ArchivePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Archive open failed")
		}
		recorder = archive.NewRecorder(arch, detector, 15*time.Minute)
		recorder.Start()
	}

	// Tee the trade feed into the tracker and the archive.
	trades := make(chan whales.VenueTrade, 512)
	go func() {
		defer close(trades)
		for t := range tradeFeed.Trades() {
			if recorder != nil {
				recorder.OnTrade(t)
			}
			trades <- t
		}
	}()
	tracker.Attach(trades)
	tradeFeed.Start()

	// Edge detector
	quality := edge.NewQualityFilter(cfg)
	edges := edge.NewDetector(linker, detector, tracker, quality, edge.Options{
		CacheTTL: cfg.EdgeCacheTTL,
		Cooldown: cfg.EdgeSignalCooldown,
	})
	linker.AddListener(edges.OnLinkedAlert)
	edges.Start()

	// Arbitrage detector
	arbDetector := arb.NewDetector(marketClient, arb.Options{
		MinEdge: cfg.ArbMinEdge,
		Tick:    cfg.ArbCheckTick,
	})
	arbDetector.Start()

	// Alert engine
	engine := alerts.NewEngine(buildChannels(cfg), alerts.Options{
		DedupeWindow: cfg.AlertDedupeWindow,
		RatePerMin:   cfg.AlertRatePerMinute,
		KeepRecent:   200,
	})

	go func() {
		for s := range detector.Signals() {
			engine.Publish(alerts.FormatSignal(s))
		}
	}()
	linker.AddListener(func(la truthlink.LinkedAlert) {
		engine.Publish(alerts.FormatLinked(la))
	})
	edges.AddListener(func(opp edge.Opportunity) {
		engine.Publish(alerts.FormatEdge(opp))
	})
	arbDetector.AddListener(func(opp arb.Opportunity) {
		engine.Publish(alerts.FormatArb(opp))
	})
	tracker.AddListener(func(ct whales.ClassifiedTrade) {
		if ct.Behavior == whales.BehaviorStandard {
			return
		}
		engine.Publish(alerts.FormatWhaleTrade(ct))
	})

	// Health and API
	registry := health.NewRegistry()
	registry.Register("venue_stream", func() health.SourceStatus {
		connected, lastUpdate, lastErr := ws.Status()
		return sourceStatus(connected, lastUpdate, lastErr)
	})
	registry.Register("trade_feed", func() health.SourceStatus {
		connected, lastUpdate, lastErr := tradeFeed.Status()
		return sourceStatus(connected, lastUpdate, lastErr)
	})
	registry.Register("market_universe", func() health.SourceStatus {
		lastRefresh, lastErr, _ := linker.Status()
		return sourceStatus(lastErr == nil && !lastRefresh.IsZero(), lastRefresh, lastErr)
	})

	server := api.NewServer(cfg.ListenAddr, registry, edges, tracker, linker, engine)
	server.Start()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("API shutdown incomplete")
	}

	arbDetector.Stop()
	edges.Stop()
	tradeFeed.Stop()
	tracker.Stop()
	linker.Stop()
	detector.Stop()
	ws.Close()
	if recorder != nil {
		recorder.Stop()
	}
	if arch != nil {
		arch.Close()
	}
	log.Info().Msg("Goodbye")
}

// buildChannels assembles the alert sinks the configuration enables.
// Console is always on.
func buildChannels(cfg *config.Config) []alerts.Channel {
	channels := []alerts.Channel{alerts.NewConsoleChannel(types.PriorityLow)}

	if cfg.AlertFilePath != "" {
		channels = append(channels, alerts.NewFileChannel(cfg.AlertFilePath, types.PriorityLow))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alerts.NewWebhookChannel(cfg.WebhookURL, types.PriorityMedium))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := alerts.NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatID, types.PriorityHigh)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram channel disabled")
		} else {
			channels = append(channels, tg)
		}
	}

	log.Info().Str("channels", alerts.FormatCount(channels)).Msg("📣 Alert channels ready")
	return channels
}

func sourceStatus(connected bool, lastUpdate time.Time, lastErr error) health.SourceStatus {
	s := health.SourceStatus{Connected: connected, LastUpdate: lastUpdate}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	return s
}
