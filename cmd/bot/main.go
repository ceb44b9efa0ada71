package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"trendbot/internal/config"
	"trendbot/internal/console"
	"trendbot/internal/engine"
	"trendbot/internal/indicator"
	"trendbot/internal/journal"
	"trendbot/internal/md"
	"trendbot/internal/order"
	"trendbot/internal/risk"
	"trendbot/internal/strategy"
	"trendbot/internal/venue"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("config error")
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	runID := generateRunID()
	log := logger.WithFields(logrus.Fields{"run_id": runID, "pair": cfg.Pair})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ProfileAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trendbot",
			ServerAddress:   cfg.ProfileAddr,
			Tags:            map[string]string{"pair": cfg.Pair, "account": cfg.Account},
			Logger:          logger,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.WithError(err).Warn("profiler disabled")
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		log.WithError(err).Fatal("decision logger error")
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.WithError(err).Warn("failed to close decision logger")
		}
	}()
	sinks := engine.MultiSink{decisions}
	if cfg.JournalDSN != "" {
		j, err := journal.Open(cfg.JournalDSN, log.WithField("component", "journal"))
		if err != nil {
			log.WithError(err).Fatal("journal error")
		}
		defer func() { _ = j.Close() }()
		sinks = append(sinks, j)
	}

	strat, err := strategy.New(cfg.Strategy, cfg.Slow)
	if err != nil {
		log.WithError(err).Fatal("strategy error")
	}

	httpClient := &fasthttp.Client{Name: "trendbot", MaxConnsPerHost: 16}
	signer := venue.NewSigner(httpClient, cfg.SignerURL, cfg.HTTPTimeout)
	exchange := venue.NewExchange(httpClient, cfg.VenueURL, cfg.HTTPTimeout)

	commands := engine.NewCommands(cfg.CommandQueue)
	eng := engine.New(engine.Options{
		Pair:          cfg.Pair,
		Account:       cfg.Account,
		RunID:         runID,
		UnitSize:      decimal.NewFromFloat(cfg.UnitSize),
		ManualOffset:  decimal.NewFromFloat(cfg.ManualOffset),
		PriceDecimals: int32(cfg.PriceDecimals),
		QtyDecimals:   int32(cfg.QtyDecimals),
		History:       cfg.History,
		RefreshWindow: cfg.RefreshWindow,
		PollBars:      !cfg.KlineStream,
		BookDepth:     cfg.BookDepth,
		PollInterval:  cfg.PollInterval,
		SignalSettle:  cfg.SignalSettle,
		StaleAfter:    cfg.StaleAfter,
	}, engine.Deps{
		Provider: newProvider(cfg, httpClient),
		Strategy: strat,
		Indicators: indicator.New(indicator.Params{
			Fast:   cfg.Fast,
			Slow:   cfg.Slow,
			Signal: cfg.Signal,
		}),
		Store:    order.NewStore(),
		Signer:   signer,
		Exchange: exchange,
		Gate: risk.Gate{
			Limits: risk.Limits{
				MaxPendingNew: cfg.MaxPendingNew,
				MaxPending:    cfg.MaxPending,
				Dust:          decimal.NewFromFloat(cfg.Dust),
				MaxOrderQty:   decimal.NewFromFloat(cfg.MaxOrderQty),
				KillSwitch:    cfg.KillSwitch,
			},
			Log: log.WithField("component", "risk"),
		},
		Decisions: sinks,
		Commands:  commands,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.Console {
		g.Go(func() error {
			return console.Run(gctx, os.Stdin, commands, log.WithField("component", "console"))
		})
	}
	if cfg.KlineStream {
		g.Go(func() error {
			return md.StreamKlines(gctx, cfg.StreamURL, cfg.MDSymbol, func(bar md.Bar) {
				if err := commands.TryPublish(engine.Command{Kind: engine.CmdBar, Bar: bar}); err != nil && !errors.Is(err, engine.ErrQueueClosed) {
					log.WithError(err).Debug("streamed bar dropped")
				}
			}, log.WithField("component", "stream"))
		})
	}

	log.WithFields(logrus.Fields{
		"account":   cfg.Account,
		"md_source": cfg.MDSource,
		"md_symbol": cfg.MDSymbol,
		"strategy":  strat.Name(),
		"unit_size": cfg.UnitSize,
	}).Info("starting bot")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("bot stopped with error")
	}
	log.Info("bot shutdown complete")
}

func newProvider(cfg config.Config, client *fasthttp.Client) md.Provider {
	if cfg.MDSource == config.SourceAlpaca {
		return md.NewAlpacaProvider(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.MDSymbol, cfg.HTTPTimeout)
	}
	return md.NewBinanceProvider(client, cfg.MDURL, cfg.MDSymbol, cfg.HTTPTimeout)
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	return timestamp + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}
