package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/assetdesk/tradefront/internal/archive"
	"github.com/assetdesk/tradefront/internal/assets"
	"github.com/assetdesk/tradefront/internal/gateway"
	"github.com/assetdesk/tradefront/internal/ledger"
	"github.com/assetdesk/tradefront/internal/position"
	"github.com/assetdesk/tradefront/internal/pricefeed"
	"github.com/assetdesk/tradefront/internal/server"
	"github.com/assetdesk/tradefront/internal/trading"
	"github.com/assetdesk/tradefront/internal/users"
	"github.com/assetdesk/tradefront/internal/wallet"
	"github.com/assetdesk/tradefront/pkg/config"
	"github.com/assetdesk/tradefront/pkg/logger"
	"github.com/assetdesk/tradefront/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml, .yml or .json)")
	assetID := flag.String("asset", "", "asset to poll prices for (optional)")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *assetID); err != nil {
		logger.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, assetID string) error {
	store, err := ledger.OpenBadger(cfg.DataDir)
	if err != nil {
		return err
	}

	mirror := ledger.NewMirror(cfg.UserID, store)

	arch, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		return err
	}
	stopFeed, err := arch.Follow(store, cfg.UserID)
	if err != nil {
		return err
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:              cfg.APIBaseURL,
		Timeout:              cfg.HTTPTimeoutDuration(),
		MaxRequestsPerSecond: cfg.MaxRPS,
	}, func(ctx context.Context, assetID string) (float64, error) {
		matched, err := mirror.Matched()
		if err != nil {
			return 0, err
		}
		return position.Derive(assetID, matched), nil
	})

	poller := pricefeed.NewPoller(gw)
	var stopPoll func()
	if assetID != "" {
		stopPoll = poller.Start(assetID, cfg.PollIntervalDuration(), func(snap *pricefeed.Snapshot) {
			logger.Debugf("price update: asset=%s price=%s points=%d",
				snap.AssetID, snap.CurrentPrice, len(snap.Series))
		})
	}

	profile := users.NewService(users.StaticIdentity(cfg.UserID), store)

	owner := ""
	if cfg.WalletAddress != "" {
		provider, err := wallet.NewStaticProvider(cfg.WalletAddress)
		if err != nil {
			return err
		}
		if owner, err = provider.Address(context.Background()); err != nil {
			return err
		}
	}

	trader := trading.NewController(gw, mirror, owner)
	stopWatch := trader.Watch(store, cfg.DebounceDuration(), func(positions map[string]float64) {
		logger.Debugf("positions refreshed: %d asset(s)", len(positions))
	})

	objects, err := assets.NewFSStore(cfg.ObjectDir, cfg.ObjectBase)
	if err != nil {
		return err
	}
	tokenizer := assets.NewTokenizer(cfg.UserID, gw, objects, store)

	srv := server.New(server.Config{Listen: cfg.Listen}, cfg.UserID, mirror, store, arch, poller, profile, trader, tokenizer)
	httpSrv := srv.HTTPServer()

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context) {
		_ = httpSrv.Shutdown(ctx)
	})
	mgr.OnShutdown(func(context.Context) {
		if stopPoll != nil {
			stopPoll()
		}
		stopWatch()
		stopFeed()
		mirror.Close()
	})
	mgr.OnShutdown(func(context.Context) {
		if err := arch.Close(); err != nil {
			logger.Warnf("close archive: %v", err)
		}
		if err := store.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	})

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (user=%s backend=%s)", httpSrv.Addr, cfg.UserID, cfg.APIBaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logger.Infof("received %s, shutting down", sig)
	case err := <-errc:
		logger.Errorf("http server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	mgr.Shutdown(ctx)
	return nil
}
