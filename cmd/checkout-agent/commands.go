package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cartsignal/checkout-agent/internal/browser"
	"github.com/cartsignal/checkout-agent/internal/classify"
	"github.com/cartsignal/checkout-agent/internal/config"
	"github.com/cartsignal/checkout-agent/internal/database"
	"github.com/cartsignal/checkout-agent/internal/detect"
	"github.com/cartsignal/checkout-agent/internal/monitor"
	"github.com/cartsignal/checkout-agent/internal/relay"
	"github.com/cartsignal/checkout-agent/internal/server"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a browser and report detected checkout pages",
	RunE:  runWatch,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the reference collector service",
	RunE:  runCollect,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run watcher and collector together",
	RunE:  runBoth,
}

var checkCmd = &cobra.Command{
	Use:   "check [url] [html-file]",
	Short: "Classify a URL (and optional HTML snapshot) offline",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCheck,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func startWatcher(ctx context.Context, cfg config.Config) (*browser.Host, error) {
	rel := relay.New(logger, cfg.CollectorEndpoint, cfg.ClientID, nil)
	host := browser.NewHost(logger, browser.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Headless:            cfg.Browser.Headless,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
	}, rel)

	if err := host.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browser host: %w", err)
	}

	mon := monitor.New(logger, host)
	go mon.Run(ctx, host.TabEvents())
	return host, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	host, err := startWatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer host.Close()

	logger.Info("watching for checkout pages")
	<-ctx.Done()
	return nil
}

func openDatabase(cfg config.Config) (*database.Database, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return database.NewDatabase(cfg.DatabasePath)
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	return server.NewServer(logger, db, cfg.ListenAddress).Serve(ctx)
}

func runBoth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.NewServer(logger, db, cfg.ListenAddress).Serve(ctx)
	})
	group.Go(func() error {
		host, err := startWatcher(ctx, cfg)
		if err != nil {
			return err
		}
		defer host.Close()
		<-ctx.Done()
		return nil
	})
	return group.Wait()
}

// checkReport is the JSON output of the offline check command.
type checkReport struct {
	URL      string `json:"url"`
	Eligible bool   `json:"eligible"`
	URLMatch bool   `json:"urlMatch"`
	DOMMatch bool   `json:"domMatch"`
	Detected bool   `json:"detected"`
	Signals  any    `json:"signals,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	report := checkReport{
		URL:      rawURL,
		Eligible: detect.Eligible(rawURL),
		URLMatch: detect.URLMatch(rawURL),
		Detected: detect.URLMatch(rawURL),
	}

	if len(args) == 2 {
		snapshot, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		out := classify.NewPage(logger).Run(classify.PageInfo{
			URL:  rawURL,
			HTML: string(snapshot),
		})
		report.URLMatch = out.URLMatch
		report.DOMMatch = out.DOMMatch
		report.Detected = out.Detected
		report.Signals = out.Signals
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
