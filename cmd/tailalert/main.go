package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/tailalert/internal/alerts"
	"github.com/obsidianstack/tailalert/internal/api"
	"github.com/obsidianstack/tailalert/internal/auth"
	"github.com/obsidianstack/tailalert/internal/config"
	"github.com/obsidianstack/tailalert/internal/metrics"
	"github.com/obsidianstack/tailalert/internal/orchestrator"
	"github.com/obsidianstack/tailalert/internal/store"
	"github.com/obsidianstack/tailalert/internal/ws"
)

func main() {
	// Secrets referenced by *_env keys may live in a local .env file.
	_ = godotenv.Load()

	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "tailalert:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	slog.Info("tailalert starting",
		"path", cfg.Watch.Path,
		"pattern", cfg.Watch.Pattern,
		"backend", cfg.Watch.Backend,
		"debounce", cfg.Watch.Debounce,
		"destinations", len(cfg.Alerts.Destinations),
		"http_port", cfg.Server.HTTPPort,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("tailalert stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("tailalert stopped")
}

// loadConfig builds the configuration from an optional file and the
// command-line flags, which take precedence. The log path may be given as the
// single positional argument.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("tailalert", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file (optional)")
	pattern := fs.String("pattern", "", "alert pattern, RE2 syntax (default \""+config.DefaultPattern+"\")")
	webhook := fs.String("webhook", "", "webhook URL to POST alerts to")
	slackToken := fs.String("slack-token", "", "Slack bot token")
	slackChannel := fs.String("slack-channel", "", "Slack channel ID")
	debounce := fs.Duration("debounce", config.DefaultDebounce, "minimum interval between file change events")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: tailalert [flags] [LOG_PATH]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Read(*configPath); err != nil {
			return nil, err
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Watch.Path = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected one log path, got %d arguments", fs.NArg())
	}
	if set["pattern"] {
		cfg.Watch.Pattern = *pattern
	}
	if set["debounce"] {
		cfg.Watch.Debounce = *debounce
	}
	if *webhook != "" {
		cfg.Alerts.Destinations = append(cfg.Alerts.Destinations, config.DestinationConfig{
			Type:   "webhook",
			RawURL: *webhook,
		})
	}
	if *slackToken != "" || *slackChannel != "" {
		if *slackToken == "" || *slackChannel == "" {
			return nil, errors.New("-slack-token and -slack-channel must be given together")
		}
		cfg.Alerts.Destinations = append(cfg.Alerts.Destinations, config.DestinationConfig{
			Type:     "slack",
			RawToken: *slackToken,
			Channel:  *slackChannel,
		})
	}

	path, err := expandHome(cfg.Watch.Path)
	if err != nil {
		return nil, err
	}
	cfg.Watch.Path = path

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandHome replaces a leading "~" with the user's home directory. Paths
// from the config file never pass through a shell.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// run starts detection, delivery and the optional status server, and blocks
// until ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()

	dests, err := alerts.BuildDestinations(cfg.Alerts, &http.Client{})
	if err != nil {
		return err
	}

	serve := cfg.Server.HTTPPort != 0
	var (
		history *store.Store
		hub     *ws.Hub
		lis     net.Listener
	)
	if serve {
		history = store.New(cfg.Alerts.HistorySize, cfg.Alerts.HistoryTTL)
		hub = ws.New(history)
		dests = append(dests, hub)

		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
		if err != nil {
			return fmt.Errorf("listen on http port %d: %w", cfg.Server.HTTPPort, err)
		}
	}

	orc, err := orchestrator.New(orchestrator.Options{
		Config:       cfg,
		Destinations: dests,
		Metrics:      m,
	})
	if err != nil {
		return err
	}
	if err := orc.Start(ctx); err != nil {
		if lis != nil {
			lis.Close()
		}
		return err
	}

	// The hub outlives the orchestrator so alerts drained on shutdown still
	// reach connected clients.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	defer orc.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orc.Wait(gctx) })

	if serve {
		go hub.Run(hubCtx)
		g.Go(func() error {
			history.Run(gctx)
			return nil
		})

		status := func() api.Status {
			return api.Status{
				State:        orc.State().String(),
				Path:         orc.Path(),
				Pattern:      orc.Pattern(),
				Offset:       orc.Offset(),
				Truncations:  orc.Truncations(),
				QueueDepth:   orc.QueueDepth(),
				Destinations: orc.Destinations(),
			}
		}
		mux := http.NewServeMux()
		mux.Handle("/api/", api.New(history, status))
		mux.Handle("/metrics", m)
		mux.Handle("/ws/alerts", hub)

		authMW := auth.APIKeyMiddleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		)
		srv := &http.Server{
			Handler:           authMW(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "auth_mode", cfg.Server.Auth.Mode)
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.JoinTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
			return nil
		})
	}

	return g.Wait()
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
