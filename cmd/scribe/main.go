package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/api"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/mqttclient"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/tui"
)

var version = "dev"

const usage = `usage: scribe <command> [flags]

commands:
  serve    run the HTTP API, MQTT control and audio inbox
  record   record from the terminal and save a transcription note
  history  list recent transcriptions from DATABASE_URL
  version  print the version
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "record":
		err = runRecord(args)
	case "history":
		err = runHistory(args)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "scribe:", err)
		os.Exit(1)
	}
}

func parseFlags(name string, args []string, withListen bool) (config.Overrides, error) {
	var o config.Overrides
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&o.EnvFile, "env-file", "", "path to .env file (default .env)")
	fs.StringVar(&o.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	fs.StringVar(&o.VaultDir, "vault", "", "vault directory (overrides VAULT_DIR)")
	fs.StringVar(&o.Provider, "provider", "", "transcription provider: openai, groq, gemini, custom")
	if withListen {
		fs.StringVar(&o.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	}
	err := fs.Parse(args)
	return o, err
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

func runServe(args []string) error {
	startTime := time.Now()

	overrides, err := parseFlags("serve", args, true)
	if err != nil {
		return err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	log := newLogger(cfg, os.Stdout)
	log.Info().Str("version", version).Msg("scribe starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()
	a.addNotifier(pipeline.LogNotifier{Log: log.With().Str("component", "status").Logger()})

	// MQTT
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Commander:   a.ctrl,
			Log:         log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		a.addNotifier(mqtt)
	}

	a.registerMetrics()
	a.startServices()

	// Audio inbox
	if cfg.InboxDir != "" {
		inbox, err := ingest.NewWatcher(ingest.Options{
			Dir:      cfg.InboxDir,
			Importer: a.ctrl,
			Log:      log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create inbox")
		}
		if err := inbox.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to watch inbox")
		}
		defer inbox.Stop()
	}

	// HTTP Server
	deps := api.Deps{
		Controller: a.ctrl,
		History:    a.history,
		VaultType:  a.vault.Type(),
	}
	if mqtt != nil {
		deps.MQTT = mqtt
	}
	if u := a.backup(); u != nil {
		deps.Backup = u
	}
	srv := api.NewServer(cfg, deps, version, startTime, log.With().Str("component", "http").Logger())

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("scribe stopped")
	return nil
}

func runRecord(args []string) error {
	overrides, err := parseFlags("record", args, false)
	if err != nil {
		return err
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The TUI owns the terminal; logs go to LOG_FILE or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log := newLogger(cfg, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	a.startServices()

	notifier := tui.NewNotifier()
	a.addNotifier(pipeline.LogNotifier{Log: log})
	a.addNotifier(notifier)

	final, err := tui.Run(ctx, a.ctrl, notifier)
	if err != nil {
		return err
	}
	if final.Err() != nil {
		return final.Err()
	}
	if out := final.Outcome(); out != nil && out.Note != nil {
		fmt.Println(out.Note.NotePath)
	}
	return nil
}
