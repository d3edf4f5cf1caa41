// Copyright 2024-2026 Aiku AI

// Command whatsapp-gateway maintains one authenticated WhatsApp session,
// forwards inbound user messages to an external decision webhook and exposes
// a small HTTP control API (/status, /connect, /disconnect, /contacts,
// /send) to the hosting process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/whatsapp-gateway/pkg/gateway"
	"github.com/aiku/whatsapp-gateway/pkg/gateway/wameow"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("built", BuildTime).Msg("Starting whatsapp-gateway")

	creds, err := gateway.NewCredentialStore(cfg.SessionDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SessionDir).Msg("Failed to open credential store")
	}

	contacts := gateway.NewContactCache()
	presenter := cfg.NewPresenter(os.Stdout, log)
	dialer := wameow.NewDialer(cfg.SessionDir, log)

	sup := gateway.NewSupervisor(cfg, dialer, creds, contacts, presenter, log)
	sender := gateway.NewSender(sup, cfg, log)
	forwarder := gateway.NewForwarder(cfg.WebhookURL, cfg.WebhookTimeout, sender, log)
	sup.SetDispatcher(gateway.NewDispatcher(sup, contacts, creds, forwarder, log))

	api := gateway.NewAPIServer(cfg, sup, sender, contacts, log)
	api.Start()

	// A stored credential means a previous pairing exists; reconnect without
	// waiting for an operator. A fresh install parks in disconnected until
	// POST /connect.
	if creds.HasCredentials() {
		log.Info().Msg("Stored credentials found, connecting")
		sup.RequestConnect()
	} else {
		log.Info().Msg("No stored credentials, waiting for POST /connect")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Control API shutdown incomplete")
	}
	// Local stop only: credentials stay for the next boot.
	sup.RequestDisconnect(ctx, false)
}
