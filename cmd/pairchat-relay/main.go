package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/pairchat/pairchat/internal/config"
	"github.com/pairchat/pairchat/internal/logger"
	"github.com/pairchat/pairchat/internal/relay"
)

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "", "path to config file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Logging.Level)

	if *listen != "" {
		cfg.Relay.Listen = *listen
	}
	secret := cfg.Relay.Secret
	if secret == "" {
		// Tokens from a previous run die with the process; fine for a
		// development relay.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Log.Warn("no relay secret configured, generated an ephemeral one")
	}

	r := relay.New(secret)
	logger.Log.Info("relay listening", "addr", cfg.Relay.Listen)
	if err := http.ListenAndServe(cfg.Relay.Listen, r.Handler()); err != nil {
		log.Fatalf("Relay stopped: %v", err)
	}
}
