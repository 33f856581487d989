package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazharichir/blackjack/config"
	"github.com/lazharichir/blackjack/server"
	"github.com/lazharichir/blackjack/store"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()

	var backend store.Backend
	redisBackend, err := store.DialRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.RedisURL).Msg("redis unavailable, using in-memory store")
		backend = store.NewMemory()
	} else {
		backend = redisBackend
	}

	s := server.NewServer(cfg, backend, log)
	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
