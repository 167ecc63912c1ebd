package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fenrir/internal/engine"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	eng := engine.New()
	if err := eng.RegisterMarket(engine.MarketConfig{
		Name:               "BASE-QUOTE",
		BaseLotSize:        100,
		QuoteLotSize:       10,
		MakerFee:           "-0.0002",
		TakerFee:           "0.0004",
		FixedCapacity:      1024,
		PeggedCapacity:     256,
		EventQueueCapacity: 512,
	}, 0); err != nil {
		log.Fatal().Err(err).Msg("failed registering market")
	}

	srv := NewServer("0.0.0.0", 9001, eng)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}
