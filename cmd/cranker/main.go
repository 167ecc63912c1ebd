// Command cranker is the literal crank: it periodically drains every
// market's event queue so deferred maker fills and outs become visible in
// each owner's Position, on its own tomb-supervised loop separate from the
// gateway that accepts new orders.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/engine"
)

const (
	crankInterval  = 200 * time.Millisecond
	crankBatchSize = 64
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

	// A standalone cranker process would share the gateway's Engine over
	// some RPC boundary; this binary demonstrates the crank loop against
	// a locally registered market so it can run without that wiring.
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

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return runCrankLoop(ctx, t, eng)
	})

	log.Info().Msg("cranker running")
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("cranker exited with error")
	}
}

func runCrankLoop(ctx context.Context, t *tomb.Tomb, eng *engine.Engine) error {
	ticker := time.NewTicker(crankInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, name := range eng.MarketNames() {
				crankMarket(eng, name)
			}
		}
	}
}

func crankMarket(eng *engine.Engine, marketName string) {
	applied, err := eng.ConsumeEvents(marketName, crankBatchSize, nil)
	if err != nil {
		log.Error().Err(err).Str("market", marketName).Msg("consume_events failed")
		return
	}
	if applied > 0 {
		log.Debug().Str("market", marketName).Int("applied", applied).Msg("crank applied events")
	}
}
