package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pior/setstream/internal/logger"
	"github.com/pior/setstream/store"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:6379", "Address to listen on")
		boltPath = flag.String("bolt", "", "Path of a bbolt database file. Data is kept in memory when empty")
	)
	flag.Parse()

	log := logger.NewLogger()

	var backend store.Backend
	if *boltPath == "" {
		backend = store.NewMemory()
		log.Info().Msg("using in-memory storage")
	} else {
		b, err := store.OpenBolt(*boltPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *boltPath).Msg("failed to open storage")
		}
		backend = b
		log.Info().Str("path", *boltPath).Msg("using bbolt storage")
	}

	st := store.New(backend, store.Options{Logger: log})
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := store.NewServer(st, log)
	log.Info().Str("addr", *addr).Msg("listening")

	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}
