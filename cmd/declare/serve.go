package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jason-s-yu/declare/internal/auth"
	"github.com/jason-s-yu/declare/internal/config"
	"github.com/jason-s-yu/declare/internal/history"
	"github.com/jason-s-yu/declare/internal/httpapi"
	"github.com/jason-s-yu/declare/internal/registry"
	"github.com/jason-s-yu/declare/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	httpTimeout     = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	cfg.AddServeFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	rules, err := cfg.Rules()
	if err != nil {
		return err
	}
	regCfg := registry.Config{
		Rules:       rules,
		Log:         log,
		GracePeriod: cfg.GracePeriod,
		Seed:        cfg.Seed,
		History:     history.LogPublisher{Log: log},
	}

	if cfg.RedisURL != "" {
		rdb, err := history.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		regCfg.History = history.NewRedisPublisher(rdb)
		log.Info("action history publishing to redis")
	}

	var results httpapi.ResultLister
	if cfg.DatabaseURL != "" {
		pool, st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		regCfg.Results = st
		results = st
		log.Info("results archive connected")
	}

	if cfg.JWTSecret != "" {
		signer, err := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		regCfg.Tokens = signer
	} else {
		log.Warn("no --jwt-secret set, players cannot reclaim seats after a disconnect")
	}

	reg := registry.New(ctx, regCfg)
	api := &httpapi.Server{
		Rooms:     reg,
		Results:   results,
		Log:       log,
		Version:   releaseVersion,
		PublicURL: cfg.PublicURL,
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: httpTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Infof("declare v%s listening", releaseVersion)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Rooms close first so their sockets see a going-away close frame.
		if err := reg.Close(sctx); err != nil {
			log.WithError(err).Warn("closing rooms")
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
