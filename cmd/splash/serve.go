package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/httpapi"
	"github.com/MimeLyc/dynamic-splash/internal/service"
	"github.com/MimeLyc/dynamic-splash/pkg/log"
)

const shutdownTimeout = 5 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// components are the long-running parts of serve.
type components struct {
	mount     func(ctx context.Context)
	scheduler scheduler
	cron      cronEngine
	http      httpServer
	// watch is set when the config source is a local file.
	watch func(ctx context.Context) error
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Mount, refresh on a schedule and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withApp(func(a *app) error {
				cronEngine := newCron()
				runner, err := a.newRunner(cronEngine)
				if err != nil {
					return err
				}

				settings, err := config.NewRuntimeSettingsStore(a.cfg.SettingsPath(), a.cfg.RuntimeSettings())
				if err != nil {
					return err
				}
				server := httpapi.NewServer(a.registry,
					httpapi.WithRunner(runner),
					httpapi.WithRuntimeSettingsStore(settings),
					httpapi.WithRuntimeSettingsApplier(runner.ApplyRuntimeSettings),
					httpapi.WithFeedDir(a.cfg.HTTP.FeedDir),
				)

				c := components{
					mount: func(ctx context.Context) {
						_, _ = runner.Trigger(ctx, service.SourceMount)
					},
					scheduler: runner,
					cron:      cronEngine,
					http:      server,
				}
				if path := a.cfg.Source.ConfigFile; path != "" && !noWatch {
					c.watch = func(ctx context.Context) error {
						return runner.Watch(ctx, path)
					}
				}
				return runWithComponents(cmd.Context(), a.cfg, c)
			})
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not refresh when the local config file changes")
	return cmd
}

func runWithComponents(ctx context.Context, cfg *config.Config, c components) error {
	if c.mount != nil {
		go c.mount(ctx)
	}

	if err := c.scheduler.Schedule(ctx); err != nil {
		return err
	}
	c.cron.Start()
	defer func() {
		<-c.cron.Stop().Done()
	}()

	if c.watch != nil {
		go func() {
			if err := c.watch(ctx); err != nil {
				log.Error("Config file watch stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		errCh <- c.http.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
