package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lookupbot/internal/api"
	"lookupbot/internal/api/handlers"
	ws "lookupbot/internal/api/websocket"
	"lookupbot/internal/backup"
	"lookupbot/internal/bot"
	"lookupbot/internal/config"
	"lookupbot/internal/knowledge"
	mcpbridge "lookupbot/internal/mcp"
	"lookupbot/internal/storage"
)

// app is the assembled process: knowledge base, optional snapshots and
// the HTTP surface.
type app struct {
	cfg     config.Config
	backend storage.Backend
	svc     *knowledge.Service
	backups *backup.Snapshotter
	hub     *ws.Hub
	router  http.Handler
	closers []io.Closer
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rt := &app{cfg: cfg, backend: backend, closers: []io.Closer{backend}}

	rt.svc = knowledge.New(backend)
	if err := rt.svc.Load(ctx); err != nil {
		log.Printf("load entries failed, starting empty: %v", err)
	}
	log.Printf("loaded %d entries from %s", rt.svc.Len(), storage.Describe(cfg))

	if strings.TrimSpace(cfg.Backup.Dir) != "" {
		var up backup.Uploader
		if cfg.Backup.GCS.Bucket != "" {
			gcs, err := backup.NewGCSUploader(ctx, cfg.Backup.GCS.Bucket, cfg.Backup.GCS.Prefix, cfg.Backup.GCS.CredentialsFile)
			if err != nil {
				rt.Close()
				return nil, err
			}
			up = gcs
			rt.closers = append(rt.closers, gcs)
		}
		rt.backups = backup.NewSnapshotter(rt.svc, cfg.Backup.Dir, cfg.Backup.Keep, up)
	}

	rt.hub = ws.NewHub(rt.svc)
	rt.router = api.NewRouter(handlers.New(rt.svc, rt.backups, cfg), rt.hub)
	return rt, nil
}

// handler returns the router with the MCP streamable endpoint mounted when
// enabled.
func (rt *app) handler() http.Handler {
	if !rt.cfg.MCP.Enabled || !rt.cfg.MCP.HTTP.Enabled {
		return rt.router
	}
	bridge := mcpbridge.New(mcpbridge.Options{Config: rt.cfg, Router: rt.router, Version: version})
	mcpHandler := bridge.HTTPHandler()
	mcpPath := rt.cfg.MCP.HTTP.Path
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == mcpPath || strings.HasPrefix(r.URL.Path, mcpPath+"/") {
			mcpHandler.ServeHTTP(w, r)
			return
		}
		rt.router.ServeHTTP(w, r)
	})
}

func (rt *app) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func newServeCommand(cfgPath *string) *cobra.Command {
	var noBot bool
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Run the bot, the HTTP API and scheduled backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigMaybe(*cfgPath)
			if err != nil {
				return err
			}
			logCloser, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.hub.Start(ctx)

			if cfg.Backup.Enabled && rt.backups != nil {
				scheduler := backup.NewScheduler(rt.backups)
				if err := scheduler.Register(cfg.Backup.Schedule); err != nil {
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			g, gctx := errgroup.WithContext(ctx)
			if cfg.Telegram.Enabled && !noBot {
				if strings.TrimSpace(cfg.Telegram.Token) == "" {
					return bot.ErrNoToken
				}
				g.Go(func() error { return runBot(gctx, cfg, rt.svc) })
			}

			httpServer := &http.Server{
				Addr:         config.Addr(cfg),
				Handler:      rt.handler(),
				ReadTimeout:  config.ReadTimeout(cfg),
				WriteTimeout: config.WriteTimeout(cfg),
			}
			g.Go(func() error {
				log.Printf("lookupbot listening on %s", config.Addr(cfg))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Printf("http shutdown: %v", err)
				}
				return nil
			})

			err = g.Wait()
			log.Printf("lookupbot stopped")
			return err
		},
	}
	cmd.Flags().BoolVar(&noBot, "no-bot", false, "Serve the API without connecting to Telegram")
	return cmd
}

// runBot connects to Telegram, retrying while the network is unavailable, and
// polls until ctx is done. The HTTP side keeps serving in the meantime.
func runBot(ctx context.Context, cfg config.Config, svc *knowledge.Service) error {
	api, err := bot.Dial(ctx, func() (bot.API, error) {
		tg, err := bot.Connect(cfg.Telegram.Token)
		if err != nil {
			return nil, err
		}
		log.Printf("authorized on telegram as @%s", tg.Self.UserName)
		return tg, nil
	}, config.RetryDelay(cfg))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return bot.New(api, svc, bot.Options{
		ParseMode:     cfg.Telegram.ParseMode,
		PollTimeout:   cfg.Telegram.PollTimeoutSeconds,
		RetryDelay:    config.RetryDelay(cfg),
		RemoveWebhook: cfg.Telegram.RemoveWebhook,
	}).Run(ctx)
}

func newMCPCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigMaybe(*cfgPath)
			if err != nil {
				return err
			}
			logCloser, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()

			rt, err := newApp(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			return mcpbridge.New(mcpbridge.Options{Config: cfg, Router: rt.router, Version: version}).ServeStdio()
		},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogging points the standard logger at logging.file when set.
func setupLogging(cfg config.Config) (io.Closer, error) {
	if cfg.Logging.Prefix != "" {
		log.SetPrefix(cfg.Logging.Prefix)
	}
	if cfg.Logging.File == "" {
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}
