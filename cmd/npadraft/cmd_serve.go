package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"npa/draftbuilder/internal/agent"
	"npa/draftbuilder/internal/app"
	"npa/draftbuilder/internal/config"
	"npa/draftbuilder/internal/export"
	"npa/draftbuilder/internal/gitrepo"
	"npa/draftbuilder/internal/logx"
	"npa/draftbuilder/internal/search"
	"npa/draftbuilder/internal/session"
	"npa/draftbuilder/internal/store"
	"npa/draftbuilder/internal/templates"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			logx.Init(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides API_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logx.Info().Strs("versions", applied).Msg("migrations applied")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repos dir: %w", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, pgfts)
		go searchService.ReindexAll(context.WithoutCancel(ctx), pgfts)
	} else {
		searchService = search.NewService(nil, pgfts)
	}

	options := []app.Option{
		app.WithTemplates(templates.NewDir(cfg.TemplatesDir)),
		app.WithSearch(searchService),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.TranscriptTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		options = append(options, app.WithTranscripts(redisStore))
	} else {
		logx.Warn().Msg("REDIS_URL not set; agent transcripts are kept in memory only")
	}

	if strings.TrimSpace(cfg.Minio.Endpoint) != "" {
		objects, err := export.NewMinioStore(ctx, cfg.Minio)
		if err != nil {
			return fmt.Errorf("object storage failed: %w", err)
		}
		options = append(options, app.WithExportObjects(objects))
	}

	if strings.TrimSpace(cfg.Gemini.APIKey) != "" {
		replier, err := agent.NewGeminiReplier(ctx, cfg.Gemini)
		if err != nil {
			return fmt.Errorf("gemini replier failed: %w", err)
		}
		options = append(options, app.WithReplier(replier))
		logx.Info().Str("model", cfg.Gemini.Model).Msg("agent replies via gemini")
	} else {
		logx.Info().Msg("GEMINI_API_KEY not set; agent replies use the draft digest")
	}

	service := app.New(cfg, dataStore, gitService, options...)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", cfg.Addr).Str("env", cfg.Env.String()).Msg("npa draft builder listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("shutdown error")
	}
	service.Shutdown(shutdownCtx)
	logx.Info().Msg("npa draft builder stopped")
	return nil
}
