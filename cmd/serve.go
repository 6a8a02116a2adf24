package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/taskforge/taskforge/internal/git"
	"github.com/taskforge/taskforge/internal/githost"
	"github.com/taskforge/taskforge/internal/notify"
	"github.com/taskforge/taskforge/internal/round"
	"github.com/taskforge/taskforge/internal/server"
	"github.com/taskforge/taskforge/llm"
	"github.com/taskforge/taskforge/store"
)

// serveCmd starts the HTTP intake server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task intake server",
	Long: `Starts the HTTP server that accepts task submissions and processes
each round: repository creation, seeding, LLM generation, Pages
publication, and the evaluation callback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := GetConfig()

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	taskStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer func() { _ = taskStore.Close() }()

	host, err := githost.NewClient(cfg.GitHub)
	if err != nil {
		return err
	}
	provider, err := llm.NewOpenAIProvider(cfg.LLM, logger)
	if err != nil {
		return err
	}

	controller := round.NewController(
		taskStore,
		host,
		git.NewClient(),
		provider,
		notify.NewNotifier(cfg.Notify, logger),
		afero.NewOsFs(),
		round.NewClock(),
		cfg,
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(taskStore, controller, cfg.Server, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
