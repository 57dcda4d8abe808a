package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the file watcher, summary pipeline and HTTP gateway",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Int("port", 0, "HTTP listen port (overrides port)")
	cmd.Flags().String("watch-dir", "", "directory to watch (overrides watcher.dir)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable the file watcher")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		bind := func(v *viper.Viper) error {
			if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			if err := v.BindPFlag("watcher.dir", cmd.Flags().Lookup("watch-dir")); err != nil {
				return err
			}
			if noWatch {
				v.Set("watcher.enabled", false)
			}
			return nil
		}
		cfg, err := root.load(os.Stderr, "", bind)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("version", cfg.Version).Msg("🔎 LogLens starting...")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Shutdown finished with errors")
		}
	}()

	// Workers keep running after the signal until Close drains them.
	if err := srv.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ChatTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("🔥 LogLens gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
