package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adflow/internal/gateway/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			errCh := make(chan error, 1)
			go func() { errCh <- a.Start() }()

			select {
			case err = <-errCh:
				if err != nil {
					opts.log.Error("server error", zap.Error(err))
				}
			case <-ctx.Done():
				opts.log.Info("shutting down server")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			if serr := a.Shutdown(shutdownCtx); serr != nil {
				opts.log.Error("server forced to shutdown", zap.Error(serr))
				if err == nil {
					err = serr
				}
			}
			opts.log.Info("server exiting")
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 10*time.Second, "time allowed for in-flight runs on shutdown")
	return cmd
}
