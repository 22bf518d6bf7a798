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

	"github.com/spf13/cobra"

	"traffic-logger/internal/gateway"
	"traffic-logger/internal/handler"
)

func (a *app) newServeCommand() *cobra.Command {
	var (
		addr  string
		useS3 bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingest handler over local HTTP",
		Long: `Starts a local HTTP endpoint that converts every POST into a gateway
envelope and invokes the ingest handler, so "trafficctl send" can target it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			objects, err := a.objectStore(ctx, useS3)
			if err != nil {
				return err
			}
			h := handler.New(objects, a.v.GetString(keyBucket))

			srv := &http.Server{
				Addr:              addr,
				Handler:           gateway.New(h),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (bucket %s)\n", addr, h.Bucket())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().BoolVar(&useS3, "s3", false, "write to the configured S3 bucket instead of memory")
	return cmd
}
