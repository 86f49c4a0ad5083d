package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"rxvc/internal/credential/models"
	"rxvc/internal/platform/httpserver"
	"rxvc/internal/platform/logger"
	"rxvc/internal/signer/local"
	"rxvc/internal/signer/remote"
	"rxvc/pkg/platform/middleware/request"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dev KMS and its identity documents over HTTP",
		Long: "Serves the key, sign and derive API the remote signer client speaks, plus " +
			"universal resolver lookups. Unknown controllers get a BLS and a fallback key. " +
			"Keys are written back to the key file on shutdown.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			level, _ := cmd.Flags().GetString("log-level")
			log := logger.New(level)

			kms, path, err := openKMS(cmd, local.WithAutoProvision(models.KeyTypeBls12381G2, models.KeyTypeJWK))
			if err != nil {
				return err
			}

			r := chi.NewRouter()
			r.Use(request.RequestID)
			r.Use(request.Logger(log))
			remote.NewHandler(kms, log).Register(r)
			srv := httpserver.New(addr, r)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() {
				log.Info("dev kms listening", "addr", addr, "keys", path)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return saveKMS(kms, path)
		},
	}
	cmd.Flags().String("addr", ":8090", "listen address")
	cmd.Flags().String("log-level", "info", "log level")
	return cmd
}
