package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/api"
	"github.com/SpiceLabsHQ/tfapi/internal/cli"
)

const (
	// shutdownTimeout bounds how long in-flight requests may keep running
	// after a termination signal.
	shutdownTimeout = 30 * time.Second

	// shutdownSweepTimeout bounds the bucket sweep that runs on the way out.
	shutdownSweepTimeout = 5 * time.Minute
)

func newServeCommand(clients *awsClients) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve the terraform HTTP API. On SIGINT or SIGTERM the server stops " +
			"accepting requests, waits for in-flight ones, then deletes every " +
			"managed bucket before exiting.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := cli.FromCommand(cmd)
			if cliCtx == nil || cliCtx.Config == nil {
				return fmt.Errorf("configuration not loaded")
			}
			ctx := cmd.Context()
			cfg := cliCtx.Config
			log := cliCtx.Logger()

			c := clients
			if c == nil {
				var err error
				if c, err = loadAWSClients(ctx, cfg); err != nil {
					return err
				}
			}
			a, err := newApp(ctx, cfg, log, c)
			if err != nil {
				return err
			}
			defer a.Close()

			addr, _ := cmd.Flags().GetString("listen")
			if addr == "" {
				addr = ":" + strconv.Itoa(cfg.Port)
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			return runServe(ctx, a, ln)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (default \":<port>\")")
	return cmd
}

// runServe serves on ln until ctx is cancelled or a termination signal
// arrives, then shuts down and sweeps. It fails only when the server itself
// fails or the sweep could not discover buckets.
func runServe(ctx context.Context, a *app, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler: api.NewServer(api.Deps{
			Service:  a.service,
			Registry: a.registry,
			Sweeper:  a.sweeper,
			Metrics:  a.metrics,
			Log:      a.log,
			Info: api.Info{
				Name:          "tfapi",
				Version:       version,
				TerraformPath: a.cfg.TerraformPath,
				Region:        a.cfg.Region,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	a.log.Info("tfapi listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("terraform_path", a.cfg.TerraformPath),
		zap.String("region", a.cfg.Region),
		zap.String("registry", a.registry.Backend()),
	)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("graceful shutdown incomplete", zap.Error(err))
	}

	sweepCtx, cancelSweep := context.WithTimeout(context.Background(), shutdownSweepTimeout)
	defer cancelSweep()
	summary := a.sweeper.CleanupAll(sweepCtx)
	if !summary.Success {
		// Buckets are named per template; shutdown exits 0 regardless.
		a.log.Error("shutdown cleanup failed", zap.String("error", summary.Error))
		return nil
	}
	a.log.Info("shutdown cleanup finished",
		zap.Int("deleted", summary.Deleted), zap.Int("total", summary.Total))
	return nil
}
