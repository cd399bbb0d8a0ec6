package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frostsign/app"
	"frostsign/logs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var metricsAddr string

var signerCmd = &cobra.Command{
	Use:   "signer",
	Short: "Serve the signer API over HTTP/3",
	Long: `Run this node as a FROST signer. The node answers DKG and signing
requests from an aggregator and periodically drops expired signing sessions.

Examples:
  frostd signer --config signer1.json
  FROSTD_SIGNER_IDENTITYKEY=<hex> frostd signer --config signer1.json --storage badger --data ./data`,
	RunE: runSigner,
}

func init() {
	signerCmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address (disabled when empty)")
}

func runSigner(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, v)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	container, err := app.NewContainer(cfg, reg)
	if err != nil {
		return err
	}
	defer container.Close()

	a := app.NewApp(container)
	if err := a.Start(); err != nil {
		return err
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Warn("metrics server: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logs.Info("Received signal %s, shutting down", sig)
	case <-a.Done():
	}
	return a.Stop()
}
