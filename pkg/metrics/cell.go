// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package metrics

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/cilium/hive/cell"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
)

// Cell exposes the metrics registry over HTTP when an address is configured.
var Cell = cell.Module(
	"metrics",
	"Metrics",

	cell.Config(defaultConfig),
	cell.Invoke(registerServer),
)

// Config configures the prometheus endpoint.
type Config struct {
	// PrometheusServeAddr is the address the /metrics endpoint listens on.
	// Empty disables the endpoint.
	PrometheusServeAddr string
}

var defaultConfig = Config{
	PrometheusServeAddr: "",
}

func (def Config) Flags(flags *pflag.FlagSet) {
	flags.String("prometheus-serve-addr", def.PrometheusServeAddr,
		"IP:Port on which to serve prometheus metrics (pass \":Port\" to bind on all interfaces, \"\" is off)")
}

func registerServer(lc cell.Lifecycle, logger *slog.Logger, cfg Config) {
	if cfg.PrometheusServeAddr == "" {
		return
	}

	mux := http.NewServeMux()
	// The Handler function provides a default handler to expose metrics
	// via an HTTP server. "/metrics" is the usual endpoint for that.
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:    cfg.PrometheusServeAddr,
		Handler: mux,
	}

	lc.Append(cell.Hook{
		OnStart: func(cell.HookContext) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("Serving prometheus metrics", logfields.Address, ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("Metrics server stopped", logfields.Error, err)
				}
			}()
			return nil
		},
		OnStop: func(ctx cell.HookContext) error {
			return srv.Shutdown(ctx)
		},
	})
}
