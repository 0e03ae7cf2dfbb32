package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/treemana/quickdot/engine"
	"github.com/treemana/quickdot/log"
	"github.com/treemana/quickdot/udp"
	"github.com/treemana/quickdot/upstream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer DNS queries over UDP from the cache until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	ip := net.ParseIP(cfg.Server.Address)
	if ip == nil {
		return fmt.Errorf("invalid server address %s", cfg.Server.Address)
	}

	up, err := upstream.Fastest(ctx, cfg.Upstream.URLs, cfg.Upstream.TimeoutDuration())
	if err != nil {
		return err
	}

	reg := newMetricsReg()
	e, err := engine.New(cfg, up, reg)
	if err != nil {
		return err
	}
	e.Start()
	defer e.Stop()

	if len(rf.config) > 0 {
		go func() {
			if err := e.Watch(ctx, rf.config); err != nil {
				log.Sugar.Warnf("config watch error=[%+v]", err)
			}
		}()
	}

	server, err := udp.New(ip, cfg.Server.Port, e)
	if err != nil {
		return err
	}
	server.Start()
	defer server.Stop()

	if len(cfg.Server.Metrics) > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		httpServer := &http.Server{Addr: cfg.Server.Metrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Sugar.Errorf("metrics server error=[%+v]", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
		log.Sugar.Infof("metrics served on %s/metrics", cfg.Server.Metrics)
	}

	// quickdot is running until os exit
	<-ctx.Done()
	log.Sugar.Info("signal received, stopping")
	return nil
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}
