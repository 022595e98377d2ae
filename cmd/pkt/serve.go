package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/reactoryard/internal/api"
	"github.com/zulandar/reactoryard/internal/importer"
	"github.com/zulandar/reactoryard/internal/monitor"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noMonitor  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the overrun monitor",
		Long:  "Serves the transaction API, the event stream and Prometheus metrics, and runs the scheduled overrun scan.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noMonitor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tracker config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "disable the overrun monitor")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noMonitor bool) error {
	rt, err := newRuntime(configPath, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if port == 0 {
		port = rt.cfg.Server.Port
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := rt.engine.SyncActiveGauge(ctx); err != nil {
		return err
	}

	if !noMonitor {
		mon, err := monitor.New(rt.store, monitor.Opts{
			Schedule:      rt.cfg.Monitor.Schedule,
			OverrunFactor: rt.cfg.Monitor.OverrunFactor,
			Events:        rt.events,
			Metrics:       rt.metrics,
			Logger:        rt.logger,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Overrun monitor scheduled %q, next scan %s\n",
			rt.cfg.Monitor.Schedule, mon.Next(time.Now()).Format(timeLayout))
		go func() {
			if err := mon.Run(ctx); err != nil {
				log.Printf("serve: monitor: %v", err)
			}
		}()
	}

	return api.Start(ctx, api.StartOpts{
		Engine: rt.engine,
		Importer: importer.New(rt.engine, importer.Opts{
			MaxAttempts: rt.cfg.Database.MaxAttempts,
			Backoff:     importer.DefaultBackoff,
			Logger:      rt.logger,
			Metrics:     rt.metrics,
		}),
		Metrics: rt.metrics,
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
