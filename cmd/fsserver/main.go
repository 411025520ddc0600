// Command fsserver runs the flat filesystem service layered on top of a
// running disk service, exposed over the filesystem wire protocol.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rclone/csfs/csfs"
	"github.com/rclone/csfs/diskclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	var logLevel string
	var metricsAddr string

	root := &cobra.Command{
		Use:           "fs_server <listen_port> <disk_host> <disk_port>",
		Short:         "Serve a flat filesystem over TCP, backed by a disk service",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVar(&logLevel, "log-level", "info", "logrus level: debug, info, warn, error")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		code, err := serve(args, logLevel, metricsAddr)
		exitCode = code
		return err
	}

	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 2
		}
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCode
}

func serve(args []string, logLevel, metricsAddr string) (int, error) {
	listenPort, err := strconv.Atoi(args[0])
	if err != nil {
		return 2, fmt.Errorf("fs_server: invalid listen_port %q: %w", args[0], err)
	}
	diskHost := args[1]
	diskPort, err := strconv.Atoi(args[2])
	if err != nil {
		return 2, fmt.Errorf("fs_server: invalid disk_port %q: %w", args[2], err)
	}

	log := newLogger(logLevel)

	dev, err := diskclient.Dial(fmt.Sprintf("%s:%d", diskHost, diskPort))
	if err != nil {
		return 1, fmt.Errorf("fs_server: dial disk service: %w", err)
	}
	defer dev.Close()

	reg := prometheus.NewRegistry()
	metrics := csfs.NewMetrics(reg)
	svc := csfs.NewService(dev, metrics, log.WithField("component", "fs"))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		return 1, fmt.Errorf("fs_server: listen: %w", err)
	}

	srv := csfs.NewServer(svc, log.WithField("component", "fs"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("fs_server: metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	go func() {
		<-gctx.Done()
		if metricsSrv != nil {
			metricsSrv.Close()
		}
	}()

	if err := g.Wait(); err != nil {
		return 1, fmt.Errorf("fs_server: %w", err)
	}
	log.Info("fs_server: clean shutdown")
	return 0, nil
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return logrus.NewEntry(log)
}
