// Command diskserver runs the simulated block-device service: a fixed
// cylinder/sector geometry backed by a memory-mapped file, exposed over
// the disk wire protocol.
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
	"github.com/rclone/csfs/disk"
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
		Use:           "disk_server <port> <cyl> <sec> <track_us> <backing_file>",
		Short:         "Serve a simulated block device over TCP",
		Args:          cobra.ExactArgs(5),
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
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return 2, fmt.Errorf("disk_server: invalid port %q: %w", args[0], err)
	}
	cyl, err := strconv.Atoi(args[1])
	if err != nil {
		return 2, fmt.Errorf("disk_server: invalid cylinder count %q: %w", args[1], err)
	}
	sec, err := strconv.Atoi(args[2])
	if err != nil {
		return 2, fmt.Errorf("disk_server: invalid sector count %q: %w", args[2], err)
	}
	trackUS, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return 2, fmt.Errorf("disk_server: invalid track_us %q: %w", args[3], err)
	}
	backingFile := args[4]

	log := newLogger(logLevel)

	reg := prometheus.NewRegistry()
	metrics := disk.NewMetrics(reg)

	d, err := disk.New(disk.Options{
		Geometry: disk.Geometry{Cylinders: cyl, Sectors: sec},
		Path:     backingFile,
		TrackUS:  trackUS,
		Metrics:  metrics,
		Log:      log.WithField("component", "disk"),
	})
	if err != nil {
		return 1, fmt.Errorf("disk_server: open disk: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		d.Close()
		return 1, fmt.Errorf("disk_server: listen: %w", err)
	}

	srv := disk.NewServer(d, log.WithField("component", "disk"))

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
				return fmt.Errorf("disk_server: metrics server: %w", err)
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

	serveErr := g.Wait()
	if cerr := d.Close(); cerr != nil {
		log.WithError(cerr).Error("disk_server: close disk")
	}
	if serveErr != nil {
		return 1, fmt.Errorf("disk_server: %w", serveErr)
	}
	log.Info("disk_server: clean shutdown")
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
