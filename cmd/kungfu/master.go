package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/master"
	"github.com/yongdono/kungfu/internal/obs"
	"github.com/yongdono/kungfu/internal/ops"
	"github.com/yongdono/kungfu/internal/profile"
	"github.com/yongdono/kungfu/internal/session"
	"github.com/yongdono/kungfu/pkg/uds"
)

func newMasterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Run the master until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				loaded.MetricsAddr = addr
			}
			if server, _ := cmd.Flags().GetString("pyroscope"); server != "" {
				loaded.Pyroscope.Server = server
			}
			return runMaster(loaded)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Serve /metrics on this address")
	cmd.Flags().String("pyroscope", "", "Pyroscope server address, empty disables profiling")
	return cmd
}

func runMaster(loaded ops.Loaded) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("master shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	if loaded.Pyroscope.Server != "" {
		profiler, err := startProfiler(loaded.Pyroscope)
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	store, err := profile.Open(loaded.Profile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, err := session.Open(loaded.SessionPath)
	if err != nil {
		return err
	}
	defer func() { _ = sessions.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	m, err := master.New(master.Config{
		Locator:       location.NewLocator(loaded.Root),
		Journal:       loaded.Journal,
		Bus:           loaded.Bus,
		Calendar:      loaded.Master.Calendar,
		CheckInterval: loaded.Master.CheckInterval,
		Profile:       store,
		Sessions:      sessions,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}
	var served chan struct{}
	defer func() {
		// every notice handler has returned before the queue closes
		cancel()
		if served != nil {
			<-served
		}
		if err := m.Close(); err != nil {
			logs.Errorf("close master, err: %+v", err)
		}
	}()

	srv, err := uds.NewServer(loaded.Master.SocketPath)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()
	served = make(chan struct{})
	go func() {
		defer close(served)
		err := srv.Serve(ctx, func(n uds.Notice) {
			if err := m.Notify(n); err != nil {
				logs.Warnf("drop notice of %s/%s, err: %+v", n.Group, n.Name, err)
			}
		})
		if err != nil {
			logs.Errorf("notice server stopped, err: %+v", err)
		}
	}()
	logs.Infof("master listening on %s", srv.Path())

	if loaded.MetricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              loaded.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logs.Errorf("metrics server stopped, err: %+v", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		logs.Infof("metrics on %s/metrics", loaded.MetricsAddr)
	}

	return m.Run(ctx)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.Server,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...any)  { logs.Debugf(format, args...) }
func (profilerLogger) Debugf(format string, args ...any) { logs.Debugf(format, args...) }
func (profilerLogger) Errorf(format string, args ...any) { logs.Errorf(format, args...) }
