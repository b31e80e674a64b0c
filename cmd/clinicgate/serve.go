package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/web"
	"github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type serveConfig struct {
	metricsAddr string
	templates   string
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the clinic gallery page",
		Long: `Starts the web front end. The page shows the sign in form to
visitors and the treatment case gallery to signed in members.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().String("addr", "", "listen address for the web page")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "", "listen address for /metrics, empty disables it")
	cmd.Flags().StringVar(&cfg.templates, "templates", "", "directory overriding the embedded templates")

	return cmd
}

func runServe(cmd *cobra.Command, flags *serveConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if flags.metricsAddr != "" {
		cfg.Server.MetricsAddr = flags.metricsAddr
	}
	if flags.templates != "" {
		cfg.Server.Templates = flags.templates
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notices := web.NewNoticeBoard(nil)

	a, err := newApp(ctx, cfg, auth.WithNotifier(notices))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.gate.Start(ctx); err != nil {
		a.logger.Warn("startup session lookup failed", "error", err)
	}

	opts := []web.ControllerOption{
		web.WithLogger(a.logs.GetLogger("web")),
		web.WithNotices(notices),
		web.WithDebug(cfg.Debug),
	}
	if a.local != nil {
		opts = append(opts, web.WithConfirmer(a.local), web.WithResetter(a.local))
	}

	var serverOpts []web.ServerOption
	if cfg.Server.Templates != "" {
		serverOpts = append(serverOpts, web.WithTemplates(os.DirFS(cfg.Server.Templates)))
	}

	srv, err := web.NewServer(web.NewController(a.gate, opts...), serverOpts...)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)

	var metrics *http.Server
	if cfg.Server.MetricsAddr != "" {
		metrics, err = newMetricsServer(cfg.Server.MetricsAddr)
		if err != nil {
			return err
		}
		go func() {
			a.logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	go func() {
		if err := srv.Serve(cfg.Server.Addr); err != nil {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		a.logger.Error("server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metrics != nil {
		_ = metrics.Shutdown(shutdownCtx)
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func newMetricsServer(addr string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := auth.RegisterMetrics(reg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "register metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
