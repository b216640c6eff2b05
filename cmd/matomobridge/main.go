// Package main wires together the bridge binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/annotate"
	"github.com/JakeFAU/matomo-bridge/internal/api"
	"github.com/JakeFAU/matomo-bridge/internal/bridge"
	"github.com/JakeFAU/matomo-bridge/internal/clock/system"
	"github.com/JakeFAU/matomo-bridge/internal/config"
	"github.com/JakeFAU/matomo-bridge/internal/gate"
	"github.com/JakeFAU/matomo-bridge/internal/id/uuid"
	"github.com/JakeFAU/matomo-bridge/internal/identity"
	"github.com/JakeFAU/matomo-bridge/internal/logging"
	"github.com/JakeFAU/matomo-bridge/internal/matomo"
	"github.com/JakeFAU/matomo-bridge/internal/metrics"
	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
	"github.com/JakeFAU/matomo-bridge/internal/policy/ratelimit"
	"github.com/JakeFAU/matomo-bridge/internal/settings"
	"github.com/JakeFAU/matomo-bridge/internal/storage/memory"
	"github.com/JakeFAU/matomo-bridge/internal/storage/postgres"
	"github.com/JakeFAU/matomo-bridge/internal/telemetry"
	"github.com/JakeFAU/matomo-bridge/internal/tracking"
	"github.com/JakeFAU/matomo-bridge/internal/views"
)

const serviceName = "matomo-bridge"

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := flag.Arg(0)
	switch command {
	case "", "serve":
		err = serve(ctx, cfg, logger)
	case "check":
		err = check(ctx, cfg, logger, os.Stdout)
	case "annotate":
		err = annotateStdin(flag.Args()[1:], os.Stdin, os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // deferred sync already run above
	}
}

// stores groups the persistence backends picked by db.dsn.
type stores struct {
	options     options.Store
	memberships tracking.MembershipSource
	views       views.Store
	pinger      api.Pinger
	close       func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory stores")
		return stores{
			options:     memory.NewOptionsStore(),
			memberships: memory.NewMembershipStore(cfg.Memberships),
			views:       memory.NewViewStore(),
			close:       func() {},
		}, nil
	}
	db, err := postgres.Open(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns), //nolint:gosec // validated as small positive
	})
	if err != nil {
		return stores{}, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("using postgres stores")
	return stores{
		options:     db.Options(),
		memberships: db.Memberships(),
		views:       db.Views(),
		pinger:      db,
		close:       db.Close,
	}, nil
}

func newIdentity(cfg config.IdentityConfig, secure bool) (identity.Resolver, error) {
	switch cfg.Mode {
	case config.IdentitySession:
		resolver, err := identity.NewSessionResolver(cfg.SessionName, cfg.SessionKey, secure)
		if err != nil {
			return nil, fmt.Errorf("session identity: %w", err)
		}
		return resolver, nil
	case config.IdentityHeader:
		return identity.HeaderResolver{
			UserHeader:  cfg.UserHeader,
			EmailHeader: cfg.EmailHeader,
			LoginHeader: cfg.LoginHeader,
		}, nil
	default:
		return identity.Anonymous{}, nil
	}
}

func teamFunc(cfg config.Config) tracking.TeamFunc {
	if len(cfg.Teams) == 0 {
		return nil
	}
	teams := make([]tracking.Team, 0, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams = append(teams, tracking.Team{PlanID: t.PlanID, Name: t.Name})
	}
	return tracking.PlanTeams(teams)
}

// buildServer wires the stores into the HTTP server.
func buildServer(cfg config.Config, st stores, logger *zap.Logger) (*api.Server, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	ids := uuid.New()
	resolver := options.NewResolver(st.options, cfg.Overrides, logging.Component(logger, "options"))

	pages, err := page.NewClassifier(cfg.Pages.Rules, cfg.Site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("page rules: %w", err)
	}
	annotator, err := annotate.NewAnnotator(cfg.ContentBlocks)
	if err != nil {
		return nil, fmt.Errorf("content blocks: %w", err)
	}
	ident, err := newIdentity(cfg.Identity, cfg.Site.Secure())
	if err != nil {
		return nil, err
	}
	refresher := views.NewRefresher(st.views, system.New(), logging.Component(logger, "views"))

	b := bridge.New(bridge.Config{
		Resolver:  resolver,
		Pages:     pages,
		Identity:  ident,
		Annotator: annotator,
		Views:     refresher,
		Tracking: tracking.Deps{
			HTTPClient: httpClient,
			Timeout:    cfg.MatomoTimeout(),
			Gate: gate.Classifier{
				AjaxPath:    cfg.Gate.AjaxPath,
				JSONPrefix:  cfg.Gate.JSONPrefix,
				AdminPrefix: cfg.Gate.AdminPrefix,
			},
			Memberships:   st.memberships,
			Team:          teamFunc(cfg),
			TeamDimension: cfg.Dimensions.Team,
			VisitorIDs:    ids,
			Limiter: ratelimit.New(ratelimit.Config{
				RPS:   cfg.Matomo.RateLimitRPS,
				Burst: cfg.Matomo.RateLimitBurst,
			}),
			Logger: logging.Component(logger, "tracking"),
		},
		Logger: logging.Component(logger, "bridge"),
	})

	deps := api.Deps{
		Bridge:   b,
		Settings: settings.NewHandler(resolver, httpClient, cfg.MatomoTimeout(), logging.Component(logger, "settings")),
		Views:    refresher,
		Pinger:   st.pinger,
		IDs:      ids,
	}
	if sessions, ok := ident.(*identity.SessionResolver); ok {
		deps.Sessions = sessions
	}
	if cfg.Upstream.URL != "" {
		proxy, err := api.NewProxy(cfg.Upstream.URL, logging.Component(logger, "proxy"))
		if err != nil {
			return nil, err
		}
		deps.Upstream = proxy
	} else {
		logger.Warn("no upstream configured; unknown paths return 404")
	}
	return api.NewServer(deps, cfg, logging.Component(logger, "api")), nil
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()
	traceOpts, err := telemetry.ProviderOptions(cfg.Tracing.Exporter, cfg.Tracing.SampleRatio, logging.Component(logger, "tracing"))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	tp, err := telemetry.InitTracerProvider(ctx, serviceName, traceOpts...)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	apiServer, err := buildServer(cfg, st, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           otelhttp.NewHandler(apiServer.Handler(), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// errCheckFailed reports a connectivity check with at least one error notice.
var errCheckFailed = errors.New("connectivity check failed")

func check(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	resolver := options.NewResolver(st.options, cfg.Overrides, logging.Component(logger, "options"))
	opts := resolver.Resolve(ctx)
	notices := matomo.CheckConnection(ctx, &http.Client{}, opts, cfg.MatomoTimeout())
	return printNotices(out, opts, notices)
}

func printNotices(out io.Writer, opts options.Options, notices []matomo.Notice) error {
	if len(notices) == 0 {
		fmt.Fprintln(out, "collector url and token are not set; nothing to check")
		return nil
	}
	failed := false
	for _, n := range notices {
		fmt.Fprintf(out, "[%s] %s: %s\n", n.Type, n.Label, n.Message)
		failed = failed || n.Type == matomo.NoticeError
	}
	if failed {
		return fmt.Errorf("%w for %s", errCheckFailed, opts.URL)
	}
	return nil
}

func annotateStdin(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	name := fs.String("name", "", "Content block name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse annotate flags: %w", err)
	}
	if *name == "" {
		return errors.New("annotate: -name is required")
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read fragment: %w", err)
	}
	if _, err := io.WriteString(out, annotate.Fragment(string(content), *name)); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}
