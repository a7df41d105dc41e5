package cmd

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	ga "github.com/gridpicks/gridauth"
	authgrpc "github.com/gridpicks/gridauth/grpc"
	"github.com/gridpicks/gridauth/metrics"
	"github.com/gridpicks/gridauth/oauth2"
	"github.com/gridpicks/gridauth/saml"
	gormstore "github.com/gridpicks/gridauth/stores/gorm"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth endpoints",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	f := serveCmd.Flags()
	f.String("addr", ":8080", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC listen address (disabled when empty)")
	f.String("base-url", "", "public base URL, used for OAuth callbacks (OAUTH2_BASE_URL)")
	f.Duration("session-ttl", 0, "session lifetime (GRIDAUTH_SESSION_TTL, default 24h)")
	f.Int("bcrypt-cost", 0, "bcrypt cost (GRIDAUTH_BCRYPT_COST, default 12)")
	f.Int("hash-workers", 0, "concurrent password hashes (GRIDAUTH_HASH_WORKERS, default GOMAXPROCS)")
	f.StringSlice("cookie-domain", nil, "domains to set the session cookie on")
	f.Bool("secure-cookies", false, "mark cookies Secure (enable behind HTTPS)")
	f.Bool("allow-unverified-linking", false, "link federated sign-ins to existing accounts even when the provider has not verified the email")
	f.Bool("migrate", false, "run migrations before serving (postgres and sqlite stores)")
	f.String("saml-metadata-url", "", "IdP metadata URL; enables SAML sign-in at /auth/saml/ (SAML_METADATA_URL)")
	f.Bool("saml-trust-email", false, "treat emails asserted by the IdP as verified")
	return serveCmd
}

func configFromFlags(cmd *cobra.Command) *ga.Config {
	f := cmd.Flags()
	cfg := &ga.Config{}
	cfg.BaseURL, _ = f.GetString("base-url")
	cfg.SessionTTL, _ = f.GetDuration("session-ttl")
	cfg.BcryptCost, _ = f.GetInt("bcrypt-cost")
	cfg.HashWorkers, _ = f.GetInt("hash-workers")
	cfg.CookieDomains, _ = f.GetStringSlice("cookie-domain")
	cfg.SecureCookies, _ = f.GetBool("secure-cookies")
	cfg.AllowUnverifiedLinking, _ = f.GetBool("allow-unverified-linking")
	return cfg.EnsureDefaults()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, storeOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer store.Close()
	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate && store.DB != nil {
		if err := gormstore.AutoMigrate(store.DB); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}

	cfg := configFromFlags(cmd)
	auth, err := cfg.NewGridAuth(store.Accounts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auth.Observer = metrics.NewCollector(reg)

	webAuth := &ga.WebAuth{
		Auth:          auth,
		CookieDomains: cfg.CookieDomains,
		SecureCookies: cfg.SecureCookies,
	}
	webAuth.EnsureDefaults()
	if err := addProviders(ctx, cmd, cfg, webAuth); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/dashboard", webAuth.Middleware.EnsureSession(http.HandlerFunc(handleDashboard)))
	mux.Handle("/", webAuth.Handler())

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	grpcAddr, _ := cmd.Flags().GetString("grpc-addr")
	var grpcServer *grpclib.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", grpcAddr, err)
		}
		grpcServer = newGRPCServer(auth)
		g.Go(func() error {
			slog.Info("grpc server listening", "addr", grpcAddr)
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func addProviders(ctx context.Context, cmd *cobra.Command, cfg *ga.Config, webAuth *ga.WebAuth) error {
	if cfg.GithubEnabled() {
		webAuth.AddProvider("github", oauth2.NewGithubOAuth2(
			cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL,
			webAuth.Flow, webAuth.CompleteFederatedLogin))
	}
	if cfg.GoogleEnabled() {
		webAuth.AddProvider("google", oauth2.NewGoogleOAuth2(
			cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL,
			webAuth.Flow, webAuth.CompleteFederatedLogin))
	}

	metadataURL, _ := cmd.Flags().GetString("saml-metadata-url")
	trustEmail, _ := cmd.Flags().GetBool("saml-trust-email")
	opts := saml.Options{
		Provider:    "saml",
		MetadataURL: metadataURL,
		TrustEmail:  trustEmail,
	}
	if cfg.BaseURL != "" {
		opts.RootURL = cfg.BaseURL + "/auth/saml/"
	}
	if !opts.Enabled() {
		return nil
	}
	provider, err := saml.New(ctx, opts, webAuth.Flow, webAuth.CompleteFederatedLogin)
	if err != nil {
		return fmt.Errorf("setting up saml: %w", err)
	}
	webAuth.AddProvider("saml", provider)
	return nil
}

func newGRPCServer(auth *ga.GridAuth) *grpclib.Server {
	config := authgrpc.NewPublicMethodsConfig(auth,
		"/grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health/Watch",
		"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo",
		"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo",
	)
	server := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(authgrpc.UnaryAuthInterceptor(config)),
		grpclib.ChainStreamInterceptor(authgrpc.StreamAuthInterceptor(config)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	reflection.Register(server)
	return server
}

// handleDashboard is the placeholder landing page behind the session guard
func handleDashboard(w http.ResponseWriter, r *http.Request) {
	session, _ := ga.SessionFromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<h1>Welcome back, %s</h1><p><a href=\"/logout\">Sign out</a></p>", html.EscapeString(session.Claims.Name))
}
