package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/salesboard/internal/api"
	"github.com/wolfeidau/salesboard/internal/config"
	"github.com/wolfeidau/salesboard/internal/crmsync"
	httpmiddleware "github.com/wolfeidau/salesboard/internal/http"
	"github.com/wolfeidau/salesboard/internal/leaderboard"
	"github.com/wolfeidau/salesboard/internal/logger"
	"github.com/wolfeidau/salesboard/internal/login"
	"github.com/wolfeidau/salesboard/internal/popup"
	"github.com/wolfeidau/salesboard/internal/session"
	"github.com/wolfeidau/salesboard/internal/telemetry"
	"github.com/wolfeidau/salesboard/internal/tokens"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"SALESBOARD_LISTEN"`
	Cert   string `help:"path to TLS cert file, plain HTTP when empty" default:"" env:"SALESBOARD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"SALESBOARD_TLS_KEY"`

	// Browser origins
	CORSOrigins  []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"SALESBOARD_CORS_ORIGINS"`
	PopupOrigins []string `help:"origins allowed to receive the login popup message, defaults to the CORS origins" env:"SALESBOARD_POPUP_ORIGINS"`

	// Login redirects
	LoginURL   string `help:"page that receives failed logins" default:"/login" env:"SALESBOARD_LOGIN_URL"`
	SuccessURL string `help:"page that receives successful non-popup logins" default:"/" env:"SALESBOARD_SUCCESS_URL"`

	// Session configuration
	SessionSecret string        `help:"HMAC secret for session credentials (at least 32 bytes)" env:"SALESBOARD_SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" default:"168h" env:"SALESBOARD_SESSION_TTL"`
	SessionKeyTTL time.Duration `help:"lifetime of one-time session keys" default:"2m" env:"SALESBOARD_SESSION_KEY_TTL"`
	SecureCookies bool          `help:"set the Secure attribute on cookies" default:"true" env:"SALESBOARD_SECURE_COOKIES" negatable:""`

	Policy  string `help:"YAML retry policy file" default:"" env:"SALESBOARD_POLICY" type:"path"`
	Tracing bool   `help:"enable tracing" default:"false" env:"SALESBOARD_TRACING"`

	TraceSampleRatio float64       `help:"fraction of requests traced" default:"1" env:"SALESBOARD_TRACE_SAMPLE_RATIO"`
	MetricInterval   time.Duration `help:"OTLP metric export interval" default:"30s" env:"SALESBOARD_METRIC_INTERVAL"`

	HubSpot HubSpotFlags `embed:"" prefix:"hubspot-"`
	Store   StoreFlags   `embed:""`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if err := c.HubSpot.Validate(); err != nil {
		return err
	}

	policies, err := config.LoadPolicies(c.Policy)
	if err != nil {
		return err
	}

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    "salesboard-server",
			Version:        globals.Version,
			SampleRatio:    c.TraceSampleRatio,
			MetricInterval: c.MetricInterval,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, health, closeStores, err := c.Store.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	signer, err := session.NewSigner([]byte(c.SessionSecret), c.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create session signer: %w", err)
	}
	keys := session.NewKeyExchanger(stores.SessionKeys, c.SessionKeyTTL)
	validator := session.NewValidator(signer, stores.Users)

	popupOrigins := c.PopupOrigins
	if len(popupOrigins) == 0 {
		popupOrigins = c.CORSOrigins
	}
	popups, err := popup.NewChannel(popupOrigins)
	if err != nil {
		return fmt.Errorf("invalid popup origin: %w", err)
	}

	crmHTTP := c.HubSpot.httpClient(c.Tracing)
	tokenManager := tokens.NewManager(c.HubSpot.oauthConfig(), stores.Tokens,
		tokens.WithHTTPClient(&http.Client{Timeout: c.HubSpot.Timeout}))

	boardsCRM := c.HubSpot.crmClient(crmHTTP, policies.Leaderboard)
	syncCRM := c.HubSpot.crmClient(crmHTTP, policies.Sync)

	hubspot, err := login.NewHubSpot(login.Config{
		LoginURL:      c.LoginURL,
		SuccessURL:    c.SuccessURL,
		SecureCookies: c.SecureCookies,
	}, tokenManager, boardsCRM, stores, signer, keys, popups)
	if err != nil {
		return fmt.Errorf("failed to initialize HubSpot OAuth: %w", err)
	}

	apiHandler, err := api.NewHandler(api.Deps{
		Validator:     validator,
		Keys:          keys,
		Boards:        leaderboard.NewBuilder(stores, tokenManager, boardsCRM),
		Syncer:        crmsync.New(stores, tokenManager, syncCRM),
		Teams:         stores.Teams,
		Health:        health,
		SecureCookies: c.SecureCookies,
	})
	if err != nil {
		return err
	}
	apiRoutes := apiHandler.Routes()

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/healthz", apiRoutes)
	mux.Handle("/api/", apiRoutes)

	// Register OAuth routes (public)
	mux.HandleFunc("GET /login/hubspot", hubspot.LoginHandler)
	mux.HandleFunc("GET /oauth/callback", hubspot.CallbackHandler)
	mux.HandleFunc("POST /logout", hubspot.LogoutHandler)

	// CSRF protection for browser form routes (not applied to API routes)
	protection := csrf.New()
	browserHandler := protection.Handler(mux)
	apiHandlerWithCORS := withCORS(c.CORSOrigins, mux)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API routes get CORS, browser routes get CSRF
		if isAPIRoute(r.URL.Path) {
			apiHandlerWithCORS.ServeHTTP(w, r)
		} else {
			browserHandler.ServeHTTP(w, r)
		}
	})

	handler = httpmiddleware.Metrics(handler)
	handler = logger.RequestLogger(log)(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "salesboard")
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Str("store", c.Store.StoreType).Msg("Starting HTTP server")
		if c.Cert != "" && c.Key != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		path == "/healthz" ||
		path == "/metrics"
}

// withCORS adds CORS support to the JSON API.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:       allowedOrigins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Authorization", "Content-Type", session.HeaderName},
		ExposedHeaders:       []string{session.HeaderName},
		AllowCredentials:     true, // Required for cookie-based authentication
		OptionsSuccessStatus: http.StatusOK,
	})
	return middleware.Handler(h)
}
