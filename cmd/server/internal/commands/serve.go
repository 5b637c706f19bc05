package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"filippo.io/csrf"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/deprovisioning"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/invitations"
	"github.com/rubberband-os/rubberband/internal/logger"
	"github.com/rubberband-os/rubberband/internal/notify"
	"github.com/rubberband-os/rubberband/internal/provisioning"
	"github.com/rubberband-os/rubberband/internal/server"
	"github.com/rubberband-os/rubberband/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"RUBBERBAND_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"RUBBERBAND_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"RUBBERBAND_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"RUBBERBAND_CORS_ORIGINS"`
	TrustProxy  bool     `help:"trust X-Forwarded-For when recording client IPs" default:"false" env:"RUBBERBAND_TRUST_PROXY"`

	// Credentials
	SessionSecret  string        `help:"secret for signing session tokens (min 32 bytes)" env:"RUBBERBAND_SESSION_SECRET"`
	SessionTTL     time.Duration `help:"session TTL" default:"24h" env:"RUBBERBAND_SESSION_TTL"`
	ServiceRoleKey string        `help:"administrative key for identity deletion, never sent to clients" env:"RUBBERBAND_SERVICE_ROLE_KEY"`

	InvitationTTL time.Duration `help:"how long invitations can be accepted" default:"168h" env:"RUBBERBAND_INVITATION_TTL"`

	// Observability
	Tracing          bool    `help:"enable tracing" default:"false" env:"RUBBERBAND_TRACING"`
	TraceSampleRatio float64 `help:"fraction of root traces to record" default:"1.0" env:"RUBBERBAND_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"RUBBERBAND_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	SMTP          SMTPFlags          `embed:"" prefix:"smtp-"`
}

type SMTPFlags struct {
	Host     string `help:"SMTP relay host, notifications are only logged when empty" env:"RUBBERBAND_SMTP_HOST"`
	Port     int    `help:"SMTP relay port" default:"587" env:"RUBBERBAND_SMTP_PORT"`
	Username string `help:"SMTP username" env:"RUBBERBAND_SMTP_USERNAME"`
	Password string `help:"SMTP password" env:"RUBBERBAND_SMTP_PASSWORD"`
	From     string `help:"sender address" default:"no-reply@rubberband.dev" env:"RUBBERBAND_SMTP_FROM"`
}

func (c *ServeCmd) Validate() error {
	if len(c.SessionSecret) < auth.MinSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes (--session-secret or RUBBERBAND_SESSION_SECRET)", auth.MinSecretLength)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return errors.New("trace sample ratio must be between 0 and 1")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be set together (--cert and --key)")
	}
	return nil
}

func (c *SMTPFlags) notifier() (notify.Notifier, error) {
	if c.Host == "" {
		return notify.LogNotifier{}, nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	})
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	var interceptors []connect.Interceptor
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "rubberband-server", globals.Version, c.TraceSampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			return fmt.Errorf("failed to create OTEL interceptor: %w", err)
		}
		interceptors = append(interceptors, otelInterceptor)
	}

	st, err := openStores(ctx, log, c.StoreType, c.PostgresStore)
	if err != nil {
		return err
	}
	defer st.close()

	notifier, err := c.SMTP.notifier()
	if err != nil {
		return fmt.Errorf("invalid SMTP configuration: %w", err)
	}

	signer, err := auth.NewTokenSigner([]byte(c.SessionSecret))
	if err != nil {
		return err
	}
	sessions := auth.NewSessionManager(st.Sessions, signer, c.SessionTTL)
	identities := identity.NewService(st.Identities, sessions)

	// A missing key leaves account deletion unavailable rather than failing startup;
	// every deletion then stops at the privilege probe.
	adminCtx, err := auth.NewAdminContext(c.ServiceRoleKey)
	if err != nil {
		log.Warn().Err(err).Msg("Account deletion is disabled")
	}

	srv := server.NewServer(server.Config{
		Identities: identities,
		Sessions:   sessions,
		Provisioner: provisioning.New(identities, provisioning.Stores{
			Organizations: st.Organizations,
			RoleBindings:  st.RoleBindings,
			Profiles:      st.Profiles,
			Settings:      st.Settings,
		}, notifier),
		Deprovisioner: deprovisioning.New(
			identity.NewAdminService(st.Identities, c.ServiceRoleKey),
			st.Accounts, adminCtx, sessions),
		Invitations: invitations.NewService(invitations.Stores{
			Organizations: st.Organizations,
			RoleBindings:  st.RoleBindings,
			Invitations:   st.Invitations,
		}, notifier, c.InvitationTTL),
		Stores: server.Stores{
			Organizations: st.Organizations,
			Settings:      st.Settings,
			RoleBindings:  st.RoleBindings,
			Profiles:      st.Profiles,
		},
		TrustProxy: c.TrustProxy,
	})

	mux := srv.Handler(log, interceptors...)

	// Cross-origin protection for the function route, browsers call it directly
	protection := csrf.New()
	for _, origin := range c.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	functions := protection.Handler(mux)
	handler := withCORS(c.CORSOrigins, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/functions/") {
			functions.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	httpServer := configureHTTPServer(c.Listen, handler)

	log.Info().
		Str("addr", c.Listen).
		Str("store", c.StoreType).
		Str("function", api.DeleteUserAccountPath).
		Bool("tls", c.Cert != "").
		Msg("Starting HTTP server")

	if c.Cert != "" {
		return httpServer.ListenAndServeTLS(c.Cert, c.Key)
	}
	return httpServer.ListenAndServe()
}
