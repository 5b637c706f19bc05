package server

import (
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/auth"
	"github.com/rubberband-os/rubberband/internal/deprovisioning"
	httpmiddleware "github.com/rubberband-os/rubberband/internal/http"
	"github.com/rubberband-os/rubberband/internal/identity"
	"github.com/rubberband-os/rubberband/internal/invitations"
	"github.com/rubberband-os/rubberband/internal/logger"
	"github.com/rubberband-os/rubberband/internal/provisioning"
	"github.com/rubberband-os/rubberband/internal/telemetry"
)

// Config holds the services the server exposes.
type Config struct {
	Identities    *identity.Service
	Sessions      *auth.SessionManager
	Provisioner   *provisioning.Provisioner
	Deprovisioner *deprovisioning.Deprovisioner
	Invitations   *invitations.Service
	Stores        Stores

	// TrustProxy honours X-Forwarded-For when recording session client IPs.
	TrustProxy bool
}

// Server wraps the account service and the delete-user-account function.
type Server struct {
	cfg     Config
	account *AccountService
}

// NewServer creates a new server from the given services
func NewServer(cfg Config) *Server {
	return &Server{
		cfg: cfg,
		account: &AccountService{
			identities:    cfg.Identities,
			sessions:      cfg.Sessions,
			provisioner:   cfg.Provisioner,
			deprovisioner: cfg.Deprovisioner,
			invitations:   cfg.Invitations,
			stores:        cfg.Stores,
			metrics:       telemetry.GetMetrics(),
		},
	}
}

// Handler returns the HTTP handler for the server. extra interceptors run after
// request logging and before session authentication.
func (s *Server) Handler(log zerolog.Logger, extra ...connect.Interceptor) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	interceptors := append([]connect.Interceptor{logger.NewConnectRequests(log)}, extra...)
	interceptors = append(interceptors, auth.NewSessionInterceptor(s.cfg.Sessions, api.PublicProcedures...))

	opts := append(api.HandlerOptions(), connect.WithInterceptors(interceptors...))
	accountPath, accountHandler := NewAccountServiceHandler(s.account, opts...)

	clientIP := httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy)
	mux.Handle(accountPath, clientIP(accountHandler))
	mux.Handle(api.DeleteUserAccountPath, DeleteUserAccountHandler(s.cfg.Sessions, s.cfg.Deprovisioner))

	return mux
}

// NewAccountServiceHandler builds the handler for every account service procedure.
// It returns the path prefix to mount the handler on.
func NewAccountServiceHandler(svc *AccountService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(api.ProcedureSignup, connect.NewUnaryHandler(api.ProcedureSignup, svc.Signup, opts...))
	mux.Handle(api.ProcedureLogin, connect.NewUnaryHandler(api.ProcedureLogin, svc.Login, opts...))
	mux.Handle(api.ProcedureLogout, connect.NewUnaryHandler(api.ProcedureLogout, svc.Logout, opts...))
	mux.Handle(api.ProcedureGetAccount, connect.NewUnaryHandler(api.ProcedureGetAccount, svc.GetAccount, opts...))
	mux.Handle(api.ProcedureCreateOrganization, connect.NewUnaryHandler(api.ProcedureCreateOrganization, svc.CreateOrganization, opts...))
	mux.Handle(api.ProcedureCompleteOnboarding, connect.NewUnaryHandler(api.ProcedureCompleteOnboarding, svc.CompleteOnboarding, opts...))
	mux.Handle(api.ProcedureInviteMember, connect.NewUnaryHandler(api.ProcedureInviteMember, svc.InviteMember, opts...))
	mux.Handle(api.ProcedureListInvitations, connect.NewUnaryHandler(api.ProcedureListInvitations, svc.ListInvitations, opts...))
	mux.Handle(api.ProcedureAcceptInvitation, connect.NewUnaryHandler(api.ProcedureAcceptInvitation, svc.AcceptInvitation, opts...))
	mux.Handle(api.ProcedureDeleteAccount, connect.NewUnaryHandler(api.ProcedureDeleteAccount, svc.DeleteAccount, opts...))
	return "/" + api.AccountServiceName + "/", mux
}
