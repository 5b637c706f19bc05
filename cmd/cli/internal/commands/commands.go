package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rubberband-os/rubberband/cmd/cli/internal/credentials"
	"github.com/rubberband-os/rubberband/internal/api"
	"github.com/rubberband-os/rubberband/internal/client"
)

const defaultProfileName = "default"

type Globals struct {
	Debug   bool
	Version string

	Server          string
	Profile         string
	CredentialsPath string

	out io.Writer
	in  io.Reader
}

// NewGlobals returns the shared command state writing to stdout.
func NewGlobals(server, profile, credentialsPath string, debug bool, version string) *Globals {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	return &Globals{
		Debug:           debug,
		Version:         version,
		Server:          server,
		Profile:         profile,
		CredentialsPath: credentialsPath,
		out:             os.Stdout,
		in:              os.Stdin,
	}
}

func (g *Globals) printf(format string, args ...any) {
	fmt.Fprintf(g.out, format, args...)
}

func (g *Globals) store() (*credentials.Store, error) {
	store, err := credentials.NewStore(g.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store, nil
}

// profileName is the profile a login writes to.
func (g *Globals) profileName(store *credentials.Store) string {
	if g.Profile != "" {
		return g.Profile
	}
	if name, err := store.DefaultName(); err == nil && name != "" {
		return name
	}
	return defaultProfileName
}

func (g *Globals) serverURL(profile *credentials.Profile) string {
	switch {
	case g.Server != "":
		return g.Server
	case profile != nil && profile.ServerURL != "":
		return profile.ServerURL
	default:
		return client.DefaultConfig().ServerURL
	}
}

func (g *Globals) clientConfig(serverURL string) client.Config {
	cfg := client.DefaultConfig()
	cfg.ServerURL = serverURL
	cfg.Debug = g.Debug
	return cfg
}

// publicClients returns clients for procedures that need no session.
func (g *Globals) publicClients(store *credentials.Store) *client.Clients {
	profile, _ := store.Resolve(g.Profile)
	return client.NewClients(g.clientConfig(g.serverURL(profile)))
}

// sessionClients returns clients that authenticate with the stored session token.
func (g *Globals) sessionClients() (*client.Clients, *credentials.Profile, error) {
	store, err := g.store()
	if err != nil {
		return nil, nil, err
	}

	profile, err := store.Resolve(g.Profile)
	if err != nil {
		if errors.Is(err, credentials.ErrNoDefaultProfile) || errors.Is(err, credentials.ErrProfileNotFound) {
			return nil, nil, fmt.Errorf("%w\n\nSign in first:\n  rubberband login --email you@example.com", err)
		}
		return nil, nil, err
	}

	interceptor, err := credentials.NewAuthInterceptor(profile)
	if err != nil {
		return nil, nil, err
	}

	clients := client.NewClients(g.clientConfig(g.serverURL(profile)), connect.WithInterceptors(interceptor))
	return clients, profile, nil
}

// describeError turns connect errors into a single readable line.
func describeError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}
	if typ := cerr.Meta().Get("Rubberband-Error-Type"); typ != "" {
		return fmt.Errorf("%s (%s)", cerr.Message(), typ)
	}
	return errors.New(cerr.Message())
}

func printWarnings(g *Globals, warnings []api.StepWarning) {
	for _, w := range warnings {
		g.printf("warning: %s (%s)\n", w.Message, w.ErrorType)
	}
}

// resolveOrgID returns orgID, or the caller's only organization when orgID is empty.
func resolveOrgID(ctx context.Context, clients *client.Clients, orgID string) (string, error) {
	if orgID != "" {
		return orgID, nil
	}

	account, err := clients.Account.GetAccount(ctx, connect.NewRequest(&api.GetAccountRequest{}))
	if err != nil {
		return "", describeError(err)
	}

	switch len(account.Msg.Memberships) {
	case 0:
		return "", errors.New("you do not belong to an organization yet, run: rubberband create-org")
	case 1:
		return account.Msg.Memberships[0].OrgID, nil
	default:
		return "", errors.New("you belong to several organizations, pick one with --org-id")
	}
}
