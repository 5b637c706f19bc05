// Package client builds account service clients for the CLI.
package client

import (
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/rubberband-os/rubberband/internal/api"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
}

// Clients holds the service clients and the HTTP client they share
type Clients struct {
	Account *api.AccountClient

	HTTP      *http.Client
	ServerURL string
}

// NewClients creates the account service client with the given configuration.
// opts are applied after the codec and compression defaults.
func NewClients(config Config, opts ...connect.ClientOption) *Clients {
	httpClient := &http.Client{
		Timeout: config.Timeout,
	}
	serverURL := strings.TrimRight(config.ServerURL, "/")

	return &Clients{
		Account:   api.NewAccountClient(httpClient, serverURL, opts...),
		HTTP:      httpClient,
		ServerURL: serverURL,
	}
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}
