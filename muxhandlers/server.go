package muxhandlers

import (
	"os"

	"github.com/vitalvas/harbor/mux"
)

// ServerConfig configures the Server middleware behaviour.
type ServerConfig struct {
	// Name, when set, is written to the Server response header unless the
	// handler already set one.
	Name string

	// Hostname is the value written to the hostname header. Resolution
	// order: Hostname field, then HostnameEnv environment variables, then
	// os.Hostname.
	Hostname string

	// HostnameEnv is a list of environment variable names checked in
	// order (e.g. ["POD_NAME", "HOSTNAME"]). The first non-empty value is
	// used. Only consulted when Hostname is empty.
	HostnameEnv []string

	// HostnameHeader names the header carrying the hostname. Defaults to
	// X-Server-Hostname.
	HostnameHeader string

	// DisableHostname turns the hostname header off, leaving only Server.
	DisableHostname bool
}

// ServerMiddleware returns a post middleware that sets server
// identification response headers. The hostname is resolved once when the
// middleware is created. It returns an error if the hostname cannot be
// determined.
func ServerMiddleware(cfg ServerConfig) (mux.Middleware, error) {
	hostnameHeader := cfg.HostnameHeader
	if hostnameHeader == "" {
		hostnameHeader = "X-Server-Hostname"
	}

	var hostname string

	if !cfg.DisableHostname {
		var err error
		if hostname, err = resolveHostname(cfg); err != nil {
			return nil, err
		}
	}

	name := cfg.Name

	return mux.MiddlewareFunc(func(_ *mux.Request, resp *mux.Response) (*mux.Request, *mux.Response) {
		h := header(resp)

		if name != "" && h.Get("Server") == "" {
			h.Set("Server", name)
		}

		if hostname != "" {
			h.Set(hostnameHeader, hostname)
		}

		return nil, nil
	}), nil
}

func resolveHostname(cfg ServerConfig) (string, error) {
	if cfg.Hostname != "" {
		return cfg.Hostname, nil
	}

	for _, env := range cfg.HostnameEnv {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}

	return os.Hostname()
}
