package muxhandlers

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/vitalvas/harbor/mux"
)

// ErrInvalidProxy is returned when a TrustedProxies entry is neither a valid
// IP address nor a valid CIDR range.
var ErrInvalidProxy = errors.New("proxy headers: invalid proxy entry")

// ProxyPeerKey is the side channel key holding the peer address the
// request arrived from, before it was replaced by the forwarded client.
const ProxyPeerKey = "proxyheaders.peer"

// DefaultTrustedProxies is the set of private and loopback ranges used when
// ProxyHeadersConfig.TrustedProxies is empty.
//
// Included ranges:
//   - 127.0.0.0/8    IPv4 loopback (RFC 1122)
//   - 10.0.0.0/8     Class A private (RFC 1918)
//   - 172.16.0.0/12  Class B private (RFC 1918)
//   - 192.168.0.0/16 Class C private (RFC 1918)
//   - 100.64.0.0/10  CGNAT shared address space (RFC 6598)
//   - ::1/128        IPv6 loopback (RFC 4291)
//   - fc00::/7       IPv6 unique local (RFC 4193)
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
}

// ProxyHeadersConfig configures the ProxyHeaders middleware behaviour.
type ProxyHeadersConfig struct {
	// TrustedProxies is a list of IP addresses and CIDR ranges.
	// Forwarding headers are only honoured when the peer is in this set.
	// When empty, DefaultTrustedProxies is used.
	// Examples: "10.0.0.1", "192.168.0.0/16", "::1", "fd00::/8"
	TrustedProxies []string

	// EnableForwarded enables parsing of the RFC 7239 Forwarded header as
	// a fallback after X-Forwarded-* and X-Real-IP.
	//
	// Spec reference: https://www.rfc-editor.org/rfc/rfc7239
	EnableForwarded bool
}

// ProxyHeadersMiddleware returns a pre middleware that rewrites request
// fields from reverse proxy headers when the peer is a trusted proxy. It
// runs before routing, so later middleware and handlers see the client
// as reported by the proxy.
//
// Supported headers (checked in priority order):
//   - req.RemoteAddr: X-Forwarded-For > X-Real-IP [> Forwarded for=]
//   - req.Scheme:     X-Forwarded-Proto > X-Forwarded-Scheme [> Forwarded proto=]
//   - req.Host:       X-Forwarded-Host [> Forwarded host=]
//   - X-Forwarded-By header: [Forwarded by=]
//
// Bracketed entries require EnableForwarded. The original peer address is
// kept in the side channel under ProxyPeerKey.
func ProxyHeadersMiddleware(cfg ProxyHeadersConfig) (mux.Middleware, error) {
	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = DefaultTrustedProxies
	}

	trusted, err := parseTrustedProxies(proxies)
	if err != nil {
		return nil, err
	}

	enableFwd := cfg.EnableForwarded

	return mux.MiddlewareFunc(func(req *mux.Request, _ *mux.Response) (*mux.Request, *mux.Response) {
		if !trusted.contains(req.RemoteAddr) {
			return nil, nil
		}

		var fwd forwardedParams
		if enableFwd {
			fwd = parseForwarded(req.Header.Get("Forwarded"))
		}

		peer := req.RemoteAddr

		switch {
		case req.Header.Get("X-Forwarded-For") != "":
			if ip := parseXForwardedFor(req.Header.Get("X-Forwarded-For")); ip != "" {
				req.RemoteAddr = ip
			}
		case req.Header.Get("X-Real-IP") != "":
			realIP := strings.TrimSpace(req.Header.Get("X-Real-IP"))
			if _, err := netip.ParseAddr(realIP); err == nil {
				req.RemoteAddr = realIP
			}
		case fwd.forIP != "":
			req.RemoteAddr = fwd.forIP
		}

		if req.RemoteAddr != peer {
			req.Set(ProxyPeerKey, peer)
		}

		if scheme := proxyScheme(req); scheme != "" {
			req.Scheme = scheme
		} else if fwd.proto != "" {
			req.Scheme = fwd.proto
		}

		if host := req.Header.Get("X-Forwarded-Host"); host != "" {
			req.Host = host
		} else if fwd.host != "" {
			req.Host = fwd.host
		}

		if fwd.by != "" {
			req.Header.Set("X-Forwarded-By", fwd.by)
		}

		return nil, nil
	}), nil
}

// proxyScheme returns the normalized scheme from X-Forwarded-Proto or
// X-Forwarded-Scheme, or "" unless the first present header is http or
// https.
func proxyScheme(req *mux.Request) string {
	for _, name := range []string{"X-Forwarded-Proto", "X-Forwarded-Scheme"} {
		if val := req.Header.Get(name); val != "" {
			normalized := strings.ToLower(strings.TrimSpace(val))
			if normalized == "http" || normalized == "https" {
				return normalized
			}

			return ""
		}
	}

	return ""
}

// trustSet is a parsed list of trusted proxy prefixes. Single addresses
// are stored as full-length prefixes.
type trustSet []netip.Prefix

func parseTrustedProxies(entries []string) (trustSet, error) {
	ts := make(trustSet, 0, len(entries))

	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
			}

			ts = append(ts, prefix.Masked())

			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}

		ts = append(ts, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}

	return ts, nil
}

// contains reports whether the peer address, with or without a port, is
// in the set.
func (ts trustSet) contains(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	for _, prefix := range ts {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

// parseXForwardedFor returns the leftmost valid IP of an X-Forwarded-For
// value, or "".
func parseXForwardedFor(xff string) string {
	for part := range strings.SplitSeq(xff, ",") {
		candidate := strings.TrimSpace(part)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// forwardedParams holds the directives of the first element of an RFC 7239
// Forwarded header.
type forwardedParams struct {
	forIP string
	by    string
	proto string // http or https
	host  string
}

// parseForwarded extracts for=, by=, proto= and host= from the first
// element of a Forwarded header, the one added by the client-facing proxy.
//
// Spec reference: https://www.rfc-editor.org/rfc/rfc7239
func parseForwarded(value string) forwardedParams {
	if value == "" {
		return forwardedParams{}
	}

	first, _, _ := strings.Cut(value, ",")

	var result forwardedParams

	for param := range strings.SplitSeq(first, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.Trim(strings.TrimSpace(val), `"`)

		switch key {
		case "for":
			result.forIP = parseForwardedIP(val)
		case "proto":
			if val = strings.ToLower(val); val == "http" || val == "https" {
				result.proto = val
			}
		case "by":
			result.by = val
		case "host":
			result.host = val
		}
	}

	return result
}

// parseForwardedIP validates an unquoted for= value. IPv6 addresses may
// carry brackets and a port:
//
//	for=192.0.2.60
//	for="[2001:db8::1]"
//	for="[2001:db8::1]:4711"
//	for="_hidden"
func parseForwardedIP(val string) string {
	if host, _, err := net.SplitHostPort(val); err == nil {
		val = host
	} else {
		val = strings.TrimSuffix(strings.TrimPrefix(val, "["), "]")
	}

	if _, err := netip.ParseAddr(val); err == nil {
		return val
	}

	return ""
}
