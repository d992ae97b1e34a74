package mux

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errUnbalancedBraces = errors.New("unbalanced braces")

// splitPath splits a path on "/", dropping the empty component produced by
// a leading slash and the one produced by a trailing slash. Inner empty
// components ("//") are kept.
func splitPath(p string) []string {
	if p == "" {
		return nil
	}

	parts := strings.Split(p, "/")
	if parts[0] == "" {
		parts = parts[1:]
	}

	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}

	return parts
}

// splitTemplate is splitPath for templates: slashes inside {...} belong to
// the constraint and do not separate segments. It reports unbalanced braces.
func splitTemplate(tpl string) ([]string, error) {
	var (
		parts []string
		level int
		start int
	)

	for i := 0; i < len(tpl); i++ {
		switch tpl[i] {
		case '{':
			level++
		case '}':
			if level--; level < 0 {
				return nil, errUnbalancedBraces
			}
		case '/':
			if level == 0 {
				parts = append(parts, tpl[start:i])
				start = i + 1
			}
		}
	}

	if level != 0 {
		return nil, errUnbalancedBraces
	}

	parts = append(parts, tpl[start:])

	if parts[0] == "" {
		parts = parts[1:]
	}

	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}

	return parts, nil
}

// unescape URL-decodes a path segment, returning it unchanged when it is not
// validly escaped.
func unescape(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}

	if v, err := url.PathUnescape(s); err == nil {
		return v
	}

	return s
}

// joinPath joins a group prefix and a route template with exactly one slash.
func joinPath(prefix, tpl string) string {
	if tpl == "" || tpl == "/" {
		if prefix == "" {
			return "/"
		}

		return prefix
	}

	return prefix + "/" + strings.TrimPrefix(tpl, "/")
}

// checkPairs returns an error if the list of key/value pairs has odd length.
func checkPairs(pairs ...string) (int, error) {
	if len(pairs)%2 != 0 {
		return 0, fmt.Errorf("mux: number of parameters must be multiple of 2, got %v", pairs)
	}

	return len(pairs) / 2, nil
}

// mapFromPairs converts variadic string parameters to a string map.
func mapFromPairs(pairs ...string) (map[string]string, error) {
	length, err := checkPairs(pairs...)
	if err != nil {
		return nil, err
	}

	m := make(map[string]string, length)
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}

	return m, nil
}
