package mux

import (
	"fmt"
	"net/url"
	"strings"
)

// SegmentKind identifies what a pattern segment matches.
type SegmentKind uint8

const (
	// SegmentStatic matches one path segment with exactly the same text.
	SegmentStatic SegmentKind = iota
	// SegmentParam matches any one path segment and binds it to a name.
	SegmentParam
	// SegmentWildcard matches all remaining segments, possibly none.
	SegmentWildcard
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentStatic:
		return "static"
	case SegmentParam:
		return "param"
	case SegmentWildcard:
		return "wildcard"
	}

	return fmt.Sprintf("segment(%d)", k)
}

// Segment is one element of a compiled Pattern. Text is the literal for
// static segments and the parameter name otherwise.
type Segment struct {
	Kind SegmentKind
	Text string

	// Constraint is the raw constraint expression of a {name:constraint}
	// segment, empty when the parameter accepts any value.
	Constraint string

	matcher varMatcher
}

// Pattern is a compiled path template. It is immutable and safe for
// concurrent use.
//
// Templates are split on "/" and each segment is one of:
//
//	users        static text, compared after URL-decoding the request segment
//	{id}         parameter, binds exactly one segment
//	{id:int}     parameter restricted by a macro or a regular expression
//	:id          parameter, shorthand for {id}
//	*rest        wildcard, binds the remaining segments joined by "/"
//
// A wildcard may appear at most once and only as the last segment.
type Pattern struct {
	template string
	segments []Segment
	params   int
	trailing bool
}

// CompilePattern parses a path template. Errors wrap ErrInvalidPattern.
func CompilePattern(tpl string) (*Pattern, error) {
	parts, err := splitTemplate(tpl)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, tpl, err)
	}

	p := &Pattern{
		template: tpl,
		segments: make([]Segment, 0, len(parts)),
		trailing: len(parts) > 0 && strings.HasSuffix(tpl, "/"),
	}

	seen := make(map[string]struct{}, len(parts))
	wildcards := 0

	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, tpl, err)
		}

		if seg.Kind != SegmentStatic {
			if _, dup := seen[seg.Text]; dup {
				return nil, fmt.Errorf("%w %q: duplicated parameter %q", ErrInvalidPattern, tpl, seg.Text)
			}

			seen[seg.Text] = struct{}{}
			p.params++
		}

		if seg.Kind == SegmentWildcard {
			wildcards++
		}

		p.segments = append(p.segments, seg)
	}

	if wildcards > 1 {
		return nil, fmt.Errorf("%w %q: more than one wildcard segment", ErrInvalidPattern, tpl)
	}

	if wildcards == 1 && p.segments[len(p.segments)-1].Kind != SegmentWildcard {
		return nil, fmt.Errorf("%w %q: wildcard must be the last segment", ErrInvalidPattern, tpl)
	}

	return p, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(tpl string) *Pattern {
	p, err := CompilePattern(tpl)
	if err != nil {
		panic(err)
	}

	return p
}

// String returns the template the pattern was compiled from.
func (p *Pattern) String() string {
	return p.template
}

// Segments returns a copy of the compiled segments.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)

	return out
}

// ParamNames returns the parameter and wildcard names in template order.
func (p *Pattern) ParamNames() []string {
	names := make([]string, 0, p.params)
	for _, s := range p.segments {
		if s.Kind != SegmentStatic {
			names = append(names, s.Text)
		}
	}

	return names
}

// HasWildcard reports whether the pattern ends with a wildcard segment.
func (p *Pattern) HasWildcard() bool {
	n := len(p.segments)
	return n > 0 && p.segments[n-1].Kind == SegmentWildcard
}

// Match matches an escaped request path (url.URL.EscapedPath) against the
// pattern and returns the bound parameters in template order. Values are
// URL-decoded; a value that fails to decode is bound verbatim.
func (p *Pattern) Match(escapedPath string) (Params, bool) {
	segs := splitPath(escapedPath)

	var params Params
	if p.params > 0 {
		params = make(Params, 0, p.params)
	}

	for i, s := range p.segments {
		if s.Kind == SegmentWildcard {
			rest := ""
			if i < len(segs) {
				rest = strings.Join(segs[i:], "/")
			}

			return append(params, Param{Name: s.Text, Value: unescape(rest)}), true
		}

		if i >= len(segs) {
			return nil, false
		}

		value := unescape(segs[i])

		switch s.Kind {
		case SegmentStatic:
			if value != s.Text {
				return nil, false
			}
		case SegmentParam:
			if s.matcher != nil && !s.matcher.MatchString(value) {
				return nil, false
			}

			params = append(params, Param{Name: s.Text, Value: value})
		}
	}

	if len(segs) != len(p.segments) {
		return nil, false
	}

	return params, true
}

// Build produces an escaped path from the pattern by substituting the
// given parameter values. Constrained parameters must satisfy their
// constraint.
func (p *Pattern) Build(values map[string]string) (string, error) {
	var b strings.Builder

	for _, s := range p.segments {
		b.WriteByte('/')

		switch s.Kind {
		case SegmentStatic:
			b.WriteString(url.PathEscape(s.Text))
		case SegmentParam:
			v, ok := values[s.Text]
			if !ok {
				return "", fmt.Errorf("mux: missing route variable %q", s.Text)
			}

			if s.matcher != nil && !s.matcher.MatchString(v) {
				return "", fmt.Errorf("mux: variable %q doesn't match, expected %q", s.Text, s.matcher.String())
			}

			b.WriteString(url.PathEscape(v))
		case SegmentWildcard:
			v, ok := values[s.Text]
			if !ok {
				return "", fmt.Errorf("mux: missing route variable %q", s.Text)
			}

			for i, part := range strings.Split(v, "/") {
				if i > 0 {
					b.WriteByte('/')
				}

				b.WriteString(url.PathEscape(part))
			}
		}
	}

	if b.Len() == 0 {
		return "/", nil
	}

	if p.trailing {
		b.WriteByte('/')
	}

	return b.String(), nil
}

// parseSegment classifies one template segment.
func parseSegment(part string) (Segment, error) {
	switch {
	case strings.HasPrefix(part, "{"):
		if !strings.HasSuffix(part, "}") {
			return Segment{}, fmt.Errorf("parameter %q must span the whole segment", part)
		}

		name, constraint, hasConstraint := strings.Cut(part[1:len(part)-1], ":")
		name = strings.TrimSpace(name)

		if name == "" {
			return Segment{}, fmt.Errorf("missing name in %q", part)
		}

		seg := Segment{Kind: SegmentParam, Text: name}

		if hasConstraint && constraint != "" {
			m, err := compileConstraint(constraint)
			if err != nil {
				return Segment{}, fmt.Errorf("invalid constraint %q for %q: %w", constraint, name, err)
			}

			seg.Constraint = constraint
			seg.matcher = m
		}

		return seg, nil

	case strings.HasPrefix(part, ":"):
		if len(part) == 1 {
			return Segment{}, fmt.Errorf("missing name in %q", part)
		}

		return Segment{Kind: SegmentParam, Text: part[1:]}, nil

	case strings.HasPrefix(part, "*"):
		if len(part) == 1 {
			return Segment{}, fmt.Errorf("missing name in %q", part)
		}

		return Segment{Kind: SegmentWildcard, Text: part[1:]}, nil

	case strings.ContainsAny(part, "{}"):
		return Segment{}, fmt.Errorf("parameter in %q must span the whole segment", part)
	}

	return Segment{Kind: SegmentStatic, Text: unescape(part)}, nil
}

// Param is one bound route parameter.
type Param struct {
	Name  string
	Value string
}

// Params are the parameters bound by a matched pattern, in template order.
type Params []Param

// ByName returns the value bound to name and whether it was bound.
func (ps Params) ByName(name string) (string, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}

	return "", false
}

// Get returns the value bound to name, or "" if it was not bound.
func (ps Params) Get(name string) string {
	v, _ := ps.ByName(name)
	return v
}

// Map returns the parameters as a map.
func (ps Params) Map() map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Name] = p.Value
	}

	return m
}
