package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/armord/armord/pkg/types"
)

// The source grammar is line-oriented: comments start with `#` at line
// start, every rule directive ends with a comma, include directives use the
// `#include <name>` form (distinguished from comments by exact prefix), and
// a profile block is a header line ending in `{` closed by a bare `}`.

var (
	flagsRe   = regexp.MustCompile(`flags=\(([^)]*)\)`)
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	includeRe = regexp.MustCompile(`^#?include\s+<([^>]+)>$`)
)

// ParseProfiles parses profile source text into one or more profile blocks.
// Any line that does not match a known directive grammar is a hard
// ParseError; unknown directives are never silently ignored.
func ParseProfiles(src string) ([]*ProfileSource, error) {
	lines := strings.Split(src, "\n")
	var out []*ProfileSource

	i := 0
	for i < len(lines) {
		line, col := trimLine(lines[i])
		lineNo := i + 1
		if line == "" || isComment(line) {
			i++
			continue
		}
		if !strings.HasSuffix(line, "{") {
			return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("expected profile header, got %q", line)}
		}
		ps, err := parseHeader(line, lineNo, col)
		if err != nil {
			return nil, err
		}
		i++
		closed := false
		for i < len(lines) {
			body, bcol := trimLine(lines[i])
			bodyNo := i + 1
			i++
			if body == "" || isComment(body) {
				continue
			}
			if body == "}" {
				closed = true
				break
			}
			d, err := parseDirective(body, bodyNo, bcol)
			if err != nil {
				return nil, err
			}
			ps.Directives = append(ps.Directives, d)
		}
		if !closed {
			return nil, &ParseError{Line: len(lines), Column: 1, Msg: fmt.Sprintf("profile %q: missing closing brace", ps.Name)}
		}
		out = append(out, ps)
	}
	if len(out) == 0 {
		return nil, &ParseError{Line: 1, Column: 1, Msg: "no profile block found"}
	}
	return out, nil
}

// ParseFragment parses an abstraction fragment: a bare directive sequence
// with no profile header.
func ParseFragment(src string) ([]Directive, error) {
	var out []Directive
	for i, raw := range strings.Split(src, "\n") {
		line, col := trimLine(raw)
		if line == "" || isComment(line) {
			continue
		}
		d, err := parseDirective(line, i+1, col)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func trimLine(raw string) (string, int) {
	trimmed := strings.TrimSpace(raw)
	col := strings.Index(raw, trimmed) + 1
	if trimmed == "" {
		col = 1
	}
	return trimmed, col
}

// isComment reports whether the line is a comment. An `#include` directive
// also starts with `#` and is not a comment.
func isComment(line string) bool {
	return strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#include")
}

func parseHeader(line string, lineNo, col int) (*ProfileSource, error) {
	header := strings.TrimSpace(strings.TrimSuffix(line, "{"))

	flags, header, err := extractFlags(header, lineNo, col)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(header)
	ps := &ProfileSource{Flags: flags, Line: lineNo}
	switch {
	case len(fields) >= 1 && fields[0] == "profile":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, &ParseError{Line: lineNo, Column: col, Msg: "profile header wants: profile <name> [<attach-path>]"}
		}
		if !nameRe.MatchString(fields[1]) {
			return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("invalid profile name %q", fields[1])}
		}
		ps.Name = fields[1]
		if len(fields) == 3 {
			if !strings.HasPrefix(fields[2], "/") {
				return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("attachment path %q is not absolute", fields[2])}
			}
			ps.Attach = fields[2]
		}
	case len(fields) == 1 && strings.HasPrefix(fields[0], "/"):
		// Bare attachment form: the attach path names the profile.
		ps.Name = fields[0]
		ps.Attach = fields[0]
	default:
		return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("malformed profile header %q", line)}
	}
	return ps, nil
}

func extractFlags(header string, lineNo, col int) ([]Flag, string, error) {
	m := flagsRe.FindStringSubmatchIndex(header)
	if m == nil {
		if strings.Contains(header, "flags=") {
			return nil, "", &ParseError{Line: lineNo, Column: col, Msg: "malformed flags specifier"}
		}
		return nil, header, nil
	}
	var flags []Flag
	for _, part := range strings.Split(header[m[2]:m[3]], ",") {
		f := Flag(strings.TrimSpace(part))
		if f == "" {
			continue
		}
		if _, ok := knownFlags[f]; !ok {
			return nil, "", &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("unknown profile flag %q", f)}
		}
		flags = append(flags, f)
	}
	rest := strings.TrimSpace(header[:m[0]] + header[m[1]:])
	return flags, rest, nil
}

func parseDirective(line string, lineNo, col int) (Directive, error) {
	if m := includeRe.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[1])
		if name == "" {
			return Directive{}, &ParseError{Line: lineNo, Column: col, Msg: "empty include name"}
		}
		return Directive{Kind: DirectiveInclude, Line: lineNo, Include: name}, nil
	}

	if !strings.HasSuffix(line, ",") {
		return Directive{}, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("directive %q missing trailing comma", line)}
	}
	fields := strings.Fields(strings.TrimSpace(strings.TrimSuffix(line, ",")))
	if len(fields) == 0 {
		return Directive{}, &ParseError{Line: lineNo, Column: col, Msg: "empty directive"}
	}

	switch {
	case fields[0] == "network":
		nd, err := parseNetwork(fields[1:], lineNo, col)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Kind: DirectiveNetwork, Line: lineNo, Network: nd}, nil

	case fields[0] == "owner":
		fd, err := parseFileRule(fields[1:], lineNo, col)
		if err != nil {
			return Directive{}, err
		}
		fd.Owner = true
		return Directive{Kind: DirectiveFile, Line: lineNo, File: fd}, nil

	case strings.HasPrefix(fields[0], "/"):
		fd, err := parseFileRule(fields, lineNo, col)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Kind: DirectiveFile, Line: lineNo, File: fd}, nil
	}

	return Directive{}, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("unknown directive %q", line)}
}

func parseFileRule(fields []string, lineNo, col int) (*FileDirective, error) {
	if len(fields) != 2 {
		return nil, &ParseError{Line: lineNo, Column: col, Msg: "file rule wants: <path-pattern> <perms>"}
	}
	if !strings.HasPrefix(fields[0], "/") {
		return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("path pattern %q is not absolute", fields[0])}
	}
	perms, err := types.ParsePerm(fields[1])
	if err != nil {
		return nil, &ParseError{Line: lineNo, Column: col, Msg: err.Error()}
	}
	return &FileDirective{Pattern: fields[0], Perms: perms}, nil
}

func parseNetwork(fields []string, lineNo, col int) (*NetworkDirective, error) {
	nd := &NetworkDirective{}
	i := 0
	if i < len(fields) {
		switch fields[i] {
		case "inet":
			nd.Family, i = types.FamilyInet, i+1
		case "inet6":
			nd.Family, i = types.FamilyInet6, i+1
		}
	}
	if i < len(fields) {
		switch fields[i] {
		case "stream":
			nd.Transport, i = types.TransportStream, i+1
		case "dgram":
			nd.Transport, i = types.TransportDgram, i+1
		}
	}
	if i < len(fields) && fields[i] == "bind" {
		nd.Bind = true
		i++
		if i < len(fields) {
			if fields[i] != "port" || i+1 >= len(fields) {
				return nil, &ParseError{Line: lineNo, Column: col, Msg: "bind rule wants: bind [port <N>]"}
			}
			port, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("invalid port %q", fields[i+1])}
			}
			nd.Port = port
			i += 2
		}
	}
	if i != len(fields) {
		return nil, &ParseError{Line: lineNo, Column: col, Msg: fmt.Sprintf("unexpected token %q in network rule", fields[i])}
	}
	return nd, nil
}
