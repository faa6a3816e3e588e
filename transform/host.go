package transform

import (
	"regexp"
	"strings"
)

var loopbackHost = regexp.MustCompile(`localhost|127\.0\.0\.1`)

// HostAlias rewrites loopback host names to the alias under which the host is
// reachable from inside the container. Only the host token is replaced;
// schemes, ports and paths stay as they are.
func HostAlias(alias string) Rule {
	return Rule{
		Name: "host-alias",
		Apply: func(script string) string {
			return rewriteHost(script, alias)
		},
	}
}

func rewriteHost(script, alias string) string {
	matches := loopbackHost.FindAllStringIndex(script, -1)
	if len(matches) == 0 {
		return script
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if !standaloneHost(script, m[0], m[1]) {
			continue
		}
		b.WriteString(script[last:m[0]])
		b.WriteString(alias)
		last = m[1]
	}
	b.WriteString(script[last:])
	return b.String()
}

// standaloneHost reports whether script[start:end] is a complete host name
// and not part of a longer identifier, domain or address.
func standaloneHost(script string, start, end int) bool {
	if start > 0 && isHostChar(script[start-1], true) {
		return false
	}
	if end < len(script) {
		next := script[end]
		if isHostChar(next, false) {
			return false
		}
		if next == '.' && end+1 < len(script) && isHostChar(script[end+1], false) {
			return false
		}
	}
	return true
}

func isHostChar(c byte, withDot bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-':
		return true
	case c == '.':
		return withDot
	}
	return false
}
