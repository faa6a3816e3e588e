// Package transform rewrites generated browser test scripts into variants that
// run unattended inside the test container and leave diagnostic artifacts
// behind. Every rule is a pure, idempotent text rewrite; a rule whose pattern
// does not match leaves the script untouched.
package transform

import (
	"regexp"
	"strings"
)

// DefaultHostAlias is the name under which the container reaches the host.
const DefaultHostAlias = "host.docker.internal"

// Rule is a single named rewrite step.
type Rule struct {
	Name  string
	Apply func(script string) string
}

// Pipeline is an ordered list of rules.
type Pipeline []Rule

// Result is the output of a pipeline run.
type Result struct {
	Script string
	// Names of the rules that changed the script, in application order.
	Applied []string
}

// Options configure the default pipeline.
type Options struct {
	HostAlias string
	Selectors SelectorPolicy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		HostAlias: DefaultHostAlias,
		Selectors: DefaultSelectorPolicy(),
	}
}

// New returns the default pipeline. The order matters: the prelude has to be
// added last so that no other rule rewrites the helper definitions.
func New(opts Options) Pipeline {
	if opts.HostAlias == "" {
		opts.HostAlias = DefaultHostAlias
	}
	return Pipeline{
		Headless(),
		HostAlias(opts.HostAlias),
		ResilientSelectors(opts.Selectors),
		Instrument(),
		Prelude(),
	}
}

// Apply runs all rules in order. The input is never modified in place.
func (p Pipeline) Apply(script string) Result {
	out := strings.ReplaceAll(script, "\r\n", "\n")
	var applied []string
	for _, rule := range p {
		next := rule.Apply(out)
		if next != out {
			applied = append(applied, rule.Name)
		}
		out = next
	}
	return Result{Script: out, Applied: applied}
}

// mergeKeyword prepends kw to an argument list, keeping any leading
// whitespace (multi-line calls) in place.
func mergeKeyword(args, kw string) string {
	rest := strings.TrimLeft(args, " \t\n")
	if strings.TrimSpace(rest) == "" {
		return kw
	}
	leading := args[:len(args)-len(rest)]
	return leading + kw + ", " + rest
}

var commentLine = regexp.MustCompile(`^[ \t]*#`)

func indentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
